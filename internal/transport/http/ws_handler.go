package http

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"

	"lingua-tutor-service/internal/app"
	"lingua-tutor-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler runs live practice sessions: the client connects with a learner
// id, receives its current lesson, streams attempts and gets the assessment
// plus refreshed progress back on the same connection.
type WSHandler struct {
	service  *app.TutorService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.TutorService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type attemptPayload struct {
	TopicID         string  `json:"topicId"`
	Day             int     `json:"day"`
	Transcript      string  `json:"transcript,omitempty"`
	AudioBase64     string  `json:"audio,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type wsError struct {
	Message string `json:"message"`
}

// ServePractice upgrades the connection and wires it into the tutoring use cases.
func (h *WSHandler) ServePractice(w http.ResponseWriter, r *http.Request) {
	learnerID := r.URL.Query().Get("learnerId")
	if learnerID == "" {
		http.Error(w, "missing learnerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// Single writer goroutine; the read loop below only pushes into send.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	today, err := h.service.TodayLesson(r.Context(), learnerID)
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: wsError{Message: err.Error()}}
	} else {
		send <- outboundMessage[any]{Type: "today", Payload: today}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "attempt":
			var payload attemptPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: wsError{Message: "invalid attempt payload"}}
				continue
			}
			result, err := h.submit(r, learnerID, payload)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: wsError{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "attemptResult", Payload: result}
			if result.Passed {
				if today, err := h.service.TodayLesson(r.Context(), learnerID); err == nil {
					send <- outboundMessage[any]{Type: "today", Payload: today}
				}
			}
		case "today":
			today, err := h.service.TodayLesson(r.Context(), learnerID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: wsError{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "today", Payload: today}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: wsError{Message: "unsupported message type"}}
		}
	}

	close(send)
	<-writerDone
}

func (h *WSHandler) submit(r *http.Request, learnerID string, payload attemptPayload) (*domain.SubmissionResult, error) {
	if payload.AudioBase64 != "" {
		audio, err := base64.StdEncoding.DecodeString(payload.AudioBase64)
		if err != nil {
			return nil, &domain.InvalidInputError{Reason: "audio must be base64"}
		}
		return h.service.SubmitRecording(r.Context(), learnerID, payload.TopicID, payload.Day, audio, payload.DurationSeconds)
	}
	return h.service.SubmitAttempt(r.Context(), learnerID, payload.TopicID, payload.Day, payload.Transcript, payload.DurationSeconds)
}
