package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"lingua-tutor-service/internal/app"
	"lingua-tutor-service/internal/domain"
	"github.com/gorilla/mux"
)

// Handler exposes the tutoring use cases over JSON/HTTP.
type Handler struct {
	service *app.TutorService
}

func NewHandler(service *app.TutorService) *Handler {
	return &Handler{service: service}
}

// Routes builds the HTTP router.
func (h *Handler) Routes(ws *WSHandler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/learners/{learnerId}/lessons/today", h.todayLesson).Methods("GET")
	api.HandleFunc("/learners/{learnerId}/lessons", h.availableLessons).Methods("GET")
	api.HandleFunc("/learners/{learnerId}/progress", h.currentProgress).Methods("GET")
	api.HandleFunc("/learners/{learnerId}/stats", h.stats).Methods("GET")
	api.HandleFunc("/learners/{learnerId}/topics/{topicId}/days/{day}", h.lesson).Methods("GET")
	api.HandleFunc("/learners/{learnerId}/topics/{topicId}/days/{day}/attempts", h.submitAttempt).Methods("POST")
	api.HandleFunc("/learners/{learnerId}/topics/{topicId}/exam", h.completeFinalExam).Methods("POST")

	if ws != nil {
		r.HandleFunc("/ws/practice", ws.ServePractice)
	}
	return r
}

func (h *Handler) todayLesson(w http.ResponseWriter, r *http.Request) {
	learnerID := mux.Vars(r)["learnerId"]
	today, err := h.service.TodayLesson(r.Context(), learnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, today)
}

func (h *Handler) availableLessons(w http.ResponseWriter, r *http.Request) {
	learnerID := mux.Vars(r)["learnerId"]
	listing, err := h.service.AvailableLessons(r.Context(), learnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) currentProgress(w http.ResponseWriter, r *http.Request) {
	learnerID := mux.Vars(r)["learnerId"]
	rec, err := h.service.CurrentProgress(r.Context(), learnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	learnerID := mux.Vars(r)["learnerId"]
	count, err := h.service.CompletedTopics(r.Context(), learnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"completedTopics": count})
}

func (h *Handler) lesson(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	day, err := strconv.Atoi(vars["day"])
	if err != nil {
		writeError(w, &domain.InvalidInputError{Reason: "day must be a number"})
		return
	}
	lesson, err := h.service.AccessibleLesson(r.Context(), vars["learnerId"], vars["topicId"], day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

type attemptRequest struct {
	Transcript      string  `json:"transcript,omitempty"`
	AudioBase64     string  `json:"audio,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
}

func (h *Handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	day, err := strconv.Atoi(vars["day"])
	if err != nil {
		writeError(w, &domain.InvalidInputError{Reason: "day must be a number"})
		return
	}

	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.InvalidInputError{Reason: "malformed attempt payload"})
		return
	}

	var result *domain.SubmissionResult
	switch {
	case req.AudioBase64 != "":
		audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			writeError(w, &domain.InvalidInputError{Reason: "audio must be base64"})
			return
		}
		result, err = h.service.SubmitRecording(r.Context(), vars["learnerId"], vars["topicId"], day, audio, req.DurationSeconds)
		if err != nil {
			writeError(w, err)
			return
		}
	case req.Transcript != "":
		result, err = h.service.SubmitAttempt(r.Context(), vars["learnerId"], vars["topicId"], day, req.Transcript, req.DurationSeconds)
		if err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, &domain.InvalidInputError{Reason: "attempt needs audio or transcript"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type examRequest struct {
	Score int `json:"score"`
}

func (h *Handler) completeFinalExam(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req examRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.InvalidInputError{Reason: "malformed exam payload"})
		return
	}
	result, err := h.service.CompleteFinalExam(r.Context(), vars["learnerId"], vars["topicId"], req.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorPayload struct {
	Message string                    `json:"message"`
	Denied  *domain.AccessDeniedError `json:"accessDenied,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var invalid *domain.InvalidInputError
	var denied *domain.AccessDeniedError
	var terr *domain.TranscriptionError

	switch {
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorPayload{Message: denied.Error(), Denied: denied})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: invalid.Error()})
	case errors.Is(err, domain.ErrTopicNotFound), errors.Is(err, domain.ErrLessonNotFound):
		writeJSON(w, http.StatusNotFound, errorPayload{Message: err.Error()})
	case errors.As(err, &terr):
		writeJSON(w, transcriptionStatus(terr.Reason), errorPayload{Message: terr.Error()})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, errorPayload{Message: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "internal error"})
	}
}

func transcriptionStatus(reason domain.TranscriptionReason) int {
	switch reason {
	case domain.TranscriptionRateLimited:
		return http.StatusTooManyRequests
	case domain.TranscriptionInvalidAudio:
		return http.StatusUnprocessableEntity
	case domain.TranscriptionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
