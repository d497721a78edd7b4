package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// Handler serves the REST surface: the session lifecycle for participants
// and catalog management plus analytics for administrators.
type Handler struct {
	service    *app.SessionService
	admin      app.CatalogAdmin
	invalidate func(ctx context.Context, quizID int64)
	log        *logrus.Logger
}

// NewHandler wires the REST handlers. invalidate may be nil when no cache
// sits in front of the catalog.
func NewHandler(service *app.SessionService, admin app.CatalogAdmin, invalidate func(ctx context.Context, quizID int64), log *logrus.Logger) *Handler {
	return &Handler{service: service, admin: admin, invalidate: invalidate, log: log}
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	view, err := h.service.Start(r.Context(), principal, quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if view.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, view)
}

func (h *Handler) sessionInfo(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	view, err := h.service.Session(r.Context(), principal, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) currentQuestion(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	view, err := h.service.CurrentQuestion(r.Context(), principal, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	var sub app.AnswerSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	answer, err := h.service.RecordAnswer(r.Context(), principal, chi.URLParam(r, "token"), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) nextQuestion(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, 1)
}

func (h *Handler) previousQuestion(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, -1)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request, delta int) {
	principal, _ := PrincipalFrom(r.Context())
	cursor, err := h.service.Advance(r.Context(), principal, chi.URLParam(r, "token"), delta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cursor)
}

func (h *Handler) submitQuiz(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	result, err := h.service.Submit(r.Context(), principal, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	view, err := h.service.Result(r.Context(), principal, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Admin catalog management.

type quizPayload struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	DurationMinutes    int        `json:"durationMinutes"`
	PerQuestionSeconds int        `json:"perQuestionSeconds"`
	RandomizeQuestions bool       `json:"randomizeQuestions"`
	RandomizeOptions   bool       `json:"randomizeOptions"`
	IsActive           *bool      `json:"isActive"`
	StartTime          *time.Time `json:"startTime"`
	EndTime            *time.Time `json:"endTime"`
}

func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.admin.ListQuizzes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	var payload quizPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	if payload.Title == "" || payload.DurationMinutes <= 0 {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	quiz := domain.Quiz{
		Title:              payload.Title,
		Description:        payload.Description,
		DurationMinutes:    payload.DurationMinutes,
		PerQuestionSeconds: payload.PerQuestionSeconds,
		RandomizeQuestions: payload.RandomizeQuestions,
		RandomizeOptions:   payload.RandomizeOptions,
		CreatedBy:          principal.ID,
		IsActive:           true,
		StartTime:          payload.StartTime,
		EndTime:            payload.EndTime,
	}
	if payload.IsActive != nil {
		quiz.IsActive = *payload.IsActive
	}
	if err := h.admin.CreateQuiz(r.Context(), &quiz); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) updateQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	var payload quizPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	if payload.Title == "" || payload.DurationMinutes <= 0 {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	quiz := domain.Quiz{
		ID:                 quizID,
		Title:              payload.Title,
		Description:        payload.Description,
		DurationMinutes:    payload.DurationMinutes,
		PerQuestionSeconds: payload.PerQuestionSeconds,
		RandomizeQuestions: payload.RandomizeQuestions,
		RandomizeOptions:   payload.RandomizeOptions,
		IsActive:           true,
		StartTime:          payload.StartTime,
		EndTime:            payload.EndTime,
	}
	if payload.IsActive != nil {
		quiz.IsActive = *payload.IsActive
	}
	if err := h.admin.UpdateQuiz(r.Context(), quiz); err != nil {
		writeError(w, err)
		return
	}
	h.dropCache(r.Context(), quizID)
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) deactivateQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	if err := h.admin.DeactivateQuiz(r.Context(), quizID); err != nil {
		writeError(w, err)
		return
	}
	h.dropCache(r.Context(), quizID)
	w.WriteHeader(http.StatusNoContent)
}

type questionPayload struct {
	Text            string            `json:"text"`
	Options         map[string]string `json:"options"`
	Correct         string            `json:"correct"`
	Position        int               `json:"position"`
	TimeBonusFactor float64           `json:"timeBonusFactor"`
}

func (p questionPayload) toDomain(quizID, questionID int64) (domain.Question, error) {
	correct := domain.Letter(p.Correct)
	if p.Text == "" || !correct.Valid() {
		return domain.Question{}, domain.ErrInvalidInput
	}
	options := make(domain.OptionSet, len(domain.Letters))
	for _, l := range domain.Letters {
		text, ok := p.Options[string(l)]
		if !ok || text == "" {
			return domain.Question{}, domain.ErrInvalidInput
		}
		options[l] = text
	}
	return domain.Question{
		ID:              questionID,
		QuizID:          quizID,
		Text:            p.Text,
		Options:         options,
		Correct:         correct,
		Position:        p.Position,
		TimeBonusFactor: p.TimeBonusFactor,
	}, nil
}

func (h *Handler) createQuestion(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	var payload questionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	question, err := payload.toDomain(quizID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.admin.CreateQuestion(r.Context(), &question); err != nil {
		writeError(w, err)
		return
	}
	h.dropCache(r.Context(), quizID)
	writeJSON(w, http.StatusCreated, question)
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	questionID, err := pathID(r, "questionID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	var payload questionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	question, err := payload.toDomain(quizID, questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.admin.UpdateQuestion(r.Context(), question); err != nil {
		writeError(w, err)
		return
	}
	h.dropCache(r.Context(), quizID)
	writeJSON(w, http.StatusOK, question)
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	questionID, err := pathID(r, "questionID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	if err := h.admin.DeleteQuestion(r.Context(), quizID, questionID); err != nil {
		writeError(w, err)
		return
	}
	h.dropCache(r.Context(), quizID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	analytics, err := h.service.Analytics(r.Context(), quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *Handler) dropCache(ctx context.Context, quizID int64) {
	if h.invalidate != nil {
		h.invalidate(ctx, quizID)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrQuizUnavailable):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrAllQuestionsCompleted):
		return http.StatusGone
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrBoundaryReached),
		errors.Is(err, domain.ErrNotCompleted):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
