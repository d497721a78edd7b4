package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quiz-session-service/internal/auth"
)

// NewRouter assembles the public surface: health probe, the authenticated
// REST API, the admin API, and the real-time websocket endpoint.
func NewRouter(h *Handler, ws *WSHandler, verifier *auth.Verifier) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(verifier))

		r.Post("/quizzes/{quizID}/start", h.startSession)
		r.Get("/sessions/{token}", h.sessionInfo)
		r.Get("/sessions/{token}/question", h.currentQuestion)
		r.Post("/sessions/{token}/answer", h.submitAnswer)
		r.Post("/sessions/{token}/next", h.nextQuestion)
		r.Post("/sessions/{token}/previous", h.previousQuestion)
		r.Post("/sessions/{token}/submit", h.submitQuiz)
		r.Get("/sessions/{token}/result", h.result)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/quizzes", h.listQuizzes)
			r.Post("/quizzes", h.createQuiz)
			r.Put("/quizzes/{quizID}", h.updateQuiz)
			r.Delete("/quizzes/{quizID}", h.deactivateQuiz)
			r.Post("/quizzes/{quizID}/questions", h.createQuestion)
			r.Put("/quizzes/{quizID}/questions/{questionID}", h.updateQuestion)
			r.Delete("/quizzes/{quizID}/questions/{questionID}", h.deleteQuestion)
			r.Get("/quizzes/{quizID}/analytics", h.analytics)
		})
	})

	return r
}
