package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/domain"
)

type WSHandler struct {
	service  *app.SessionService
	presence *app.Presence
	verifier *auth.Verifier
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, presence *app.Presence, verifier *auth.Verifier, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		presence: presence,
		verifier: verifier,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinPayload struct {
	Token string `json:"token"`
}

type wsAnswerPayload struct {
	Token            string        `json:"token"`
	QuestionID       int64         `json:"questionId"`
	Selected         domain.Letter `json:"selected"`
	TimeTakenSeconds int           `json:"timeTakenSeconds"`
}

type cursorPayload struct {
	Token string `json:"token"`
	Delta int    `json:"delta"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

type presencePayload struct {
	UserID int64 `json:"userId"`
	QuizID int64 `json:"quizId"`
}

type timeSyncPayload struct {
	Token            string `json:"token"`
	RemainingSeconds int    `json:"remainingSeconds"`
	ServerTime       string `json:"serverTime"`
}

// wsClient serializes writes so presence broadcasts originating on other
// connections' goroutines never interleave with the owning loop's frames.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// ServeWS upgrades the request and runs the per-connection event loop. The
// credential is verified before any connection state is created.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.Verify(r.URL.Query().Get("credential"))
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}
	connID := uuid.NewString()

	defer func() {
		member, ok := h.presence.Leave(connID)
		if ok {
			h.presence.Broadcast(member.QuizID, outboundMessage{Type: "user-left", Payload: presencePayload{
				UserID: member.UserID,
				QuizID: member.QuizID,
			}}, connID)
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		h.dispatch(r, client, connID, principal, inbound)
	}
}

func (h *WSHandler) dispatch(r *http.Request, client *wsClient, connID string, principal domain.Principal, inbound inboundMessage) {
	ctx := r.Context()

	switch inbound.Type {
	case "join":
		var payload joinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.sendError(client, "invalid join payload")
			return
		}
		session, quiz, err := h.service.Lookup(ctx, payload.Token)
		if err != nil {
			h.sendError(client, wsErrorMessage(err))
			return
		}
		if session.UserID != principal.ID {
			h.sendError(client, "session belongs to another user")
			return
		}
		h.presence.Join(connID, app.Member{Token: payload.Token, QuizID: session.QuizID, UserID: session.UserID}, client.Send)
		_ = client.Send(outboundMessage{Type: "joined", Payload: map[string]any{
			"token":            payload.Token,
			"quizId":           session.QuizID,
			"cursor":           session.Cursor,
			"remainingSeconds": session.RemainingSeconds(time.Now(), quiz),
			"completed":        session.Completed,
		}})
		h.presence.Broadcast(session.QuizID, outboundMessage{Type: "user-joined", Payload: presencePayload{
			UserID: session.UserID,
			QuizID: session.QuizID,
		}}, connID)

	case "leave":
		member, ok := h.presence.Leave(connID)
		if ok {
			h.presence.Broadcast(member.QuizID, outboundMessage{Type: "user-left", Payload: presencePayload{
				UserID: member.UserID,
				QuizID: member.QuizID,
			}}, connID)
		}

	case "submit-answer":
		var payload wsAnswerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.sendError(client, "invalid answer payload")
			return
		}
		detail, err := h.service.RecordAnswer(ctx, principal, payload.Token, app.AnswerSubmission{
			QuestionID:       payload.QuestionID,
			Selected:         payload.Selected,
			TimeTakenSeconds: payload.TimeTakenSeconds,
		})
		if err != nil {
			h.sendError(client, wsErrorMessage(err))
			return
		}
		_ = client.Send(outboundMessage{Type: "answer-ack", Payload: detail})

	case "advance-cursor":
		var payload cursorPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.sendError(client, "invalid cursor payload")
			return
		}
		cursor, err := h.service.Advance(ctx, principal, payload.Token, payload.Delta)
		if err != nil {
			h.sendError(client, wsErrorMessage(err))
			return
		}
		_ = client.Send(outboundMessage{Type: "cursor-changed", Payload: cursor})

	case "request-time-sync":
		var payload tokenPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.sendError(client, "invalid time-sync payload")
			return
		}
		view, err := h.service.Session(ctx, principal, payload.Token)
		if err != nil {
			h.sendError(client, wsErrorMessage(err))
			return
		}
		_ = client.Send(outboundMessage{Type: "time-sync", Payload: timeSyncPayload{
			Token:            payload.Token,
			RemainingSeconds: view.RemainingSeconds,
			ServerTime:       time.Now().UTC().Format(time.RFC3339),
		}})

	case "finish":
		var payload tokenPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.sendError(client, "invalid finish payload")
			return
		}
		result, err := h.service.Submit(ctx, principal, payload.Token)
		if err != nil {
			h.sendError(client, wsErrorMessage(err))
			return
		}
		_ = client.Send(outboundMessage{Type: "completed", Payload: result})

	default:
		h.sendError(client, "unsupported message type")
	}
}

func (h *WSHandler) sendError(client *wsClient, message string) {
	if err := client.Send(outboundMessage{Type: "error", Payload: errorPayload{Message: message}}); err != nil {
		h.log.WithError(err).Debug("ws error write failed")
	}
}

func wsErrorMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrQuizNotFound, domain.ErrQuestionNotFound, domain.ErrSessionNotFound,
		domain.ErrResultNotFound, domain.ErrUnauthorized, domain.ErrForbidden,
		domain.ErrQuizUnavailable, domain.ErrSessionExpired, domain.ErrInvalidInput,
		domain.ErrBoundaryReached, domain.ErrAllQuestionsCompleted, domain.ErrNotCompleted,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}
