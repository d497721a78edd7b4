package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

type wsFixture struct {
	server   *httptest.Server
	service  *app.SessionService
	verifier *auth.Verifier
	presence *app.Presence
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	catalog := memory.NewCatalog()
	catalog.Seed(
		[]domain.Quiz{{ID: 1, Title: "Live", DurationMinutes: 5, IsActive: true}},
		[]domain.Question{{
			ID: 1, QuizID: 1, Text: "Capital of France?", Position: 1,
			Options: domain.OptionSet{"a": "Paris", "b": "Lyon", "c": "Nice", "d": "Lille"},
			Correct: "a", TimeBonusFactor: 1.0,
		}},
	)

	log := logrus.New()
	log.SetOutput(io.Discard)

	verifier, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	service := app.NewSessionService(memory.NewSessionStore(), catalog)
	presence := app.NewPresence(log)
	handler := NewHandler(service, catalog, nil, log)
	wsHandler := NewWSHandler(service, presence, verifier, log)

	server := httptest.NewServer(NewRouter(handler, wsHandler, verifier))
	t.Cleanup(server.Close)
	return &wsFixture{server: server, service: service, verifier: verifier, presence: presence}
}

func (f *wsFixture) dial(t *testing.T, p domain.Principal) *websocket.Conn {
	t.Helper()
	token, err := f.verifier.Generate(p, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	u := "ws" + f.server.URL[len("http"):] + "/ws?credential=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return msg.Type, msg.Payload
}

func sendEvent(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": json.RawMessage(raw)}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	f := newWSFixture(t)

	u := "ws" + f.server.URL[len("http"):] + "/ws?credential=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake, got %+v", resp)
	}
}

func TestWebSocketSessionFlow(t *testing.T) {
	f := newWSFixture(t)
	alice := domain.Principal{ID: 7, Username: "alice", Role: domain.RoleUser}

	started, err := f.service.Start(context.Background(), alice, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	conn := f.dial(t, alice)

	sendEvent(t, conn, "join", map[string]any{"token": started.Token})
	typ, _ := readEvent(t, conn)
	if typ != "joined" {
		t.Fatalf("expected joined, got %s", typ)
	}
	if f.presence.RoomSize(1) != 1 {
		t.Fatalf("expected room size 1, got %d", f.presence.RoomSize(1))
	}

	sendEvent(t, conn, "request-time-sync", map[string]any{"token": started.Token})
	typ, payload := readEvent(t, conn)
	if typ != "time-sync" {
		t.Fatalf("expected time-sync, got %s", typ)
	}
	var sync struct {
		RemainingSeconds int `json:"remainingSeconds"`
	}
	if err := json.Unmarshal(payload, &sync); err != nil {
		t.Fatalf("decode time-sync: %v", err)
	}
	if sync.RemainingSeconds <= 0 {
		t.Fatalf("expected positive remaining time, got %d", sync.RemainingSeconds)
	}

	sendEvent(t, conn, "submit-answer", map[string]any{
		"token": started.Token, "questionId": 1, "selected": "a", "timeTakenSeconds": 10,
	})
	typ, payload = readEvent(t, conn)
	if typ != "answer-ack" {
		t.Fatalf("expected answer-ack, got %s", typ)
	}
	var ack domain.Answer
	if err := json.Unmarshal(payload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Correct {
		t.Fatalf("expected correct answer, got %+v", ack)
	}

	sendEvent(t, conn, "finish", map[string]any{"token": started.Token})
	typ, payload = readEvent(t, conn)
	if typ != "completed" {
		t.Fatalf("expected completed, got %s", typ)
	}
	var result domain.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.AccuracyScore != 1 || result.TimeBonusScore != 2.0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestWebSocketForeignTokenRefused(t *testing.T) {
	f := newWSFixture(t)
	alice := domain.Principal{ID: 7, Username: "alice", Role: domain.RoleUser}
	mallory := domain.Principal{ID: 9, Username: "mallory", Role: domain.RoleUser}

	started, err := f.service.Start(context.Background(), alice, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	conn := f.dial(t, mallory)
	sendEvent(t, conn, "join", map[string]any{"token": started.Token})
	typ, _ := readEvent(t, conn)
	if typ != "error" {
		t.Fatalf("expected error event, got %s", typ)
	}
	if f.presence.RoomSize(1) != 0 {
		t.Fatalf("foreign join registered presence: %d", f.presence.RoomSize(1))
	}
}

func TestWebSocketPeersSeeJoins(t *testing.T) {
	f := newWSFixture(t)
	alice := domain.Principal{ID: 7, Username: "alice", Role: domain.RoleUser}
	bob := domain.Principal{ID: 8, Username: "bob", Role: domain.RoleUser}

	aliceSession, err := f.service.Start(context.Background(), alice, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	bobSession, err := f.service.Start(context.Background(), bob, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	aliceConn := f.dial(t, alice)
	sendEvent(t, aliceConn, "join", map[string]any{"token": aliceSession.Token})
	if typ, _ := readEvent(t, aliceConn); typ != "joined" {
		t.Fatalf("expected joined, got %s", typ)
	}

	bobConn := f.dial(t, bob)
	sendEvent(t, bobConn, "join", map[string]any{"token": bobSession.Token})
	if typ, _ := readEvent(t, bobConn); typ != "joined" {
		t.Fatalf("expected joined, got %s", typ)
	}

	typ, payload := readEvent(t, aliceConn)
	if typ != "user-joined" {
		t.Fatalf("expected user-joined, got %s", typ)
	}
	var joined struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(payload, &joined); err != nil {
		t.Fatalf("decode user-joined: %v", err)
	}
	if joined.UserID != bob.ID {
		t.Fatalf("expected bob's join, got %+v", joined)
	}

	sendEvent(t, bobConn, "leave", nil)
	typ, _ = readEvent(t, aliceConn)
	if typ != "user-left" {
		t.Fatalf("expected user-left, got %s", typ)
	}
}
