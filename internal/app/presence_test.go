package app_test

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/app"
)

type recorder struct {
	mu   sync.Mutex
	msgs []any
	fail bool
}

func (r *recorder) send(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("connection gone")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestPresenceJoinLeave(t *testing.T) {
	p := app.NewPresence(quietLogger())

	p.Join("c1", app.Member{Token: "t1", QuizID: 1, UserID: 7}, (&recorder{}).send)
	p.Join("c2", app.Member{Token: "t2", QuizID: 1, UserID: 8}, (&recorder{}).send)
	if p.RoomSize(1) != 2 {
		t.Fatalf("expected room size 2, got %d", p.RoomSize(1))
	}

	member, ok := p.Leave("c1")
	if !ok || member.UserID != 7 {
		t.Fatalf("leave returned %+v, %v", member, ok)
	}
	if p.RoomSize(1) != 1 {
		t.Fatalf("expected room size 1 after leave, got %d", p.RoomSize(1))
	}

	if _, ok := p.Leave("c1"); ok {
		t.Fatal("second leave of the same connection should be a no-op")
	}
	if _, ok := p.Leave("never-joined"); ok {
		t.Fatal("leave of unknown connection should be a no-op")
	}
}

func TestPresenceRejoinReplaces(t *testing.T) {
	p := app.NewPresence(quietLogger())

	p.Join("c1", app.Member{Token: "t1", QuizID: 1, UserID: 7}, (&recorder{}).send)
	p.Join("c1", app.Member{Token: "t9", QuizID: 2, UserID: 7}, (&recorder{}).send)

	if p.RoomSize(1) != 0 {
		t.Fatalf("old room still holds the connection: %d", p.RoomSize(1))
	}
	if p.RoomSize(2) != 1 {
		t.Fatalf("expected new room size 1, got %d", p.RoomSize(2))
	}
	member, ok := p.Lookup("c1")
	if !ok || member.Token != "t9" {
		t.Fatalf("lookup returned %+v, %v", member, ok)
	}
}

func TestPresenceBroadcast(t *testing.T) {
	p := app.NewPresence(quietLogger())

	r1, r2, r3 := &recorder{}, &recorder{}, &recorder{}
	p.Join("c1", app.Member{Token: "t1", QuizID: 1, UserID: 7}, r1.send)
	p.Join("c2", app.Member{Token: "t2", QuizID: 1, UserID: 8}, r2.send)
	p.Join("c3", app.Member{Token: "t3", QuizID: 2, UserID: 9}, r3.send)

	p.Broadcast(1, "hello", "c1")

	if r1.count() != 0 {
		t.Fatalf("excluded connection received %d messages", r1.count())
	}
	if r2.count() != 1 {
		t.Fatalf("room member received %d messages", r2.count())
	}
	if r3.count() != 0 {
		t.Fatalf("other room received %d messages", r3.count())
	}
}

func TestPresenceBroadcastSurvivesFailedSend(t *testing.T) {
	p := app.NewPresence(quietLogger())

	dead := &recorder{fail: true}
	live := &recorder{}
	p.Join("c1", app.Member{Token: "t1", QuizID: 1, UserID: 7}, dead.send)
	p.Join("c2", app.Member{Token: "t2", QuizID: 1, UserID: 8}, live.send)

	p.Broadcast(1, "hello", "")

	if live.count() != 1 {
		t.Fatalf("live connection received %d messages", live.count())
	}
	// A failed delivery does not unregister the connection; the read loop
	// owns cleanup.
	if p.RoomSize(1) != 2 {
		t.Fatalf("expected room size 2, got %d", p.RoomSize(1))
	}
}

func TestPresenceClear(t *testing.T) {
	p := app.NewPresence(quietLogger())
	p.Join("c1", app.Member{Token: "t1", QuizID: 1, UserID: 7}, (&recorder{}).send)
	p.Clear()
	if p.RoomSize(1) != 0 {
		t.Fatalf("expected empty registry, got %d", p.RoomSize(1))
	}
}
