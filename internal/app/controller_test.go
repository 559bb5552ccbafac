package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"signsense-quiz-service/internal/app"
	"signsense-quiz-service/internal/domain"
	"signsense-quiz-service/internal/infra/memory"
)

func newPoller(rooms *app.RoomService) *app.Poller {
	return app.NewPoller(rooms, 5*time.Millisecond, nil)
}

func expectEvent(t *testing.T, events <-chan string, want string) {
	t.Helper()
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("expected event %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestHostWatchLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rooms := newRoomService(memory.NewRoomStore())
	poller := newPoller(rooms)

	host, err := app.NewHost(ctx, rooms, poller, "math")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}

	events := make(chan string, 32)
	done := make(chan error, 1)
	go func() {
		done <- host.Watch(ctx, app.RoomEvents{
			OnSnapshot: func(r domain.Room) { events <- fmt.Sprintf("snapshot:%s", r.State) },
			OnStarted:  func(domain.Room) { events <- "started" },
			OnQuestion: func(r domain.Room) { events <- fmt.Sprintf("question:%d", r.QuestionIndex) },
			OnFinished: func(domain.Room) { events <- "finished" },
		})
	}()

	expectEvent(t, events, "snapshot:waiting")
	if err := host.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectEvent(t, events, "snapshot:playing")
	expectEvent(t, events, "started")
	expectEvent(t, events, "question:0")

	if err := host.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	expectEvent(t, events, "snapshot:playing")
	expectEvent(t, events, "question:1")

	// A player write changes the version but not the pointer.
	if err := rooms.JoinRoom(ctx, host.Code, "ana"); err != nil {
		t.Fatalf("join: %v", err)
	}
	expectEvent(t, events, "snapshot:playing")

	if err := host.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	expectEvent(t, events, "snapshot:finished")
	expectEvent(t, events, "finished")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch must end cleanly when finished, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not stop after finish")
	}
	if len(events) != 0 {
		t.Fatalf("unexpected trailing event %q", <-events)
	}
}

func TestPollerSkipsUnchangedVersions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rooms := newRoomService(memory.NewRoomStore())
	room, _ := rooms.CreateRoom(ctx, "math")

	var snapshots atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- newPoller(rooms).Watch(ctx, room.Code, app.RoomEvents{
			OnSnapshot: func(domain.Room) { snapshots.Add(1) },
		})
	}()

	time.Sleep(60 * time.Millisecond)
	if n := snapshots.Load(); n != 1 {
		t.Fatalf("expected a single snapshot for an idle room, got %d", n)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestWatchStopsWhenRoomDeleted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rooms := newRoomService(memory.NewRoomStore())
	room, _ := rooms.CreateRoom(ctx, "math")

	seen := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- newPoller(rooms).Watch(ctx, room.Code, app.RoomEvents{
			OnSnapshot: func(domain.Room) {
				select {
				case seen <- struct{}{}:
				default:
				}
			},
		})
	}()
	<-seen
	if err := rooms.EndSession(ctx, room.Code); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if err := <-done; !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
}

func TestPlayerAnswersOncePerQuestion(t *testing.T) {
	ctx := context.Background()
	rooms := newRoomService(memory.NewRoomStore())
	poller := newPoller(rooms)
	room, _ := rooms.CreateRoom(ctx, "math")

	player, err := app.JoinAsPlayer(ctx, rooms, poller, room.Code, "ana")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	waiting, _ := rooms.ReadRoom(ctx, room.Code)
	if _, err := player.Answer(ctx, waiting, "4"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("answer before start must fail, got %v", err)
	}
	if player.Answered(0) {
		t.Fatalf("failed write must leave the question open")
	}

	_ = rooms.HostStart(ctx, room.Code)
	snap, _ := rooms.ReadRoom(ctx, room.Code)
	out, err := player.Answer(ctx, snap, "4")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !out.Correct || out.Awarded != 300 || !player.Answered(0) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if _, err := player.Answer(ctx, snap, "5"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected duplicate answer rejection, got %v", err)
	}

	got, _ := rooms.ReadRoom(ctx, room.Code)
	if p := got.Players["ana"]; p.Score != 300 || p.Answer == nil || *p.Answer != "4" {
		t.Fatalf("duplicate answer must not land, got %+v", p)
	}

	_ = rooms.HostAdvance(ctx, room.Code)
	if _, err := player.Answer(ctx, snap, "4"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("stale snapshot reuses the answered index, got %v", err)
	}
	next, _ := rooms.ReadRoom(ctx, room.Code)
	if out, err := player.Answer(ctx, next, "56"); err != nil || !out.Correct || out.Awarded != 600 {
		t.Fatalf("second question: %+v %v", out, err)
	}
}

func TestPlayerSessionsShareOneAnswer(t *testing.T) {
	ctx := context.Background()
	rooms := newRoomService(memory.NewRoomStore())
	poller := newPoller(rooms)
	room, _ := rooms.CreateRoom(ctx, "math")

	phone, _ := app.JoinAsPlayer(ctx, rooms, poller, room.Code, "ana")
	laptop, _ := app.JoinAsPlayer(ctx, rooms, poller, room.Code, "ana")
	_ = rooms.HostStart(ctx, room.Code)
	snap, _ := rooms.ReadRoom(ctx, room.Code)

	if _, err := phone.Answer(ctx, snap, "4"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := laptop.Answer(ctx, snap, "4"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("second session must be rejected by the room, got %v", err)
	}
	if !laptop.Answered(0) {
		t.Fatalf("a question answered elsewhere must stay closed")
	}
	got, _ := rooms.ReadRoom(ctx, room.Code)
	if p := got.Players["ana"]; p.Score != 300 {
		t.Fatalf("expected a single award, got %+v", p)
	}
}

func TestJoinAsPlayerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	rooms := newRoomService(memory.NewRoomStore())
	if _, err := app.JoinAsPlayer(ctx, rooms, newPoller(rooms), "NOPE00", "ana"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
	room, _ := rooms.CreateRoom(ctx, "math")
	if _, err := app.JoinAsPlayer(ctx, rooms, newPoller(rooms), room.Code, "a.b"); !errors.Is(err, domain.ErrInvalidPlayerName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
}
