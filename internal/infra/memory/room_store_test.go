package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"signsense-quiz-service/internal/domain"
)

func TestRoomStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()

	if err := store.Create(ctx, domain.NewRoom("ABC123", "math")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, domain.NewRoom("ABC123", "math")); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected duplicate create to fail, got %v", err)
	}

	playing := domain.RoomPlaying
	if err := store.Patch(ctx, "ABC123", domain.RoomPatch{RequireState: []domain.RoomState{domain.RoomWaiting}, State: &playing}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := store.Patch(ctx, "ABC123", domain.RoomPatch{RequireState: []domain.RoomState{domain.RoomWaiting}, State: &playing}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected precondition failure, got %v", err)
	}

	room, err := store.Get(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.State != domain.RoomPlaying || room.Version != 1 {
		t.Fatalf("unexpected room %+v", room)
	}

	if err := store.Delete(ctx, "ABC123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "ABC123"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room removed, got %v", err)
	}
}

func TestRoomStoreSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	_ = store.Create(ctx, domain.NewRoom("ABC123", ""))
	_ = store.Patch(ctx, "ABC123", domain.RoomPatch{Player: "ana", EnsurePlayer: true})

	room, _ := store.Get(ctx, "ABC123")
	room.Players["ana"] = domain.PlayerState{Score: 999}

	again, _ := store.Get(ctx, "ABC123")
	if again.Players["ana"].Score != 0 {
		t.Fatalf("store state leaked through snapshot: %+v", again.Players["ana"])
	}
}

func TestRoomStoreConcurrentPlayerPatches(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	_ = store.Create(ctx, domain.NewRoom("ABC123", ""))

	const players = 20
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = store.Patch(ctx, "ABC123", domain.RoomPatch{Player: name, EnsurePlayer: true, ScoreDelta: 100})
		}(fmt.Sprintf("p%d", i))
	}
	wg.Wait()

	room, _ := store.Get(ctx, "ABC123")
	if len(room.Players) != players {
		t.Fatalf("expected %d players, got %d", players, len(room.Players))
	}
	for name, p := range room.Players {
		if p.Score != 100 {
			t.Fatalf("lost update for %s: %+v", name, p)
		}
	}
}

func TestRoomStoreRejectsRepeatedAnswer(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	room := domain.NewRoom("ABC123", "")
	room.State = domain.RoomPlaying
	_ = store.Create(ctx, room)
	_ = store.Patch(ctx, "ABC123", domain.RoomPatch{Player: "ana", EnsurePlayer: true})

	answer, at := "4", 0
	patch := domain.RoomPatch{RequireQuestion: &at, Player: "ana", Answer: &answer, ScoreDelta: 300}
	if err := store.Patch(ctx, "ABC123", patch); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := store.Patch(ctx, "ABC123", patch); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
	got, _ := store.Get(ctx, "ABC123")
	if ana := got.Players["ana"]; ana.Score != 300 || ana.Answered != 1 || got.Version != 2 {
		t.Fatalf("rejected answer must not write, got %+v version %d", ana, got.Version)
	}
}
