package memory

import (
	"context"
	"fmt"
	"sync"

	"signsense-quiz-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. It is the
// fallback when no remote backend is configured and never reports the store
// as unavailable.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]domain.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]domain.Room)}
}

func (s *RoomStore) Create(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return fmt.Errorf("%w: %s", domain.ErrRoomExists, room.Code)
	}
	s.rooms[room.Code] = room.Clone()
	return nil
}

func (s *RoomStore) Get(_ context.Context, code string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	return room.Clone(), nil
}

// Patch applies the field-scoped update under the store lock, so concurrent
// writers to different fields never overwrite each other.
func (s *RoomStore) Patch(_ context.Context, code string, patch domain.RoomPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	updated := room.Clone()
	if err := patch.Apply(&updated); err != nil {
		return err
	}
	s.rooms[code] = updated
	return nil
}

func (s *RoomStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	delete(s.rooms, code)
	return nil
}
