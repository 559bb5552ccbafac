package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signsense-quiz-service/internal/domain"

	"go.uber.org/zap"
)

// DefaultPollInterval bounds view staleness for polling clients.
const DefaultPollInterval = 1500 * time.Millisecond

// RoomEvents are the role-specific triggers a poller fires. Nil callbacks are skipped.
type RoomEvents struct {
	// OnSnapshot fires for the first read and every write observed afterwards.
	OnSnapshot func(domain.Room)
	// OnStarted fires once when the room is first seen playing.
	OnStarted func(domain.Room)
	// OnQuestion fires when a playing room's question pointer is first seen or changes.
	OnQuestion func(domain.Room)
	// OnFinished fires once when the room is seen finished; polling stops afterwards.
	OnFinished func(domain.Room)
	// OnError receives read failures; polling continues.
	OnError func(error)
}

// Poller re-reads a room on a fixed interval. There is no push channel: clients
// see changes at most one interval late.
type Poller struct {
	rooms    *RoomService
	interval time.Duration
	logger   *zap.Logger
}

func NewPoller(rooms *RoomService, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{rooms: rooms, interval: interval, logger: logger}
}

// Watch polls code until ctx is done, the room finishes (nil), or the room disappears
// (domain.ErrRoomNotFound). Stopping needs no cleanup on the room.
func (p *Poller) Watch(ctx context.Context, code string, events RoomEvents) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *domain.Room
	started := false
	for {
		room, err := p.rooms.ReadRoom(ctx, code)
		switch {
		case err == nil:
			if done := dispatch(last, &started, room, events); done {
				return nil
			}
			last = &room
		case errors.Is(err, domain.ErrRoomNotFound):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			p.logger.Warn("room poll failed", zap.String("code", code), zap.Error(err))
			if events.OnError != nil {
				events.OnError(err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dispatch fires the callbacks implied by moving from last to room and reports
// whether the room is finished.
func dispatch(last *domain.Room, started *bool, room domain.Room, ev RoomEvents) bool {
	if last != nil && last.Version == room.Version {
		return false
	}
	if ev.OnSnapshot != nil {
		ev.OnSnapshot(room)
	}
	switch room.State {
	case domain.RoomPlaying:
		if !*started {
			*started = true
			if ev.OnStarted != nil {
				ev.OnStarted(room)
			}
		}
		if ev.OnQuestion != nil && (last == nil || last.State != domain.RoomPlaying || last.QuestionIndex != room.QuestionIndex) {
			ev.OnQuestion(room)
		}
	case domain.RoomFinished:
		if ev.OnFinished != nil {
			ev.OnFinished(room)
		}
		return true
	}
	return false
}

// HostController drives one room from the host's side.
type HostController struct {
	Code   string
	rooms  *RoomService
	poller *Poller
}

// NewHost creates a room for subject and returns its controller.
func NewHost(ctx context.Context, rooms *RoomService, poller *Poller, subject string) (*HostController, error) {
	room, err := rooms.CreateRoom(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &HostController{Code: room.Code, rooms: rooms, poller: poller}, nil
}

func (h *HostController) Start(ctx context.Context) error   { return h.rooms.HostStart(ctx, h.Code) }
func (h *HostController) Advance(ctx context.Context) error { return h.rooms.HostAdvance(ctx, h.Code) }
func (h *HostController) End(ctx context.Context) error     { return h.rooms.HostEnd(ctx, h.Code) }

// Watch renders lifecycle, pointer and scoreboard updates for the host view.
func (h *HostController) Watch(ctx context.Context, events RoomEvents) error {
	return h.poller.Watch(ctx, h.Code, events)
}

// PlayerController acts for one named player. It remembers the indexes it has
// submitted for so a repeated tap fails before reaching the store.
type PlayerController struct {
	Code   string
	Name   string
	rooms  *RoomService
	poller *Poller

	mu       sync.Mutex
	answered map[int]struct{}
}

// JoinAsPlayer joins code as name and returns the player's controller.
func JoinAsPlayer(ctx context.Context, rooms *RoomService, poller *Poller, code, name string) (*PlayerController, error) {
	if err := rooms.JoinRoom(ctx, code, name); err != nil {
		return nil, err
	}
	return &PlayerController{
		Code:     code,
		Name:     name,
		rooms:    rooms,
		poller:   poller,
		answered: make(map[int]struct{}),
	}, nil
}

// Answered reports whether the player already submitted for index.
func (p *PlayerController) Answered(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.answered[index]
	return ok
}

// Answer submits chosen for the question shown in snapshot.
func (p *PlayerController) Answer(ctx context.Context, snapshot domain.Room, chosen string) (AnswerOutcome, error) {
	index := snapshot.QuestionIndex
	p.mu.Lock()
	if _, dup := p.answered[index]; dup {
		p.mu.Unlock()
		return AnswerOutcome{}, fmt.Errorf("%w: %s already answered question %d", domain.ErrInvalidState, p.Name, index)
	}
	p.answered[index] = struct{}{}
	p.mu.Unlock()

	question, err := p.rooms.CurrentQuestion(ctx, snapshot)
	if err == nil {
		var out AnswerOutcome
		out, err = p.rooms.SubmitAnswerAt(ctx, p.Code, p.Name, index, question, chosen)
		if err == nil {
			return out, nil
		}
	}
	if errors.Is(err, domain.ErrAlreadyAnswered) {
		return AnswerOutcome{}, err
	}
	// The write did not land, so the question stays open for this player.
	p.mu.Lock()
	delete(p.answered, index)
	p.mu.Unlock()
	return AnswerOutcome{}, err
}

// Watch polls the room for the player view.
func (p *PlayerController) Watch(ctx context.Context, events RoomEvents) error {
	return p.poller.Watch(ctx, p.Code, events)
}
