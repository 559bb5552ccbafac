package domain

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// RoomState is the lifecycle of a live room. It only moves forward.
type RoomState string

const (
	RoomWaiting  RoomState = "waiting"
	RoomPlaying  RoomState = "playing"
	RoomFinished RoomState = "finished"
)

// PlayerState is one participant's entry inside a room.
type PlayerState struct {
	Answer *string `json:"answer" bson:"answer"`
	Score  int     `json:"score" bson:"score"`
	// Answered is one past the last question index the player answered; 0 means none.
	Answered int `json:"answered" bson:"answered"`
}

// AnsweredCurrent reports whether the player's answer belongs to question index.
func (p PlayerState) AnsweredCurrent(index int) bool {
	return p.Answer != nil && p.Answered == index+1
}

// Room is the shared multiplayer record. Host owns State and QuestionIndex;
// each player owns only Players[name].
type Room struct {
	Code          string                 `json:"code" bson:"code"`
	State         RoomState              `json:"state" bson:"state"`
	QuestionIndex int                    `json:"question_index" bson:"question_index"`
	Players       map[string]PlayerState `json:"players" bson:"players"`
	Subject       string                 `json:"subject,omitempty" bson:"subject,omitempty"`
	Version       int64                  `json:"version" bson:"version"`
}

// NewRoom returns the initial waiting room for code.
func NewRoom(code, subject string) Room {
	return Room{
		Code:    code,
		State:   RoomWaiting,
		Players: make(map[string]PlayerState),
		Subject: subject,
	}
}

// Clone returns a deep copy so callers can't mutate store-held state.
func (r Room) Clone() Room {
	out := r
	out.Players = make(map[string]PlayerState, len(r.Players))
	for name, p := range r.Players {
		if p.Answer != nil {
			a := *p.Answer
			p.Answer = &a
		}
		out.Players[name] = p
	}
	return out
}

// ScoreboardEntry is a ranked view of one player.
type ScoreboardEntry struct {
	Rank     int    `json:"rank"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Answered bool   `json:"answered"`
	Answer   string `json:"answer,omitempty"`
}

// Scoreboard ranks players by score desc, then name. Answers given for an
// earlier question are left out.
func (r Room) Scoreboard() []ScoreboardEntry {
	entries := make([]ScoreboardEntry, 0, len(r.Players))
	for name, p := range r.Players {
		e := ScoreboardEntry{Name: name, Score: p.Score}
		if p.AnsweredCurrent(r.QuestionIndex) {
			e.Answered = true
			e.Answer = *p.Answer
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

const maxPlayerNameLen = 64

// ValidatePlayerName rejects names that can't be used as a player key in every backend.
func ValidatePlayerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPlayerName)
	}
	if len(name) > maxPlayerNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidPlayerName, maxPlayerNameLen)
	}
	if strings.ContainsAny(name, ".$") {
		return fmt.Errorf("%w: %q contains '.' or '$'", ErrInvalidPlayerName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidPlayerName, name)
		}
	}
	return nil
}

// RoomPatch is a field-scoped write. A patch touches either host fields
// (State, AdvanceQuestion) or a single player's entry, never both.
// Stores apply it atomically and bump Version. An answer must be pinned with
// RequireQuestion and is accepted at most once per player and question.
type RoomPatch struct {
	// RequireState, when non-empty, makes the patch conditional on the current state.
	RequireState []RoomState
	// RequireQuestion, when set, makes the patch conditional on the question pointer.
	RequireQuestion *int

	State           *RoomState
	AdvanceQuestion bool

	Player string
	// EnsurePlayer inserts a zero PlayerState if absent and keeps an existing one.
	EnsurePlayer bool
	Answer       *string
	ScoreDelta   int
}

func (p RoomPatch) touchesHost() bool {
	return p.State != nil || p.AdvanceQuestion
}

func (p RoomPatch) touchesPlayer() bool {
	return p.EnsurePlayer || p.Answer != nil || p.ScoreDelta != 0
}

// Validate enforces the ownership partition and basic sanity of a patch.
func (p RoomPatch) Validate() error {
	host, player := p.touchesHost(), p.touchesPlayer()
	switch {
	case host && player:
		return fmt.Errorf("patch mixes host and player fields")
	case player && p.Player == "":
		return fmt.Errorf("player patch without player name")
	case host && p.Player != "":
		return fmt.Errorf("host patch names player %q", p.Player)
	case !host && !player:
		return fmt.Errorf("empty patch")
	case p.Answer != nil && p.RequireQuestion == nil:
		return fmt.Errorf("answer patch without question index")
	}
	if p.ScoreDelta < 0 {
		return fmt.Errorf("negative score delta %d", p.ScoreDelta)
	}
	if p.Player != "" {
		return ValidatePlayerName(p.Player)
	}
	return nil
}

// Allows reports whether the preconditions accept a room in state s at question index.
func (p RoomPatch) Allows(s RoomState, index int) bool {
	if p.RequireQuestion != nil && *p.RequireQuestion != index {
		return false
	}
	if len(p.RequireState) == 0 {
		return true
	}
	for _, want := range p.RequireState {
		if want == s {
			return true
		}
	}
	return false
}

// StateNames returns RequireState as plain strings for storage queries.
func (p RoomPatch) StateNames() []string {
	out := make([]string, len(p.RequireState))
	for i, s := range p.RequireState {
		out[i] = string(s)
	}
	return out
}

// Apply mutates r in place. It is the reference semantics every backend mirrors;
// callers hold whatever lock or transaction makes it atomic.
func (p RoomPatch) Apply(r *Room) error {
	if !p.Allows(r.State, r.QuestionIndex) {
		return PreconditionFailed(*r)
	}
	if p.State != nil {
		r.State = *p.State
	}
	if p.AdvanceQuestion {
		r.QuestionIndex++
	}
	if p.touchesPlayer() {
		if r.Players == nil {
			r.Players = make(map[string]PlayerState)
		}
		ps, ok := r.Players[p.Player]
		if !ok && !p.EnsurePlayer {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, p.Player)
		}
		if p.Answer != nil {
			if ps.Answered > r.QuestionIndex {
				return fmt.Errorf("%w: %s at question %d", ErrAlreadyAnswered, p.Player, r.QuestionIndex)
			}
			a := *p.Answer
			ps.Answer = &a
			ps.Answered = r.QuestionIndex + 1
		}
		ps.Score += p.ScoreDelta
		r.Players[p.Player] = ps
	}
	r.Version++
	return nil
}

// PreconditionFailed builds the error stores return when a conditional patch does not match r.
func PreconditionFailed(r Room) error {
	return fmt.Errorf("%w: room %s is %s at question %d", ErrInvalidTransition, r.Code, r.State, r.QuestionIndex)
}
