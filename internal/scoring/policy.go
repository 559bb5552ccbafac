// Package scoring holds the pure points policy. Nothing here keeps state.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"signsense-quiz-service/internal/domain"
)

// Mode is an accessibility profile. It parameterizes timing sensitivity and streak emphasis.
type Mode string

const (
	Standard Mode = "standard"
	ADHD     Mode = "adhd"
	Dyslexia Mode = "dyslexia"
	ISL      Mode = "isl"
	Autism   Mode = "autism"
	Hybrid   Mode = "hybrid"
)

// SlowAnswer is the elapsed time at which the time factor bottoms out.
const SlowAnswer = 30.0

// StreakStep is the bonus per consecutive correct answer beyond the first, before weighting.
const StreakStep = 50

// Profile is one row of the per-mode lookup table.
type Profile struct {
	// TimeWeight of 0 ignores timing entirely.
	TimeWeight   float64
	StreakWeight float64
	// MinFraction is the time factor at or beyond SlowAnswer seconds.
	MinFraction float64
	Coaching    string
}

var profiles = map[Mode]Profile{
	Standard: {TimeWeight: 1.0, StreakWeight: 1.0, MinFraction: 0.5,
		Coaching: "Nice work. Try answering a little faster to earn the full time bonus."},
	ADHD: {TimeWeight: 0.5, StreakWeight: 1.5, MinFraction: 0.6,
		Coaching: "Great momentum! Short bursts work well, so keep your streak going one question at a time."},
	Dyslexia: {TimeWeight: 0.0, StreakWeight: 1.0, MinFraction: 1.0,
		Coaching: "Take all the time you need to read. Your score never depends on speed."},
	ISL: {TimeWeight: 0.25, StreakWeight: 1.0, MinFraction: 0.75,
		Coaching: "Well signed! Timing only counts a little, so focus on clear answers."},
	Autism: {TimeWeight: 0.0, StreakWeight: 0.5, MinFraction: 1.0,
		Coaching: "Steady and calm. There is no timer, and every correct answer counts."},
	Hybrid: {TimeWeight: 0.25, StreakWeight: 1.0, MinFraction: 0.75,
		Coaching: "Good balance of reading, listening and signing. Keep using what helps you most."},
}

// Modes lists every supported profile.
func Modes() []Mode {
	return []Mode{Standard, ADHD, Dyslexia, ISL, Autism, Hybrid}
}

// ParseMode normalizes a user-supplied mode name.
func ParseMode(raw string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := profiles[m]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownMode, raw)
	}
	return m, nil
}

// ProfileFor returns the table row for m.
func ProfileFor(m Mode) (Profile, bool) {
	p, ok := profiles[m]
	return p, ok
}

// BasePoints is monotonic in difficulty.
func BasePoints(d domain.Difficulty) int {
	switch d {
	case domain.Easy:
		return 300
	case domain.Medium:
		return 600
	case domain.Hard:
		return 900
	}
	return 0
}

// TimeFactor interpolates linearly from 1.0 at zero seconds to p.MinFraction at SlowAnswer.
// An unknown elapsed time scores as instant.
func (p Profile) TimeFactor(elapsed *float64) float64 {
	if elapsed == nil {
		return 1.0
	}
	t := math.Min(math.Max(*elapsed, 0), SlowAnswer)
	return 1.0 - (1.0-p.MinFraction)*t/SlowAnswer
}

// EffectiveTimeFactor blends TimeFactor by TimeWeight.
func (p Profile) EffectiveTimeFactor(elapsed *float64) float64 {
	return (1 - p.TimeWeight) + p.TimeWeight*p.TimeFactor(elapsed)
}

// StreakBonus is the bonus for a correct answer that leaves the streak at streak.
func (p Profile) StreakBonus(streak int) int {
	if streak <= 1 {
		return 0
	}
	return int(math.Floor(float64(StreakStep) * float64(streak-1) * p.StreakWeight))
}

// Points scores one correct answer. streak is the streak after counting this answer.
func (p Profile) Points(d domain.Difficulty, elapsed *float64, streak int) int {
	base := float64(BasePoints(d))
	return int(math.Floor(base*p.EffectiveTimeFactor(elapsed))) + p.StreakBonus(streak)
}

// Outcome is the result of scoring one answer.
type Outcome struct {
	Points     int
	Streak     int
	BestStreak int
}

// Award applies the full algorithm: an incorrect answer resets the streak and
// earns nothing; a correct one extends the streak and earns Points.
func Award(m Mode, d domain.Difficulty, correct bool, elapsed *float64, streak, bestStreak int) (Outcome, error) {
	p, ok := profiles[m]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", domain.ErrUnknownMode, m)
	}
	if !correct {
		return Outcome{Points: 0, Streak: 0, BestStreak: bestStreak}, nil
	}
	streak++
	if streak > bestStreak {
		bestStreak = streak
	}
	return Outcome{Points: p.Points(d, elapsed, streak), Streak: streak, BestStreak: bestStreak}, nil
}

// MaxScore is the upper bound for answering every question correctly at zero latency, in order.
func MaxScore(m Mode, difficulties []domain.Difficulty) int {
	p, ok := profiles[m]
	if !ok {
		return 0
	}
	total := 0
	for i, d := range difficulties {
		total += BasePoints(d) + p.StreakBonus(i+1)
	}
	return total
}
