package scoring

import "signsense-quiz-service/internal/domain"

// XPPerLevel is the experience needed to climb one level.
const XPPerLevel = 1000

// Level converts experience into a 1-based level and the XP still missing for the next one.
func Level(xp int) (level, toNext int) {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1, XPPerLevel - xp%XPPerLevel
}

const (
	BadgeFirstCorrect = "first_correct"
	BadgeStreak3      = "streak_3"
	BadgeStreak5      = "streak_5"
	BadgeHardHitter   = "hard_hitter"
	BadgeSpeedster    = "speedster"
	BadgePerfect      = "perfect_round"
)

// speedsterAverage is the average answer time, in seconds, that earns BadgeSpeedster.
const speedsterAverage = 5.0

// Badges derives achievements from a history. total is the bank size;
// BadgePerfect needs every question answered correctly.
func Badges(history []domain.AnswerRecord, bestStreak, total int) []string {
	badges := []string{}
	correct, hardCorrect := 0, 0
	timed, timeSum := 0, 0.0
	for _, rec := range history {
		if rec.IsCorrect {
			correct++
			if rec.Difficulty == domain.Hard {
				hardCorrect++
			}
		}
		if rec.TimeTaken != nil {
			timed++
			timeSum += *rec.TimeTaken
		}
	}
	if correct > 0 {
		badges = append(badges, BadgeFirstCorrect)
	}
	if bestStreak >= 3 {
		badges = append(badges, BadgeStreak3)
	}
	if bestStreak >= 5 {
		badges = append(badges, BadgeStreak5)
	}
	if hardCorrect >= 3 {
		badges = append(badges, BadgeHardHitter)
	}
	if timed > 0 && timed == len(history) && correct == len(history) && timeSum/float64(timed) <= speedsterAverage {
		badges = append(badges, BadgeSpeedster)
	}
	if total > 0 && len(history) == total && correct == total {
		badges = append(badges, BadgePerfect)
	}
	return badges
}
