package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"signsense-quiz-service/internal/app"
	"signsense-quiz-service/internal/config"
	"signsense-quiz-service/internal/domain"
	"signsense-quiz-service/internal/infra/file"
	"signsense-quiz-service/internal/infra/memory"
	"signsense-quiz-service/internal/scoring"

	"github.com/spf13/cobra"
)

// NewPlayCmd runs a solo quiz in the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	var mode, subject string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a solo adaptive quiz on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			questions := memory.NewQuestionRepository(file.NewQuestionLoader(cfg.Questions.Dir), time.Minute)
			return runPlay(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), questions, mode, subject, time.Now)
		},
	}
	modes := make([]string, 0, len(scoring.Modes()))
	for _, m := range scoring.Modes() {
		modes = append(modes, string(m))
	}
	cmd.Flags().StringVar(&mode, "mode", string(scoring.Standard), "accessibility mode: "+strings.Join(modes, ", "))
	cmd.Flags().StringVar(&subject, "subject", "math", "question bank subject")
	return cmd
}

func runPlay(ctx context.Context, in io.Reader, out io.Writer, questions app.QuestionRepository, mode, subject string, now func() time.Time) error {
	session, err := app.StartWithClock(ctx, questions, mode, subject, now)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "%s quiz, %s mode, %d questions. Type the option number, h for a hint, q to quit.\n",
		subject, session.Mode, session.Total())

	for !session.Finished() {
		q, _ := session.CurrentQuestion()
		fmt.Fprintf(out, "\n[%d/%d] (%s) %s\n", session.Index()+1, session.Total(), q.Difficulty, q.Text)
		for i, opt := range q.Options {
			fmt.Fprintf(out, "  %d. %s\n", i+1, opt)
		}

		chosen, quit := readChoice(scanner, out, q)
		if quit {
			break
		}
		rec, err := session.SubmitAnswer(chosen)
		if err != nil {
			return err
		}
		if rec.IsCorrect {
			fmt.Fprintf(out, "Correct! +%d points (streak %d)\n", rec.PointsEarned, rec.StreakAfter)
		} else {
			fmt.Fprintf(out, "Not quite. The answer was %q.\n", rec.CorrectAnswer)
		}
		session.Advance()
	}

	printSummary(out, session.Summary())
	return scanner.Err()
}

// readChoice prompts until a valid option, hint request, or quit.
func readChoice(scanner *bufio.Scanner, out io.Writer, q domain.Question) (string, bool) {
	hint := 0
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return "", true
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "q", "quit":
			return "", true
		case "h", "hint":
			if hint < len(q.Hints) {
				fmt.Fprintf(out, "Hint: %s\n", q.Hints[hint])
				hint++
			} else {
				fmt.Fprintln(out, "No more hints.")
			}
			continue
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(q.Options) {
			return q.Options[n-1], false
		}
		for _, opt := range q.Options {
			if strings.EqualFold(opt, line) {
				return opt, false
			}
		}
		fmt.Fprintf(out, "Pick 1-%d.\n", len(q.Options))
	}
}

func printSummary(out io.Writer, s domain.SessionSummary) {
	fmt.Fprintf(out, "\nScore %d / %d (%.0f%%), %d of %d correct, best streak %d\n",
		s.Score, s.MaxScore, s.Percentage, s.CorrectCount, s.TotalAnswered, s.BestStreak)
	for _, d := range domain.Difficulties {
		if st, ok := s.ByDifficulty[d]; ok {
			fmt.Fprintf(out, "  %-6s %d/%d (%.0f%%)\n", d, st.Correct, st.Answered, st.Accuracy*100)
		}
	}
	if s.AverageTime != nil {
		fmt.Fprintf(out, "Average time %.1fs\n", *s.AverageTime)
	}
	fmt.Fprintf(out, "Level %d, %d XP to next level\n", s.Level, s.XPToNextLevel)
	if len(s.Badges) > 0 {
		fmt.Fprintf(out, "Badges: %s\n", strings.Join(s.Badges, ", "))
	}
	if len(s.Review) > 0 {
		fmt.Fprintln(out, "Review:")
		for _, r := range s.Review {
			fmt.Fprintf(out, "  %s -> %s\n", r.QuestionText, r.CorrectAnswer)
		}
	}
	fmt.Fprintln(out, s.Coaching)
}
