package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/mastery"
)

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Record a completed lesson",
	Example: `  nextlesson complete --course algebra --learner ada --lesson solving \
    --score linear-equations=0.8 --score variables=0.65`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		course, _ := cmd.Flags().GetString("course")
		learner, _ := cmd.Flags().GetString("learner")
		lesson, _ := cmd.Flags().GetString("lesson")
		rawScores, _ := cmd.Flags().GetStringArray("score")
		at, _ := cmd.Flags().GetString("at")

		scores, err := parseScores(rawScores)
		if err != nil {
			return err
		}
		ev := mastery.CompletionEvent{
			LearnerID: learner,
			CourseID:  course,
			LessonID:  lesson,
			Scores:    scores,
		}
		if at != "" {
			ev.CompletedAt, err = time.Parse(time.RFC3339, at)
			if err != nil {
				return apperr.Validation("at", at, "must be RFC3339")
			}
		}

		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Service.RecordCompletion(ctx, ev)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Recorded %s (event %s)\n", lesson, res.EventID)
		for _, r := range res.Records {
			fmt.Fprintf(out, "  %-20s %.3f  (n=%d)\n", r.OutcomeID, r.Score, r.ObservationCount)
		}
		return nil
	},
}

// parseScores turns repeated outcome=score pairs into a score map.
func parseScores(pairs []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		id, raw, ok := strings.Cut(p, "=")
		if !ok || id == "" {
			return nil, apperr.Validation("score", p, "want outcome=score")
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apperr.Validation("score", p, "score must be a number")
		}
		if _, dup := scores[id]; dup {
			return nil, apperr.Validation("score", p, "duplicate outcome "+id)
		}
		scores[id] = v
	}
	return scores, nil
}

func init() {
	f := completeCmd.Flags()
	f.String("course", "", "Course ID")
	f.String("learner", "", "Learner ID")
	f.String("lesson", "", "Completed lesson ID")
	f.StringArray("score", nil, "Outcome score as outcome=0..1 (repeatable)")
	f.String("at", "", "Completion time in RFC3339 (default now)")
	_ = completeCmd.MarkFlagRequired("course")
	_ = completeCmd.MarkFlagRequired("learner")
	_ = completeCmd.MarkFlagRequired("lesson")
	_ = completeCmd.MarkFlagRequired("score")
}
