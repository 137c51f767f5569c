package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/nextlesson/internal/recommend"
	"github.com/abhisek/nextlesson/internal/service"
	"github.com/abhisek/nextlesson/internal/ui/report"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend the next lessons for a learner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		course, _ := cmd.Flags().GetString("course")
		learner, _ := cmd.Flags().GetString("learner")
		asJSON, _ := cmd.Flags().GetBool("json")

		c := recommend.DefaultConstraints()
		c.MaxBlockMinutes, _ = cmd.Flags().GetInt("max-block-minutes")
		c.AvoidRepeatWithinDays, _ = cmd.Flags().GetInt("avoid-repeat-days")
		c.PreferOverdue, _ = cmd.Flags().GetBool("prefer-overdue")
		c.PreferLowMastery, _ = cmd.Flags().GetBool("prefer-low-mastery")

		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Service.Recommend(ctx, service.RecommendRequest{
			CourseID:    course,
			LearnerID:   learner,
			Constraints: c,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		fmt.Fprint(out, report.Recommendation(rec))
		return nil
	},
}

func init() {
	d := recommend.DefaultConstraints()
	f := recommendCmd.Flags()
	f.String("course", "", "Course ID")
	f.String("learner", "", "Learner ID")
	f.Int("max-block-minutes", d.MaxBlockMinutes, "Longest lesson that fits the study block (5-120)")
	f.Int("avoid-repeat-days", d.AvoidRepeatWithinDays, "Penalize lessons taught within this many days (0-30)")
	f.Bool("prefer-overdue", d.PreferOverdue, "Weight lessons whose outcomes are due for review")
	f.Bool("prefer-low-mastery", d.PreferLowMastery, "Weight lessons whose outcomes are weakly mastered")
	f.Bool("json", false, "Print the recommendation as JSON")
	_ = recommendCmd.MarkFlagRequired("course")
	_ = recommendCmd.MarkFlagRequired("learner")
}
