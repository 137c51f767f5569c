package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/nextlesson/internal/ui/report"
)

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List outcomes due for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		course, _ := cmd.Flags().GetString("course")
		learner, _ := cmd.Flags().GetString("learner")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.Service.DueSummary(ctx, course, learner)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		}
		fmt.Fprint(out, report.Due(course, learner, sum))
		return nil
	},
}

var masteryCmd = &cobra.Command{
	Use:   "mastery",
	Short: "Show stored mastery for a learner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		course, _ := cmd.Flags().GetString("course")
		learner, _ := cmd.Flags().GetString("learner")

		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Service.Mastery(ctx, course, learner)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Mastery(records, a.Config.Mastery, a.Config.Due, time.Now()))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{dueCmd, masteryCmd} {
		c.Flags().String("course", "", "Course ID")
		c.Flags().String("learner", "", "Learner ID")
		_ = c.MarkFlagRequired("course")
		_ = c.MarkFlagRequired("learner")
	}
	dueCmd.Flags().Bool("json", false, "Print the summary as JSON")
}
