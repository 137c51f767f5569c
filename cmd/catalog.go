package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/nextlesson/internal/curriculum"
	"github.com/abhisek/nextlesson/internal/ui/theme"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect course catalog files",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List courses in the catalog directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ids, err := curriculum.NewFileCatalog(cfg.Catalog.Dir).CourseIDs()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No courses found in", cfg.Catalog.Dir)
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate course catalog files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			c, err := decodeFile(path)
			if err != nil {
				failed++
				fmt.Fprintf(out, "%s %s\n  %s\n", theme.Critical.Render("✗"), path, err)
				continue
			}
			fmt.Fprintf(out, "%s %s  %s\n", theme.Reason.Render("✓"), path,
				theme.Subtitle.Render(fmt.Sprintf("%s: %d outcomes, %d lessons", c.ID, len(c.Outcomes), len(c.Lessons))))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d catalog files invalid", failed, len(args))
		}
		return nil
	},
}

func decodeFile(path string) (*curriculum.Course, error) {
	var format curriculum.Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = curriculum.FormatYAML
	case ".json":
		format = curriculum.FormatJSON
	default:
		return nil, errors.New("unsupported extension, want .yaml, .yml or .json")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return curriculum.Decode(data, format)
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
}
