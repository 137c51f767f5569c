package cmd

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/nextlesson/internal/curriculum"
	"github.com/abhisek/nextlesson/internal/store"
)

// version is set via -ldflags at build time.
var version = "(devel)"

type buildInfo struct {
	Version       string   `json:"version"`
	Revision      string   `json:"revision,omitempty"`
	Modified      bool     `json:"modified,omitempty"`
	GoVersion     string   `json:"go_version,omitempty"`
	CatalogSchema string   `json:"catalog_schema"`
	StoreDrivers  []string `json:"store_drivers"`
}

// readBuildInfo combines the ldflags version with VCS stamps from the binary.
func readBuildInfo() buildInfo {
	info := buildInfo{
		Version:       version,
		CatalogSchema: curriculum.SupportedSchemaMajor + ".x",
		StoreDrivers:  store.Drivers(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if info.Version == "(devel)" && bi.Main.Version != "" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func (b buildInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "nextlesson %s\n", b.Version)
	if b.Revision != "" {
		rev := b.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if b.Modified {
			rev += "-dirty"
		}
		fmt.Fprintf(&sb, "  revision: %s\n", rev)
	}
	if b.GoVersion != "" {
		fmt.Fprintf(&sb, "  go:       %s\n", b.GoVersion)
	}
	fmt.Fprintf(&sb, "  catalog:  schema %s\n", b.CatalogSchema)
	fmt.Fprintf(&sb, "  stores:   %s\n", strings.Join(b.StoreDrivers, ", "))
	return sb.String()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build details",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := readBuildInfo()
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprint(out, info.String())
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "Print build details as JSON")
}
