// Package cli implements the meshmem commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "meshmem",
	Short:         "Memory and recall strategy engine",
	Long:          "Stores memory records in process, recalls them with exact, fuzzy, semantic, temporal or hybrid ranking, and snapshots them to DuckDB.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $MESH_CONFIG_PATH or ~/.meshmem/config.yaml)")
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(b))
	return nil
}
