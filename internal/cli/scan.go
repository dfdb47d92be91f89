package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var scanOutput string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Print the directory tree under the configured roots",
	Long: `Walk every configured root directory down to scan_depth and print the
result. Output formats:
  tree  indented tree (default)
  yaml  the same payload the API returns from /api/media/directories
  json  as above, in JSON`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "tree", "output format: tree, yaml or json")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dirs, err := a.media.Directories(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch scanOutput {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(dirs)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dirs)
	case "tree":
		labels := make(map[string]string, len(dirs.Roots))
		for i, r := range dirs.Roots {
			labels[r] = dirs.Labels[i]
		}
		fmt.Fprint(out, renderTree(dirs.Tree, labels))
		fmt.Fprintln(out, StyleMuted.Render(fmt.Sprintf("%d directories, max upload %s, nesting %d",
			len(dirs.Flat), dirs.Config.MaxFileSize, dirs.Config.AllowedFolderNest)))
		return nil
	default:
		fmt.Fprintln(os.Stderr, FormatWarning("unknown output format "+scanOutput))
		return fmt.Errorf("output must be tree, yaml or json")
	}
}
