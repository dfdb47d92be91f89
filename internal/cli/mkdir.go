package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/mediavault/internal/media"
)

var (
	mkdirAs    string
	mkdirRoles []string
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <parent> <name>",
	Short: "Create a folder under an allowed root",
	Long: `Create a sanitized subfolder of parent. The name is reduced to letters,
digits, '-' and '_', and the result must stay within the nesting limit.`,
	Args: cobra.ExactArgs(2),
	RunE: runMkdir,
}

func init() {
	principalFlags(mkdirCmd, &mkdirAs, &mkdirRoles)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	created, err := a.media.CreateDirectory(ctx, args[0], args[1], &media.Principal{ID: mkdirAs, Roles: mkdirRoles})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), FormatSuccess("created "+StyleBold.Render(created)))
	return nil
}
