package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fruitsalade/mediavault/internal/auth"
)

var (
	tokenRoles []string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a bearer token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringSliceVarP(&tokenRoles, "role", "r", nil, "role to embed in the token (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTTL, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	a, err := auth.New(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	tok, exp, err := a.IssueToken(args[0], tokenRoles, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	fmt.Fprintln(cmd.ErrOrStderr(), StyleMuted.Render("expires "+humanize.Time(exp)+" ("+exp.Format(time.RFC3339)+")"))
	return nil
}
