package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fruitsalade/mediavault/internal/media"
	"github.com/fruitsalade/mediavault/internal/models"
)

var (
	ingestName  string
	ingestAs    string
	ingestRoles []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir> <file>...",
	Short: "Upload local files into a media directory",
	Long: `Upload one or more local files into dir, applying the same validation,
deduplication and thumbnail generation as the HTTP API. A file whose content
already exists on the disk is reported and skipped.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestName, "name", "n", "", "filename to store under (single file only)")
	principalFlags(ingestCmd, &ingestAs, &ingestRoles)
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir, files := args[0], args[1:]
	if ingestName != "" && len(files) > 1 {
		return fmt.Errorf("--name can only be used with a single file")
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	principal := &media.Principal{ID: ingestAs, Roles: ingestRoles}

	var failed int
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintln(out, FormatError(err.Error()))
			failed++
			continue
		}

		res, err := a.media.Ingest(ctx, media.IngestRequest{
			Directory:        dir,
			Filename:         ingestName,
			OriginalFilename: filepath.Base(f),
			Data:             data,
			Principal:        principal,
		})
		switch {
		case err != nil:
			fmt.Fprintln(out, FormatError(fmt.Sprintf("%s: %v", f, err)))
			failed++
		case res.Conflict != nil:
			fmt.Fprintln(out, FormatWarning(fmt.Sprintf("%s duplicates %s", f, res.Conflict.Existing.RelativePath)))
			fmt.Fprintln(out, StyleMuted.Render("  options: "+joinOptions(res.Conflict.Options)))
		default:
			fmt.Fprintln(out, FormatSuccess(fmt.Sprintf("%s → %s (%s)", f, res.Asset.RelativePath, humanize.IBytes(res.Asset.SizeBytes))))
			if verbose {
				printAsset(cmd, res.Asset)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func joinOptions(opts []media.Resolution) string {
	s := make([]string, len(opts))
	for i, o := range opts {
		s[i] = string(o)
	}
	return strings.Join(s, ", ")
}

func printAsset(cmd *cobra.Command, rec *models.AssetRecord) {
	b, err := yaml.Marshal(rec)
	if err != nil {
		return
	}
	fmt.Fprint(cmd.OutOrStdout(), StyleMuted.Render(string(b)))
}
