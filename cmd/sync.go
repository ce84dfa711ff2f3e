package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/neural-scan/internal/gallery"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local gallery with the remote gallery",
	Long: `Download entries present remotely but missing locally, delete local entries
that no longer exist remotely and invalidate the face cache if anything changed.

Holds the same gallery lock as the server, so it is safe to run alongside it.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.sync.HasRemote() {
		return errors.New("no remote gallery configured: set GALLERY_BUCKET or GALLERY_REMOTE_DIR")
	}

	// Progress bar only when a person is watching
	var bar *progressbar.ProgressBar
	if !jsonOutput && isTerminal(os.Stdout) {
		a.sync.SetProgress(func(done, total int, key string) {
			if bar == nil {
				bar = newSyncProgressBar(total)
			}
			bar.Set(done)
		})
	}

	result, err := a.service.Sync(ctx)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("synchronizing gallery: %w", err)
	}

	if jsonOutput {
		if err := outputJSON(result); err != nil {
			return err
		}
	} else {
		printSyncResult(result)
	}
	return result.Err()
}

func newSyncProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Synchronizing gallery"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("entries"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func printSyncResult(result gallery.SyncResult) {
	if !result.Changed && len(result.Failed) == 0 {
		fmt.Println("Gallery already up to date.")
		return
	}
	for _, key := range result.Added {
		fmt.Printf("  + %s\n", key)
	}
	for _, key := range result.Removed {
		fmt.Printf("  - %s\n", key)
	}
	for _, f := range result.Failed {
		fmt.Printf("  ! %s %s: %s\n", f.Op, f.Key, f.Reason)
	}
	fmt.Printf("\nAdded: %d, removed: %d, failed: %d\n", len(result.Added), len(result.Removed), len(result.Failed))
	if result.CacheInvalidated {
		fmt.Println("Face cache invalidated.")
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
