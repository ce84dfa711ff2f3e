package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/neural-scan/internal/scan"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify the person in an image",
	Long: `Reconcile the gallery, match the image against it and print the verdict
with the nearest gallery candidates.`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	probe, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading probe: %w", err)
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.Identify(ctx, probe)
	if err != nil {
		return fmt.Errorf("identifying %s: %w", args[0], err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}
	printIdentification(result)
	return nil
}

func printIdentification(r scan.Identification) {
	fmt.Printf("Identified: %s\n", r.Verdict.Name)
	fmt.Printf("Confidence: %s\n", r.Verdict.Percent())
	if r.Verdict.Note != "" {
		fmt.Printf("Note:       %s\n", r.Verdict.Note)
	}
	if len(r.Candidates) == 0 {
		return
	}

	rows := make([][]string, 0, len(r.Candidates))
	for i, c := range r.Candidates {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			c.Entry.DisplayName,
			c.Entry.Key,
			strconv.FormatFloat(c.Distance, 'f', 4, 64),
		})
	}
	fmt.Println()
	fmt.Println(renderTable([]string{"#", "Name", "Key", "Distance"}, rows, 0, 3))
}
