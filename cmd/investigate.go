package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/neural-scan/internal/osint"
)

var investigateCmd = &cobra.Command{
	Use:   "investigate <target>",
	Short: "Search public sources for a target",
	Long: `Run the general, contact and phone queries for a target and print the
aggregated report. Requires GOOGLE_CSE_API_KEY and GOOGLE_CSE_ID.`,
	Example: `  neural-scan investigate "Ada Lovelace"
  neural-scan investigate Ada Lovelace --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvestigate,
}

func init() {
	rootCmd.AddCommand(investigateCmd)

	investigateCmd.Flags().Bool("json", false, "Output as JSON")
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.service.Investigate(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("investigating target: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(report)
	}
	printReport(report)
	return nil
}

func printReport(r osint.Report) {
	fmt.Printf("Target: %s\n", r.Target)
	fmt.Printf("%s\n\n", r.Summary)
	fmt.Printf("Description:\n  %s\n", r.Description)

	printSnippets("Links", r.Links)
	printSnippets("Contact", r.Emails)
	printSnippets("Phone", r.Phones)

	if len(r.Degraded) > 0 {
		fmt.Printf("\nIncomplete sections: %s\n", strings.Join(r.Degraded, ", "))
	}
}

func printSnippets(title string, snippets []osint.Snippet) {
	fmt.Printf("\n%s (%d):\n", title, len(snippets))
	for _, s := range snippets {
		fmt.Printf("  - %s\n    %s\n", s.Title, s.Link)
	}
}
