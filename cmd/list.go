package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/neural-scan/internal/audit"
	"github.com/kozaktomas/neural-scan/internal/constants"
	"github.com/kozaktomas/neural-scan/internal/gallery"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the local gallery entries",
	RunE:  runList,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent identity decisions",
	Long:  `Show the most recent identity verdicts from the audit log. Requires DATABASE_URL.`,
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(auditCmd)

	listCmd.Flags().Bool("json", false, "Output as JSON")
	auditCmd.Flags().Bool("json", false, "Output as JSON")
	auditCmd.Flags().Int("limit", constants.DefaultAuditLimit, "Number of decisions to show")
	auditCmd.Flags().String("embedding", "", "Print the stored probe embedding of the decision with this ID")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.service.Entries()
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("Gallery is empty.")
		return nil
	}
	fmt.Println(renderTable([]string{"Name", "Key"}, entryRows(entries)))
	fmt.Printf("%d entries\n", len(entries))
	return nil
}

func entryRows(entries []gallery.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.DisplayName, e.Key})
	}
	return rows
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	if id := mustGetString(cmd, "embedding"); id != "" {
		return printEmbedding(ctx, a, id, mustGetBool(cmd, "json"))
	}

	limit := mustGetInt(cmd, "limit")
	if limit < 1 || limit > constants.MaxAuditLimit {
		return fmt.Errorf("--limit must be between 1 and %d", constants.MaxAuditLimit)
	}

	records, err := a.service.RecentDecisions(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("No decisions recorded.")
		return nil
	}
	fmt.Println(renderTable([]string{"Time", "Name", "Confidence", "Candidate", "Note"}, auditRows(records), 2))
	return nil
}

func auditRows(records []audit.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Name,
			strconv.FormatFloat(r.Confidence*100, 'f', 2, 64) + "%",
			r.CandidateKey,
			r.Note,
		})
	}
	return rows
}

func printEmbedding(ctx context.Context, a *app, id string, asJSON bool) error {
	vec, err := a.verdicts.Embedding(ctx, id)
	if err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}
	if asJSON {
		return outputJSON(map[string]any{"id": id, "dim": len(vec), "embedding": vec})
	}
	if vec == nil {
		fmt.Printf("Decision %s has no stored embedding.\n", id)
		return nil
	}
	fmt.Printf("Decision %s: %d dimensions\n", id, len(vec))
	fmt.Println(formatVector(vec))
	return nil
}

// formatVector renders an embedding as a bracketed, comma separated list.
func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
