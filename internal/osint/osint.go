// Package osint aggregates public web-search results about a named target into
// a structured report.
package osint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kozaktomas/neural-scan/internal/constants"
)

// ErrEmptyTarget is returned when the investigated name is blank.
var ErrEmptyTarget = errors.New("query empty")

// Snippet is one search hit.
type Snippet struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Text  string `json:"snippet"`
}

// SearchProvider runs one web search.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Report is the outcome of one investigation. Found is true iff the general
// query returned at least one hit.
type Report struct {
	Target      string    `json:"target"`
	Found       bool      `json:"found"`
	Description string    `json:"description"`
	Summary     string    `json:"summary"`
	Emails      []Snippet `json:"emails"`
	Phones      []Snippet `json:"phones"`
	Links       []Snippet `json:"links"`
	Degraded    []string  `json:"degraded,omitempty"` // sections whose query failed
}

// Aggregator issues the catalog's three queries and classifies the hits.
type Aggregator struct {
	provider SearchProvider
	catalog  Catalog
	logger   *slog.Logger
}

// NewAggregator creates an aggregator using the built-in dork catalog.
func NewAggregator(provider SearchProvider, logger *slog.Logger) *Aggregator {
	return NewAggregatorWithCatalog(provider, DefaultCatalog(), logger)
}

// NewAggregatorWithCatalog creates an aggregator with a custom catalog.
func NewAggregatorWithCatalog(provider SearchProvider, catalog Catalog, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{
		provider: provider,
		catalog:  catalog,
		logger:   logger.With("component", "osint"),
	}
}

// Investigate runs the general, email and phone queries in that order. A failed
// query empties only its own section; cancellation aborts the investigation.
func (a *Aggregator) Investigate(ctx context.Context, target string) (Report, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Report{}, ErrEmptyTarget
	}

	report := Report{
		Target:      target,
		Description: a.catalog.Description.Default,
		Emails:      []Snippet{},
		Phones:      []Snippet{},
		Links:       []Snippet{},
	}
	a.logger.Info("osint investigation started", "target", target)

	general, err := a.run(ctx, "general", a.catalog.General, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Report{}, ctxErr
		}
		report.Degraded = append(report.Degraded, "links")
	}
	if len(general) > 0 {
		report.Found = true
		report.Links = append(report.Links, general...)
		report.Description = a.describe(general)
	}

	emails, err := a.run(ctx, "email", a.catalog.Email, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Report{}, ctxErr
		}
		report.Degraded = append(report.Degraded, "emails")
	}
	for _, s := range emails {
		if a.catalog.Email.Accepts(s) {
			report.Emails = append(report.Emails, s)
		}
	}

	phones, err := a.run(ctx, "phone", a.catalog.Phone, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Report{}, ctxErr
		}
		report.Degraded = append(report.Degraded, "phones")
	}
	for _, s := range phones {
		if a.catalog.Phone.Accepts(s) {
			report.Phones = append(report.Phones, s)
		}
	}

	if report.Found {
		report.Summary = fmt.Sprintf("%d indexed results found for '%s'.", len(report.Links), target)
	} else {
		report.Summary = "No relevant public results found."
	}

	a.logger.Info("osint investigation finished",
		"target", target,
		"found", report.Found,
		"links", len(report.Links),
		"emails", len(report.Emails),
		"phones", len(report.Phones))
	return report, nil
}

func (a *Aggregator) run(ctx context.Context, name string, d Dork, target string) ([]Snippet, error) {
	limit := min(d.Results, constants.MaxSearchResults)
	hits, err := a.provider.Search(ctx, d.Query(target), limit)
	if err != nil {
		a.logger.Warn("osint query failed", "query", name, "error", err)
		return nil, err
	}
	return hits, nil
}

// describe picks the first hit's snippet, preferring a hit on an encyclopedic
// domain within the description window.
func (a *Aggregator) describe(hits []Snippet) string {
	rule := a.catalog.Description
	description := rule.Default
	if hits[0].Text != "" {
		description = hits[0].Text
	}

	for _, h := range hits[:min(rule.Window, len(hits))] {
		for _, domain := range rule.PreferredDomains {
			if strings.Contains(h.Link, domain) && h.Text != "" {
				return h.Text
			}
		}
	}
	return description
}
