package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmr-tortoise/goose-ci/internal/model"
)

// printReportJSON writes the run report as indented JSON.
func printReportJSON(w io.Writer, report *model.Report) error {
	// MarshalIndent produces human-readable JSON with 2-space indentation.
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printReportText writes the run report as a text table with aligned
// columns.
//
// The table format is:
//
//	STAGE      CODE  DURATION  SUITES
//	build      0     1.2s      -
//	test       0     40.5s     -
//	live       0     3m2s      client:1,glance:0
func printReportText(w io.Writer, report *model.Report) {
	fmt.Fprintf(w, "%-10s %-5s %-9s %s\n", "STAGE", "CODE", "DURATION", "SUITES")

	for _, s := range report.Stages {
		fmt.Fprintf(w, "%-10s %-5d %-9s %s\n",
			s.Stage,
			int(s.Code),
			FormatDuration(s.Duration),
			FormatSuites(s.Suites),
		)
	}
	fmt.Fprintf(w, "exit status %s\n", report.Code)
}

// FormatSuites renders suite results as a comma-separated list of
// "suite:code" pairs. Returns "-" if no suites ran.
//
// Example:
//
//	[{Suite: client, Code: 1}, {Suite: glance, Code: 0}] → "client:1,glance:0"
//	[]                                                   → "-"
func FormatSuites(results []model.SuiteResult) string {
	if len(results) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s:%d", r.Suite, int(r.Code)))
	}
	return strings.Join(parts, ",")
}

// FormatDuration rounds d for display: to the millisecond below one
// second and to a tenth of a second above.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
