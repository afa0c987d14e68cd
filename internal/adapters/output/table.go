// internal/adapters/output/table.go
package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/usecases"
)

const (
	idWidth  = 8
	urlWidth = 60
)

// OutputTable imprime la tabla de documentos marcados.
func OutputTable(out io.Writer, report *Report) error {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)

	fmt.Fprintf(w, "\n=== PhishFuse Flagged Documents ===\n")
	if report.Strategy != "" {
		fmt.Fprintf(w, "Strategy:\t%s\n", report.Strategy)
	}
	fmt.Fprintf(w, "Documents:\t%d\n", report.Counts.Total)
	fmt.Fprintf(w, "Assessed:\t%d\n", report.Counts.Assessed)
	fmt.Fprintf(w, "Flagged:\t%d\n\n", report.Counts.Flagged)

	if len(report.Flagged) > 0 {
		fmt.Fprintln(w, "ID\tSTATUS\tRISK\tPROB\tINTEL\tURL\tREASONS")
		fmt.Fprintln(w, "--\t------\t----\t----\t-----\t---\t-------")

		for _, d := range report.Flagged {
			v := d.Verdict
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				shortID(d.ID),
				v.Status,
				d.RiskScore,
				probability(v.Probability),
				v.IntelVerdict,
				truncate(firstURL(d), urlWidth),
				strings.Join(v.Reasons, "; "),
			)
		}
	} else {
		fmt.Fprintln(w, "No flagged documents.")
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush table: %w", err)
	}

	if len(report.Stages) > 0 {
		fmt.Fprintln(out, "\nStages:")
		for _, s := range report.Stages {
			line := fmt.Sprintf("  - %s (%s)", s.Name, s.Duration)
			if s.Summary != "" {
				line += ": " + s.Summary
			}
			if s.Failed() {
				line += " [error: " + s.Error + "]"
			}
			fmt.Fprintln(out, line)
		}
	}

	fmt.Fprintln(out)
	return nil
}

// OutputDetail imprime un documento con sus señales y registros de inteligencia.
func OutputDetail(out io.Writer, detail *usecases.DocumentDetail) error {
	d := detail.Document
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)

	fmt.Fprintf(w, "\n=== Document %s ===\n", d.ID)
	fmt.Fprintf(w, "Source:\t%s\n", orDash(d.Source))
	fmt.Fprintf(w, "Created:\t%s\n", d.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Risk score:\t%d\n", d.RiskScore)
	if len(d.Hits) > 0 {
		fmt.Fprintf(w, "Rule hits:\t%s\n", strings.Join(d.Hits, ", "))
	}
	if di := d.DomainInfo; di != nil {
		fmt.Fprintf(w, "Domain:\t%s (age %s, registration %s)\n", di.Domain, days(di.AgeDays), days(di.RegistrationDays))
	}
	if a := d.Assessment; a != nil {
		fmt.Fprintf(w, "Classifier:\tp=%.3f label=%d threshold=%.2f\n", a.Probability, a.Label, a.Threshold)
	}
	fmt.Fprintf(w, "Intel verdict:\t%s\n", detail.IntelVerdict)
	if v := d.Verdict; v != nil {
		fmt.Fprintf(w, "Verdict:\t%s (%s)\n", v.Status, v.Strategy)
		if v.PreFilter != "" {
			fmt.Fprintf(w, "Pre-filter:\t%s\n", v.PreFilter)
		}
		for _, r := range v.Reasons {
			fmt.Fprintf(w, "Reason:\t%s\n", r)
		}
		for _, a := range v.Anomalies {
			fmt.Fprintf(w, "Anomaly:\t%s\n", a)
		}
	} else {
		fmt.Fprintf(w, "Verdict:\t%s\n", domain.StatusSafe)
	}
	if len(d.QualityFlags) > 0 {
		fmt.Fprintf(w, "Quality:\t%s\n", strings.Join(d.QualityFlags, ", "))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush table: %w", err)
	}

	if len(detail.Intel) > 0 {
		fmt.Fprintln(out, "\nURLs:")
		tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "URL\tSTATE\tVERDICT\tFLAGGED/TOTAL\tATTEMPTS")
		for _, r := range detail.Intel {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\n",
				truncate(r.URL, urlWidth),
				r.Resolution,
				r.Verdict,
				r.Stats.Malicious+r.Stats.Suspicious,
				r.Stats.Total(),
				r.Attempts,
			)
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("failed to flush table: %w", err)
		}
	}
	if len(d.Fragments) > 0 {
		fmt.Fprintf(out, "\nFragments: %s\n", strings.Join(d.Fragments, ", "))
	}

	fmt.Fprintf(out, "\nText:\n%s\n\n", d.Text)
	return nil
}

func shortID(id string) string {
	if len(id) > idWidth {
		return id[:idWidth]
	}
	return id
}

func probability(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func firstURL(d *domain.Document) string {
	if len(d.URLs) == 0 {
		return "-"
	}
	return d.URLs[0]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func days(n int) string {
	if n == domain.UnknownDays {
		return "unknown"
	}
	return fmt.Sprintf("%dd", n)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
