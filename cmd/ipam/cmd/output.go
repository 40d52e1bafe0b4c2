package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch normalizeFormat(format) {
	case "", formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (must be table, json, or yaml)", format)
	}
}

// render writes v as JSON or YAML, or hands a tabwriter to table.
func render(w io.Writer, format string, v any, table func(tw *tabwriter.Writer)) error {
	switch normalizeFormat(format) {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
}

func formatDays(days *float64) string {
	if days == nil {
		return "never"
	}
	return fmt.Sprintf("%.1f", *days)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
