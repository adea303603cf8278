// output.go — Table output for CLI reads: human, JSON or CSV.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table is a rectangular result: one header row and N data rows.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Append adds a row. Values are rendered with %v.
func (t *Table) Append(vals ...any) {
	row := make([]string, len(vals))
	for i, v := range vals {
		row[i] = fmt.Sprintf("%v", v)
	}
	t.Rows = append(t.Rows, row)
}

// Formatter writes a table.
type Formatter interface {
	Format(w io.Writer, t Table) error
}

// GetFormatter returns the formatter for "human", "json" or "csv".
func GetFormatter(format string) (Formatter, error) {
	switch format {
	case "", "human":
		return HumanFormatter{}, nil
	case "json":
		return JSONFormatter{}, nil
	case "csv":
		return CSVFormatter{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want human, json or csv)", format)
}

// HumanFormatter aligns columns for a terminal.
type HumanFormatter struct{}

func (HumanFormatter) Format(w io.Writer, t Table) error {
	if len(t.Rows) == 0 {
		_, err := io.WriteString(w, "(none)\n")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(t.Columns, "\t")))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter writes an array of objects keyed by column.
type JSONFormatter struct{}

func (JSONFormatter) Format(w io.Writer, t Table) error {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				obj[col] = row[i]
			}
		}
		out = append(out, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// CSVFormatter writes a header line then one line per row.
type CSVFormatter struct{}

func (CSVFormatter) Format(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
