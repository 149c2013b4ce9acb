package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Table is a rendered report: the same rows go to a CSV and a LaTeX file.
// Row numbers start at 1 and are written as the first, unnamed column.
type Table struct {
	Caption string
	Label   string
	Header  []string
	Rows    [][]string
}

func (t *Table) Append(row ...string) {
	t.Rows = append(t.Rows, row)
}

// Write stores the table as <base>.csv and <base>.tex under dir.
func (t *Table) Write(dir, base string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := t.writeCSV(filepath.Join(dir, base+".csv")); err != nil {
		return err
	}
	return t.writeTeX(filepath.Join(dir, base+".tex"))
}

// writePair stores a CSV with raw values next to a LaTeX file with
// formatted ones.
func writePair(dir, base string, csvTable, texTable *Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := csvTable.writeCSV(filepath.Join(dir, base+".csv")); err != nil {
		return err
	}
	return texTable.writeTeX(filepath.Join(dir, base+".tex"))
}

func (t *Table) writeCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(append([]string{""}, t.Header...)); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := writer.Write(append([]string{fmt.Sprint(i + 1)}, row...)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (t *Table) writeTeX(path string) error {
	if err := os.WriteFile(path, []byte(t.LaTeX()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LaTeX renders a plain tabular inside a table float.
func (t *Table) LaTeX() string {
	var b strings.Builder
	b.WriteString("\\begin{table}\n\\footnotesize\n")
	if t.Caption != "" {
		fmt.Fprintf(&b, "\\caption{%s}\n", escapeTeX(t.Caption))
	}
	if t.Label != "" {
		fmt.Fprintf(&b, "\\label{%s}\n", t.Label)
	}
	fmt.Fprintf(&b, "\\begin{tabular}{l%s}\n\\hline\n", strings.Repeat("l", len(t.Header)))

	header := make([]string, len(t.Header))
	for i, h := range t.Header {
		header[i] = escapeTeX(h)
	}
	fmt.Fprintf(&b, " & %s \\\\\n\\hline\n", strings.Join(header, " & "))
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = texCell(cell)
		}
		fmt.Fprintf(&b, "%d & %s \\\\\n", i+1, strings.Join(cells, " & "))
	}
	b.WriteString("\\hline\n\\end{tabular}\n\\end{table}\n")
	return b.String()
}

// Print renders the table for a terminal.
func (t *Table) Print(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(append([]string{"#"}, t.Header...))
	for i, row := range t.Rows {
		table.Append(append([]string{fmt.Sprint(i + 1)}, row...))
	}
	table.Render()
}

// texCell keeps cells already carrying LaTeX markup and escapes the rest.
func texCell(cell string) string {
	if strings.Contains(cell, "$\\pm$") || strings.HasPrefix(cell, "\\textbf{") {
		return cell
	}
	return escapeTeX(cell)
}

func escapeTeX(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\textbackslash{}",
		"&", "\\&",
		"%", "\\%",
		"$", "\\$",
		"#", "\\#",
		"_", " ",
		"{", "\\{",
		"}", "\\}",
	)
	return replacer.Replace(s)
}

// round formats v with a fixed number of decimals, half away from zero.
func round(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func raw(v float64) string {
	return decimal.NewFromFloat(v).String()
}
