package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
)

// newSpinner returns a started spinner shown while waiting on the model
func newSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	s.Start()

	return s
}

// renderResultTable prints a result set as an aligned table
func renderResultTable(columns []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col
	}

	t.AppendHeader(header)

	for _, row := range rows {
		rendered := make(table.Row, len(row))
		for i, value := range row {
			rendered[i] = formatValue(value)
		}

		t.AppendRow(rendered)
	}

	t.Render()
}

func formatValue(value any) string {
	if value == nil {
		return "NULL"
	}

	if ts, ok := value.(time.Time); ok {
		return ts.Format(time.RFC3339)
	}

	return fmt.Sprintf("%v", value)
}
