package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Validate and run a SQL statement",
	Long: `Run a caller-supplied SQL statement. The statement passes through the
same sanitizer pipeline as model output: it must be a single read-only
SELECT or WITH statement, and a row limit is applied when it declares none.

Example:
  askdb exec "SELECT name, email FROM customers ORDER BY name"`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	statement := strings.TrimSpace(args[0])
	if statement == "" {
		return fmt.Errorf("sql cannot be empty")
	}

	eng, conn, cleanup, err := newEngine(activeConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := eng.Execute(cmd.Context(), conn, statement)
	if err != nil {
		return err
	}

	if result.RowCount == 0 {
		fmt.Println("No rows matched.")
	} else {
		renderResultTable(result.Columns, result.Rows)
	}

	fmt.Printf("\n%d row(s) in %dms", result.RowCount, result.ExecutionTimeMs)

	if result.LimitApplied {
		fmt.Print(", row limit applied")
	}

	fmt.Println()

	return nil
}
