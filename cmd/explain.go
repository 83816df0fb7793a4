package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var explainCmd = &cobra.Command{
	Use:   "explain <sql>",
	Short: "Show the backend's plan for a statement",
	Long: `Run the backend's native explain facility (EXPLAIN QUERY PLAN on SQLite,
EXPLAIN elsewhere) on a validated statement.

Example:
  askdb explain "SELECT name FROM customers WHERE id = 42"`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	statement := strings.TrimSpace(args[0])
	if statement == "" {
		return fmt.Errorf("sql cannot be empty")
	}

	eng, conn, cleanup, err := newEngine(activeConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	plan, err := eng.ExplainPlan(cmd.Context(), conn, statement)
	if err != nil {
		return err
	}

	renderResultTable(plan.Columns, plan.Rows)

	return nil
}
