package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/llm"
)

var askShowSQL bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and get rows back",
	Long: `Convert a natural-language question into SQL, validate it, run it, and
render the results.

Examples:
  askdb ask "how many orders were placed last month?"
  askdb ask --show-sql "top 5 products by revenue"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowSQL, "show-sql", false, "Print the generated SQL before the results")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question cannot be empty")
	}

	eng, conn, cleanup, err := newEngine(activeConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	s := newSpinner("thinking...")

	result, err := eng.QueryFromQuestion(cmd.Context(), conn, question, llm.Options{})

	s.Stop()

	if err != nil {
		return err
	}

	if askShowSQL {
		fmt.Printf("SQL: %s\n\n", result.SQL)
	}

	if result.RowCount == 0 {
		fmt.Println("No rows matched.")
	} else {
		renderResultTable(result.Columns, result.Rows)
	}

	fmt.Printf("\n%d row(s) in %dms (generation %dms)", result.RowCount,
		result.ExecutionTimeMs, result.GenerationTimeMs)

	if result.LimitApplied {
		fmt.Print(", row limit applied")
	}

	fmt.Println()

	return nil
}
