package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/llm"
)

var generateCmd = &cobra.Command{
	Use:   "generate <question>",
	Short: "Generate validated SQL without executing it",
	Long: `Convert a natural-language question into a validated SQL statement and
print it. Nothing is executed; use this to inspect what would run.

Example:
  askdb generate "which customers ordered the most last quarter?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question cannot be empty")
	}

	eng, conn, cleanup, err := newEngine(activeConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	s := newSpinner("generating SQL...")

	result, err := eng.Generate(cmd.Context(), conn, question, llm.Options{})

	s.Stop()

	if err != nil {
		return err
	}

	fmt.Println(result.SQL)
	fmt.Printf("\n-- generated in %dms using tables: %s\n",
		result.GenerationTimeMs, strings.Join(result.SchemaUsed, ", "))

	return nil
}
