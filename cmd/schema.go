package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the connected database's structure",
	RunE:  runSchemaShow,
}

var schemaPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check database connectivity",
	RunE:  runSchemaPing,
}

var schemaStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show schema cache occupancy for this process",
	Long: `Show schema cache occupancy. The cache lives in the running process, so a
standalone invocation reports an empty cache; the numbers are meaningful
inside an interactive session where earlier commands have populated it.`,
	RunE: runSchemaStats,
}

var schemaInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop the cached schema for the connected database",
	Long: `Drop the cached schema so the next generation re-introspects. The cache is
per-process, so this matters inside an interactive session; run it after the
table set changes, for example when an uploaded table is created or dropped,
because a stale schema produces SQL against tables that no longer exist.`,
	RunE: runSchemaInvalidate,
}

func init() {
	schemaCmd.AddCommand(schemaPingCmd)
	schemaCmd.AddCommand(schemaStatsCmd)
	schemaCmd.AddCommand(schemaInvalidateCmd)

	rootCmd.AddCommand(schemaCmd)
}

func runSchemaShow(cmd *cobra.Command, _ []string) error {
	conn, err := openConn(activeConfig)
	if err != nil {
		return err
	}
	defer conn.Close()

	s, err := schema.NewIntrospector(conn.Dialect()).Introspect(cmd.Context(), conn)
	if err != nil {
		return err
	}

	fmt.Printf("Database: %s (%s)\n\n", s.DatabaseName, s.Dialect)

	for _, tableName := range s.TableNames() {
		t := s.Tables[tableName]

		fmt.Printf("%s\n", t.Name)

		for _, col := range t.Columns {
			marker := ""
			if col.PrimaryKey {
				marker = " PK"
			}

			nullable := "NOT NULL"
			if col.Nullable {
				nullable = "NULL"
			}

			fmt.Printf("  %-24s %-16s %s%s\n", col.Name, col.Type, nullable, marker)
		}

		for _, fk := range t.ForeignKeys {
			fmt.Printf("  %s -> %s.%s\n", fk.Column, fk.RefTable, fk.RefColumn)
		}

		fmt.Println()
	}

	return nil
}

func runSchemaPing(cmd *cobra.Command, _ []string) error {
	conn, err := openConn(activeConfig)
	if err != nil {
		return err
	}
	defer conn.Close()

	health := conn.HealthCheck(cmd.Context())
	if !health.Healthy {
		return fmt.Errorf("database unhealthy: %s", health.Error)
	}

	fmt.Printf("ok (%s, database %s)\n", health.Dialect, conn.DatabaseName())

	return nil
}

func runSchemaStats(cmd *cobra.Command, _ []string) error {
	eng, _, cleanup, err := newEngine(activeConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	stats := eng.CacheStats()

	fmt.Printf("Schema cache: %d/%d entries\n", stats.Size, stats.Capacity)

	for _, key := range stats.Keys {
		fmt.Printf("  %s\n", key)
	}

	return nil
}

func runSchemaInvalidate(cmd *cobra.Command, _ []string) error {
	eng, conn, cleanup, err := newEngine(activeConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	key := schema.Key(conn.Dialect().String(), conn.DatabaseName())
	eng.InvalidateSchema(key)

	fmt.Printf("invalidated %s\n", key)

	return nil
}
