package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/history"
)

func TestCommandsRegistered(t *testing.T) {
	expected := []string{"ask", "generate", "exec", "explain", "schema", "history", "config"}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range expected {
		assert.True(t, registered[name], "command %s should be registered", name)
	}
}

func TestSchemaSubcommands(t *testing.T) {
	expected := []string{"ping", "stats", "invalidate"}

	registered := make(map[string]bool)
	for _, c := range schemaCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range expected {
		assert.True(t, registered[name], "schema subcommand %s should be registered", name)
	}
}

func TestSchemaCacheCommandsDocumentProcessScope(t *testing.T) {
	assert.Contains(t, schemaStatsCmd.Short, "process")
	assert.Contains(t, schemaStatsCmd.Long, "in the running process")
	assert.Contains(t, schemaInvalidateCmd.Long, "per-process")
}

func TestNewRecorder(t *testing.T) {
	memory, err := newRecorder(&config.Config{
		History: config.HistoryConfig{Backend: "memory", MaxEntries: 10},
	})
	require.NoError(t, err)
	assert.IsType(t, &history.MemoryStore{}, memory)

	persisted, err := newRecorder(&config.Config{
		History: config.HistoryConfig{
			Backend: "sqlite",
			Path:    filepath.Join(t.TempDir(), "history.db"),
		},
	})
	require.NoError(t, err)
	defer persisted.Close()
	assert.IsType(t, &history.SQLiteStore{}, persisted)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", formatValue(nil))
	assert.Equal(t, "42", formatValue(int64(42)))
	assert.Equal(t, "hello", formatValue("hello"))

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-01T12:00:00Z", formatValue(ts))
}
