package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEntries bounds the in-memory store
const DefaultMaxEntries = 500

// MemoryStore is a bounded in-memory Recorder. When the retention cap is
// reached the oldest entry is evicted first.
type MemoryStore struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
}

// NewMemoryStore creates an in-memory recorder retaining at most maxEntries
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &MemoryStore{maxEntries: maxEntries}
}

// Record appends an entry, filling in the ID and timestamp when absent
func (m *MemoryStore) Record(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)
	if len(m.entries) > m.maxEntries {
		m.entries = m.entries[len(m.entries)-m.maxEntries:]
	}

	return nil
}

// Query returns matching entries newest first, up to limit
func (m *MemoryStore) Query(_ context.Context, filter Filter, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = len(m.entries)
	}

	results := make([]Entry, 0, limit)

	for i := len(m.entries) - 1; i >= 0 && len(results) < limit; i-- {
		if matches(m.entries[i], filter) {
			results = append(results, m.entries[i])
		}
	}

	return results, nil
}

// Stats aggregates all retained entries
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Total: len(m.entries)}
	if stats.Total == 0 {
		return stats, nil
	}

	var generationTotal, executionTotal int64

	for _, entry := range m.entries {
		if entry.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}

		generationTotal += entry.GenerationTimeMs
		executionTotal += entry.ExecutionTimeMs
	}

	stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	stats.AvgGenerationTimeMs = float64(generationTotal) / float64(stats.Total)
	stats.AvgExecutionTimeMs = float64(executionTotal) / float64(stats.Total)

	return stats, nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}
