package testsupport

import (
	"testing"

	"overlaycast/internal/config"
	"overlaycast/internal/journal"
)

// MustOpenJournal opens the config's journal and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Journal {
	t.Helper()

	j, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = j.Close()
	})
	return j
}
