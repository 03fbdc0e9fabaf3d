package logging_test

import (
	"testing"
	"time"
)

func mustOld(t *testing.T) time.Time {
	t.Helper()
	return time.Now().AddDate(0, 0, -10)
}
