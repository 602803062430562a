package call

import (
	"testing"

	"go.uber.org/goleak"
)

// Timed-out provider calls must not leave goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
