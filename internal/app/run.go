package app

import (
	"time"

	"github.com/google/uuid"
)

// Run identifies one CLI invocation. Its ID tags every log line the
// invocation writes, so interleaved runs can be told apart in nifty.log.
type Run struct {
	ID        string
	Command   string
	StartedAt time.Time
}

// NewRun starts a Run for command.
func NewRun(command string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Command:   command,
		StartedAt: time.Now(),
	}
}

// Elapsed returns the time since the run started, truncated to milliseconds.
func (r *Run) Elapsed() time.Duration {
	return time.Since(r.StartedAt).Truncate(time.Millisecond)
}
