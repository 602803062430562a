package metrics

import "time"

// NoopSink discards everything.
type NoopSink struct{}

func (NoopSink) ProviderCallCompleted(string, time.Duration) {}
func (NoopSink) RequestRejected(string)                      {}
