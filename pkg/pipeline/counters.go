package pipeline

import "sync/atomic"

// StageCounters are plain atomic integers per stage, with no hidden state
// behind channels or locks.
type StageCounters struct {
	Captured atomic.Int64
	Decoded  atomic.Int64
	Dropped  atomic.Int64
	Errors   atomic.Int64
	Bytes    atomic.Int64
	Exported atomic.Int64
}

// Snapshot is a point-in-time copy suitable for logging or a heartbeat
// stats payload.
type Snapshot struct {
	Captured int64
	Decoded  int64
	Dropped  int64
	Errors   int64
	Bytes    int64
	Exported int64
}

// Snapshot reads every counter without synchronizing across them — a small
// amount of cross-counter skew under concurrent updates is acceptable for
// observability purposes.
func (c *StageCounters) Snapshot() Snapshot {
	return Snapshot{
		Captured: c.Captured.Load(),
		Decoded:  c.Decoded.Load(),
		Dropped:  c.Dropped.Load(),
		Errors:   c.Errors.Load(),
		Bytes:    c.Bytes.Load(),
		Exported: c.Exported.Load(),
	}
}
