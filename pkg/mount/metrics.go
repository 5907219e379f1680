package mount

import "time"

// Metrics receives observations about mount operations. The prometheus
// implementation lives in pkg/metrics; this interface keeps the core free
// of a hard dependency on any metrics backend.
type Metrics interface {
	// ObserveOperation records one completed operation (cache, store,
	// remove, download) with its duration and outcome.
	ObserveOperation(op string, d time.Duration, err error)

	// RecordFiles records how many file slots an operation touched.
	RecordFiles(op string, n int)
}

// observe is a nil-safe metrics helper.
func (m *Mounter) observe(op string, start time.Time, err error) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.ObserveOperation(op, time.Since(start), err)
	}
}

func (m *Mounter) recordFiles(op string, n int) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordFiles(op, n)
	}
}
