// Package metrics publishes the admin consumer's counters and latency
// digests via expvar, the same mechanism the debug server exposes
// host-level metrics through.
package metrics

import (
	"expvar"
	"math"
	"sync"
	"time"

	tdigest "github.com/caio/go-tdigest/v4"

	"github.com/ziyaddin/venice/internal/admin"
)

// Metrics holds the two named failure counters, a per-kind dispatch
// counter, a duplicate-skip counter, and latency digests keyed by
// operation kind. ADD_VERSION is tracked in its own named digest
// rather than the generic per-kind map, since its latency profile
// (triggering downstream replication work) is not comparable to the
// other kinds.
type Metrics struct {
	FailedRetriableAdminConsumption *expvar.Int
	FailedAdminConsumption          *expvar.Int
	DuplicateSkips                  *expvar.Int
	DispatchCount                   *expvar.Map

	mu             sync.Mutex
	digestByKind   map[admin.Kind]*tdigest.TDigest
	addVersionDigest *tdigest.TDigest
}

// New creates and registers the metrics under the given expvar
// namespace. Calling New twice with the same namespace will panic, the
// same restriction expvar.Publish itself imposes; callers should call it
// once per process.
func New(namespace string) (*Metrics, error) {
	addVersionDigest, err := tdigest.New()
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		FailedRetriableAdminConsumption: new(expvar.Int),
		FailedAdminConsumption:          new(expvar.Int),
		DuplicateSkips:                  new(expvar.Int),
		DispatchCount:                   new(expvar.Map).Init(),
		digestByKind:                    make(map[admin.Kind]*tdigest.TDigest),
		addVersionDigest:                addVersionDigest,
	}

	expvar.Publish(namespace+"_failed_retriable_admin_consumption", m.FailedRetriableAdminConsumption)
	expvar.Publish(namespace+"_failed_admin_consumption", m.FailedAdminConsumption)
	expvar.Publish(namespace+"_duplicate_skips", m.DuplicateSkips)
	expvar.Publish(namespace+"_dispatch_count", m.DispatchCount)

	return m, nil
}

// RecordFailure increments the appropriate named counter for a
// Retriable or Fatal/Malformed classification. Duplicate and
// ignored-success classifications are not failures and do not land here.
func (m *Metrics) RecordFailure(class admin.Classification) {
	switch class {
	case admin.ClassRetriable:
		m.FailedRetriableAdminConsumption.Add(1)
	case admin.ClassFatal, admin.ClassMalformed:
		m.FailedAdminConsumption.Add(1)
	}
}

func (m *Metrics) RecordDuplicateSkip() {
	m.DuplicateSkips.Add(1)
}

func (m *Metrics) RecordDispatch(kind admin.Kind) {
	m.DispatchCount.Add(kind.String(), 1)
}

// RecordLatency adds a processing-latency sample, in microseconds, into
// the digest for kind, isolating KindAddVersion into its own digest. Only
// the latency value is kept; store, offset and execution id are not.
func (m *Metrics) RecordLatency(kind admin.Kind, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	micros := float64(latency.Microseconds())
	if kind == admin.KindAddVersion {
		_ = m.addVersionDigest.Add(micros)
		return
	}

	d, ok := m.digestByKind[kind]
	if !ok {
		var err error
		d, err = tdigest.New()
		if err != nil {
			return
		}
		m.digestByKind[kind] = d
	}
	_ = d.Add(micros)
}

// Quantile reads back a latency percentile (q in [0,1]) for kind, in
// microseconds. Returns 0 if no samples have been recorded yet.
func (m *Metrics) Quantile(kind admin.Kind, q float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if kind == admin.KindAddVersion {
		if v := m.addVersionDigest.Quantile(q); !math.IsNaN(v) {
			return v
		}
		return 0
	}
	d, ok := m.digestByKind[kind]
	if !ok {
		return 0
	}
	return d.Quantile(q)
}
