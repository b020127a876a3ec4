package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"nftmarket/core/events"
	"nftmarket/native/fees"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted marketplace events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of marketplace events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// EventRecorder is an events.Emitter feeding event and settlement metrics and
// keeping per-token settlement totals since process start. FeeBps must match
// the marketplace configuration so the recorded fee equals the fee routed.
type EventRecorder struct {
	feeBps uint32

	mu     sync.Mutex
	totals map[common.Address]*fees.Totals
}

// NewEventRecorder returns a recorder splitting settlements at feeBps.
func NewEventRecorder(feeBps uint32) *EventRecorder {
	return &EventRecorder{feeBps: feeBps, totals: make(map[common.Address]*fees.Totals)}
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Events().RecordEvent(evt.EventType())
	switch e := evt.(type) {
	case events.BoughtNFT:
		r.settlement("buy", e.PayToken, e.Price)
	case events.AcceptedNFT:
		r.settlement("offer", e.PayToken, e.Price)
	case events.ResultedAuction:
		if e.Sold() {
			r.settlement("auction", e.PayToken, e.Price)
		}
	}
}

// FeeTotals returns a copy of the settled volume, fees and payouts per
// payment token.
func (r *EventRecorder) FeeTotals() map[common.Address]fees.Totals {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[common.Address]fees.Totals, len(r.totals))
	for tok, t := range r.totals {
		out[tok] = t.Clone()
	}
	return out
}

func (r *EventRecorder) settlement(path string, token common.Address, gross *big.Int) {
	split, err := fees.Split(gross, r.feeBps)
	if err != nil {
		return
	}
	Marketplace().RecordSettlement(path, token.Hex(), gross, split.Fee)

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.totals[token]
	if !ok {
		t = &fees.Totals{}
		r.totals[token] = t
	}
	t.Add(gross, split)
}
