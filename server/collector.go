package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tailored-agentic-units/searchmap/searchmap"
	"github.com/tailored-agentic-units/searchmap/transport"
)

// Collector reads map and transport statistics at scrape time.
type Collector struct {
	store *searchmap.Map[string]

	entries  *prometheus.Desc
	cached   *prometheus.Desc
	pending  *prometheus.Desc
	stale    *prometheus.Desc
	state    *prometheus.Desc
	sent     *prometheus.Desc
	received *prometheus.Desc
	queued   *prometheus.Desc
	drained  *prometheus.Desc
	dropped  *prometheus.Desc
}

func NewCollector(store *searchmap.Map[string]) *Collector {
	return &Collector{
		store: store,

		entries: prometheus.NewDesc(
			"searchmap_entries",
			"Number of entries in the map",
			nil, nil,
		),
		cached: prometheus.NewDesc(
			"searchmap_cached_results",
			"Number of search results held in the result cache",
			nil, nil,
		),
		pending: prometheus.NewDesc(
			"searchmap_pending_searches",
			"Number of searches waiting for the engine",
			nil, nil,
		),
		stale: prometheus.NewDesc(
			"searchmap_stale_responses_total",
			"Total number of search results dropped because nobody was waiting",
			nil, nil,
		),
		state: prometheus.NewDesc(
			"searchmap_engine_state",
			"Engine readiness, one series per state set to 1 for the current state",
			[]string{"state"}, nil,
		),
		sent: prometheus.NewDesc(
			"searchmap_messages_sent_total",
			"Total number of messages posted to the engine",
			nil, nil,
		),
		received: prometheus.NewDesc(
			"searchmap_messages_received_total",
			"Total number of messages received from the engine",
			nil, nil,
		),
		queued: prometheus.NewDesc(
			"searchmap_messages_queued",
			"Number of messages waiting for the engine to boot",
			nil, nil,
		),
		drained: prometheus.NewDesc(
			"searchmap_messages_drained_total",
			"Total number of queued messages delivered once the engine booted",
			nil, nil,
		),
		dropped: prometheus.NewDesc(
			"searchmap_messages_dropped_total",
			"Total number of messages discarded by boot failure or shutdown",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.cached
	ch <- c.pending
	ch <- c.stale
	ch <- c.state
	ch <- c.sent
	ch <- c.received
	ch <- c.queued
	ch <- c.drained
	ch <- c.dropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.store.Stats()
	tr := st.Index.Transport

	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(st.Size))
	ch <- prometheus.MustNewConstMetric(c.cached, prometheus.GaugeValue, float64(st.CacheSize))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(st.Index.Pending))
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.CounterValue, float64(st.Index.Stale))

	for _, state := range []transport.State{
		transport.StateUninitialized,
		transport.StateInitializing,
		transport.StateReady,
		transport.StateTerminated,
	} {
		value := 0.0
		if st.Index.State == state {
			value = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, value, state.String())
	}

	ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(tr.MessagesSent))
	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(tr.MessagesRecv))
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(tr.MessagesQueue))
	ch <- prometheus.MustNewConstMetric(c.drained, prometheus.CounterValue, float64(tr.Drained))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(tr.Dropped))
}
