// Package metrics exports ownership accounting to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rc/domain/ownership"
	"rc/infra/memory"
)

// Collector reads a Tracker, and optionally a reclamation Domain, on every
// scrape.
type Collector struct {
	tracker *ownership.Tracker
	domain  *memory.Domain

	allocated *prometheus.Desc
	freed     *prometheus.Desc
	live      *prometheus.Desc
	maxLive   *prometheus.Desc
	expired   *prometheus.Desc
	aborted   *prometheus.Desc
	rejected  *prometheus.Desc

	epoch     *prometheus.Desc
	pending   *prometheus.Desc
	overflow  *prometheus.Desc
	reclaimed *prometheus.Desc
	readers   *prometheus.Desc
}

// NewCollector builds a Collector. d may be nil.
func NewCollector(namespace string, t *ownership.Tracker, d *memory.Domain) *Collector {
	desc := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, nil)
	}
	return &Collector{
		tracker: t,
		domain:  d,

		allocated: desc("blocks", "allocated_total", "Control blocks admitted, by variant.", "variant"),
		freed:     desc("blocks", "freed_total", "Control blocks released."),
		live:      desc("blocks", "live", "Control blocks currently allocated."),
		maxLive:   desc("blocks", "max_live", "Live control block budget, 0 when unlimited."),
		expired:   desc("groups", "expired_total", "Ownership groups whose payload was destroyed."),
		aborted:   desc("groups", "aborted_total", "In-place constructions that failed."),
		rejected:  desc("blocks", "rejected_total", "Admissions refused by the budget."),

		epoch:     desc("reclaim", "epoch", "Current reclamation epoch."),
		pending:   desc("reclaim", "pending", "Retired payloads awaiting destruction."),
		overflow:  desc("reclaim", "overflow", "Retired payloads spilled past the retire ring."),
		reclaimed: desc("reclaim", "reclaimed_total", "Retired payloads destroyed."),
		readers:   desc("reclaim", "readers", "Registered epoch readers."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.allocated, c.freed, c.live, c.maxLive, c.expired, c.aborted, c.rejected} {
		ch <- d
	}
	if c.domain != nil {
		for _, d := range []*prometheus.Desc{c.epoch, c.pending, c.overflow, c.reclaimed, c.readers} {
			ch <- d
		}
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.tracker.Stats()
	ch <- prometheus.MustNewConstMetric(c.allocated, prometheus.CounterValue, float64(s.Pointer), ownership.VariantPointer.String())
	ch <- prometheus.MustNewConstMetric(c.allocated, prometheus.CounterValue, float64(s.Inline), ownership.VariantInline.String())
	ch <- prometheus.MustNewConstMetric(c.freed, prometheus.CounterValue, float64(s.Freed))
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(s.Live))
	ch <- prometheus.MustNewConstMetric(c.maxLive, prometheus.GaugeValue, float64(s.MaxLive))
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(s.Expired))
	ch <- prometheus.MustNewConstMetric(c.aborted, prometheus.CounterValue, float64(s.Aborted))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected))

	if c.domain == nil {
		return
	}
	d := c.domain.Stats()
	ch <- prometheus.MustNewConstMetric(c.epoch, prometheus.GaugeValue, float64(d.Epoch))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(d.Pending))
	ch <- prometheus.MustNewConstMetric(c.overflow, prometheus.GaugeValue, float64(d.Overflow))
	ch <- prometheus.MustNewConstMetric(c.reclaimed, prometheus.CounterValue, float64(d.Reclaimed))
	ch <- prometheus.MustNewConstMetric(c.readers, prometheus.GaugeValue, float64(d.Readers))
}

// Handler registers c on a fresh registry and returns its /metrics handler.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}
