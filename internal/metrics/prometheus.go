package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "biocurator"

// statsCollector exposes a Collector's aggregates as Prometheus gauges.
type statsCollector struct {
	source       *Collector
	count        *prometheus.Desc
	seconds      *prometheus.Desc
	maxSeconds   *prometheus.Desc
	inputTokens  *prometheus.Desc
	outputTokens *prometheus.Desc
	prompts      *prometheus.Desc
	uptime       *prometheus.Desc
}

func newStatsCollector(c *Collector) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_%s", namespace, name)
	}
	op := []string{"operation"}

	return &statsCollector{
		source:       c,
		count:        prometheus.NewDesc(fqName("operations_total"), "Number of completed operations.", op, nil),
		seconds:      prometheus.NewDesc(fqName("operation_seconds_total"), "Total time spent per operation.", op, nil),
		maxSeconds:   prometheus.NewDesc(fqName("operation_max_seconds"), "Slowest single operation.", op, nil),
		inputTokens:  prometheus.NewDesc(fqName("input_tokens_total"), "Prompt tokens sent to the model.", op, nil),
		outputTokens: prometheus.NewDesc(fqName("output_tokens_total"), "Completion tokens received from the model.", op, nil),
		prompts:      prometheus.NewDesc(fqName("prompts_total"), "Prompts by outcome.", []string{"outcome"}, nil),
		uptime:       prometheus.NewDesc(fqName("batch_seconds"), "Wall time since the batch started.", nil, nil),
	}
}

func (s *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.count
	ch <- s.seconds
	ch <- s.maxSeconds
	ch <- s.inputTokens
	ch <- s.outputTokens
	ch <- s.prompts
	ch <- s.uptime
}

// Collect implements prometheus.Collector.
func (s *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s.source.mu.RLock()
	defer s.source.mu.RUnlock()

	ch <- prometheus.MustNewConstMetric(s.uptime, prometheus.GaugeValue, s.source.uptime().Seconds())
	for name, m := range s.source.ops {
		if m.time.n == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(s.count, prometheus.CounterValue, float64(m.time.n), name)
		ch <- prometheus.MustNewConstMetric(s.seconds, prometheus.CounterValue, m.time.sum.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(s.maxSeconds, prometheus.GaugeValue, m.time.hi.Seconds(), name)
		if m.in.sum > 0 || m.out.sum > 0 {
			ch <- prometheus.MustNewConstMetric(s.inputTokens, prometheus.CounterValue, float64(m.in.sum), name)
			ch <- prometheus.MustNewConstMetric(s.outputTokens, prometheus.CounterValue, float64(m.out.sum), name)
		}
	}
	// Zero counts are exported too.
	for _, o := range Outcomes {
		ch <- prometheus.MustNewConstMetric(s.prompts, prometheus.CounterValue, float64(s.source.outcomes[o]), string(o))
	}
}

// WriteTextfile writes the current statistics in the Prometheus text
// exposition format, for pickup by a node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(newStatsCollector(c)); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
