// Package metrics collects in-memory timing, token and outcome statistics
// for a curation batch.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpUpload      = "upload"
	OpRun         = "run"
	OpCorrection  = "correction"
	OpDocument    = "document"
	OpLLMGenerate = "llm_generate"
)

// Outcome is what happened to one prompt of one document.
type Outcome string

const (
	// OutcomeWritten counts artifacts persisted, whatever their source.
	OutcomeWritten Outcome = "written"
	// OutcomeSkipped counts prompts whose run ended without an answer.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFallback counts correction passes that kept the first answer.
	OutcomeFallback Outcome = "fallback"
	// OutcomeCorrected counts correction passes that changed the decision.
	OutcomeCorrected Outcome = "corrected"
	// OutcomeFailed counts prompts that aborted their document.
	OutcomeFailed Outcome = "failed"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{OutcomeWritten, OutcomeSkipped, OutcomeFallback, OutcomeCorrected, OutcomeFailed}

// OperationSnapshot provides computed stats for one operation.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Token stats, nil unless the operation reported usage.
	TotalInputTokens  *int64
	TotalOutputTokens *int64
	AvgInputTokens    *float64
	AvgOutputTokens   *float64
	MinInputTokens    *int64
	MaxInputTokens    *int64
	MinOutputTokens   *int64
	MaxOutputTokens   *int64
}

// OutcomeCounts is the per-prompt tally of a batch.
type OutcomeCounts struct {
	Written   int64
	Skipped   int64
	Fallback  int64
	Corrected int64
	Failed    int64
}

// Get returns the count for o.
func (c OutcomeCounts) Get(o Outcome) int64 {
	switch o {
	case OutcomeWritten:
		return c.Written
	case OutcomeSkipped:
		return c.Skipped
	case OutcomeFallback:
		return c.Fallback
	case OutcomeCorrected:
		return c.Corrected
	case OutcomeFailed:
		return c.Failed
	}
	return 0
}

// Total is the sum over all outcomes.
func (c OutcomeCounts) Total() int64 {
	return c.Written + c.Skipped + c.Fallback + c.Corrected + c.Failed
}

// Snapshot represents the batch statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Upload        *OperationSnapshot
	Run           *OperationSnapshot
	Correction    *OperationSnapshot
	Document      *OperationSnapshot
	LLMGenerate   *OperationSnapshot
	Outcomes      OutcomeCounts
}

// span tracks count and extremes of a series of durations.
type span struct {
	n           int64
	sum, lo, hi time.Duration
}

func (s *span) add(d time.Duration) {
	if s.n == 0 || d < s.lo {
		s.lo = d
	}
	if d > s.hi {
		s.hi = d
	}
	s.n++
	s.sum += d
}

// tally tracks sum and extremes of a series of token counts.
type tally struct {
	n           int64
	sum, lo, hi int64
}

func (t *tally) add(v int64) {
	if t.n == 0 || v < t.lo {
		t.lo = v
	}
	if v > t.hi {
		t.hi = v
	}
	t.n++
	t.sum += v
}

func (t *tally) avg() float64 {
	if t.n == 0 {
		return 0
	}
	return float64(t.sum) / float64(t.n)
}

type opStats struct {
	time    span
	in, out tally
}

func (o *opStats) snapshot() *OperationSnapshot {
	if o == nil || o.time.n == 0 {
		return nil
	}
	snap := &OperationSnapshot{
		Count:       o.time.n,
		TotalTimeMs: o.time.sum.Milliseconds(),
		AvgTimeMs:   float64(o.time.sum.Milliseconds()) / float64(o.time.n),
		MinTimeMs:   o.time.lo.Milliseconds(),
		MaxTimeMs:   o.time.hi.Milliseconds(),
	}
	if o.in.sum == 0 && o.out.sum == 0 {
		return snap
	}
	in, out := o.in, o.out
	avgIn, avgOut := in.avg(), out.avg()
	snap.TotalInputTokens, snap.TotalOutputTokens = &in.sum, &out.sum
	snap.AvgInputTokens, snap.AvgOutputTokens = &avgIn, &avgOut
	snap.MinInputTokens, snap.MaxInputTokens = &in.lo, &in.hi
	snap.MinOutputTokens, snap.MaxOutputTokens = &out.lo, &out.hi
	return snap
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe, and safe on a nil *Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*opStats
	outcomes  map[Outcome]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*opStats),
		outcomes:  make(map[Outcome]int64),
	}
}

// op returns the stats for name. Caller must hold the write lock.
func (c *Collector) op(name string) *opStats {
	s, ok := c.ops[name]
	if !ok {
		s = &opStats{}
		c.ops[name] = s
	}
	return s
}

// RecordTiming records one completed operation.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.op(op).time.add(d)
}

// RecordLLMUsage records one model call with its token usage.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.op(op)
	s.time.add(d)
	s.in.add(inputTokens)
	s.out.add(outputTokens)
}

// Time records the duration since start under op. Use with defer:
//
//	defer c.Time(metrics.OpRun, time.Now())
func (c *Collector) Time(op string, start time.Time) {
	c.RecordTiming(op, time.Since(start))
}

// Count increments the counter for o.
func (c *Collector) Count(o Outcome) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[o]++
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: c.uptime().Seconds(),
		Upload:        c.ops[OpUpload].snapshot(),
		Run:           c.ops[OpRun].snapshot(),
		Correction:    c.ops[OpCorrection].snapshot(),
		Document:      c.ops[OpDocument].snapshot(),
		LLMGenerate:   c.ops[OpLLMGenerate].snapshot(),
		Outcomes: OutcomeCounts{
			Written:   c.outcomes[OutcomeWritten],
			Skipped:   c.outcomes[OutcomeSkipped],
			Fallback:  c.outcomes[OutcomeFallback],
			Corrected: c.outcomes[OutcomeCorrected],
			Failed:    c.outcomes[OutcomeFailed],
		},
	}
}

func (c *Collector) uptime() time.Duration {
	return time.Since(c.startTime)
}
