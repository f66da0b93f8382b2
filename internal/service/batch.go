package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// BatchStatus represents the state of a curation batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// BatchState is a point-in-time copy of a Batch.
type BatchState struct {
	ID          string
	Status      BatchStatus
	Progress    int // documents finished
	Total       int
	Document    string
	Prompt      string
	PromptIndex int
	PromptTotal int
	Written     int
	Skipped     int
	Failed      int
	Errors      []string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Batch tracks the progress of a running pipeline. It implements Observer
// and is safe to read from another goroutine through Snapshot.
type Batch struct {
	mu    sync.RWMutex
	state BatchState
}

// Compile-time check that Batch implements Observer.
var _ Observer = (*Batch)(nil)

// NewBatch creates a pending batch over total documents.
func NewBatch(total int) *Batch {
	return &Batch{state: BatchState{
		ID:        uuid.New().String()[:8], // short id for log correlation
		Status:    BatchStatusPending,
		Total:     total,
		StartedAt: time.Now(),
	}}
}

// ID returns the batch id.
func (b *Batch) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.ID
}

func (b *Batch) DocumentStarted(index, total int, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Status = BatchStatusRunning
	b.state.Total = total
	b.state.Document = name
	b.state.Prompt = ""
	b.state.PromptIndex = 0
	b.state.PromptTotal = 0
}

func (b *Batch) PromptStarted(document, prompt string, index, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Prompt = prompt
	b.state.PromptIndex = index
	b.state.PromptTotal = total
}

func (b *Batch) PromptFinished(document, prompt string, result *models.CurationResult, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case result != nil:
		b.state.Written++
	case err == nil:
		b.state.Skipped++
	}
}

func (b *Batch) DocumentFinished(report DocumentReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Progress++
	if report.Err != nil {
		b.state.Failed++
		b.state.Errors = append(b.state.Errors, report.Name+": "+report.Err.Error())
	}
}

// Complete marks the batch as completed.
func (b *Batch) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Status = BatchStatusCompleted
	now := time.Now()
	b.state.CompletedAt = &now
}

// Fail marks the batch as failed with err.
func (b *Batch) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Status = BatchStatusFailed
	b.state.Error = err.Error()
	now := time.Now()
	b.state.CompletedAt = &now
}

// Snapshot returns a thread-safe copy of the batch state.
func (b *Batch) Snapshot() BatchState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.state
	s.Errors = append([]string(nil), b.state.Errors...)
	return s
}
