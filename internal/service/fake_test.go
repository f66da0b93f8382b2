package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/biocurator-go/internal/assistant"
	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// runScript drives one fake run: the statuses RetrieveRun reports in
// order (the last one repeats) and what the run produces.
type runScript struct {
	statuses  []assistant.RunStatus
	reply     string
	toolCall  *assistant.ToolCall
	lastError *assistant.RunError
}

func completedWith(reply string) runScript {
	return runScript{
		statuses: []assistant.RunStatus{assistant.RunStatusInProgress, assistant.RunStatusCompleted},
		reply:    reply,
	}
}

type fakeRun struct {
	run    assistant.Run
	script runScript
	polls  int
}

// postedMessage records a user message and what the assistant could see
// when it was posted.
type postedMessage struct {
	ThreadID string
	Content  string
	Attached []string
}

// fakeService is an in-memory assistant.Service.
type fakeService struct {
	mu sync.Mutex

	existing   []assistant.Assistant
	assistants map[string]assistant.AssistantRequest
	attached   map[string][]string // assistant id -> store ids
	documents  map[string]assistant.Document
	messages   map[string][]assistant.Message // thread id -> oldest first
	runs       map[string]*fakeRun
	scripts    []runScript
	defaultRun runScript

	uploadErr map[string]error // by file base name
	createErr error
	detachErr error
	deleteErr error

	posted            []postedMessage
	uploaded          []string
	deleteAttempts    []string
	deletedDocuments  []string
	deletedAssistants []string
	detachCalls       int
	retrieves         int
	cancels           int
}

var _ assistant.Service = (*fakeService)(nil)

func newFakeService() *fakeService {
	return &fakeService{
		assistants: map[string]assistant.AssistantRequest{},
		attached:   map[string][]string{},
		documents:  map[string]assistant.Document{},
		messages:   map[string][]assistant.Message{},
		runs:       map[string]*fakeRun{},
		uploadErr:  map[string]error{},
		defaultRun: completedWith("ok"),
	}
}

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}

// script queues run behaviours, consumed one per CreateRun.
func (f *fakeService) script(s ...runScript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, s...)
}

func (f *fakeService) ListAssistants(_ context.Context) ([]assistant.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.existing), nil
}

func (f *fakeService) CreateAssistant(_ context.Context, req assistant.AssistantRequest) (*assistant.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := newID("asst")
	f.assistants[id] = req
	return &assistant.Assistant{ID: id, Name: req.Name, Model: req.Model, Tools: req.Tools}, nil
}

func (f *fakeService) DeleteAssistant(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedAssistants = append(f.deletedAssistants, id)
	return nil
}

func (f *fakeService) UploadDocument(_ context.Context, path string) (*assistant.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[filepath.Base(path)]; err != nil {
		return nil, err
	}
	doc := assistant.Document{FileID: newID("file"), StoreID: newID("vs"), Filename: filepath.Base(path)}
	f.documents[doc.FileID] = doc
	f.uploaded = append(f.uploaded, doc.FileID)
	return &doc, nil
}

func (f *fakeService) AttachDocument(_ context.Context, assistantID string, doc assistant.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[assistantID] = []string{doc.StoreID}
	return nil
}

func (f *fakeService) DetachDocuments(_ context.Context, assistantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detachCalls++
	if f.detachErr != nil {
		return f.detachErr
	}
	f.attached[assistantID] = nil
	return nil
}

func (f *fakeService) DeleteDocument(_ context.Context, doc assistant.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteAttempts = append(f.deleteAttempts, doc.FileID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.documents[doc.FileID]; !ok {
		return assistant.ErrNotFound
	}
	delete(f.documents, doc.FileID)
	f.deletedDocuments = append(f.deletedDocuments, doc.FileID)
	return nil
}

func (f *fakeService) CreateThread(_ context.Context) (*assistant.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := newID("thread")
	f.messages[id] = nil
	return &assistant.Thread{ID: id}, nil
}

func (f *fakeService) CreateMessage(_ context.Context, threadID string, req assistant.MessageRequest) (*assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[threadID]; !ok {
		return nil, assistant.ErrNotFound
	}
	var attached []string
	for _, stores := range f.attached {
		attached = append(attached, stores...)
	}
	f.posted = append(f.posted, postedMessage{ThreadID: threadID, Content: req.Content, Attached: attached})
	m := textMessage(newID("msg"), req.Role, req.Content)
	f.messages[threadID] = append(f.messages[threadID], m)
	return &m, nil
}

func (f *fakeService) ListMessages(_ context.Context, threadID string, limit int) ([]assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := slices.Clone(f.messages[threadID])
	slices.Reverse(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeService) CreateRun(_ context.Context, threadID, assistantID string) (*assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.defaultRun
	if len(f.scripts) > 0 {
		s, f.scripts = f.scripts[0], f.scripts[1:]
	}
	r := &fakeRun{
		run:    assistant.Run{ID: newID("run"), ThreadID: threadID, AssistantID: assistantID, Status: assistant.RunStatusQueued},
		script: s,
	}
	f.runs[r.run.ID] = r
	out := r.run
	return &out, nil
}

func (f *fakeService) RetrieveRun(_ context.Context, threadID, runID string) (*assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieves++
	r, ok := f.runs[runID]
	if !ok {
		return nil, assistant.ErrNotFound
	}
	if r.run.Status == assistant.RunStatusCancelled {
		out := r.run
		return &out, nil
	}

	i := min(r.polls, len(r.script.statuses)-1)
	r.polls++
	status := r.script.statuses[i]
	if status != r.run.Status {
		r.run.Status = status
		switch status {
		case assistant.RunStatusCompleted:
			f.messages[threadID] = append(f.messages[threadID], textMessage(newID("msg"), assistant.RoleAssistant, r.script.reply))
		case assistant.RunStatusRequiresAction:
			r.run.RequiredAction = &assistant.RequiredAction{
				Type:              "submit_tool_outputs",
				SubmitToolOutputs: &assistant.SubmitToolOutputs{ToolCalls: []assistant.ToolCall{*r.script.toolCall}},
			}
		case assistant.RunStatusFailed:
			r.run.LastError = r.script.lastError
		}
	}
	out := r.run
	return &out, nil
}

func (f *fakeService) CancelRun(_ context.Context, threadID, runID string) (*assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	r, ok := f.runs[runID]
	if !ok {
		return nil, assistant.ErrNotFound
	}
	r.run.Status = assistant.RunStatusCancelled
	out := r.run
	return &out, nil
}

func textMessage(id, role, text string) assistant.Message {
	return assistant.Message{
		ID:      id,
		Role:    role,
		Content: []assistant.MessageContent{{Type: "text", Text: &assistant.MessageText{Value: text}}},
	}
}

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps++
	return nil
}

// memWriter keeps artifacts in memory.
type memWriter struct {
	files map[string]string
	err   error
}

func newMemWriter() *memWriter {
	return &memWriter{files: map[string]string{}}
}

func (w *memWriter) Write(r models.CurationResult) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	name := r.ArtifactName()
	w.files[name] = r.Text
	return name, nil
}

var errBoom = errors.New("boom")

func fatalAPIError() error {
	return fmt.Errorf("upload: %w", &assistant.APIError{StatusCode: 401, Message: "Incorrect API key provided"})
}
