// Package assistant talks to the remote assistant service: processing
// contexts (assistants), uploaded documents, conversation threads and runs.
package assistant

import (
	"context"
	"encoding/json"
)

// Service is the remote LLM collaborator used by the curation pipeline.
type Service interface {
	// ListAssistants returns all processing contexts.
	ListAssistants(ctx context.Context) ([]Assistant, error)
	CreateAssistant(ctx context.Context, req AssistantRequest) (*Assistant, error)
	DeleteAssistant(ctx context.Context, assistantID string) error

	// UploadDocument uploads a file and prepares it for retrieval.
	UploadDocument(ctx context.Context, path string) (*Document, error)
	// AttachDocument makes doc the assistant's only active document.
	AttachDocument(ctx context.Context, assistantID string, doc Document) error
	// DetachDocuments clears the assistant's active document list.
	DetachDocuments(ctx context.Context, assistantID string) error
	// DeleteDocument removes the document and its retrieval index.
	DeleteDocument(ctx context.Context, doc Document) error

	CreateThread(ctx context.Context) (*Thread, error)
	CreateMessage(ctx context.Context, threadID string, req MessageRequest) (*Message, error)
	// ListMessages returns up to limit messages, most recent first.
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)

	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (*Run, error)
}

// Assistant is a configured remote persona shared across a batch.
type Assistant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Model        string `json:"model"`
	Instructions string `json:"instructions"`
	Tools        []Tool `json:"tools"`
	CreatedAt    int64  `json:"created_at"`
}

// AssistantRequest creates an assistant.
type AssistantRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Model        string `json:"model"`
	Instructions string `json:"instructions,omitempty"`
	Tools        []Tool `json:"tools,omitempty"`
}

// Tool types understood by the service.
const (
	ToolFileSearch = "file_search"
	ToolFunction   = "function"
)

// Tool is an assistant tool declaration.
type Tool struct {
	Type     string              `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition declares a callable function and its JSON schema.
type FunctionDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty" yaml:"-"`
}

// Document references an uploaded file and its retrieval index.
type Document struct {
	FileID   string
	StoreID  string
	Filename string
}

// Thread is an ordered message history.
type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageRequest posts a message to a thread. FileIDs are attached for
// retrieval on this message only.
type MessageRequest struct {
	Role    string
	Content string
	FileIDs []string
}

// Message is a thread message.
type Message struct {
	ID        string           `json:"id"`
	ThreadID  string           `json:"thread_id"`
	RunID     string           `json:"run_id"`
	Role      string           `json:"role"`
	Content   []MessageContent `json:"content"`
	CreatedAt int64            `json:"created_at"`
}

// MessageContent is one content part of a message.
type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

// MessageText is a text content part.
type MessageText struct {
	Value       string            `json:"value"`
	Annotations []json.RawMessage `json:"annotations,omitempty"`
}

// Text returns the primary text content of the message.
func (m Message) Text() string {
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			return c.Text.Value
		}
	}
	return ""
}

// RunStatus is the remote state of a run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// Run is one asynchronous invocation of an assistant on a thread.
type Run struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	AssistantID    string          `json:"assistant_id"`
	Status         RunStatus       `json:"status"`
	Model          string          `json:"model"`
	Instructions   string          `json:"instructions"`
	LastError      *RunError       `json:"last_error"`
	RequiredAction *RequiredAction `json:"required_action"`
	CreatedAt      int64           `json:"created_at"`
	StartedAt      *int64          `json:"started_at"`
	ExpiresAt      *int64          `json:"expires_at"`
	CancelledAt    *int64          `json:"cancelled_at"`
	FailedAt       *int64          `json:"failed_at"`
	CompletedAt    *int64          `json:"completed_at"`
}

// RunError is the error reported for a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequiredAction describes the tool calls a run is waiting on.
type RequiredAction struct {
	Type              string             `json:"type"`
	SubmitToolOutputs *SubmitToolOutputs `json:"submit_tool_outputs"`
}

// SubmitToolOutputs lists pending tool calls.
type SubmitToolOutputs struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ToolCall is a requested function invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
