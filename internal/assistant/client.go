package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the OpenAI REST endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 2 * time.Minute

	betaHeader   = "assistants=v2"
	listPageSize = 100
	messagePage  = 20
)

// Client implements Service against the OpenAI Assistants v2 REST API.
// Each uploaded document gets its own file_search vector store so that
// attaching and detaching swaps the assistant's retrieval scope in one call.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	indexPoll time.Duration
	indexWait time.Duration
}

// Compile-time check that Client implements Service.
var _ Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithIndexWait sets how often and how long UploadDocument waits for the
// retrieval index of a fresh upload to become ready.
func WithIndexWait(poll, limit time.Duration) Option {
	return func(c *Client) {
		c.indexPoll = poll
		c.indexWait = limit
	}
}

// New creates a Client. apiKey is required.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key required for assistant service")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
		indexPoll:  time.Second,
		indexWait:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type listResponse[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id"`
}

// ListAssistants returns every assistant, following pagination.
func (c *Client) ListAssistants(ctx context.Context) ([]Assistant, error) {
	var all []Assistant
	after := ""
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(listPageSize))
		q.Set("order", "desc")
		if after != "" {
			q.Set("after", after)
		}
		var page listResponse[Assistant]
		if err := c.do(ctx, http.MethodGet, "/assistants?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("list assistants: %w", err)
		}
		all = append(all, page.Data...)
		if !page.HasMore || page.LastID == "" {
			return all, nil
		}
		after = page.LastID
	}
}

// CreateAssistant creates a new assistant.
func (c *Client) CreateAssistant(ctx context.Context, req AssistantRequest) (*Assistant, error) {
	var a Assistant
	if err := c.do(ctx, http.MethodPost, "/assistants", req, &a); err != nil {
		return nil, fmt.Errorf("create assistant: %w", err)
	}
	return &a, nil
}

// DeleteAssistant deletes an assistant.
func (c *Client) DeleteAssistant(ctx context.Context, assistantID string) error {
	if assistantID == "" {
		return fmt.Errorf("delete assistant: %w", ErrEmptyID)
	}
	if err := c.do(ctx, http.MethodDelete, "/assistants/"+url.PathEscape(assistantID), nil, nil); err != nil {
		return fmt.Errorf("delete assistant %s: %w", assistantID, err)
	}
	return nil
}

type fileObject struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type vectorStore struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	FileCounts struct {
		InProgress int `json:"in_progress"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
	} `json:"file_counts"`
}

// UploadDocument uploads the file at path and builds a retrieval index for
// it. On failure nothing is left behind on the remote side.
func (c *Client) UploadDocument(ctx context.Context, path string) (*Document, error) {
	file, err := c.uploadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	doc := &Document{FileID: file.ID, Filename: file.Filename}

	var store vectorStore
	body := map[string]any{"name": file.Filename, "file_ids": []string{file.ID}}
	if err := c.do(ctx, http.MethodPost, "/vector_stores", body, &store); err != nil {
		c.discard(ctx, *doc)
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	doc.StoreID = store.ID

	if err := c.waitForIndex(ctx, store); err != nil {
		c.discard(ctx, *doc)
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	return doc, nil
}

func (c *Client) uploadFile(ctx context.Context, path string) (*fileObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return nil, fmt.Errorf("write purpose: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, mw.FormDataContentType())

	var out fileObject
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	if out.Filename == "" {
		out.Filename = filepath.Base(path)
	}
	return &out, nil
}

func (c *Client) waitForIndex(ctx context.Context, store vectorStore) error {
	deadline := time.Now().Add(c.indexWait)
	for {
		switch store.Status {
		case "completed":
			if store.FileCounts.Failed > 0 {
				return fmt.Errorf("vector store %s: %d file(s) failed to index", store.ID, store.FileCounts.Failed)
			}
			return nil
		case "expired":
			return fmt.Errorf("vector store %s expired", store.ID)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("vector store %s not ready after %s", store.ID, c.indexWait)
		}

		t := time.NewTimer(c.indexPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		if err := c.do(ctx, http.MethodGet, "/vector_stores/"+url.PathEscape(store.ID), nil, &store); err != nil {
			return err
		}
	}
}

// discard removes a half-built document, ignoring caller cancellation.
func (c *Client) discard(ctx context.Context, doc Document) {
	if err := c.DeleteDocument(context.WithoutCancel(ctx), doc); err != nil {
		c.logger.Warn("discard partial upload failed", "file_id", doc.FileID, "error", err)
	}
}

type fileSearchResources struct {
	ToolResources struct {
		FileSearch struct {
			VectorStoreIDs []string `json:"vector_store_ids"`
		} `json:"file_search"`
	} `json:"tool_resources"`
}

func (c *Client) setStores(ctx context.Context, assistantID string, storeIDs []string) error {
	var body fileSearchResources
	body.ToolResources.FileSearch.VectorStoreIDs = storeIDs
	return c.do(ctx, http.MethodPost, "/assistants/"+url.PathEscape(assistantID), body, nil)
}

// AttachDocument replaces the assistant's retrieval scope with doc.
func (c *Client) AttachDocument(ctx context.Context, assistantID string, doc Document) error {
	if assistantID == "" || doc.StoreID == "" {
		return fmt.Errorf("attach document: %w", ErrEmptyID)
	}
	if err := c.setStores(ctx, assistantID, []string{doc.StoreID}); err != nil {
		return fmt.Errorf("attach %s to %s: %w", doc.FileID, assistantID, err)
	}
	return nil
}

// DetachDocuments empties the assistant's retrieval scope.
func (c *Client) DetachDocuments(ctx context.Context, assistantID string) error {
	if assistantID == "" {
		return fmt.Errorf("detach documents: %w", ErrEmptyID)
	}
	if err := c.setStores(ctx, assistantID, []string{}); err != nil {
		return fmt.Errorf("detach documents from %s: %w", assistantID, err)
	}
	return nil
}

// DeleteDocument removes the retrieval index and the file. Already-deleted
// objects are not an error.
func (c *Client) DeleteDocument(ctx context.Context, doc Document) error {
	var errs []error
	if doc.StoreID != "" {
		err := c.do(ctx, http.MethodDelete, "/vector_stores/"+url.PathEscape(doc.StoreID), nil, nil)
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete vector store %s: %w", doc.StoreID, err))
		}
	}
	if doc.FileID != "" {
		err := c.do(ctx, http.MethodDelete, "/files/"+url.PathEscape(doc.FileID), nil, nil)
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete file %s: %w", doc.FileID, err))
		}
	}
	return errors.Join(errs...)
}

// CreateThread starts an empty thread.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var t Thread
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &t); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &t, nil
}

type attachment struct {
	FileID string `json:"file_id"`
	Tools  []Tool `json:"tools"`
}

type messageBody struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// CreateMessage appends a message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID string, req MessageRequest) (*Message, error) {
	if threadID == "" {
		return nil, fmt.Errorf("create message: %w", ErrEmptyID)
	}
	role := req.Role
	if role == "" {
		role = RoleUser
	}
	body := messageBody{Role: role, Content: req.Content}
	for _, id := range req.FileIDs {
		body.Attachments = append(body.Attachments, attachment{
			FileID: id,
			Tools:  []Tool{{Type: ToolFileSearch}},
		})
	}

	var m Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", body, &m); err != nil {
		return nil, fmt.Errorf("create message on %s: %w", threadID, err)
	}
	return &m, nil
}

// ListMessages returns the newest messages of a thread first.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if threadID == "" {
		return nil, fmt.Errorf("list messages: %w", ErrEmptyID)
	}
	if limit <= 0 {
		limit = messagePage
	}
	q := url.Values{}
	q.Set("order", "desc")
	q.Set("limit", strconv.Itoa(limit))

	var page listResponse[Message]
	if err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages?"+q.Encode(), nil, &page); err != nil {
		return nil, fmt.Errorf("list messages on %s: %w", threadID, err)
	}
	return page.Data, nil
}

// CreateRun starts a run of the assistant on the thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	if threadID == "" || assistantID == "" {
		return nil, fmt.Errorf("create run: %w", ErrEmptyID)
	}
	var r Run
	body := map[string]string{"assistant_id": assistantID}
	if err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", body, &r); err != nil {
		return nil, fmt.Errorf("create run on %s: %w", threadID, err)
	}
	return &r, nil
}

// RetrieveRun fetches the current state of a run.
func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	if threadID == "" || runID == "" {
		return nil, fmt.Errorf("retrieve run: %w", ErrEmptyID)
	}
	var r Run
	if err := c.do(ctx, http.MethodGet, runPath(threadID, runID), nil, &r); err != nil {
		return nil, fmt.Errorf("retrieve run %s: %w", runID, err)
	}
	return &r, nil
}

// CancelRun asks the service to stop a run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (*Run, error) {
	if threadID == "" || runID == "" {
		return nil, fmt.Errorf("cancel run: %w", ErrEmptyID)
	}
	var r Run
	if err := c.do(ctx, http.MethodPost, runPath(threadID, runID)+"/cancel", struct{}{}, &r); err != nil {
		return nil, fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return &r, nil
}

func runPath(threadID, runID string) string {
	return "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
}

// do sends a JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		c.setHeaders(req, "application/json")
	} else {
		c.setHeaders(req, "")
	}
	return c.send(req, out)
}

func (c *Client) setHeaders(req *http.Request, contentType string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
