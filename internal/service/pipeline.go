package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/assistant"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/sanitize"
)

// Assistant defaults used when configuration leaves them empty.
const (
	DefaultAssistantName        = "Biocurator"
	DefaultAssistantDescription = "Assistant for Biocuration"
	DefaultTimeout              = 10 * time.Minute
)

// DefaultInstructions is the system instruction text of the biocurator
// assistant.
const DefaultInstructions = "As a biocurator, your primary responsibility is to meticulously organize, annotate, " +
	"and validate biological data derived from scientific research. This includes accurately " +
	"identifying and cataloging biological entities such as genes, proteins, diseases, and alleles, " +
	"as well as their relationships and functions. You are expected to extract meaningful and " +
	"relevant information from complex biological texts, ensuring data integrity and coherence. " +
	"Your role involves critical analysis of research articles to identify key findings, " +
	"interpret experimental results, and link them to existing biological databases. " +
	"Attention to detail is paramount in capturing the nuances of biological terms and concepts. " +
	"You should adhere strictly to factual information, avoiding assumptions or extrapolations " +
	"beyond the provided data. Your output must reflect a high level of expertise in biological sciences, " +
	"demonstrating an understanding of the context and significance of the research within the broader " +
	"scientific landscape. Always ensure compliance with scientific accuracy, nomenclature standards, " +
	"and ethical guidelines in biocuration."

// ArtifactWriter persists one result and returns where it went.
type ArtifactWriter interface {
	Write(result models.CurationResult) (string, error)
}

// PipelineOptions configures a curation batch.
type PipelineOptions struct {
	AssistantName        string
	AssistantDescription string
	Model                string
	Instructions         string
	Tools                []assistant.FunctionDefinition
	// Timeout bounds each run; zero means DefaultTimeout.
	Timeout     time.Duration
	SelfCorrect bool
	Fields      CorrectionFields
}

func (o PipelineOptions) withDefaults() PipelineOptions {
	if o.AssistantName == "" {
		o.AssistantName = DefaultAssistantName
	}
	if o.AssistantDescription == "" {
		o.AssistantDescription = DefaultAssistantDescription
	}
	if o.Instructions == "" {
		o.Instructions = DefaultInstructions
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	o.Fields = o.Fields.withDefaults()
	return o
}

// DocumentReport summarizes one processed document.
type DocumentReport struct {
	Path      string
	Name      string
	State     models.DocumentState
	Results   []models.CurationResult
	Artifacts []string
	// Skipped lists prompts whose run ended without an answer.
	Skipped  []string
	Err      error
	Duration time.Duration
}

// BatchReport summarizes a whole batch.
type BatchReport struct {
	AssistantID string
	Documents   []DocumentReport
	Duration    time.Duration
}

// Failed returns the number of documents that aborted.
func (r *BatchReport) Failed() int {
	n := 0
	for _, d := range r.Documents {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// AverageDocument returns the mean processing time per document.
func (r *BatchReport) AverageDocument() time.Duration {
	if len(r.Documents) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range r.Documents {
		total += d.Duration
	}
	return total / time.Duration(len(r.Documents))
}

// Observer receives progress as the pipeline works. Calls happen on the
// pipeline goroutine.
type Observer interface {
	DocumentStarted(index, total int, name string)
	PromptStarted(document, prompt string, index, total int)
	// PromptFinished gets a nil result when the prompt was skipped or failed.
	PromptFinished(document, prompt string, result *models.CurationResult, err error)
	DocumentFinished(report DocumentReport)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) DocumentStarted(index, total int, name string) {
	for _, obs := range o {
		obs.DocumentStarted(index, total, name)
	}
}

func (o Observers) PromptStarted(document, prompt string, index, total int) {
	for _, obs := range o {
		obs.PromptStarted(document, prompt, index, total)
	}
}

func (o Observers) PromptFinished(document, prompt string, result *models.CurationResult, err error) {
	for _, obs := range o {
		obs.PromptFinished(document, prompt, result, err)
	}
}

func (o Observers) DocumentFinished(report DocumentReport) {
	for _, obs := range o {
		obs.DocumentFinished(report)
	}
}

// Pipeline curates documents one at a time against a shared assistant.
type Pipeline struct {
	svc       assistant.Service
	poller    *Poller
	corrector *Corrector
	writer    ArtifactWriter
	observer  Observer
	logger    *slog.Logger
	metrics   *metrics.Collector
	opts      PipelineOptions
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithObserver sets the progress observer.
func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records timings into c.
func WithMetrics(c *metrics.Collector) PipelineOption {
	return func(p *Pipeline) { p.metrics = c }
}

// NewPipeline creates a Pipeline.
func NewPipeline(svc assistant.Service, poller *Poller, writer ArtifactWriter, opts PipelineOptions, options ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{
		svc:      svc,
		poller:   poller,
		writer:   writer,
		observer: Observers(nil),
		logger:   slog.Default(),
		metrics:  metrics.NewCollector(),
		opts:     opts.withDefaults(),
	}
	for _, o := range options {
		o(p)
	}

	if p.opts.SelfCorrect {
		c, err := NewCorrector(svc, poller, p.opts.Fields, p.logger, p.metrics)
		if err != nil {
			return nil, err
		}
		p.corrector = c
	}
	return p, nil
}

// Metrics returns the collector the pipeline records into.
func (p *Pipeline) Metrics() *metrics.Collector {
	return p.metrics
}

// Run curates every document in paths with every question in prompts.
// A document-level failure is recorded in its report and the batch moves
// on. A batch-level failure stops the loop and is returned as an
// *AbortError. Each uploaded document is detached and deleted before the
// next one starts, and the assistant is deleted exactly once on every
// exit path after it was obtained.
func (p *Pipeline) Run(ctx context.Context, paths []string, prompts models.PromptSet) (*BatchReport, error) {
	preamble, ok := prompts.Preamble()
	if !ok {
		return nil, abortBatch(ErrMissingDefaultPrompt)
	}
	if prompts.Len() == 0 {
		return nil, abortBatch(ErrNoPrompts)
	}

	start := time.Now()
	report := &BatchReport{}

	asst, err := p.ensureAssistant(ctx)
	if err != nil {
		return nil, abortBatch(fmt.Errorf("prepare assistant: %w", err))
	}
	report.AssistantID = asst.ID
	defer p.deleteAssistant(ctx, asst.ID)

	var batchErr error
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			batchErr = abortBatch(err)
			break
		}
		dr := p.processDocument(ctx, asst.ID, i, len(paths), path, preamble, prompts.Questions())
		report.Documents = append(report.Documents, dr)

		if dr.Err != nil && ctx.Err() != nil {
			batchErr = abortBatch(dr.Err)
			break
		}
		if IsBatchAbort(dr.Err) {
			batchErr = dr.Err
			break
		}
	}

	report.Duration = time.Since(start)
	p.logger.Info("batch finished",
		"documents", len(report.Documents),
		"failed", report.Failed(),
		"duration", report.Duration,
		"aborted", batchErr != nil)
	return report, batchErr
}

func (p *Pipeline) ensureAssistant(ctx context.Context) (*assistant.Assistant, error) {
	existing, err := p.svc.ListAssistants(ctx)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].Name == p.opts.AssistantName {
			p.logger.Info("reusing assistant", "assistant_id", existing[i].ID, "name", p.opts.AssistantName)
			return &existing[i], nil
		}
	}

	tools := []assistant.Tool{{Type: assistant.ToolFileSearch}}
	for i := range p.opts.Tools {
		tools = append(tools, assistant.Tool{Type: assistant.ToolFunction, Function: &p.opts.Tools[i]})
	}

	created, err := p.svc.CreateAssistant(ctx, assistant.AssistantRequest{
		Name:         p.opts.AssistantName,
		Description:  p.opts.AssistantDescription,
		Model:        p.opts.Model,
		Instructions: p.opts.Instructions,
		Tools:        tools,
	})
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, errors.New("service returned an assistant without id")
	}
	p.logger.Info("created assistant", "assistant_id", created.ID, "name", created.Name, "model", p.opts.Model)
	return created, nil
}

func (p *Pipeline) deleteAssistant(ctx context.Context, assistantID string) {
	if err := p.svc.DeleteAssistant(context.WithoutCancel(ctx), assistantID); err != nil {
		p.logger.Error("delete assistant failed", "assistant_id", assistantID, "error", err)
		return
	}
	p.logger.Info("deleted assistant", "assistant_id", assistantID)
}

func (p *Pipeline) processDocument(ctx context.Context, assistantID string, index, total int, path, preamble string, questions []models.Prompt) (rep DocumentReport) {
	doc := models.NewRemoteDocument(path)
	log := p.logger.With("document", doc.Name)
	start := time.Now()

	rep.Path = path
	rep.Name = doc.Name
	p.observer.DocumentStarted(index, total, doc.Name)
	defer func() {
		rep.Duration = time.Since(start)
		rep.State = doc.State
		p.metrics.RecordTiming(metrics.OpDocument, rep.Duration)
		if rep.Err != nil {
			log.Error("document aborted", "error", rep.Err, "scope", scopeOf(rep.Err))
		} else {
			log.Info("document finished", "written", len(rep.Artifacts), "skipped", len(rep.Skipped), "duration", rep.Duration)
		}
		p.observer.DocumentFinished(rep)
	}()

	uploadStart := time.Now()
	remote, err := p.svc.UploadDocument(ctx, path)
	p.metrics.RecordTiming(metrics.OpUpload, time.Since(uploadStart))
	if err != nil {
		rep.Err = abortDocument(fmt.Errorf("upload: %w", err))
		return rep
	}
	doc.FileID = remote.FileID
	doc.StoreID = remote.StoreID
	doc.State = models.DocumentUploaded
	log.Info("document uploaded", "file_id", doc.FileID)

	defer func() {
		if err := p.release(ctx, assistantID, doc); err != nil {
			log.Error("document cleanup incomplete", "file_id", doc.FileID, "error", err)
		}
	}()

	thread, err := p.svc.CreateThread(ctx)
	if err != nil {
		rep.Err = abortDocument(fmt.Errorf("create thread: %w", err))
		return rep
	}

	attached := false
	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			rep.Err = abortBatch(err)
			return rep
		}
		if !attached {
			if err := p.svc.AttachDocument(ctx, assistantID, *remote); err != nil {
				rep.Err = abortDocument(fmt.Errorf("attach: %w", err))
				return rep
			}
			attached = true
		}

		p.observer.PromptStarted(doc.Name, q.Name, i, len(questions))
		result, detached, err := p.curatePrompt(ctx, assistantID, thread.ID, doc.Name, preamble, q)
		if detached {
			attached = false
		}
		if err != nil {
			p.metrics.Count(metrics.OutcomeFailed)
			p.observer.PromptFinished(doc.Name, q.Name, nil, err)
			rep.Err = abortDocument(fmt.Errorf("prompt %s: %w", q.Name, err))
			return rep
		}
		if result == nil {
			p.metrics.Count(metrics.OutcomeSkipped)
			rep.Skipped = append(rep.Skipped, q.Name)
			p.observer.PromptFinished(doc.Name, q.Name, nil, nil)
			continue
		}

		artifact, err := p.writer.Write(*result)
		if err != nil {
			p.metrics.Count(metrics.OutcomeFailed)
			p.observer.PromptFinished(doc.Name, q.Name, nil, err)
			rep.Err = abortDocument(fmt.Errorf("write %s: %w", result.ArtifactName(), err))
			return rep
		}
		p.metrics.Count(metrics.OutcomeWritten)
		rep.Results = append(rep.Results, *result)
		rep.Artifacts = append(rep.Artifacts, artifact)
		log.Info("prompt answered", "prompt", q.Name, "source", result.Source, "artifact", artifact)
		p.observer.PromptFinished(doc.Name, q.Name, result, nil)
	}
	return rep
}

// curatePrompt asks one question and returns the result to persist, or
// nil when the run ended without an answer. detached reports whether the
// document was removed from the assistant along the way.
func (p *Pipeline) curatePrompt(ctx context.Context, assistantID, threadID, document, preamble string, q models.Prompt) (result *models.CurationResult, detached bool, err error) {
	msg := assistant.MessageRequest{Role: assistant.RoleUser, Content: composeMessage(preamble, q.Text)}
	if _, err := p.svc.CreateMessage(ctx, threadID, msg); err != nil {
		return nil, false, fmt.Errorf("post prompt: %w", err)
	}

	outcome, err := p.poller.Run(ctx, threadID, assistantID, p.opts.Timeout)
	if err != nil {
		return nil, false, err
	}

	first := models.CurationResult{Document: document, Prompt: q.Name}
	switch outcome.Kind {
	case OutcomeProceed:
		p.logger.Warn("prompt skipped", "document", document, "prompt", q.Name, "reason", outcome.Reason)
		return nil, false, nil
	case OutcomeToolCall:
		first.Source = models.SourceToolCall
	default:
		first.Source = models.SourceFirstPass
	}
	first.Text = sanitize.Response(outcome.Text)

	if p.corrector == nil {
		return &first, false, nil
	}

	corrected, err := p.corrector.Correct(ctx, CorrectionRequest{
		Document:    document,
		Prompt:      q.Name,
		ThreadID:    threadID,
		AssistantID: assistantID,
		FirstPass:   first.Text,
		Timeout:     p.opts.Timeout,
	})
	if err != nil {
		return nil, true, err
	}
	return &corrected, true, nil
}

// release detaches and deletes an uploaded document. Both steps are
// attempted even when the first fails or ctx is cancelled.
func (p *Pipeline) release(ctx context.Context, assistantID string, doc *models.RemoteDocument) error {
	if !doc.Uploaded() {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if err := p.svc.DetachDocuments(ctx, assistantID); err != nil {
		errs = append(errs, fmt.Errorf("detach: %w", err))
	} else {
		doc.State = models.DocumentDetached
	}

	remote := assistant.Document{FileID: doc.FileID, StoreID: doc.StoreID}
	if err := p.svc.DeleteDocument(ctx, remote); err != nil {
		errs = append(errs, fmt.Errorf("delete: %w", err))
	} else {
		doc.State = models.DocumentDeleted
	}
	return errors.Join(errs...)
}

// composeMessage prepends the preamble to a question.
func composeMessage(preamble, question string) string {
	if preamble == "" {
		return question
	}
	return preamble + "\n\n" + question
}

func scopeOf(err error) string {
	var abort *AbortError
	if errors.As(err, &abort) {
		return abort.Scope.String()
	}
	return AbortDocument.String()
}
