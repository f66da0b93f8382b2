package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/biocurator-go/internal/assistant"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/output"
	"github.com/raphaelgruber/biocurator-go/internal/service"
)

func testPrompts() models.PromptSet {
	return models.NewPromptSet([]models.Prompt{
		{Name: "default", Text: "Preamble."},
		{Name: "geneCheck", Text: "List genes mentioned."},
	})
}

func newTestPipeline(t *testing.T, svc *fakeService, w service.ArtifactWriter, opts service.PipelineOptions, extra ...service.PipelineOption) *service.Pipeline {
	t.Helper()
	poller := newTestPoller(svc, newFakeClock())
	options := append([]service.PipelineOption{service.WithLogger(quiet)}, extra...)
	p, err := service.NewPipeline(svc, poller, w, opts, options...)
	require.NoError(t, err)
	return p
}

func TestPipeline_EndToEnd(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	pdf := filepath.Join(inDir, "sample.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))

	svc := newFakeService()
	svc.script(completedWith("Gene: BRCA1 【3†source】"))
	w, err := output.NewWriter(outDir)
	require.NoError(t, err)

	p := newTestPipeline(t, svc, w, service.PipelineOptions{Model: "gpt-4o"})
	report, err := p.Run(context.Background(), []string{pdf}, testPrompts())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "sample_geneCheck.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Gene: BRCA1 ", string(data))

	require.Len(t, report.Documents, 1)
	doc := report.Documents[0]
	assert.NoError(t, doc.Err)
	assert.Equal(t, "sample", doc.Name)
	assert.Equal(t, models.DocumentDeleted, doc.State)
	assert.Equal(t, []string{filepath.Join(outDir, "sample_geneCheck.txt")}, doc.Artifacts)
	require.Len(t, doc.Results, 1)
	assert.Equal(t, models.SourceFirstPass, doc.Results[0].Source)

	require.Len(t, svc.posted, 1)
	assert.Equal(t, "Preamble.\n\nList genes mentioned.", svc.posted[0].Content)
	assert.Len(t, svc.posted[0].Attached, 1, "document is visible while the question runs")

	assert.Empty(t, svc.documents, "uploaded document is deleted")
	assert.Equal(t, []string{report.AssistantID}, svc.deletedAssistants)
	assert.Empty(t, svc.attached[report.AssistantID])

	req := svc.assistants[report.AssistantID]
	assert.Equal(t, service.DefaultAssistantName, req.Name)
	assert.Equal(t, "gpt-4o", req.Model)
	require.NotEmpty(t, req.Tools)
	assert.Equal(t, assistant.ToolFileSearch, req.Tools[0].Type)
}

func TestPipeline_FatalErrorAbortsBatch(t *testing.T) {
	svc := newFakeService()
	svc.uploadErr["b.pdf"] = fatalAPIError()
	w := newMemWriter()

	p := newTestPipeline(t, svc, w, service.PipelineOptions{})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf", "/in/b.pdf", "/in/c.pdf"}, testPrompts())
	require.Error(t, err)
	assert.True(t, service.IsBatchAbort(err))

	var apiErr *assistant.APIError
	assert.ErrorAs(t, err, &apiErr)

	require.Len(t, report.Documents, 2, "c.pdf is never started")
	assert.NoError(t, report.Documents[0].Err)
	assert.Error(t, report.Documents[1].Err)

	assert.Len(t, svc.uploaded, 1)
	assert.Len(t, svc.deletedDocuments, 1, "first document is cleaned up")
	assert.Empty(t, svc.documents)
	assert.Len(t, svc.deletedAssistants, 1, "assistant is deleted exactly once")
	assert.Contains(t, w.files, "a_geneCheck.txt")
}

func TestPipeline_DocumentErrorContinues(t *testing.T) {
	svc := newFakeService()
	svc.uploadErr["a.pdf"] = errBoom
	w := newMemWriter()

	p := newTestPipeline(t, svc, w, service.PipelineOptions{})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf", "/in/b.pdf"}, testPrompts())
	require.NoError(t, err)

	require.Len(t, report.Documents, 2)
	assert.ErrorIs(t, report.Documents[0].Err, errBoom)
	assert.Equal(t, models.DocumentPending, report.Documents[0].State)
	assert.NoError(t, report.Documents[1].Err)
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, w.files, "b_geneCheck.txt")
	assert.Len(t, svc.deletedAssistants, 1)
}

func TestPipeline_FailedRunAbortsDocumentOnly(t *testing.T) {
	svc := newFakeService()
	svc.script(
		runScript{statuses: []assistant.RunStatus{assistant.RunStatusFailed}},
		completedWith("second document answer"),
	)
	w := newMemWriter()

	p := newTestPipeline(t, svc, w, service.PipelineOptions{})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf", "/in/b.pdf"}, testPrompts())
	require.NoError(t, err)

	assert.ErrorIs(t, report.Documents[0].Err, service.ErrRunFailed)
	assert.Equal(t, models.DocumentDeleted, report.Documents[0].State, "aborted document is still cleaned up")
	assert.Equal(t, "second document answer", w.files["b_geneCheck.txt"])
	assert.Empty(t, svc.documents)
}

func TestPipeline_CleanupFailureDoesNotBlock(t *testing.T) {
	svc := newFakeService()
	svc.detachErr = errBoom
	svc.deleteErr = errBoom
	svc.script(completedWith("first answer"), completedWith("second answer"))
	w := newMemWriter()

	p := newTestPipeline(t, svc, w, service.PipelineOptions{})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf", "/in/b.pdf"}, testPrompts())
	require.NoError(t, err)

	require.Len(t, report.Documents, 2)
	for _, doc := range report.Documents {
		assert.NoError(t, doc.Err, "cleanup errors are logged, not reported")
		assert.Equal(t, models.DocumentUploaded, doc.State)
	}
	assert.Equal(t, 2, svc.detachCalls)
	assert.Equal(t, svc.uploaded, svc.deleteAttempts, "delete is attempted after a failed detach")
	assert.Empty(t, svc.deletedDocuments)
	assert.Equal(t, "first answer", w.files["a_geneCheck.txt"])
	assert.Equal(t, "second answer", w.files["b_geneCheck.txt"])
	assert.Equal(t, []string{report.AssistantID}, svc.deletedAssistants)
}

func TestPipeline_SkippedPrompt(t *testing.T) {
	svc := newFakeService()
	svc.script(
		runScript{statuses: []assistant.RunStatus{assistant.RunStatusExpired}},
		completedWith("answer two"),
	)
	prompts := models.NewPromptSet([]models.Prompt{
		{Name: "default", Text: "Preamble."},
		{Name: "one", Text: "Q1"},
		{Name: "two", Text: "Q2"},
	})
	w := newMemWriter()

	p := newTestPipeline(t, svc, w, service.PipelineOptions{})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf"}, prompts)
	require.NoError(t, err)

	assert.Equal(t, []string{"one"}, report.Documents[0].Skipped)
	assert.NotContains(t, w.files, "a_one.txt")
	assert.Equal(t, "answer two", w.files["a_two.txt"])
}

func TestPipeline_SelfCorrectionReattaches(t *testing.T) {
	svc := newFakeService()
	svc.script(
		completedWith(`{"reasoning":"r1","triage_result":"yes"}`),
		completedWith(`{"triage_result":"yes","adjustments":"ok","adjustments_true_false":false}`),
		completedWith(`{"reasoning":"r2","triage_result":"no"}`),
		completedWith(`{"triage_result":"yes","adjustments":"fixed","adjustments_true_false":true}`),
	)
	prompts := models.NewPromptSet([]models.Prompt{
		{Name: "default", Text: "Preamble."},
		{Name: "one", Text: "Q1"},
		{Name: "two", Text: "Q2"},
	})
	w := newMemWriter()

	p := newTestPipeline(t, svc, w, service.PipelineOptions{SelfCorrect: true})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf"}, prompts)
	require.NoError(t, err)
	require.NoError(t, report.Documents[0].Err)

	require.Len(t, svc.posted, 4)
	assert.NotEmpty(t, svc.posted[0].Attached)
	assert.Empty(t, svc.posted[1].Attached, "correction runs without the document")
	assert.NotEmpty(t, svc.posted[2].Attached, "document is re-attached for the next question")
	assert.Empty(t, svc.posted[3].Attached)

	results := report.Documents[0].Results
	require.Len(t, results, 2)
	assert.False(t, results[0].Corrected())
	assert.True(t, results[1].Corrected())
	assert.Contains(t, w.files["a_two.txt"], `"reasoning": "r2"`)
	assert.Contains(t, w.files["a_two.txt"], `"triage_result": "yes"`)
}

func TestPipeline_ToolCallResult(t *testing.T) {
	svc := newFakeService()
	svc.script(runScript{
		statuses: []assistant.RunStatus{assistant.RunStatusRequiresAction},
		toolCall: &assistant.ToolCall{ID: "call_1", Type: "function", Function: assistant.FunctionCall{
			Name:      "record_genes",
			Arguments: `{"genes":["BRCA1 [4:0†source]"]}`,
		}},
	})
	w := newMemWriter()

	p := newTestPipeline(t, svc, w, service.PipelineOptions{
		Tools: []assistant.FunctionDefinition{{Name: "record_genes"}},
	})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf"}, testPrompts())
	require.NoError(t, err)

	assert.Equal(t, "{\n    \"genes\": [\n        \"BRCA1 \"\n    ]\n}", w.files["a_geneCheck.txt"])
	assert.Equal(t, models.SourceToolCall, report.Documents[0].Results[0].Source)
	assert.Equal(t, 1, svc.cancels)

	req := svc.assistants[report.AssistantID]
	require.Len(t, req.Tools, 2)
	assert.Equal(t, assistant.ToolFunction, req.Tools[1].Type)
	assert.Equal(t, "record_genes", req.Tools[1].Function.Name)
}

func TestPipeline_ReusesAssistantByName(t *testing.T) {
	svc := newFakeService()
	svc.existing = []assistant.Assistant{
		{ID: "asst_other", Name: "Other"},
		{ID: "asst_old", Name: service.DefaultAssistantName},
	}

	p := newTestPipeline(t, svc, newMemWriter(), service.PipelineOptions{})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf"}, testPrompts())
	require.NoError(t, err)

	assert.Equal(t, "asst_old", report.AssistantID)
	assert.Empty(t, svc.assistants, "no assistant is created")
	assert.Equal(t, []string{"asst_old"}, svc.deletedAssistants)
}

func TestPipeline_MissingDefaultPrompt(t *testing.T) {
	svc := newFakeService()
	prompts := models.NewPromptSet([]models.Prompt{{Name: "geneCheck", Text: "List genes."}})

	p := newTestPipeline(t, svc, newMemWriter(), service.PipelineOptions{})
	_, err := p.Run(context.Background(), []string{"/in/a.pdf"}, prompts)
	assert.ErrorIs(t, err, service.ErrMissingDefaultPrompt)
	assert.True(t, service.IsBatchAbort(err))
	assert.Empty(t, svc.assistants)
	assert.Empty(t, svc.uploaded)
}

func TestPipeline_NoQuestions(t *testing.T) {
	prompts := models.NewPromptSet([]models.Prompt{{Name: "default", Text: "Preamble."}})

	p := newTestPipeline(t, newFakeService(), newMemWriter(), service.PipelineOptions{})
	_, err := p.Run(context.Background(), nil, prompts)
	assert.ErrorIs(t, err, service.ErrNoPrompts)
}

func TestPipeline_AssistantCreationFails(t *testing.T) {
	svc := newFakeService()
	svc.createErr = errBoom

	p := newTestPipeline(t, svc, newMemWriter(), service.PipelineOptions{})
	_, err := p.Run(context.Background(), []string{"/in/a.pdf"}, testPrompts())
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, service.IsBatchAbort(err))
	assert.Empty(t, svc.deletedAssistants, "nothing to delete")
}

func TestPipeline_CancelledContext(t *testing.T) {
	svc := newFakeService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, svc, newMemWriter(), service.PipelineOptions{})
	report, err := p.Run(ctx, []string{"/in/a.pdf"}, testPrompts())
	assert.True(t, service.IsBatchAbort(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Documents)
	assert.Len(t, svc.deletedAssistants, 1)
}

func TestPipeline_WriteErrorAbortsDocument(t *testing.T) {
	svc := newFakeService()
	w := newMemWriter()
	w.err = output.ErrPathInvalid

	p := newTestPipeline(t, svc, w, service.PipelineOptions{})
	report, err := p.Run(context.Background(), []string{"/in/a.pdf"}, testPrompts())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Documents[0].Err, output.ErrPathInvalid)
	assert.Empty(t, svc.documents)
}

func TestPipeline_ObserverTracksBatch(t *testing.T) {
	svc := newFakeService()
	svc.uploadErr["b.pdf"] = errBoom
	svc.script(completedWith("one"), runScript{statuses: []assistant.RunStatus{assistant.RunStatusCancelled}})
	prompts := models.NewPromptSet([]models.Prompt{
		{Name: "default", Text: "Preamble."},
		{Name: "one", Text: "Q1"},
		{Name: "two", Text: "Q2"},
	})
	batch := service.NewBatch(2)

	p := newTestPipeline(t, svc, newMemWriter(), service.PipelineOptions{}, service.WithObserver(batch))
	_, err := p.Run(context.Background(), []string{"/in/a.pdf", "/in/b.pdf"}, prompts)
	require.NoError(t, err)
	batch.Complete()

	s := batch.Snapshot()
	assert.Equal(t, service.BatchStatusCompleted, s.Status)
	assert.Equal(t, 2, s.Progress)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Written)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0], "b: ")
	assert.NotNil(t, s.CompletedAt)
	assert.Len(t, batch.ID(), 8)
}

func TestPipeline_RecordsMetrics(t *testing.T) {
	svc := newFakeService()
	p := newTestPipeline(t, svc, newMemWriter(), service.PipelineOptions{})
	_, err := p.Run(context.Background(), []string{"/in/a.pdf", "/in/b.pdf"}, testPrompts())
	require.NoError(t, err)

	snap := p.Metrics().Snapshot()
	require.NotNil(t, snap.Upload)
	assert.Equal(t, int64(2), snap.Upload.Count)
	require.NotNil(t, snap.Document)
	assert.Equal(t, int64(2), snap.Document.Count)
	assert.Equal(t, metrics.OutcomeCounts{Written: 2}, snap.Outcomes)
}

func TestPipeline_CountsSkippedAndFailedPrompts(t *testing.T) {
	svc := newFakeService()
	svc.script(
		runScript{statuses: []assistant.RunStatus{assistant.RunStatusExpired}},
		runScript{statuses: []assistant.RunStatus{assistant.RunStatusFailed}},
	)
	p := newTestPipeline(t, svc, newMemWriter(), service.PipelineOptions{})
	_, err := p.Run(context.Background(), []string{"/in/a.pdf", "/in/b.pdf", "/in/c.pdf"}, testPrompts())
	require.NoError(t, err)

	assert.Equal(t, metrics.OutcomeCounts{Written: 1, Skipped: 1, Failed: 1}, p.Metrics().Snapshot().Outcomes)
}

func TestBatchReport_AverageDocument(t *testing.T) {
	r := &service.BatchReport{Documents: []service.DocumentReport{
		{Duration: 2 * time.Second},
		{Duration: 4 * time.Second},
	}}
	assert.Equal(t, 3*time.Second, r.AverageDocument())
	assert.Zero(t, (&service.BatchReport{}).AverageDocument())
}

func TestBatch_Fail(t *testing.T) {
	b := service.NewBatch(1)
	assert.Equal(t, service.BatchStatusPending, b.Snapshot().Status)
	b.Fail(errBoom)
	s := b.Snapshot()
	assert.Equal(t, service.BatchStatusFailed, s.Status)
	assert.Equal(t, "boom", s.Error)
}
