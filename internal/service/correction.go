package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/assistant"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/sanitize"
	"github.com/xeipuuv/gojsonschema"
)

// Fields added by the correction pass.
const (
	AdjustmentsField = "adjustments"
	AdjustedField    = "adjustments_true_false"
)

// CorrectionFields names the answer fields the correction pass compares.
type CorrectionFields struct {
	Reasoning string
	Decision  string
}

// DefaultCorrectionFields returns reasoning / triage_result.
func DefaultCorrectionFields() CorrectionFields {
	return CorrectionFields{Reasoning: "reasoning", Decision: "triage_result"}
}

func (f CorrectionFields) withDefaults() CorrectionFields {
	d := DefaultCorrectionFields()
	if f.Reasoning == "" {
		f.Reasoning = d.Reasoning
	}
	if f.Decision == "" {
		f.Decision = d.Decision
	}
	return f
}

// CorrectionPrompt renders the verification request for a first answer.
func CorrectionPrompt(f CorrectionFields, firstPass string) string {
	f = f.withDefaults()
	var b strings.Builder
	fmt.Fprintf(&b, "Below is the JSON answer you just gave. Check whether the %q field is consistent with the %q field. ", f.Decision, f.Reasoning)
	b.WriteString("Use only the answer itself as evidence; do not consult the document again.\n\n")
	fmt.Fprintf(&b, "- If %q is consistent with %q, reply with the original JSON unchanged, adding %q (a short explanation) and %q set to false.\n",
		f.Decision, f.Reasoning, AdjustmentsField, AdjustedField)
	fmt.Fprintf(&b, "- If it is not consistent, change only the %q field so that it follows from %q, and add %q (what you changed and why) and %q set to true.\n",
		f.Decision, f.Reasoning, AdjustmentsField, AdjustedField)
	fmt.Fprintf(&b, "- Never modify the %q field.\n", f.Reasoning)
	b.WriteString("- Reply with JSON only.\n\n")
	b.WriteString(firstPass)
	return b.String()
}

// CorrectionRequest is one verification pass.
type CorrectionRequest struct {
	Document    string
	Prompt      string
	ThreadID    string
	AssistantID string
	// FirstPass is the sanitized first answer.
	FirstPass string
	Timeout   time.Duration
}

// Corrector runs the self-correction pass.
type Corrector struct {
	svc     assistant.Service
	poller  *Poller
	fields  CorrectionFields
	schema  *gojsonschema.Schema
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewCorrector creates a Corrector that validates second-pass answers
// against the fields it asked for.
func NewCorrector(svc assistant.Service, poller *Poller, fields CorrectionFields, logger *slog.Logger, mc *metrics.Collector) (*Corrector, error) {
	fields = fields.withDefaults()
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(correctionSchema()))
	if err != nil {
		return nil, fmt.Errorf("compile correction schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Corrector{
		svc:     svc,
		poller:  poller,
		fields:  fields,
		schema:  schema,
		logger:  logger,
		metrics: mc,
	}, nil
}

// correctionSchema only requires the adjustment fields. The decision field
// is required by merge, and only when the first answer carried one.
func correctionSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{AdjustmentsField, AdjustedField},
		"properties": map[string]any{
			AdjustmentsField: map[string]any{"type": "string"},
			AdjustedField:    map[string]any{"type": "boolean"},
		},
	}
}

// Correct detaches the source document from the assistant, asks it to
// re-check its first answer and merges the verdict into that answer.
// A soft-failed or unusable second pass keeps the first answer.
func (c *Corrector) Correct(ctx context.Context, req CorrectionRequest) (models.CurationResult, error) {
	defer c.metrics.Time(metrics.OpCorrection, time.Now())
	log := c.logger.With("document", req.Document, "prompt", req.Prompt)

	fallback := models.CurationResult{
		Document: req.Document,
		Prompt:   req.Prompt,
		Text:     req.FirstPass,
		Source:   models.SourceFallback,
	}

	if err := c.svc.DetachDocuments(ctx, req.AssistantID); err != nil {
		return models.CurationResult{}, fmt.Errorf("detach before correction: %w", err)
	}

	msg := assistant.MessageRequest{Role: assistant.RoleUser, Content: CorrectionPrompt(c.fields, req.FirstPass)}
	if _, err := c.svc.CreateMessage(ctx, req.ThreadID, msg); err != nil {
		return models.CurationResult{}, fmt.Errorf("post correction request: %w", err)
	}

	outcome, err := c.poller.Run(ctx, req.ThreadID, req.AssistantID, req.Timeout)
	if err != nil {
		return models.CurationResult{}, fmt.Errorf("correction run: %w", err)
	}
	if outcome.Kind == OutcomeProceed {
		log.Warn("correction pass gave no answer, keeping first pass", "reason", outcome.Reason)
		c.metrics.Count(metrics.OutcomeFallback)
		return fallback, nil
	}

	second := sanitize.Response(sanitize.Unfence(outcome.Text))
	if res := c.validate(second); res != nil && !res.Valid() {
		for _, e := range res.Errors() {
			log.Warn("correction answer rejected", "field", e.Field(), "detail", e.Description())
		}
		c.metrics.Count(metrics.OutcomeFallback)
		return fallback, nil
	}

	result, err := c.merge(req.FirstPass, second)
	if err != nil {
		log.Warn("correction answer unusable, keeping first pass", "error", err)
		c.metrics.Count(metrics.OutcomeFallback)
		return fallback, nil
	}
	result.Document = req.Document
	result.Prompt = req.Prompt
	if result.Corrected() {
		log.Info("correction changed decision", "field", c.fields.Decision)
		c.metrics.Count(metrics.OutcomeCorrected)
	}
	return result, nil
}

// validate checks second against the correction schema. It returns nil
// when second is not JSON at all; merge reports that case.
func (c *Corrector) validate(second string) *gojsonschema.Result {
	res, err := c.schema.Validate(gojsonschema.NewStringLoader(second))
	if err != nil {
		return nil
	}
	return res
}

// merge overlays the decision and adjustment fields of the second answer
// onto the first. The first answer's reasoning always survives. When the
// first answer is not a JSON object the second answer is kept as is.
func (c *Corrector) merge(firstPass, second string) (models.CurationResult, error) {
	secondVal, err := sanitize.Parse(second)
	if err != nil {
		return models.CurationResult{}, fmt.Errorf("parse correction answer: %w", err)
	}
	secondObj, ok := secondVal.(*sanitize.Object)
	if !ok {
		return models.CurationResult{}, fmt.Errorf("correction answer is not a JSON object")
	}

	result := models.CurationResult{Source: models.SourceSelfCorrection}
	if v, ok := secondObj.Get(AdjustmentsField); ok {
		if s, ok := v.(string); ok {
			result.Adjustments = &s
		}
	}
	if v, ok := secondObj.Get(AdjustedField); ok {
		if b, ok := v.(bool); ok {
			result.Adjusted = &b
		}
	}

	merged := secondObj
	if firstVal, err := sanitize.Parse(sanitize.Unfence(firstPass)); err == nil {
		if firstObj, ok := firstVal.(*sanitize.Object); ok {
			_, hadDecision := firstObj.Get(c.fields.Decision)
			if _, hasDecision := secondObj.Get(c.fields.Decision); hadDecision && !hasDecision {
				return models.CurationResult{}, fmt.Errorf("correction answer dropped %q", c.fields.Decision)
			}
			merged = firstObj
			for _, key := range []string{c.fields.Decision, AdjustmentsField, AdjustedField} {
				if v, ok := secondObj.Get(key); ok {
					merged.Set(key, v)
				}
			}
		}
	}

	text, err := sanitize.Marshal(merged)
	if err != nil {
		return models.CurationResult{}, fmt.Errorf("serialize merged answer: %w", err)
	}
	result.Text = text
	return result, nil
}
