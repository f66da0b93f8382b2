package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/llm"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/parser"
	"github.com/raphaelgruber/biocurator-go/internal/sanitize"
	"github.com/raphaelgruber/biocurator-go/internal/tokens"
	"golang.org/x/time/rate"
)

// Completer answers a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (llm.Completion, error)
}

// Block is one submission of section mode: a chunk of a section together
// with the preamble and the selected prompts.
type Block struct {
	Section  string
	Position int
	Of       int
	Prompt   string
	// Tokens is the estimated size of Prompt.
	Tokens   int
	Overflow bool
}

// BlockResult is the model answer for a Block.
type BlockResult struct {
	Block
	Response   string
	Completion llm.Completion
	Duration   time.Duration
}

// SectionOptions configures section mode.
type SectionOptions struct {
	MaxTokens int
	// TokensPerMinute throttles submissions; <= 0 disables throttling.
	TokensPerMinute int
}

// SectionCurator chunks article sections and submits each block to a
// chat model.
type SectionCurator struct {
	chunker *parser.Chunker
	counter tokens.Counter
	model   Completer
	limiter *rate.Limiter
	opts    SectionOptions
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewSectionCurator creates a SectionCurator. model may be nil for
// planning only.
func NewSectionCurator(counter tokens.Counter, segmenter parser.Segmenter, model Completer, opts SectionOptions, logger *slog.Logger, mc *metrics.Collector) *SectionCurator {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SectionCurator{
		chunker: parser.NewChunker(counter, segmenter),
		counter: counter,
		model:   model,
		opts:    opts,
		logger:  logger,
		metrics: mc,
	}
	if opts.TokensPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(opts.TokensPerMinute)/60), opts.TokensPerMinute)
	}
	return s
}

// Plan splits every section into blocks without calling the model.
func (s *SectionCurator) Plan(sections []models.Section, prompts models.PromptSet) ([]Block, error) {
	preamble, ok := prompts.Preamble()
	if !ok {
		return nil, ErrMissingDefaultPrompt
	}
	budget := parser.Budget{
		MaxTokens:   s.opts.MaxTokens,
		Preamble:    preamble,
		SidePrompts: prompts.Texts(),
	}
	if overhead := s.chunker.Overhead(budget); budget.MaxTokens > 0 && overhead >= budget.MaxTokens {
		s.logger.Warn("prompts alone exceed the token budget; every block will overflow",
			"overhead", overhead, "max_tokens", budget.MaxTokens)
	}

	var blocks []Block
	for _, sec := range sections {
		chunks := s.chunker.Chunk(sec.CombinedText(), budget)
		for _, c := range chunks {
			prompt := budget.Compose(c.Text)
			blocks = append(blocks, Block{
				Section:  sec.Type,
				Position: c.Position,
				Of:       len(chunks),
				Prompt:   prompt,
				Tokens:   s.counter.Count(prompt),
				Overflow: c.Overflow,
			})
		}
	}
	return blocks, nil
}

// Curate submits every block in order and calls onBlock as each answer
// arrives. It stops at the first model error.
func (s *SectionCurator) Curate(ctx context.Context, blocks []Block, onBlock func(BlockResult)) ([]BlockResult, error) {
	if s.model == nil {
		return nil, fmt.Errorf("section curation needs a model")
	}

	results := make([]BlockResult, 0, len(blocks))
	for _, b := range blocks {
		if err := s.wait(ctx, b.Tokens); err != nil {
			return results, err
		}

		start := time.Now()
		completion, err := s.model.Complete(ctx, b.Prompt)
		if err != nil {
			return results, fmt.Errorf("section %s block %d: %w", b.Section, b.Position+1, err)
		}
		res := BlockResult{
			Block:      b,
			Response:   sanitize.Text(completion.Text),
			Completion: completion,
			Duration:   time.Since(start),
		}
		if s.metrics != nil {
			s.metrics.RecordLLMUsage(metrics.OpLLMGenerate, res.Duration,
				int64(completion.PromptTokens), int64(completion.CompletionTokens))
		}
		s.logger.Info("block answered",
			"section", b.Section,
			"block", b.Position+1,
			"of", b.Of,
			"estimated_tokens", b.Tokens,
			"prompt_tokens", completion.PromptTokens,
			"completion_tokens", completion.CompletionTokens)

		results = append(results, res)
		if onBlock != nil {
			onBlock(res)
		}
	}
	return results, nil
}

// wait blocks until the per-minute token allowance covers n tokens.
// Blocks larger than the whole allowance wait for a full bucket.
func (s *SectionCurator) wait(ctx context.Context, n int) error {
	if s.limiter == nil {
		return nil
	}
	n = min(n, s.limiter.Burst())

	r := s.limiter.ReserveN(time.Now(), n)
	if !r.OK() {
		return fmt.Errorf("reserve %d tokens: exceeds limiter burst", n)
	}
	d := r.Delay()
	if d == 0 {
		return nil
	}

	s.logger.Info("token rate limit reached, pausing", "wait", d.Round(time.Second))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
