package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raphaelgruber/biocurator-go/internal/config"
	"github.com/raphaelgruber/biocurator-go/internal/llm"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/parser"
	"github.com/raphaelgruber/biocurator-go/internal/service"
	"github.com/raphaelgruber/biocurator-go/internal/tokens"
	"github.com/spf13/cobra"
)

var (
	sectionsFile   string
	sectionsDryRun bool
)

var sectionsCmd = &cobra.Command{
	Use:   "sections <pmc-id> <prompt>...",
	Short: "Curate the sections of a PubMed Central article in token-bounded blocks",
	Long: `Fetch a PubMed Central article as BioC JSON, keep the configured sections
(RESULTS and DISCUSSION by default), split them into blocks that fit the
token budget and ask the selected prompts about each block.

Every block is sent as the default prompt, the selected prompts and the
block text. Submissions are paused to stay under tokens_per_minute.

Examples:
  biocurator sections PMC4136787 geneCheck alleleCheck
  biocurator sections PMC4136787 geneCheck --file PMC4136787.json
  biocurator sections PMC4136787 geneCheck --dry-run`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSections,
}

func init() {
	sectionsCmd.Flags().StringVarP(&sectionsFile, "file", "f", "", "read the BioC JSON from a file instead of fetching it")
	sectionsCmd.Flags().BoolVar(&sectionsDryRun, "dry-run", false, "show blocks and token estimates without calling the model")
}

func runSections(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateSections(); err != nil {
		return err
	}
	logger, closeLog := newLogger(cfg, os.Stderr)
	defer closeLog()

	pmcID, names := args[0], args[1:]
	all, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}
	prompts := all.Select(names)
	if prompts.Len() == 0 {
		return fmt.Errorf("none of the prompts %s are in %s", strings.Join(names, ", "), cfg.PromptsFile)
	}
	if prompts.Len() < len(names) {
		logger.Warn("some prompts were not found and are ignored", "requested", names, "found", prompts.Len())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sections, err := service.NewArticleSource().Sections(ctx, pmcID, sectionsFile, cfg.Sections)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		return fmt.Errorf("article %s has none of the sections %s", pmcID, strings.Join(cfg.Sections, ", "))
	}

	var model service.Completer
	if !sectionsDryRun {
		m, err := llm.NewModel(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init model: %w", err)
		}
		model = m
	}

	mc := metrics.NewCollector()
	curator := service.NewSectionCurator(
		tokens.NewCounter(cfg.Encoding, logger),
		parser.NewSegmenter(),
		model,
		service.SectionOptions{MaxTokens: cfg.MaxTokens, TokensPerMinute: cfg.TokensPerMinute},
		logger,
		mc,
	)

	blocks, err := curator.Plan(sections, prompts)
	if err != nil {
		return err
	}

	theme := defaultTheme
	total := 0
	for _, b := range blocks {
		total += b.Tokens
		line := fmt.Sprintf("%s block %d/%d: ~%d tokens", b.Section, b.Position+1, b.Of, b.Tokens)
		if b.Overflow {
			line += " " + theme.errorStyle().Render("(over budget)")
		}
		fmt.Println(line)
	}
	fmt.Printf("%d blocks, ~%d tokens total\n", len(blocks), total)
	if sectionsDryRun {
		return nil
	}

	_, err = curator.Curate(ctx, blocks, func(r service.BlockResult) {
		fmt.Println()
		fmt.Println(theme.headerStyle().Render(fmt.Sprintf("%s %d/%d", r.Section, r.Position+1, r.Of)))
		fmt.Println(r.Response)
	})

	stats := mc.Snapshot()
	if stats.LLMGenerate != nil {
		printOpStats(os.Stdout, "LLM Generate", stats.LLMGenerate)
		printTokenStats(os.Stdout, stats.LLMGenerate)
	}
	writeMetrics(logger, mc, cfg.MetricsFile)
	if llm.IsFatalAPIError(err) {
		return fmt.Errorf("provider rejected the request, check the API key and quota: %w", err)
	}
	return err
}
