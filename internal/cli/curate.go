package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/config"
	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/output"
	"github.com/raphaelgruber/biocurator-go/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	curateAPIKey      string
	curateInputDir    string
	curateOutputDir   string
	curatePrompts     string
	curateModel       string
	curateTools       string
	curateTimeout     int
	curateSelfCorrect bool
	curateProgress    bool
	curateMetricsFile string
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Run every prompt against every document in a directory",
	Long: `Upload each document in the input directory to the assistant, ask every
prompt from the prompt file and write one answer per document and prompt to
the output directory as <document>_<prompt>.txt.

The "default" prompt is prepended to every question. Documents are processed
one at a time and deleted from the service once their prompts are answered.

Examples:
  biocurator curate --input-dir papers --prompts prompts.yaml
  biocurator curate --config biocurator.yaml --self-correct
  biocurator curate --progress --metrics-file batch.prom`,
	Args: cobra.NoArgs,
	RunE: runCurate,
}

func init() {
	curateCmd.Flags().StringVar(&curateAPIKey, "api-key", "", "API key for the assistant service")
	curateCmd.Flags().StringVarP(&curateInputDir, "input-dir", "i", "", "directory with documents to curate")
	curateCmd.Flags().StringVarP(&curateOutputDir, "output-dir", "o", "", "directory for answer files")
	curateCmd.Flags().StringVarP(&curatePrompts, "prompts", "p", "", "YAML prompt file")
	curateCmd.Flags().StringVarP(&curateModel, "model", "m", "", "assistant model")
	curateCmd.Flags().StringVar(&curateTools, "tools", "", "YAML or JSON file with function tool definitions")
	curateCmd.Flags().IntVar(&curateTimeout, "timeout", 0, "per-run timeout in seconds")
	curateCmd.Flags().BoolVar(&curateSelfCorrect, "self-correct", false, "ask the assistant to verify each answer")
	curateCmd.Flags().BoolVar(&curateProgress, "progress", false, "show an interactive progress bar")
	curateCmd.Flags().StringVar(&curateMetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
}

// applyCurateFlags overrides cfg with the flags set on the command line.
func applyCurateFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.APIKey = curateAPIKey
	}
	if flags.Changed("input-dir") {
		cfg.InputDir = curateInputDir
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = curateOutputDir
	}
	if flags.Changed("prompts") {
		cfg.PromptsFile = curatePrompts
	}
	if flags.Changed("model") {
		cfg.Model = curateModel
	}
	if flags.Changed("tools") {
		cfg.ToolsFile = curateTools
	}
	if flags.Changed("timeout") {
		cfg.TimeoutSeconds = curateTimeout
	}
	if flags.Changed("self-correct") {
		cfg.SelfCorrect = curateSelfCorrect
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = curateMetricsFile
	}
}

func runCurate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyCurateFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	interactive := curateProgress && term.IsTerminal(int(os.Stdout.Fd()))
	var stderr io.Writer = os.Stderr
	if interactive {
		// The progress display owns the terminal; logs go to --log-file only.
		stderr = nil
	}
	logger, closeLog := newLogger(cfg, stderr)
	defer closeLog()

	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}
	tools, err := config.LoadTools(cfg.ToolsFile)
	if err != nil {
		return err
	}
	schemas, err := service.CompileToolSchemas(tools)
	if err != nil {
		return err
	}
	paths, err := inputFiles(cfg.InputDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no documents found in %s", cfg.InputDir)
	}
	writer, err := output.NewWriter(cfg.OutputDir)
	if err != nil {
		return err
	}

	batch := service.NewBatch(len(paths))
	logger = logger.With("batch_id", batch.ID())
	mc := metrics.NewCollector()

	client, err := newAssistantClient(cfg, logger)
	if err != nil {
		return err
	}
	poller := service.NewPoller(client,
		service.WithPollInterval(cfg.PollInterval),
		service.WithToolSchemas(schemas),
		service.WithPollerLogger(logger),
		service.WithPollerMetrics(mc),
	)

	observers := service.Observers{batch}
	if !interactive {
		observers = append(observers, newPrinter(os.Stdout))
	}
	pipeline, err := service.NewPipeline(client, poller, writer, service.PipelineOptions{
		AssistantName:        cfg.AssistantName,
		AssistantDescription: cfg.AssistantDescription,
		Model:                cfg.Model,
		Instructions:         cfg.Instructions,
		Tools:                tools,
		Timeout:              cfg.Timeout(),
		SelfCorrect:          cfg.SelfCorrect,
		Fields: service.CorrectionFields{
			Reasoning: cfg.ReasoningField,
			Decision:  cfg.DecisionField,
		},
	},
		service.WithObserver(observers),
		service.WithLogger(logger),
		service.WithMetrics(mc),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("batch started",
		"documents", len(paths),
		"prompts", prompts.Len(),
		"model", cfg.Model,
		"self_correct", cfg.SelfCorrect)

	run := func(ctx context.Context) (*service.BatchReport, error) {
		return pipeline.Run(ctx, paths, prompts)
	}
	var report *service.BatchReport
	if interactive {
		report, err = runWithProgress(ctx, batch, run)
	} else {
		report, err = run(ctx)
	}
	if err != nil {
		batch.Fail(err)
	} else {
		batch.Complete()
	}

	if report != nil {
		printSummary(os.Stdout, report, mc.Snapshot())
	}
	writeMetrics(logger, mc, cfg.MetricsFile)

	if err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d documents failed", n, len(report.Documents))
	}
	return nil
}

// inputFiles returns the regular, non-hidden files directly inside dir in
// name order.
func inputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

func writeMetrics(logger *slog.Logger, mc *metrics.Collector, path string) {
	if path == "" {
		return
	}
	start := time.Now()
	if err := mc.WriteTextfile(path); err != nil {
		logger.Error("write metrics file failed", "file", path, "error", err)
		return
	}
	logger.Debug("metrics written", "file", path, "duration", time.Since(start))
}
