package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/assistant"
	"github.com/raphaelgruber/biocurator-go/internal/config"
	"github.com/spf13/cobra"
)

var assistantsAPIKey string

var assistantsCmd = &cobra.Command{
	Use:   "assistants",
	Short: "Inspect and clean up remote assistants",
	Long: `List or delete assistants on the remote service, for example ones left
behind by an interrupted batch.

Subcommands:
  list    List assistants (default)
  delete  Delete assistants by ID

Examples:
  biocurator assistants
  biocurator assistants delete asst_abc123`,
	RunE: runAssistantsList,
}

var assistantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assistants",
	Args:  cobra.NoArgs,
	RunE:  runAssistantsList,
}

var assistantsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete assistants by ID",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAssistantsDelete,
}

func init() {
	assistantsCmd.PersistentFlags().StringVar(&assistantsAPIKey, "api-key", "", "API key for the assistant service")

	assistantsCmd.AddCommand(assistantsListCmd)
	assistantsCmd.AddCommand(assistantsDeleteCmd)
}

// newAssistantClient creates the remote service client from cfg.
func newAssistantClient(cfg config.Config, logger *slog.Logger) (*assistant.Client, error) {
	opts := []assistant.Option{assistant.WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, assistant.WithBaseURL(cfg.BaseURL))
	}
	return assistant.New(cfg.APIKey, opts...)
}

func assistantsClient(cmd *cobra.Command) (*assistant.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = assistantsAPIKey
	}
	logger, closeLog := newLogger(cfg, os.Stderr)
	client, err := newAssistantClient(cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return client, closeLog, nil
}

func runAssistantsList(cmd *cobra.Command, args []string) error {
	client, closeLog, err := assistantsClient(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	assistants, err := client.ListAssistants(context.Background())
	if err != nil {
		return fmt.Errorf("list assistants: %w", err)
	}
	if len(assistants) == 0 {
		fmt.Println("No assistants found")
		return nil
	}

	fmt.Printf("%-32s %-20s %-14s %s\n", "ID", "NAME", "MODEL", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, a := range assistants {
		created := time.Unix(a.CreatedAt, 0).Format("2006-01-02 15:04")
		fmt.Printf("%-32s %-20s %-14s %s\n", a.ID, a.Name, a.Model, created)
	}
	return nil
}

func runAssistantsDelete(cmd *cobra.Command, args []string) error {
	client, closeLog, err := assistantsClient(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	failed := 0
	for _, id := range args {
		if err := client.DeleteAssistant(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("✓ Deleted %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(args))
	}
	return nil
}
