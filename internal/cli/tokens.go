package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/biocurator-go/internal/tokens"
	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <file>...",
	Short: "Count the tokens of files",
	Long: `Print the token count of each file under the configured encoding
(cl100k_base by default).

Examples:
  biocurator tokens prompts.yaml
  BIOCURATOR_ENCODING=o200k_base biocurator tokens paper.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTokens,
}

func runTokens(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(cfg, os.Stderr)
	defer closeLog()

	counter := tokens.NewCounter(cfg.Encoding, logger)
	total := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		n := counter.Count(string(data))
		total += n
		fmt.Printf("%8d  %s\n", n, path)
	}
	if len(args) > 1 {
		fmt.Printf("%8d  total\n", total)
	}
	return nil
}
