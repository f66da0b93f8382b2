package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/service"
)

// printer writes pipeline progress to out as it happens.
type printer struct {
	out   io.Writer
	theme Theme
}

var _ service.Observer = (*printer)(nil)

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, theme: defaultTheme}
}

func (p *printer) DocumentStarted(index, total int, name string) {
	fmt.Fprintf(p.out, "[%d/%d] %s\n", index+1, total, name)
}

func (p *printer) PromptStarted(document, prompt string, index, total int) {
	fmt.Fprintf(p.out, "  %s (%d/%d)...\n", prompt, index+1, total)
}

func (p *printer) PromptFinished(document, prompt string, result *models.CurationResult, err error) {
	switch {
	case err != nil:
		fmt.Fprintf(p.out, "  %s %s: %v\n", p.theme.errorStyle().Render("✗"), prompt, err)
	case result == nil:
		fmt.Fprintf(p.out, "  %s %s skipped, no answer\n", p.theme.hintStyle().Render("-"), prompt)
	default:
		note := string(result.Source)
		if result.Corrected() {
			note += ", decision adjusted"
		}
		fmt.Fprintf(p.out, "  %s %s (%s)\n", p.theme.completedStyle().Render("✓"), result.ArtifactName(), note)
	}
}

func (p *printer) DocumentFinished(report service.DocumentReport) {
	if report.Err != nil {
		fmt.Fprintf(p.out, "  %s\n", p.theme.errorStyle().Render("failed: "+report.Err.Error()))
		return
	}
	fmt.Fprintf(p.out, "  done in %s\n", report.Duration.Round(time.Millisecond))
}
