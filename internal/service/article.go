package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/raphaelgruber/biocurator-go/internal/parser"
)

// DefaultBioCURL is the PMC open access BioC JSON endpoint.
const DefaultBioCURL = "https://www.ncbi.nlm.nih.gov/research/bionlp/RESTful/pmcoa.cgi/BioC_json"

// ArticleSource loads PubMed Central articles as BioC JSON.
type ArticleSource struct {
	BaseURL string
	Client  *http.Client
}

// NewArticleSource returns a source for the public BioC endpoint.
func NewArticleSource() *ArticleSource {
	return &ArticleSource{
		BaseURL: DefaultBioCURL,
		Client:  &http.Client{Timeout: time.Minute},
	}
}

// Fetch downloads the BioC JSON of an article.
func (a *ArticleSource) Fetch(ctx context.Context, pmcID string) ([]byte, error) {
	endpoint := a.BaseURL + "/" + url.PathEscape(pmcID) + "/unicode"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch article %s: %w", pmcID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read article %s: %w", pmcID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch article %s: HTTP %d", pmcID, resp.StatusCode)
	}
	return body, nil
}

// Sections loads an article from file when path is set, otherwise from
// the network, and returns its whitelisted sections.
func (a *ArticleSource) Sections(ctx context.Context, pmcID, path string, whitelist []string) ([]models.Section, error) {
	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read article file: %w", err)
		}
	} else {
		data, err = a.Fetch(ctx, pmcID)
		if err != nil {
			return nil, err
		}
	}
	return parser.ParseBioC(data, whitelist)
}
