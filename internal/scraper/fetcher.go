package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/config"
)

// Source is one external status page to watch.
type Source struct {
	Name string
	URL  string
}

// DefaultSources are the fixed status pages covering the platform and its
// underlying cloud provider.
func DefaultSources() []Source {
	return []Source{
		{Name: "databricks_azure", URL: "https://status.azuredatabricks.net/"},
		{Name: "databricks_aws", URL: "https://status.databricks.com/"},
		{Name: "azure_status", URL: "https://azure.status.microsoft/"},
	}
}

// ScrapedPage is one raw snapshot of a status page.
type ScrapedPage struct {
	Source    string
	URL       string
	Timestamp time.Time
	Body      []byte
}

// Fetcher downloads status pages with a browser-like user agent; some status
// providers reject unidentified clients.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
}

func NewFetcher(cfg config.ScraperConfig) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		now:        time.Now,
	}
}

// Fetch downloads one source and stamps the snapshot time.
func (f *Fetcher) Fetch(ctx context.Context, source Source) (ScrapedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return ScrapedPage{}, fmt.Errorf("build request for %s: %w", source.Name, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return ScrapedPage{}, fmt.Errorf("fetch %s: %w", source.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ScrapedPage{}, fmt.Errorf("fetch %s: unexpected status %d", source.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ScrapedPage{}, fmt.Errorf("read %s body: %w", source.Name, err)
	}

	return ScrapedPage{
		Source:    source.Name,
		URL:       source.URL,
		Timestamp: f.now().UTC(),
		Body:      body,
	}, nil
}
