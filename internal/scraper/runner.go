package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lakewatch/lakewatch-rca/internal/metrics"
	"github.com/lakewatch/lakewatch-rca/internal/models"
	"github.com/lakewatch/lakewatch-rca/internal/utils"
)

// Archiver persists raw page snapshots to durable storage.
type Archiver interface {
	UploadFile(ctx context.Context, path string, data []byte) error
}

// Upserter merges parsed incidents into the incident store.
type Upserter interface {
	UpsertIncident(ctx context.Context, incident models.PlatformIncident) error
}

// Runner executes one scrape cycle: fetch, archive, parse and upsert each
// source. Sources run concurrently and fail independently.
type Runner struct {
	fetcher    *Fetcher
	parser     *Parser
	archiver   Archiver
	upserter   Upserter
	sources    []Source
	volumePath string
	logger     *slog.Logger
}

func NewRunner(fetcher *Fetcher, archiver Archiver, upserter Upserter, volumePath string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		fetcher:    fetcher,
		parser:     NewParser(),
		archiver:   archiver,
		upserter:   upserter,
		sources:    DefaultSources(),
		volumePath: volumePath,
		logger:     logger,
	}
}

// Run scrapes all sources and returns a per-source summary. A failure on one
// source never prevents the others from completing.
func (r *Runner) Run(ctx context.Context) models.ScrapeSummary {
	summary := models.ScrapeSummary{
		Counts: make(map[string]int, len(r.sources)),
		Errors: make(map[string]string),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, source := range r.sources {
		wg.Add(1)
		go func(source Source) {
			defer wg.Done()
			count, err := r.runSource(ctx, source)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("scrape source failed", "source", source.Name, "error", err)
				summary.Errors[source.Name] = err.Error()
				summary.Counts[source.Name] = 0
				metrics.ObserveScrape(source.Name, 0, true)
				return
			}
			summary.Counts[source.Name] = count
			metrics.ObserveScrape(source.Name, count, false)
		}(source)
	}
	wg.Wait()

	if len(summary.Errors) == 0 {
		summary.Errors = nil
	}
	return summary
}

func (r *Runner) runSource(ctx context.Context, source Source) (int, error) {
	page, err := r.fetcher.Fetch(ctx, source)
	if err != nil {
		return 0, err
	}

	archivePath := r.archivePath(page)
	if err := r.archiver.UploadFile(ctx, archivePath, page.Body); err != nil {
		return 0, &utils.ArchiveWriteError{Source: source.Name, Err: err}
	}

	incidents := r.parser.Parse(page)
	r.logger.Info("parsed incidents", "source", source.Name, "count", len(incidents))

	upserted := 0
	for _, incident := range incidents {
		incident.RawDataPath = archivePath
		if err := r.upserter.UpsertIncident(ctx, incident); err != nil {
			return upserted, fmt.Errorf("upsert %s: %w", incident.IncidentID, err)
		}
		upserted++
	}
	return upserted, nil
}

var fileNameCleaner = strings.NewReplacer(":", "-", ".", "-")

// archivePath builds the deterministic volume location for one snapshot. The
// dotted volume name becomes a Files API directory path.
func (r *Runner) archivePath(page ScrapedPage) string {
	ts := fileNameCleaner.Replace(page.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	fileName := fmt.Sprintf("%s_%s.html", page.Source, ts)
	parts := strings.Split(r.volumePath, ".")
	return "/Volumes/" + strings.Join(parts, "/") + "/" + fileName
}
