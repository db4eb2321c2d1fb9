package scraper

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

// Parser extracts incidents from status-page HTML. The markup is
// semi-trusted third-party content with no schema guarantee, so every field
// is best effort: a block without a recognizable title is skipped, missing
// fields fall back to defaults.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse returns zero or more incidents found in the page. A page that cannot
// be parsed at all yields an empty slice, never an error.
func (p *Parser) Parse(page ScrapedPage) []models.PlatformIncident {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}

	var incidents []models.PlatformIncident
	doc.Find(`div[class*="incident"]`).Each(func(_ int, block *goquery.Selection) {
		title := strings.TrimSpace(block.Find("h1,h2,h3,h4,h5,h6").First().Text())
		if title == "" {
			return
		}

		startTime := page.Timestamp
		if raw, ok := block.Find("[datetime]").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				startTime = t
			}
		}

		blockText := block.Text()
		statusText := strings.TrimSpace(block.Find(`[class*="status"]`).First().Text())

		incidents = append(incidents, models.PlatformIncident{
			IncidentID:       IncidentIdentity(page.Source, title, startTime),
			SourceSystem:     page.Source,
			IncidentType:     inferIncidentType(blockText),
			Severity:         inferSeverity(blockText),
			Status:           inferStatus(statusText),
			Title:            title,
			Description:      extractDescription(block),
			AffectedServices: extractList(block, `[class*="component"]`, "Unknown"),
			AffectedRegions:  extractList(block, `[class*="region"],[class*="location"]`, "Global"),
			StartTime:        startTime,
			LastUpdateTime:   page.Timestamp,
			Updates:          extractUpdates(block, page.Timestamp),
			SourceURL:        page.URL,
		})
	})

	return incidents
}

var identityCleaner = regexp.MustCompile(`[^a-z0-9]`)

// IncidentIdentity derives the stable upsert key from source, normalized
// title and start time. Repeated scrapes of the same incident produce the
// same identity.
func IncidentIdentity(source, title string, startTime time.Time) string {
	normalized := identityCleaner.ReplaceAllString(strings.ToLower(title), "_")
	id := source + "_" + normalized + "_" + startTime.UTC().Format(time.RFC3339)
	if len(id) > 255 {
		id = id[:255]
	}
	return id
}

func inferIncidentType(text string) models.IncidentType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "maintenance"), strings.Contains(lower, "scheduled"):
		return models.IncidentMaintenance
	case strings.Contains(lower, "outage"), strings.Contains(lower, "down"):
		return models.IncidentOutage
	case strings.Contains(lower, "degraded"), strings.Contains(lower, "partial"):
		return models.IncidentDegraded
	default:
		return models.IncidentInformational
	}
}

func inferSeverity(text string) models.IncidentSeverity {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "critical"), strings.Contains(lower, "major outage"):
		return models.SeverityCritical
	case strings.Contains(lower, "major"), strings.Contains(lower, "down"):
		return models.SeverityMajor
	case strings.Contains(lower, "minor"), strings.Contains(lower, "degraded"):
		return models.SeverityMinor
	default:
		return models.SeverityNone
	}
}

func inferStatus(text string) models.IncidentStatus {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "investigating"):
		return models.StatusInvestigating
	case strings.Contains(lower, "identified"):
		return models.StatusIdentified
	case strings.Contains(lower, "monitoring"):
		return models.StatusMonitoring
	case strings.Contains(lower, "resolved"), strings.Contains(lower, "completed"):
		return models.StatusResolved
	case strings.Contains(lower, "scheduled"):
		return models.StatusScheduled
	case strings.Contains(lower, "progress"):
		return models.StatusInProgress
	default:
		return models.StatusInvestigating
	}
}

func extractDescription(block *goquery.Selection) string {
	return strings.TrimSpace(block.Find("p").First().Text())
}

func extractList(block *goquery.Selection, selector, fallback string) []string {
	var values []string
	seen := map[string]bool{}
	block.Find(selector).Each(func(_ int, s *goquery.Selection) {
		v := strings.TrimSpace(s.Text())
		if v != "" && !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	})
	if len(values) == 0 {
		return []string{fallback}
	}
	return values
}

func extractUpdates(block *goquery.Selection, fallbackTime time.Time) []models.IncidentUpdate {
	var updates []models.IncidentUpdate
	block.Find(`div[class*="update"]`).Each(func(_ int, s *goquery.Selection) {
		message := strings.TrimSpace(s.Find("p").First().Text())
		if message == "" {
			return
		}
		ts := fallbackTime
		if raw, ok := s.Find("[datetime]").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				ts = t
			}
		}
		status := strings.TrimSpace(s.Find(`[class*="status"]`).First().Text())
		if status == "" {
			status = "update"
		}
		updates = append(updates, models.IncidentUpdate{
			Timestamp: ts,
			Status:    status,
			Message:   message,
		})
	})
	return updates
}
