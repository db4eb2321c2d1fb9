package scraper

import (
	"strings"
	"testing"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

const sampleStatusHTML = `
<html><body>
<div class="page-header">All Systems Operational</div>
<div class="incident-container">
  <h3>Major outage affecting SQL warehouses</h3>
  <span class="incident-status">Investigating</span>
  <time datetime="2024-03-01T09:50:00Z">Mar 1, 09:50 UTC</time>
  <p>SQL warehouse launches are failing in multiple regions.</p>
  <span class="component-name">Databricks SQL</span>
  <span class="component-name">Compute</span>
  <span class="region-name">us-east-1</span>
  <div class="incident-update">
    <time datetime="2024-03-01T10:15:00Z">10:15 UTC</time>
    <span class="update-status">Identified</span>
    <p>Root cause identified, rolling back.</p>
  </div>
</div>
<div class="incident-container">
  <h3>Scheduled maintenance for workspace services</h3>
  <span class="incident-status">Scheduled</span>
  <p>Maintenance window this weekend.</p>
</div>
<div class="footer">Contact support</div>
</body></html>`

func samplePage() ScrapedPage {
	return ScrapedPage{
		Source:    "databricks_aws",
		URL:       "https://status.databricks.com/",
		Timestamp: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		Body:      []byte(sampleStatusHTML),
	}
}

func TestParseStatusPage(t *testing.T) {
	incidents := NewParser().Parse(samplePage())
	if len(incidents) != 2 {
		t.Fatalf("got %d incidents, want 2", len(incidents))
	}

	outage := incidents[0]
	if outage.Title != "Major outage affecting SQL warehouses" {
		t.Errorf("title = %q", outage.Title)
	}
	if outage.IncidentType != models.IncidentOutage {
		t.Errorf("type = %s", outage.IncidentType)
	}
	if outage.Severity != models.SeverityCritical {
		t.Errorf("severity = %s", outage.Severity)
	}
	if outage.Status != models.StatusInvestigating {
		t.Errorf("status = %s", outage.Status)
	}
	if !outage.StartTime.Equal(time.Date(2024, 3, 1, 9, 50, 0, 0, time.UTC)) {
		t.Errorf("start = %s", outage.StartTime)
	}
	if outage.Description != "SQL warehouse launches are failing in multiple regions." {
		t.Errorf("description = %q", outage.Description)
	}
	if len(outage.AffectedServices) != 2 || outage.AffectedServices[0] != "Databricks SQL" {
		t.Errorf("services = %v", outage.AffectedServices)
	}
	if len(outage.AffectedRegions) != 1 || outage.AffectedRegions[0] != "us-east-1" {
		t.Errorf("regions = %v", outage.AffectedRegions)
	}
	if len(outage.Updates) != 1 || outage.Updates[0].Message != "Root cause identified, rolling back." {
		t.Errorf("updates = %v", outage.Updates)
	}

	maintenance := incidents[1]
	if maintenance.IncidentType != models.IncidentMaintenance {
		t.Errorf("type = %s", maintenance.IncidentType)
	}
	if maintenance.Status != models.StatusScheduled {
		t.Errorf("status = %s", maintenance.Status)
	}
	// No datetime attribute: start time falls back to the scrape timestamp.
	if !maintenance.StartTime.Equal(samplePage().Timestamp) {
		t.Errorf("start = %s", maintenance.StartTime)
	}
	if len(maintenance.AffectedServices) != 1 || maintenance.AffectedServices[0] != "Unknown" {
		t.Errorf("services = %v", maintenance.AffectedServices)
	}
	if len(maintenance.AffectedRegions) != 1 || maintenance.AffectedRegions[0] != "Global" {
		t.Errorf("regions = %v", maintenance.AffectedRegions)
	}
}

func TestParseEmptyOrBrokenHTML(t *testing.T) {
	page := samplePage()
	page.Body = []byte("<<<< not html at all")
	if got := NewParser().Parse(page); len(got) != 0 {
		t.Errorf("expected no incidents, got %v", got)
	}

	page.Body = []byte("<html><body><div class=\"incident\"><span>no heading</span></div></body></html>")
	if got := NewParser().Parse(page); len(got) != 0 {
		t.Errorf("blocks without titles must be skipped, got %v", got)
	}
}

func TestIncidentIdentityStable(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 50, 0, 0, time.UTC)
	a := IncidentIdentity("databricks_aws", "Major outage: SQL warehouses!", start)
	b := IncidentIdentity("databricks_aws", "Major outage: SQL warehouses!", start)
	if a != b {
		t.Errorf("identity not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "databricks_aws_major_outage__sql_warehouses__") {
		t.Errorf("identity = %q", a)
	}
	if IncidentIdentity("databricks_azure", "Major outage: SQL warehouses!", start) == a {
		t.Error("different sources must yield different identities")
	}
}

func TestIncidentIdentityTruncated(t *testing.T) {
	id := IncidentIdentity("azure_status", strings.Repeat("very long title ", 50), time.Now())
	if len(id) > 255 {
		t.Errorf("identity length = %d", len(id))
	}
}
