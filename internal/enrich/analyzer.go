package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/extractors"
	"github.com/lakewatch/lakewatch-rca/internal/models"
	"github.com/lakewatch/lakewatch-rca/internal/progress"
)

const systemPrompt = "You are an expert Databricks and Azure platform analyst. " +
	"You have access to search the internet for current platform status and outages. " +
	"Provide detailed, evidence-based root cause analysis in JSON format."

// Analyzer asks the language-model backend for a structured failure
// narrative. Advisory only: its output augments the deterministic verdict
// and never replaces it.
type Analyzer struct {
	llm      LLMClient
	progress *progress.Store
	logger   *slog.Logger
}

func NewAnalyzer(llm LLMClient, progressStore *progress.Store, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{llm: llm, progress: progressStore, logger: logger}
}

// Analyze runs the six-step enrichment for one failed run, publishing each
// milestone to the progress store. A backend transport failure is returned
// as an error; an unparseable response degrades to a fallback result.
func (a *Analyzer) Analyze(ctx context.Context, report models.RCAReport) (models.EnrichmentResult, error) {
	runID := report.JobFailure.RunID

	a.progress.Set(runID, 1, "Analyzing job failure details...", models.ProgressInProgress)
	a.progress.Set(runID, 2, "Processing Spark error logs and cluster information...", models.ProgressInProgress)
	prompt := buildPrompt(report)

	a.progress.Set(runID, 3, "Searching for platform outages and known issues...", models.ProgressInProgress)
	a.progress.Set(runID, 4, "Generating AI-powered root cause analysis...", models.ProgressInProgress)

	response, err := a.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		a.progress.Set(runID, progress.TotalSteps, "Analysis failed - AI backend error", models.ProgressError)
		return models.EnrichmentResult{}, err
	}

	a.progress.Set(runID, 5, "Finalizing analysis results...", models.ProgressInProgress)

	result, ok := ParseResult(response)
	if !ok {
		a.logger.Warn("unparseable enrichment response", "run_id", runID)
		a.progress.Set(runID, progress.TotalSteps, "Analysis failed - parsing error", models.ProgressError)
		return fallbackResult(response), nil
	}

	a.progress.Set(runID, progress.TotalSteps, "Analysis complete", models.ProgressCompleted)
	return result, nil
}

// ParseResult decodes the model's JSON reply, tolerating a single markdown
// code fence around it. Missing required fields fail the parse.
func ParseResult(response string) (models.EnrichmentResult, bool) {
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var result models.EnrichmentResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return models.EnrichmentResult{}, false
	}
	if result.RootCauseCategory == "" || result.LikelyRootCause == "" || result.Confidence == "" {
		return models.EnrichmentResult{}, false
	}
	return result, true
}

func fallbackResult(response string) models.EnrichmentResult {
	analysis := response
	if len(analysis) > 500 {
		analysis = analysis[:500]
	}
	return models.EnrichmentResult{
		RootCauseCategory:         "Unknown",
		LikelyRootCause:           "Unable to determine root cause - AI analysis parsing failed",
		Confidence:                models.ConfidenceNone,
		Analysis:                  analysis,
		PlatformOutagesFound:      "Analysis failed",
		SourcesVerified:           []string{},
		Evidence:                  "Error parsing AI response",
		RemediationSteps:          []string{"Review job logs manually", "Check Databricks status page"},
		PreventionRecommendations: []string{"Monitor platform status regularly"},
	}
}

func buildPrompt(report models.RCAReport) string {
	job := report.JobFailure
	failureDate := job.PeriodEndTime.UTC().Format("2006-01-02")
	terminationCode := job.TerminationCode
	if terminationCode == "" {
		terminationCode = "Unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are a Databricks and Azure platform expert performing Root Cause Analysis (RCA) for a job failure.

JOB FAILURE DETAILS:
- Job ID: %s
- Run ID: %s
- Job Name: %s
- Failure Time: %s
- Termination Code: %s
- Result State: %s
- Trigger Type: %s`,
		job.JobID, job.RunID, job.RunName,
		job.PeriodEndTime.UTC().Format(time.RFC3339),
		terminationCode, job.ResultState, job.TriggerType)

	if len(report.SparkErrors) > 0 {
		b.WriteString("\n\nSPARK ERROR LOGS:\n")
		b.WriteString(extractors.FormatForPrompt(report.SparkErrors))
	}
	if report.ClusterInfo != nil {
		info := report.ClusterInfo
		fmt.Fprintf(&b, `

CLUSTER INFO:
- Cluster ID: %s
- Cluster Name: %s
- State: %s
- Driver Node Type: %s
- Worker Node Type: %s
- Number of Workers: %d`,
			orNA(info.ClusterID), orNA(info.ClusterName), orNA(info.State),
			orNA(info.DriverNodeTypeID), orNA(info.NodeTypeID), info.NumWorkers)
	}
	if len(report.AuditLogs) > 0 {
		b.WriteString("\n\nAUDIT LOGS (Errors):")
		for _, entry := range report.AuditLogs {
			msg := entry.ErrorMessage
			if msg == "" {
				msg = fmt.Sprintf("Status %d", entry.StatusCode)
			}
			fmt.Fprintf(&b, "\n- [%s] %s: %s", entry.EventTime.UTC().Format(time.RFC3339), entry.ActionName, msg)
		}
	}

	fmt.Fprintf(&b, `

TASK: Perform comprehensive RCA analysis with the following steps:

1. **SEARCH THE INTERNET** for platform outages and issues:
   - Check for Databricks platform outages on %s
   - Check for Azure platform service disruptions on %s
   - Look for Databricks workspace or compute issues
   - Search for known issues with the termination code: %s
   - Verify information from multiple reliable sources

2. **ANALYZE SPARK ERROR LOGS** provided above:
   - Identify the specific Spark exception or error type
   - Examine error messages and stack traces for root cause clues
   - Determine if the error is related to code, data, or infrastructure
   - Look for patterns indicating resource issues, data quality problems, or code bugs

3. **ANALYZE JOB METADATA** and identify error patterns:
   - Examine the termination code and what it typically indicates
   - Review audit logs for permission or access issues
   - Check cluster configuration for resource constraints
   - Identify any code or configuration errors

4. **CORRELATE FINDINGS**:
   - Determine if platform outages contributed to the failure
   - Assess whether this is a platform issue vs. job-specific issue
   - Cross-reference Spark errors with platform status
   - Identify the most likely root cause based on all evidence (prioritize Spark error logs)

5. **PROVIDE DETAILED ANALYSIS** in this exact JSON format:
{
  "root_cause_category": "<Platform Outage|Permission Issue|Cluster Configuration|Resource Constraint|Code Error|Network Issue|Storage Issue>",
  "likely_root_cause": "<One sentence summary of the most likely cause>",
  "confidence": "<high|medium|low|none>",
  "analysis": "<Detailed explanation of what caused the failure, referencing specific evidence>",
  "platform_outages_found": "<Summary of any Databricks/Azure outages found during internet research, or 'No platform outages found'>",
  "sources_verified": ["<list of sources you checked>"],
  "evidence": "<Specific log entries, error codes, or outage reports that support your conclusion>",
  "remediation_steps": ["<Specific action 1>", "<Specific action 2>", "..."],
  "prevention_recommendations": ["<Prevention step 1>", "<Prevention step 2>", "..."]
}

IMPORTANT GUIDELINES:
- Actually search the internet for outages - don't just assume
- Verify information from multiple sources when possible
- Be specific about what you found during your research
- Reference exact error messages, codes, or outage reports
- Provide actionable remediation steps
- Distinguish between platform issues vs. user-fixable issues

Respond ONLY with the JSON object, no other text.`, failureDate, failureDate, terminationCode)

	return b.String()
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}
