package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Tool input types.

type queryAnomaliesInput struct {
	AssetID string `json:"asset_id,omitempty" jsonschema:"Filter by asset identifier"`
	Since   string `json:"since,omitempty" jsonschema:"RFC3339 lower bound on the flagged observation timestamp"`
	Until   string `json:"until,omitempty" jsonschema:"RFC3339 upper bound on the flagged observation timestamp"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum number of records to return (default 50)"`
}

type getRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return (default 20)"`
}

// registerTools adds all MCP tools to the server.
func (m *Module) registerTools() {
	sdkmcp.AddTool(m.server, &sdkmcp.Tool{
		Name:        "list_assets",
		Description: "List every asset that has reported telemetry, with its event count and the timestamp of its most recent observation.",
	}, m.handleListAssets)

	sdkmcp.AddTool(m.server, &sdkmcp.Tool{
		Name:        "query_anomalies",
		Description: "Query recorded anomalies, newest first. Filter by asset and by an RFC3339 time range over the flagged observation's timestamp. Each record carries its deviation score, a human-readable explanation, and the baseline evidence.",
	}, m.handleQueryAnomalies)

	sdkmcp.AddTool(m.server, &sdkmcp.Tool{
		Name:        "get_runs",
		Description: "Get recent detection runs, newest first, with their trigger, status, pair counts, and the number of anomaly records each created.",
	}, m.handleGetRuns)

	sdkmcp.AddTool(m.server, &sdkmcp.Tool{
		Name:        "get_stats",
		Description: "Get aggregate statistics: total observations, total anomaly records, and the top assets by event count and by anomaly count.",
	}, m.handleGetStats)
}

func (m *Module) handleListAssets(ctx context.Context, _ *sdkmcp.CallToolRequest, input struct{}) (*sdkmcp.CallToolResult, any, error) {
	start := time.Now().UTC()
	m.publishToolCall("list_assets", input)

	if m.source == nil {
		return m.finish(ctx, "list_assets", input, start,
			textResult("Telemetry data is not available. The ingest module may not be loaded."))
	}

	assets, err := m.source.Assets(ctx)
	if err != nil {
		return m.finish(ctx, "list_assets", input, start,
			errorResult(fmt.Sprintf("failed to list assets: %v", err)))
	}
	if assets == nil {
		assets = []telemetry.AssetSummary{}
	}

	resp := struct {
		Assets []telemetry.AssetSummary `json:"assets"`
		Count  int                      `json:"count"`
	}{Assets: assets, Count: len(assets)}

	return m.finish(ctx, "list_assets", input, start, textResult(writeToolJSON(resp)))
}

func (m *Module) handleQueryAnomalies(ctx context.Context, _ *sdkmcp.CallToolRequest, input queryAnomaliesInput) (*sdkmcp.CallToolResult, any, error) {
	start := time.Now().UTC()
	m.publishToolCall("query_anomalies", input)

	if m.detection == nil {
		return m.finish(ctx, "query_anomalies", input, start,
			textResult("Detection data is not available. The detect module may not be loaded."))
	}

	since, err := parseToolTime(input.Since, "since")
	if err != nil {
		return m.finish(ctx, "query_anomalies", input, start, errorResult(err.Error()))
	}
	until, err := parseToolTime(input.Until, "until")
	if err != nil {
		return m.finish(ctx, "query_anomalies", input, start, errorResult(err.Error()))
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	records, err := m.detection.Anomalies(ctx, input.AssetID, since, until, limit)
	if err != nil {
		return m.finish(ctx, "query_anomalies", input, start,
			errorResult(fmt.Sprintf("failed to query anomalies: %v", err)))
	}
	if records == nil {
		records = []telemetry.AnomalyRecord{}
	}

	resp := struct {
		Anomalies []telemetry.AnomalyRecord `json:"anomalies"`
		Count     int                       `json:"count"`
		Limit     int                       `json:"limit"`
	}{Anomalies: records, Count: len(records), Limit: limit}

	return m.finish(ctx, "query_anomalies", input, start, textResult(writeToolJSON(resp)))
}

func (m *Module) handleGetRuns(ctx context.Context, _ *sdkmcp.CallToolRequest, input getRunsInput) (*sdkmcp.CallToolResult, any, error) {
	start := time.Now().UTC()
	m.publishToolCall("get_runs", input)

	if m.detection == nil {
		return m.finish(ctx, "get_runs", input, start,
			textResult("Detection data is not available. The detect module may not be loaded."))
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	runs, err := m.detection.Runs(ctx, limit)
	if err != nil {
		return m.finish(ctx, "get_runs", input, start,
			errorResult(fmt.Sprintf("failed to list detection runs: %v", err)))
	}
	if runs == nil {
		runs = []telemetry.DetectionRun{}
	}

	resp := struct {
		Runs  []telemetry.DetectionRun `json:"runs"`
		Count int                      `json:"count"`
	}{Runs: runs, Count: len(runs)}

	return m.finish(ctx, "get_runs", input, start, textResult(writeToolJSON(resp)))
}

func (m *Module) handleGetStats(ctx context.Context, _ *sdkmcp.CallToolRequest, input struct{}) (*sdkmcp.CallToolResult, any, error) {
	start := time.Now().UTC()
	m.publishToolCall("get_stats", input)

	if m.source == nil || m.detection == nil {
		return m.finish(ctx, "get_stats", input, start,
			textResult("Statistics require both the ingest and detect modules to be loaded."))
	}

	totalObs, topByEvents, err := m.source.EventTotals(ctx, 10)
	if err != nil {
		return m.finish(ctx, "get_stats", input, start,
			errorResult(fmt.Sprintf("failed to load observation totals: %v", err)))
	}
	totalAnomalies, topByAnomalies, err := m.detection.AnomalyTotals(ctx, 10)
	if err != nil {
		return m.finish(ctx, "get_stats", input, start,
			errorResult(fmt.Sprintf("failed to load anomaly totals: %v", err)))
	}
	if topByEvents == nil {
		topByEvents = []telemetry.AssetCount{}
	}
	if topByAnomalies == nil {
		topByAnomalies = []telemetry.AssetCount{}
	}

	stats := telemetry.Stats{
		TotalObservations:    totalObs,
		TotalAnomalies:       totalAnomalies,
		TopAssetsByEvents:    topByEvents,
		TopAssetsByAnomalies: topByAnomalies,
	}

	return m.finish(ctx, "get_stats", input, start, textResult(writeToolJSON(stats)))
}

// finish audits one completed tool call and hands back its result.
func (m *Module) finish(ctx context.Context, tool string, input any, start time.Time, result *sdkmcp.CallToolResult) (*sdkmcp.CallToolResult, any, error) {
	errMsg := ""
	if result.IsError {
		errMsg = resultText(result)
	}
	m.auditToolCall(ctx, tool, writeToolJSON(input), start, !result.IsError, errMsg)
	return result, nil, nil
}

// parseToolTime parses an optional RFC3339 tool argument. Empty means unset
// and yields the zero time.
func parseToolTime(s, name string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: must be RFC3339", name)
	}
	return t, nil
}

// textResult creates a successful CallToolResult with text content.
func textResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: text},
		},
	}
}

// errorResult creates an error CallToolResult with text content.
func errorResult(msg string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// resultText returns the first text content of a result.
func resultText(result *sdkmcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// writeToolJSON marshals v for a tool response.
func writeToolJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"failed to marshal response"}`
	}
	return string(data)
}
