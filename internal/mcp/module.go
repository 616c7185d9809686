// Package mcp exposes telemetry data to LLM agents over the Model Context
// Protocol. It registers read-only query tools (assets, anomalies, runs,
// stats) on an MCP server served over the streamable HTTP transport, guards
// the endpoint with an optional bearer API key, and audits every tool call
// to SQLite.
package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/internal/version"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/roles"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// TopicToolCalled carries a map with the tool name and its parameters for
// every MCP tool invocation.
const TopicToolCalled = "mcp.tool.called"

// Module implements the mcp plugin.
type Module struct {
	logger    *zap.Logger
	bus       plugin.EventBus
	source    roles.TelemetrySource
	detection roles.DetectionProvider
	apiKey    string
	audit     *AuditStore

	server  *sdkmcp.Server
	handler http.Handler
}

// New creates a new mcp plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "mcp",
		Version:      "0.1.0",
		Description:  "Model Context Protocol server for telemetry queries",
		Dependencies: []string{"ingest", "detect"},
		Required:     false,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	if deps.Config != nil {
		m.apiKey = deps.Config.GetString("api_key")
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(context.Background(), "mcp", migrations()); err != nil {
			return fmt.Errorf("mcp migrations: %w", err)
		}
		m.audit = NewAuditStore(deps.Store.DB())
	}

	if deps.Plugins != nil {
		if m.source == nil {
			for _, p := range deps.Plugins.ResolveByRole(roles.RoleTelemetrySource) {
				if src, ok := p.(roles.TelemetrySource); ok {
					m.source = src
					break
				}
			}
		}
		if m.detection == nil {
			for _, p := range deps.Plugins.ResolveByRole(roles.RoleDetection) {
				if det, ok := p.(roles.DetectionProvider); ok {
					m.detection = det
					break
				}
			}
		}
	}

	m.logger.Info("mcp module initialized",
		zap.Bool("api_key_set", m.apiKey != ""),
		zap.Bool("audit_enabled", m.audit != nil))
	return nil
}

// SetSource overrides the telemetry source resolved during Init. Useful when
// wiring the module outside the plugin registry.
func (m *Module) SetSource(src roles.TelemetrySource) {
	m.source = src
}

// SetDetection overrides the detection provider resolved during Init. Useful
// when wiring the module outside the plugin registry.
func (m *Module) SetDetection(det roles.DetectionProvider) {
	m.detection = det
}

func (m *Module) Start(_ context.Context) error {
	m.server = sdkmcp.NewServer(
		&sdkmcp.Implementation{
			Name:    "rocket-telemetry-ai",
			Version: version.Short(),
		},
		nil,
	)
	m.registerTools()

	// One handler for the module's lifetime; the transport tracks MCP
	// sessions inside it.
	m.handler = sdkmcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *sdkmcp.Server { return m.server },
		nil,
	)

	m.logger.Info("mcp module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.handler = nil
	m.server = nil
	m.logger.Info("mcp module stopped")
	return nil
}

// Routes implements plugin.HTTPProvider. The trailing slash registers a
// subtree match so the transport owns everything under /mcp/.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodPost, Path: "/mcp/", Handler: m.handleMCP},
		{Method: http.MethodGet, Path: "/mcp/", Handler: m.handleMCP},
		{Method: http.MethodDelete, Path: "/mcp/", Handler: m.handleMCP},
		{Method: http.MethodGet, Path: "/mcp/audit", Handler: m.handleAuditList},
	}
}

// handleMCP gates the MCP streamable HTTP transport behind the optional
// API key.
func (m *Module) handleMCP(w http.ResponseWriter, r *http.Request) {
	if m.apiKey != "" {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(m.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid API key")
			return
		}
	}

	if m.handler == nil {
		writeError(w, http.StatusServiceUnavailable, "mcp server not started")
		return
	}
	m.handler.ServeHTTP(w, r)
}

// handleAuditList returns paginated tool call audit entries.
func (m *Module) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if m.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store not available")
		return
	}

	toolName := r.URL.Query().Get("tool")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, total, err := m.audit.List(r.Context(), toolName, limit, offset)
	if err != nil {
		m.logger.Error("failed to query audit log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// publishToolCall announces a tool invocation on the bus.
func (m *Module) publishToolCall(toolName string, params any) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(context.Background(), plugin.Event{
		Topic:     TopicToolCalled,
		Source:    "mcp",
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"tool":   toolName,
			"params": params,
		},
	})
}

// auditToolCall persists one finished tool invocation. No-op without a
// store.
func (m *Module) auditToolCall(ctx context.Context, toolName, inputJSON string, start time.Time, success bool, errMsg string) {
	if m.audit == nil {
		return
	}
	entry := AuditEntry{
		Timestamp:    start,
		ToolName:     toolName,
		InputJSON:    inputJSON,
		Caller:       "http",
		DurationMs:   time.Since(start).Milliseconds(),
		Success:      success,
		ErrorMessage: errMsg,
	}
	if err := m.audit.Insert(ctx, entry); err != nil {
		m.logger.Warn("failed to write audit log", zap.Error(err))
	}
}

// -- helpers --

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://rocket-telemetry-ai.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
