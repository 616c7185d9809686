// Package roles defines typed contracts for module roles.
// Modules that fill a role (declared via PluginInfo.Roles) should implement
// the corresponding interface so callers can use type-safe access via
// PluginResolver.ResolveByRole followed by a type assertion.
package roles

import (
	"context"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Role name constants match the strings used in PluginInfo.Roles.
const (
	RoleTelemetrySource = "telemetry_source"
	RoleDetection       = "detection"
	RoleNotification    = "notification"
)

// TelemetrySource is implemented by modules that own observation storage.
// The detection engine resolves this role to read windows of points and to
// discover which (asset, metric) pairs have recent activity.
type TelemetrySource interface {
	// ObservationWindow returns observations for one (asset, metric) pair with
	// timestamp in [from, to], both ends inclusive, ordered ascending. A limit
	// of 0 means uncapped; when a positive limit truncates the result, the
	// second return is true.
	ObservationWindow(ctx context.Context, assetID, metric string, from, to time.Time, limit int) ([]telemetry.Observation, bool, error)

	// ActivePairs returns the distinct (asset, metric) pairs with at least one
	// observation whose timestamp lies in [from, to].
	ActivePairs(ctx context.Context, from, to time.Time) ([]telemetry.Pair, error)

	// EventTotals returns the total observation count and the top-N assets by
	// observation count, for aggregate statistics.
	EventTotals(ctx context.Context, topN int) (int64, []telemetry.AssetCount, error)

	// Assets returns every known asset with its event count and the timestamp
	// of its most recent observation.
	Assets(ctx context.Context) ([]telemetry.AssetSummary, error)
}

// DetectionProvider is implemented by modules that scan telemetry for
// anomalies. Resolve via PluginResolver.ResolveByRole(RoleDetection) then
// type-assert.
type DetectionProvider interface {
	// Anomalies returns recorded anomalies, newest first, optionally filtered
	// by asset. Pass empty assetID to list across all assets.
	Anomalies(ctx context.Context, assetID string, since, until time.Time, limit int) ([]telemetry.AnomalyRecord, error)

	// TriggerRun starts one full detection pass and returns its run ID without
	// waiting for completion.
	TriggerRun(ctx context.Context) (string, error)

	// Runs returns recent detection runs, newest first.
	Runs(ctx context.Context, limit int) ([]telemetry.DetectionRun, error)

	// AnomalyTotals returns the total anomaly record count and the top-N
	// assets by anomaly count, for aggregate statistics.
	AnomalyTotals(ctx context.Context, topN int) (int64, []telemetry.AssetCount, error)
}

// Notification is one deliverable message, independent of transport.
type Notification struct {
	EventType string    // e.g. "anomaly.detected"
	Subject   string    // one-line summary for text channels
	Timestamp time.Time // when the triggering event happened
	Payload   any       // structured body for JSON channels
}

// Notifier is implemented by modules that deliver notifications (webhooks,
// email, chat) for events other modules emit.
type Notifier interface {
	// Notify sends a notification with the given payload.
	Notify(ctx context.Context, notification Notification) error
}
