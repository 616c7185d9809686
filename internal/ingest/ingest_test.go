package ingest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/internal/config"
	"github.com/nikhilij/rocket-telemetry-ai/internal/event"
	"github.com/nikhilij/rocket-telemetry-ai/internal/store"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin/plugintest"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/roles"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

func TestPluginContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func TestInit_WithConfig(t *testing.T) {
	v := viper.New()
	v.Set("max_batch", 250)

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := New()
	err = m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.New(v),
		Store:  db,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if m.cfg.MaxBatch != 250 {
		t.Errorf("cfg.MaxBatch = %d, want 250", m.cfg.MaxBatch)
	}
}

func TestInit_NilConfig(t *testing.T) {
	m := New()
	err := m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("Init() with nil config error = %v", err)
	}

	defaults := DefaultConfig()
	if m.cfg.MaxBatch != defaults.MaxBatch {
		t.Errorf("cfg.MaxBatch = %d, want default %d", m.cfg.MaxBatch, defaults.MaxBatch)
	}
}

func TestInfo_HasCorrectRoles(t *testing.T) {
	m := New()
	info := m.Info()

	if info.Name != "ingest" {
		t.Errorf("Info().Name = %q, want %q", info.Name, "ingest")
	}
	if !info.Required {
		t.Error("Info().Required = false, want true")
	}

	found := false
	for _, r := range info.Roles {
		if r == roles.RoleTelemetrySource {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Info().Roles = %v, want to contain %q", info.Roles, roles.RoleTelemetrySource)
	}
}

func TestHealth_ReportsStoredCount(t *testing.T) {
	m := newTestModule(t)

	if _, err := m.Ingest(context.Background(), []telemetry.IngestEvent{
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: time.Now(), Value: 620},
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: time.Now(), Value: 625},
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	status := m.Health(context.Background())

	if status.Status != "healthy" {
		t.Errorf("Health().Status = %q, want %q", status.Status, "healthy")
	}
	if got := status.Details["observations_stored"]; got != "2" {
		t.Errorf("Details[observations_stored] = %q, want %q", got, "2")
	}
}

func TestIngest_ValidAndInvalidMixed(t *testing.T) {
	m := newTestModule(t)

	events := []telemetry.IngestEvent{
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: time.Now(), Value: 642.5, Unit: "C"},
		{AssetID: "", Metric: "engine_temp", Timestamp: time.Now(), Value: 640},
		{AssetID: "rocket-1", Metric: "", Timestamp: time.Now(), Value: 640},
		{AssetID: "rocket-1", Metric: "fuel_pressure", Value: 320},
		{AssetID: "rocket-1", Metric: "fuel_pressure", Timestamp: time.Now(), Value: 318.2, Unit: "PSI"},
	}

	resp, err := m.Ingest(context.Background(), events)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if resp.Ingested != 2 {
		t.Errorf("Ingested = %d, want 2", resp.Ingested)
	}
	if len(resp.Errors) != 3 {
		t.Fatalf("len(Errors) = %d, want 3: %v", len(resp.Errors), resp.Errors)
	}
	wantErrors := []string{
		"event 1: asset_id is required",
		"event 2: metric is required",
		"event 3: timestamp is required",
	}
	for i, want := range wantErrors {
		if resp.Errors[i] != want {
			t.Errorf("Errors[%d] = %q, want %q", i, resp.Errors[i], want)
		}
	}
}

func TestIngest_EmptyBatch(t *testing.T) {
	m := newTestModule(t)

	resp, err := m.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if resp.Ingested != 0 {
		t.Errorf("Ingested = %d, want 0", resp.Ingested)
	}
	if len(resp.Errors) != 1 || resp.Errors[0] != "no events in request" {
		t.Errorf("Errors = %v, want [no events in request]", resp.Errors)
	}
}

func TestIngest_RejectsNonFiniteValues(t *testing.T) {
	m := newTestModule(t)

	resp, err := m.Ingest(context.Background(), []telemetry.IngestEvent{
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: time.Now(), Value: math.NaN()},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if resp.Ingested != 0 {
		t.Errorf("Ingested = %d, want 0", resp.Ingested)
	}
	if len(resp.Errors) != 1 || resp.Errors[0] != "event 0: value must be finite" {
		t.Errorf("Errors = %v, want [event 0: value must be finite]", resp.Errors)
	}
}

func TestIngest_PublishesBatchSummary(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := event.NewBus(zap.NewNop())
	got := make(chan plugin.Event, 1)
	bus.Subscribe(TopicObservationIngested, func(_ context.Context, e plugin.Event) {
		got <- e
	})

	m := New()
	err = m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Store:  db,
		Bus:    bus,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { m.Stop(context.Background()) })

	_, err = m.Ingest(context.Background(), []telemetry.IngestEvent{
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: time.Now(), Value: 630},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	select {
	case e := <-got:
		summary, ok := e.Payload.(BatchSummary)
		if !ok {
			t.Fatalf("payload type = %T, want BatchSummary", e.Payload)
		}
		if summary.Ingested != 1 {
			t.Errorf("summary.Ingested = %d, want 1", summary.Ingested)
		}
		if len(summary.AssetIDs) != 1 || summary.AssetIDs[0] != "rocket-1" {
			t.Errorf("summary.AssetIDs = %v, want [rocket-1]", summary.AssetIDs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ingest event")
	}
}

func TestObservationWindow_InclusiveBounds(t *testing.T) {
	m := newTestModule(t)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	from := now.Add(-10 * time.Minute)

	events := []telemetry.IngestEvent{
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: from.Add(-time.Second), Value: 1}, // before window
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: from, Value: 2},                   // exactly at start
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: now.Add(-5 * time.Minute), Value: 3},
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: now, Value: 4},                  // exactly at end
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: now.Add(time.Second), Value: 5}, // future
	}
	if _, err := m.Ingest(context.Background(), events); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	obs, truncated, err := m.ObservationWindow(context.Background(), "rocket-1", "engine_temp", from, now, 0)
	if err != nil {
		t.Fatalf("ObservationWindow() error = %v", err)
	}
	if truncated {
		t.Error("truncated = true, want false")
	}
	if len(obs) != 3 {
		t.Fatalf("len(obs) = %d, want 3", len(obs))
	}
	for i, want := range []float64{2, 3, 4} {
		if obs[i].Value != want {
			t.Errorf("obs[%d].Value = %v, want %v", i, obs[i].Value, want)
		}
	}
	for i := 1; i < len(obs); i++ {
		if obs[i].Timestamp.Before(obs[i-1].Timestamp) {
			t.Errorf("observations not in ascending order at index %d", i)
		}
	}
}

func TestObservationWindow_TruncatesAtLimit(t *testing.T) {
	m := newTestModule(t)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var events []telemetry.IngestEvent
	for i := 0; i < 5; i++ {
		events = append(events, telemetry.IngestEvent{
			AssetID:   "rocket-1",
			Metric:    "velocity",
			Timestamp: now.Add(time.Duration(-i) * time.Minute),
			Value:     float64(i),
		})
	}
	if _, err := m.Ingest(context.Background(), events); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	obs, truncated, err := m.ObservationWindow(context.Background(), "rocket-1", "velocity", now.Add(-time.Hour), now, 3)
	if err != nil {
		t.Fatalf("ObservationWindow() error = %v", err)
	}
	if !truncated {
		t.Error("truncated = false, want true")
	}
	if len(obs) != 3 {
		t.Errorf("len(obs) = %d, want 3", len(obs))
	}
}

func TestActivePairs_DistinctWithinRange(t *testing.T) {
	m := newTestModule(t)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := []telemetry.IngestEvent{
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: now.Add(-time.Minute), Value: 620},
		{AssetID: "rocket-1", Metric: "engine_temp", Timestamp: now.Add(-2 * time.Minute), Value: 618},
		{AssetID: "rocket-1", Metric: "fuel_level", Timestamp: now.Add(-time.Minute), Value: 82},
		{AssetID: "rocket-2", Metric: "engine_temp", Timestamp: now.Add(-time.Minute), Value: 610},
		{AssetID: "rocket-3", Metric: "engine_temp", Timestamp: now.Add(-2 * time.Hour), Value: 605}, // stale
	}
	if _, err := m.Ingest(context.Background(), events); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	pairs, err := m.ActivePairs(context.Background(), now.Add(-10*time.Minute), now)
	if err != nil {
		t.Fatalf("ActivePairs() error = %v", err)
	}

	want := []telemetry.Pair{
		{AssetID: "rocket-1", Metric: "engine_temp"},
		{AssetID: "rocket-1", Metric: "fuel_level"},
		{AssetID: "rocket-2", Metric: "engine_temp"},
	}
	if len(pairs) != len(want) {
		t.Fatalf("len(pairs) = %d, want %d: %v", len(pairs), len(want), pairs)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("pairs[%d] = %v, want %v", i, pairs[i], want[i])
		}
	}
}

func TestObservationWindow_RoundTripsUnitAndTags(t *testing.T) {
	m := newTestModule(t)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if _, err := m.Ingest(context.Background(), []telemetry.IngestEvent{
		{
			AssetID:   "rocket-1",
			Metric:    "fuel_pressure",
			Timestamp: now,
			Value:     320.5,
			Unit:      "PSI",
			Tags:      map[string]string{"zone": "A", "stage": "1"},
		},
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	obs, _, err := m.ObservationWindow(context.Background(), "rocket-1", "fuel_pressure", now.Add(-time.Minute), now, 0)
	if err != nil {
		t.Fatalf("ObservationWindow() error = %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("len(obs) = %d, want 1", len(obs))
	}
	o := obs[0]
	if o.ID == "" {
		t.Error("observation ID not assigned")
	}
	if o.Unit != "PSI" {
		t.Errorf("Unit = %q, want PSI", o.Unit)
	}
	if o.Tags["zone"] != "A" || o.Tags["stage"] != "1" {
		t.Errorf("Tags = %v, want zone=A stage=1", o.Tags)
	}
	if !o.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", o.Timestamp, now)
	}
}

func TestEventTotals_CountsAndTopAssets(t *testing.T) {
	m := newTestModule(t)

	now := time.Now()
	var events []telemetry.IngestEvent
	for i := 0; i < 3; i++ {
		events = append(events, telemetry.IngestEvent{
			AssetID: "rocket-1", Metric: "engine_temp", Timestamp: now, Value: 620,
		})
	}
	events = append(events, telemetry.IngestEvent{
		AssetID: "rocket-2", Metric: "engine_temp", Timestamp: now, Value: 615,
	})
	if _, err := m.Ingest(context.Background(), events); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	total, top, err := m.EventTotals(context.Background(), 10)
	if err != nil {
		t.Fatalf("EventTotals() error = %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].AssetID != "rocket-1" || top[0].Count != 3 {
		t.Errorf("top[0] = %+v, want rocket-1 with 3", top[0])
	}
}
