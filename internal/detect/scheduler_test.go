package detect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nikhilij/rocket-telemetry-ai/internal/event"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// fakeSource is an in-memory telemetry source for scheduler tests. Pairs can
// be marked failing to exercise isolation, and window reads can be delayed
// to exercise the worker pool and pair timeouts.
type fakeSource struct {
	mu            sync.Mutex
	obs           []telemetry.Observation
	failing       map[telemetry.Pair]error
	delay         time.Duration
	concurrent    int
	maxConcurrent int
}

func (f *fakeSource) add(assetID, metric string, age time.Duration, value float64) telemetry.Observation {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := telemetry.Observation{
		ID:        fmt.Sprintf("obs-%d", len(f.obs)),
		AssetID:   assetID,
		Metric:    metric,
		Timestamp: time.Now().UTC().Add(-age),
		Value:     value,
	}
	f.obs = append(f.obs, o)
	return o
}

func (f *fakeSource) fail(assetID, metric string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing == nil {
		f.failing = map[telemetry.Pair]error{}
	}
	f.failing[telemetry.Pair{AssetID: assetID, Metric: metric}] = err
}

func (f *fakeSource) ObservationWindow(_ context.Context, assetID, metric string, from, to time.Time, limit int) ([]telemetry.Observation, bool, error) {
	f.mu.Lock()
	f.concurrent++
	if f.concurrent > f.maxConcurrent {
		f.maxConcurrent = f.concurrent
	}
	delay := f.delay
	failErr := f.failing[telemetry.Pair{AssetID: assetID, Metric: metric}]
	var out []telemetry.Observation
	for _, o := range f.obs {
		if o.AssetID == assetID && o.Metric == metric && !o.Timestamp.Before(from) && !o.Timestamp.After(to) {
			out = append(out, o)
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	f.concurrent--
	f.mu.Unlock()

	if failErr != nil {
		return nil, false, failErr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	truncated := false
	if limit > 0 && len(out) > limit {
		out = out[:limit]
		truncated = true
	}
	return out, truncated, nil
}

func (f *fakeSource) ActivePairs(_ context.Context, from, to time.Time) ([]telemetry.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[telemetry.Pair]struct{}{}
	for _, o := range f.obs {
		if !o.Timestamp.Before(from) && !o.Timestamp.After(to) {
			seen[telemetry.Pair{AssetID: o.AssetID, Metric: o.Metric}] = struct{}{}
		}
	}
	for p := range f.failing {
		seen[p] = struct{}{}
	}
	pairs := make([]telemetry.Pair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].AssetID != pairs[j].AssetID {
			return pairs[i].AssetID < pairs[j].AssetID
		}
		return pairs[i].Metric < pairs[j].Metric
	})
	return pairs, nil
}

func (f *fakeSource) EventTotals(context.Context, int) (int64, []telemetry.AssetCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.obs)), nil, nil
}

func (f *fakeSource) Assets(context.Context) ([]telemetry.AssetSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byAsset := map[string]*telemetry.AssetSummary{}
	for _, o := range f.obs {
		s, ok := byAsset[o.AssetID]
		if !ok {
			s = &telemetry.AssetSummary{AssetID: o.AssetID}
			byAsset[o.AssetID] = s
		}
		s.EventCount++
		if o.Timestamp.After(s.LastSeen) {
			s.LastSeen = o.Timestamp
		}
	}
	out := make([]telemetry.AssetSummary, 0, len(byAsset))
	for _, s := range byAsset {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

// spikeSource seeds ten flat readings plus one large spike for a single
// pair. The spike scores just above 3 against the window's own baseline.
func spikeSource() (*fakeSource, telemetry.Observation) {
	src := &fakeSource{}
	for i := 0; i < 10; i++ {
		src.add("rocket-1", "engine_temp", time.Duration(9-i)*time.Minute/2, 10)
	}
	spike := src.add("rocket-1", "engine_temp", 30*time.Second, 100)
	return src, spike
}

func testConfig() DetectConfig {
	cfg := DefaultConfig()
	// Keep the ticker quiet so tests control every pass after the startup
	// one.
	cfg.Interval = time.Hour
	return cfg
}

func newTestScheduler(t *testing.T, src *fakeSource, cfg DetectConfig, bus plugin.EventBus) (*Scheduler, *Store) {
	t.Helper()
	s := newTestStore(t)
	return NewScheduler(src, s, bus, nil, cfg, zap.NewNop()), s
}

// waitForCompletedRuns polls until at least n runs have completed and
// returns them newest first.
func waitForCompletedRuns(t *testing.T, s *Store, n int) []telemetry.DetectionRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runs, err := s.ListRuns(context.Background(), 50)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		var completed []telemetry.DetectionRun
		for _, r := range runs {
			if r.Status == telemetry.RunStatusCompleted {
				completed = append(completed, r)
			}
		}
		if len(completed) >= n {
			return completed
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d completed runs", n)
	return nil
}

func TestScheduler_StartStop(t *testing.T) {
	sched, _ := newTestScheduler(t, &fakeSource{}, testConfig(), nil)

	sched.Start(context.Background())
	if !sched.Running() {
		t.Error("Running() = false after Start")
	}

	sched.Stop()
	if sched.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestScheduler_DetectsSpikeOnStartupPass(t *testing.T) {
	src, spike := spikeSource()
	sched, s := newTestScheduler(t, src, testConfig(), nil)

	sched.Start(context.Background())
	defer sched.Stop()

	run := waitForCompletedRuns(t, s, 1)[0]
	if run.Trigger != telemetry.TriggerScheduled {
		t.Errorf("Trigger = %q, want scheduled", run.Trigger)
	}
	if run.PairsTotal != 1 || run.PairsFailed != 0 {
		t.Errorf("pairs = %d/%d failed, want 1/0", run.PairsTotal, run.PairsFailed)
	}
	if run.RecordsCreated != 1 {
		t.Fatalf("RecordsCreated = %d, want 1", run.RecordsCreated)
	}

	records, err := s.ListAnomalies(context.Background(), AnomalyFilter{})
	if err != nil {
		t.Fatalf("ListAnomalies() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.SourceObservationID != spike.ID {
		t.Errorf("SourceObservationID = %q, want the spike observation %q", rec.SourceObservationID, spike.ID)
	}
	if math.Abs(rec.Score-3.0151) > 0.001 {
		t.Errorf("Score = %.4f, want ~3.0151", rec.Score)
	}
	if rec.Evidence.WindowSize != 11 {
		t.Errorf("Evidence.WindowSize = %d, want 11", rec.Evidence.WindowSize)
	}
	if math.Abs(rec.Evidence.Mean-200.0/11) > 0.001 {
		t.Errorf("Evidence.Mean = %.4f, want ~18.1818", rec.Evidence.Mean)
	}
	want := "Anomaly detected for rocket-1/engine_temp: Value 100 is 3.02 standard deviations from the mean of 18.18."
	if rec.Explanation != want {
		t.Errorf("Explanation = %q, want %q", rec.Explanation, want)
	}
}

func TestScheduler_TriggerReturnsRunImmediately(t *testing.T) {
	sched, s := newTestScheduler(t, &fakeSource{}, testConfig(), nil)

	sched.Start(context.Background())
	defer sched.Stop()

	runID, err := sched.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	// The run row must exist before Trigger returns.
	run, err := s.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run == nil {
		t.Fatal("GetRun() = nil right after Trigger")
	}
	if run.Trigger != telemetry.TriggerManual {
		t.Errorf("Trigger = %q, want manual", run.Trigger)
	}

	for _, r := range waitForCompletedRuns(t, s, 2) {
		if r.ID == runID && r.PairsTotal != 0 {
			t.Errorf("PairsTotal = %d, want 0 for empty source", r.PairsTotal)
		}
	}
}

func TestScheduler_TriggerFailsWhenStopped(t *testing.T) {
	sched, _ := newTestScheduler(t, &fakeSource{}, testConfig(), nil)

	if _, err := sched.Trigger(context.Background()); err == nil {
		t.Error("Trigger() before Start must fail")
	}

	sched.Start(context.Background())
	sched.Stop()

	if _, err := sched.Trigger(context.Background()); err == nil {
		t.Error("Trigger() after Stop must fail")
	}
}

func TestScheduler_RerunsCreateNoDuplicates(t *testing.T) {
	src, _ := spikeSource()
	sched, s := newTestScheduler(t, src, testConfig(), nil)

	sched.Start(context.Background())
	defer sched.Stop()

	waitForCompletedRuns(t, s, 1)

	runID, err := sched.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	for _, r := range waitForCompletedRuns(t, s, 2) {
		if r.ID == runID && r.RecordsCreated != 0 {
			t.Errorf("rerun RecordsCreated = %d, want 0", r.RecordsCreated)
		}
	}

	count, err := s.CountAnomalies(context.Background())
	if err != nil {
		t.Fatalf("CountAnomalies() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after rescanning the same window", count)
	}
}

func TestScheduler_PairFailureIsolation(t *testing.T) {
	src, _ := spikeSource()
	src.add("rocket-2", "velocity", time.Minute, 550)
	src.add("rocket-2", "velocity", 2*time.Minute, 552)
	src.fail("rocket-3", "fuel_pressure", errors.New("disk error"))

	sched, s := newTestScheduler(t, src, testConfig(), nil)
	sched.Start(context.Background())
	defer sched.Stop()

	run := waitForCompletedRuns(t, s, 1)[0]
	if run.PairsTotal != 3 {
		t.Errorf("PairsTotal = %d, want 3", run.PairsTotal)
	}
	if run.PairsFailed != 1 {
		t.Errorf("PairsFailed = %d, want 1", run.PairsFailed)
	}
	if run.RecordsCreated != 1 {
		t.Errorf("RecordsCreated = %d, want 1 from the healthy spiky pair", run.RecordsCreated)
	}
}

func TestScheduler_SkipsPairsWithInsufficientSamples(t *testing.T) {
	src := &fakeSource{}
	src.add("rocket-1", "engine_temp", time.Minute, 642.5)

	sched, s := newTestScheduler(t, src, testConfig(), nil)
	sched.Start(context.Background())
	defer sched.Stop()

	run := waitForCompletedRuns(t, s, 1)[0]
	if run.PairsTotal != 1 {
		t.Errorf("PairsTotal = %d, want 1", run.PairsTotal)
	}
	if run.PairsFailed != 0 {
		t.Errorf("PairsFailed = %d, want 0: a short window is a skip, not a failure", run.PairsFailed)
	}
	if run.RecordsCreated != 0 {
		t.Errorf("RecordsCreated = %d, want 0", run.RecordsCreated)
	}
}

func TestScheduler_FlatWindowCreatesNoRecords(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < 5; i++ {
		src.add("rocket-1", "battery_voltage", time.Duration(i+1)*time.Minute, 24.8)
	}

	sched, s := newTestScheduler(t, src, testConfig(), nil)
	sched.Start(context.Background())
	defer sched.Stop()

	run := waitForCompletedRuns(t, s, 1)[0]
	if run.RecordsCreated != 0 {
		t.Errorf("RecordsCreated = %d, want 0 when every value equals the mean", run.RecordsCreated)
	}
}

func TestScheduler_IgnoresObservationsOutsideWindow(t *testing.T) {
	src := &fakeSource{}
	// The spike is older than the 10 minute window; only calm readings are
	// inside it.
	src.add("rocket-1", "engine_temp", 15*time.Minute, 3249.22)
	src.add("rocket-1", "engine_temp", 3*time.Minute, 640)
	src.add("rocket-1", "engine_temp", 2*time.Minute, 645)
	src.add("rocket-1", "engine_temp", time.Minute, 642)

	sched, s := newTestScheduler(t, src, testConfig(), nil)
	sched.Start(context.Background())
	defer sched.Stop()

	run := waitForCompletedRuns(t, s, 1)[0]
	if run.RecordsCreated != 0 {
		t.Errorf("RecordsCreated = %d, want 0 when the spike is outside the window", run.RecordsCreated)
	}
}

func TestScheduler_HonorsWorkerLimit(t *testing.T) {
	src := &fakeSource{delay: 20 * time.Millisecond}
	for i := 0; i < 6; i++ {
		asset := fmt.Sprintf("rocket-%d", i)
		src.add(asset, "velocity", time.Minute, 550)
		src.add(asset, "velocity", 2*time.Minute, 551)
	}

	cfg := testConfig()
	cfg.Workers = 2
	sched, s := newTestScheduler(t, src, cfg, nil)
	sched.Start(context.Background())
	defer sched.Stop()

	waitForCompletedRuns(t, s, 1)

	src.mu.Lock()
	peak := src.maxConcurrent
	src.mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrent window reads = %d, want at most 2", peak)
	}
	if peak == 0 {
		t.Error("no window reads observed")
	}
}

func TestScheduler_PairTimeoutCountsAsFailure(t *testing.T) {
	src := &fakeSource{delay: 100 * time.Millisecond}
	src.add("rocket-1", "engine_temp", time.Minute, 640)
	src.add("rocket-1", "engine_temp", 2*time.Minute, 645)

	cfg := testConfig()
	cfg.PairTimeout = 10 * time.Millisecond
	sched, s := newTestScheduler(t, src, cfg, nil)
	sched.Start(context.Background())
	defer sched.Stop()

	run := waitForCompletedRuns(t, s, 1)[0]
	if run.PairsFailed != 1 {
		t.Errorf("PairsFailed = %d, want 1 after pair timeout", run.PairsFailed)
	}
}

func TestScheduler_PublishesEvents(t *testing.T) {
	src, spike := spikeSource()
	bus := event.NewBus(zap.NewNop())

	anomalies := make(chan plugin.Event, 8)
	bus.Subscribe(TopicAnomalyDetected, func(_ context.Context, e plugin.Event) {
		anomalies <- e
	})
	completions := make(chan plugin.Event, 8)
	bus.Subscribe(TopicRunCompleted, func(_ context.Context, e plugin.Event) {
		completions <- e
	})

	sched, _ := newTestScheduler(t, src, testConfig(), bus)
	sched.Start(context.Background())
	defer sched.Stop()

	select {
	case e := <-anomalies:
		rec, ok := e.Payload.(*telemetry.AnomalyRecord)
		if !ok {
			t.Fatalf("payload type = %T, want *telemetry.AnomalyRecord", e.Payload)
		}
		if rec.SourceObservationID != spike.ID {
			t.Errorf("event source observation = %q, want %q", rec.SourceObservationID, spike.ID)
		}
		if e.Source != "detect" {
			t.Errorf("event source module = %q, want detect", e.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no anomaly event received")
	}

	select {
	case e := <-completions:
		run, ok := e.Payload.(*telemetry.DetectionRun)
		if !ok {
			t.Fatalf("payload type = %T, want *telemetry.DetectionRun", e.Payload)
		}
		if run.Status != telemetry.RunStatusCompleted {
			t.Errorf("run status = %q, want completed", run.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no run completion event received")
	}
}
