package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// countingObserver counts callbacks to verify fan-out behavior.
type countingObserver struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{calls: make(map[string]int)}
}

func (o *countingObserver) inc(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[name]++
}

func (o *countingObserver) OnRunStart(ctx context.Context, run *WorkflowRun)     { o.inc("start") }
func (o *countingObserver) OnRunSucceeded(ctx context.Context, run *WorkflowRun) { o.inc("succeeded") }
func (o *countingObserver) OnRunFailed(ctx context.Context, run *WorkflowRun, err error) {
	o.inc("failed")
}
func (o *countingObserver) OnStepStart(ctx context.Context, run *WorkflowRun, node string, kind NodeKind) {
	o.inc("step_start")
}
func (o *countingObserver) OnStepCompleted(ctx context.Context, run *WorkflowRun, node string, kind NodeKind, err error, d time.Duration) {
	o.inc("step_completed")
}
func (o *countingObserver) OnCompensation(ctx context.Context, run *WorkflowRun, node string, err error) {
	o.inc("compensation")
}

func TestNewCompositeObserver(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver for no observers")
	}
	if _, ok := NewCompositeObserver(nil, nil).(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver for nil observers")
	}

	single := newCountingObserver()
	if got := NewCompositeObserver(nil, single); got != Observer(single) {
		t.Fatalf("expected the single observer to be returned as-is")
	}

	a, b := newCountingObserver(), newCountingObserver()
	comp := NewCompositeObserver(a, b)

	ctx := context.Background()
	run := &WorkflowRun{ID: "r1", WorkflowID: "wf"}
	comp.OnRunStart(ctx, run)
	comp.OnStepStart(ctx, run, "a", KindStep)
	comp.OnStepCompleted(ctx, run, "a", KindStep, nil, time.Millisecond)
	comp.OnCompensation(ctx, run, "a", nil)
	comp.OnRunFailed(ctx, run, errors.New("x"))
	comp.OnRunSucceeded(ctx, run)

	for _, o := range []*countingObserver{a, b} {
		for _, name := range []string{"start", "step_start", "step_completed", "compensation", "failed", "succeeded"} {
			if o.calls[name] != 1 {
				t.Fatalf("expected 1 %s call, got %d", name, o.calls[name])
			}
		}
	}
}

func TestLoggingObserverLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	obs := NewLoggingObserver(zap.New(core))

	ctx := context.Background()
	run := &WorkflowRun{ID: "r1", WorkflowID: "wf"}

	obs.OnStepCompleted(ctx, run, "a", KindStep, nil, time.Millisecond)
	obs.OnStepCompleted(ctx, run, "b", KindStep, errors.New("boom"), time.Millisecond)
	obs.OnCompensation(ctx, run, "a", nil)
	obs.OnCompensation(ctx, run, "c", errors.New("stuck"))

	run.EventErrors = []error{errors.New("bus down")}
	obs.OnRunSucceeded(ctx, run)

	all := logs.All()
	if len(all) != 5 {
		t.Fatalf("expected 5 log entries, got %d", len(all))
	}

	want := []zapcore.Level{
		zapcore.DebugLevel,
		zapcore.ErrorLevel,
		zapcore.InfoLevel,
		zapcore.ErrorLevel,
		zapcore.WarnLevel,
	}
	for i, lvl := range want {
		if all[i].Level != lvl {
			t.Fatalf("entry %d (%s): expected level %s, got %s", i, all[i].Message, lvl, all[i].Level)
		}
		if all[i].ContextMap()["run_id"] != "r1" {
			t.Fatalf("entry %d missing run_id field", i)
		}
	}
}

func TestNewLoggingObserverNilLogger(t *testing.T) {
	obs := NewLoggingObserver(nil)
	// Must not panic.
	obs.OnRunStart(context.Background(), &WorkflowRun{ID: "r1"})
}

func TestBasicMetricsSnapshot(t *testing.T) {
	m := &BasicMetrics{}
	ctx := context.Background()
	run := &WorkflowRun{ID: "r1"}

	m.OnRunStart(ctx, run)
	m.OnRunStart(ctx, run)
	m.OnRunSucceeded(ctx, run)
	m.OnStepCompleted(ctx, run, "a", KindStep, nil, 10*time.Millisecond)
	m.OnStepCompleted(ctx, run, "b", KindStep, nil, 30*time.Millisecond)
	m.OnStepCompleted(ctx, run, "c", KindStep, errors.New("x"), time.Second)
	m.OnCompensation(ctx, run, "a", errors.New("stuck"))

	snap := m.Snapshot()
	if snap.RunsStarted != 2 || snap.RunsSucceeded != 1 || snap.RunsInFlight != 1 {
		t.Fatalf("unexpected run counters: %+v", snap)
	}
	if snap.StepsCompleted != 2 || snap.StepsFailed != 1 {
		t.Fatalf("unexpected step counters: %+v", snap)
	}
	if snap.AvgStepDuration != 20*time.Millisecond {
		t.Fatalf("expected avg 20ms, got %s", snap.AvgStepDuration)
	}
	if snap.Compensations != 1 || snap.CompensationsFailed != 1 {
		t.Fatalf("unexpected compensation counters: %+v", snap)
	}
}
