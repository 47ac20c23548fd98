package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/authmode"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/passback"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/protocol"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store/memory"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

type fakeDirectory struct {
	mu    sync.Mutex
	allow map[string]bool
	calls int
}

func (d *fakeDirectory) ValidateCredential(_ context.Context, subjectID string, _ types.MethodCode, _ string) (types.VerificationResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.allow[subjectID] {
		return types.VerificationResult{OK: true, PassID: "pass-" + subjectID}, nil
	}
	return types.VerificationResult{OK: false, Reason: "no active grant"}, nil
}

func (d *fakeDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeAdapter struct {
	mu       sync.Mutex
	fail     bool
	commands []protocol.Command
}

func (a *fakeAdapter) SendCommand(_ context.Context, _ store.DeviceRecord, cmd protocol.Command) protocol.CommandResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands = append(a.commands, cmd)
	if a.fail {
		return protocol.CommandResult{OK: false, Message: "controller unreachable"}
	}
	return protocol.CommandResult{OK: true}
}

func (a *fakeAdapter) ReceiveData(_ store.DeviceRecord, _ []byte) protocol.DataResult {
	return protocol.DataResult{OK: false, Message: "not implemented"}
}

func (a *fakeAdapter) ProtocolType() string { return "fake" }

func (a *fakeAdapter) setFail(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail = fail
}

func (a *fakeAdapter) sent() []protocol.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]protocol.Command, len(a.commands))
	copy(out, a.commands)
	return out
}

type testEnv struct {
	pipeline  *Pipeline
	directory *fakeDirectory
	adapter   *fakeAdapter
	decisions *memory.DecisionStore
	tracker   *passback.Tracker
}

func newTestEnv(t *testing.T, unlockOnGrant bool, constraints []Constraint) *testEnv {
	t.Helper()

	dir := &fakeDirectory{allow: map[string]bool{"user-1": true, "user-2": true}}
	adapter := &fakeAdapter{}
	decisions := memory.NewDecisionStore()
	tracker := passback.NewTracker(memory.NewPassbackStateStore())
	devices := memory.NewDeviceStore([]store.DeviceRecord{
		{DeviceID: "door-001", AreaID: "area-1", Protocol: "fake", Address: "test", Enabled: true},
	})

	p := New(Dependencies{
		Logger:        log.New(io.Discard, "", 0),
		Stages:        DefaultStages(tracker, constraints, authmode.NewDefaultRegistry(dir)),
		Tracker:       tracker,
		Devices:       devices,
		Adapters:      protocol.NewRegistry(adapter),
		Decisions:     decisions,
		UnlockOnGrant: unlockOnGrant,
		DeviceTimeout: time.Second,
	})
	return &testEnv{pipeline: p, directory: dir, adapter: adapter, decisions: decisions, tracker: tracker}
}

func event(subjectID string, dir types.Direction) types.AccessEvent {
	return types.AccessEvent{
		SubjectID:  subjectID,
		DeviceID:   "door-001",
		AreaID:     "area-1",
		Direction:  dir,
		Method:     types.MethodCard,
		Category:   types.SubjectRecurring,
		Credential: "card-9001",
		OccurredAt: time.Now().UTC(),
	}
}

func TestEnterExitCycle(t *testing.T) {
	env := newTestEnv(t, false, nil)
	ctx := context.Background()

	d, err := env.pipeline.Evaluate(ctx, event("user-1", types.DirectionEnter))
	if err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if !d.Granted {
		t.Fatalf("first enter denied: %s", d.Reason)
	}

	d, err = env.pipeline.Evaluate(ctx, event("user-1", types.DirectionEnter))
	if err != nil {
		t.Fatalf("repeat enter: %v", err)
	}
	if d.Granted || d.Reason != types.ReasonAntiPassback {
		t.Fatalf("repeat enter: got granted=%v reason=%s, want anti-passback denial", d.Granted, d.Reason)
	}

	d, err = env.pipeline.Evaluate(ctx, event("user-1", types.DirectionExit))
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !d.Granted {
		t.Fatalf("exit denied: %s", d.Reason)
	}

	d, err = env.pipeline.Evaluate(ctx, event("user-1", types.DirectionEnter))
	if err != nil {
		t.Fatalf("re-enter: %v", err)
	}
	if !d.Granted {
		t.Fatalf("re-enter after exit denied: %s", d.Reason)
	}
}

func TestExitWithoutEnterDenied(t *testing.T) {
	env := newTestEnv(t, false, nil)

	d, err := env.pipeline.Evaluate(context.Background(), event("user-1", types.DirectionExit))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Granted || d.Reason != types.ReasonAntiPassback {
		t.Fatalf("got granted=%v reason=%s, want anti-passback denial", d.Granted, d.Reason)
	}
}

func TestUnsupportedMethodDenied(t *testing.T) {
	env := newTestEnv(t, false, nil)

	ev := event("user-1", types.DirectionEnter)
	ev.Method = types.MethodCode(99)

	d, err := env.pipeline.Evaluate(context.Background(), ev)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Granted || d.Reason != types.ReasonUnsupportedMethod {
		t.Fatalf("got granted=%v reason=%s, want unsupported-method denial", d.Granted, d.Reason)
	}
}

func TestVerificationFailureDenied(t *testing.T) {
	env := newTestEnv(t, false, nil)

	d, err := env.pipeline.Evaluate(context.Background(), event("stranger", types.DirectionEnter))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Granted || d.Reason != types.ReasonVerificationFailed {
		t.Fatalf("got granted=%v reason=%s, want verification denial", d.Granted, d.Reason)
	}

	// A denied verification must not consume the subject's passback slot.
	ok, err := env.tracker.CanEnter(context.Background(), "stranger", "area-1")
	if err != nil {
		t.Fatalf("state read: %v", err)
	}
	if !ok {
		t.Fatal("denied event mutated passback state")
	}
}

func TestEdgeVerifiedRecurringSkipsBackend(t *testing.T) {
	env := newTestEnv(t, false, nil)

	ev := event("stranger", types.DirectionEnter)
	ev.EdgeVerified = true

	d, err := env.pipeline.Evaluate(context.Background(), ev)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Granted {
		t.Fatalf("edge-verified recurring denied: %s", d.Reason)
	}
	if env.directory.callCount() != 0 {
		t.Fatalf("directory consulted %d times for an edge-verified recurring subject", env.directory.callCount())
	}
}

func TestTemporarySubjectAlwaysVerifiesCentrally(t *testing.T) {
	env := newTestEnv(t, false, nil)

	ev := event("stranger", types.DirectionEnter)
	ev.Category = types.SubjectTemporary
	ev.EdgeVerified = true

	d, err := env.pipeline.Evaluate(context.Background(), ev)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Granted || d.Reason != types.ReasonVerificationFailed {
		t.Fatalf("got granted=%v reason=%s, want verification denial", d.Granted, d.Reason)
	}
	if env.directory.callCount() != 1 {
		t.Fatalf("directory consulted %d times, want 1", env.directory.callCount())
	}
}

func TestTimeWindowDenialLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t, false, []Constraint{
		TimeWindowConstraint{Area: "area-1", Prio: 10, From: "09:00", To: "17:00"},
	})
	ctx := context.Background()

	ev := event("user-1", types.DirectionEnter)
	ev.OccurredAt = time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC)

	d, err := env.pipeline.Evaluate(ctx, ev)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Granted || d.Reason != types.ReasonAreaConstraint {
		t.Fatalf("got granted=%v reason=%s, want area-constraint denial", d.Granted, d.Reason)
	}

	// The same subject inside the window must still be OUTSIDE/UNKNOWN.
	ev.OccurredAt = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	d, err = env.pipeline.Evaluate(ctx, ev)
	if err != nil {
		t.Fatalf("evaluate inside window: %v", err)
	}
	if !d.Granted {
		t.Fatalf("in-window enter denied after out-of-window denial: %s", d.Reason)
	}
}

func TestGeofenceRequiresLocation(t *testing.T) {
	env := newTestEnv(t, false, []Constraint{
		GeofenceConstraint{Area: "area-1", Prio: 5, Center: types.GeoPoint{Lat: 52.52, Lon: 13.405}, RadiusM: 100},
	})
	ctx := context.Background()

	ev := event("user-1", types.DirectionEnter)
	d, err := env.pipeline.Evaluate(ctx, ev)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Granted || d.Reason != types.ReasonAreaConstraint {
		t.Fatalf("no-location event: got granted=%v reason=%s", d.Granted, d.Reason)
	}

	ev.Location = &types.GeoPoint{Lat: 52.5201, Lon: 13.4051}
	d, err = env.pipeline.Evaluate(ctx, ev)
	if err != nil {
		t.Fatalf("evaluate with location: %v", err)
	}
	if !d.Granted {
		t.Fatalf("in-fence event denied: %s", d.Reason)
	}
}

func TestUnlockSentOnGrant(t *testing.T) {
	env := newTestEnv(t, true, nil)

	d, err := env.pipeline.Evaluate(context.Background(), event("user-1", types.DirectionEnter))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Granted {
		t.Fatalf("enter denied: %s", d.Reason)
	}

	sent := env.adapter.sent()
	if len(sent) != 1 || sent[0].Type != protocol.CommandUnlock {
		t.Fatalf("sent commands = %+v, want one unlock", sent)
	}
	if sent[0].SubjectID != "user-1" || sent[0].PassID != "pass-user-1" {
		t.Fatalf("unlock carries subject=%q pass=%q", sent[0].SubjectID, sent[0].PassID)
	}
}

func TestReleaseFailureDeniesAndRollsBack(t *testing.T) {
	env := newTestEnv(t, true, nil)
	env.adapter.setFail(true)
	ctx := context.Background()

	d, err := env.pipeline.Evaluate(ctx, event("user-1", types.DirectionEnter))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Granted || d.Reason != types.ReasonDeviceComms {
		t.Fatalf("got granted=%v reason=%s, want device-comms denial", d.Granted, d.Reason)
	}

	// The rolled-back transition must let the subject retry once the
	// controller is reachable again.
	env.adapter.setFail(false)
	d, err = env.pipeline.Evaluate(ctx, event("user-1", types.DirectionEnter))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !d.Granted {
		t.Fatalf("retry after recovered controller denied: %s", d.Reason)
	}
}

func TestDecisionsAudited(t *testing.T) {
	env := newTestEnv(t, false, nil)
	ctx := context.Background()

	if _, err := env.pipeline.Evaluate(ctx, event("user-1", types.DirectionEnter)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := env.pipeline.Evaluate(ctx, event("stranger", types.DirectionEnter)); err != nil {
		t.Fatalf("deny: %v", err)
	}

	recs := env.decisions.Decisions()
	if len(recs) != 2 {
		t.Fatalf("recorded %d decisions, want 2", len(recs))
	}
	if !recs[0].Granted || recs[0].SubjectID != "user-1" {
		t.Fatalf("first record = %+v, want grant for user-1", recs[0])
	}
	if recs[1].Granted || recs[1].Reason != string(types.ReasonVerificationFailed) {
		t.Fatalf("second record = %+v, want verification denial", recs[1])
	}
	if recs[0].DecisionID == "" || recs[0].DecisionID == recs[1].DecisionID {
		t.Fatalf("decision ids not unique: %q / %q", recs[0].DecisionID, recs[1].DecisionID)
	}
}

type failingStage struct{}

func (failingStage) Name() string { return "failing" }
func (failingStage) Evaluate(context.Context, types.AccessEvent, *State) (Outcome, error) {
	return Outcome{}, errors.New("directory down")
}

func TestStageErrorAbortsRun(t *testing.T) {
	env := newTestEnv(t, false, nil)
	env.pipeline.stages = append([]Stage{failingStage{}}, env.pipeline.stages...)

	_, err := env.pipeline.Evaluate(context.Background(), event("user-1", types.DirectionEnter))
	if err == nil {
		t.Fatal("expected an internal error from a failing stage")
	}
	if len(env.decisions.Decisions()) != 0 {
		t.Fatal("internal failure must not write an audit decision")
	}
}

func TestConcurrentEntersSinglePairOneWins(t *testing.T) {
	env := newTestEnv(t, false, nil)
	ctx := context.Background()

	const n = 12
	results := make(chan types.AccessDecision, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := env.pipeline.Evaluate(ctx, event("user-1", types.DirectionEnter))
			if err != nil {
				t.Errorf("evaluate: %v", err)
				return
			}
			results <- d
		}()
	}
	wg.Wait()
	close(results)

	grants := 0
	for d := range results {
		if d.Granted {
			grants++
		} else if d.Reason != types.ReasonAntiPassback {
			t.Fatalf("unexpected denial reason %s", d.Reason)
		}
	}
	if grants != 1 {
		t.Fatalf("%d concurrent enters granted, want exactly 1", grants)
	}
}
