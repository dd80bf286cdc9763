package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blogctl/blogctl/internal/config"
)

type fakeProbe struct {
	local     string
	remote    string
	localErr  error
	remoteErr error
	probes    int
}

func (f *fakeProbe) Head(_ context.Context) (string, error) {
	return f.local, f.localErr
}

func (f *fakeProbe) RemoteHead(_ context.Context) (string, error) {
	f.probes++
	return f.remote, f.remoteErr
}

type fakeUpdater struct {
	runs      int
	recovered int
	runErr    error
}

func (f *fakeUpdater) Run(_ context.Context) error {
	f.runs++
	return f.runErr
}

func (f *fakeUpdater) RecoverInterrupted(_ context.Context) error {
	f.recovered++
	return nil
}

func TestDivergedHeadsTriggerUpdate(t *testing.T) {
	cfg := config.DefaultConfig()
	u := &fakeUpdater{}
	d := New(cfg, &fakeProbe{local: "aaa", remote: "bbb"}, u, nil)

	d.RunOnce()
	if u.runs != 1 {
		t.Fatalf("updater runs = %d, want 1", u.runs)
	}
}

func TestMatchingHeadsAreANoOp(t *testing.T) {
	cfg := config.DefaultConfig()
	u := &fakeUpdater{}
	d := New(cfg, &fakeProbe{local: "aaa", remote: "aaa"}, u, nil)

	d.RunOnce()
	if u.runs != 0 {
		t.Fatalf("updater runs = %d, want 0 when heads match", u.runs)
	}
}

func TestProbeFailureSkipsUpdate(t *testing.T) {
	cfg := config.DefaultConfig()
	u := &fakeUpdater{}
	d := New(cfg, &fakeProbe{remoteErr: errors.New("ls-remote: connection refused")}, u, nil)

	d.RunOnce()
	if u.runs != 0 {
		t.Fatalf("updater runs = %d, want 0 after probe failure", u.runs)
	}
}

func TestOutsidePatchWindowSkipsPass(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PatchWindow = "02:00-04:00"
	u := &fakeUpdater{}
	p := &fakeProbe{local: "aaa", remote: "bbb"}
	d := New(cfg, p, u, nil)
	d.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local) }

	d.RunOnce()
	if p.probes != 0 {
		t.Fatalf("probe must not run outside the patch window, got %d probes", p.probes)
	}
	if u.runs != 0 {
		t.Fatalf("updater runs = %d, want 0 outside patch window", u.runs)
	}
}

func TestDryRunDoesNotTriggerUpdate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DryRun = true
	u := &fakeUpdater{}
	d := New(cfg, &fakeProbe{local: "aaa", remote: "bbb"}, u, nil)

	d.RunOnce()
	if u.runs != 0 {
		t.Fatalf("updater runs = %d, want 0 in dry-run", u.runs)
	}
}

func TestCircuitBreakerSuppressesAfterThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CircuitBreakerThreshold = 2
	cfg.CircuitBreakerCooldown = 10 * time.Minute
	d := New(cfg, &fakeProbe{}, &fakeUpdater{}, nil)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	d.Now = func() time.Time { return now }

	// first two failures notify, third trips the breaker
	for i := 0; i < 2; i++ {
		if !d.shouldNotifyProbeFailure() {
			t.Fatalf("failure %d should notify", i+1)
		}
		now = now.Add(time.Minute)
	}
	if d.shouldNotifyProbeFailure() {
		t.Fatal("failure past threshold should be suppressed")
	}
	// still inside the cooldown
	now = now.Add(time.Minute)
	if d.shouldNotifyProbeFailure() {
		t.Fatal("failure during cooldown should be suppressed")
	}
	// after the cooldown the breaker resets
	now = now.Add(cfg.CircuitBreakerCooldown + time.Minute)
	if !d.shouldNotifyProbeFailure() {
		t.Fatal("failure after cooldown should notify again")
	}
}

func TestSuccessfulProbeResetsBreaker(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CircuitBreakerThreshold = 1
	d := New(cfg, &fakeProbe{}, &fakeUpdater{}, nil)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	d.Now = func() time.Time { return now }

	if !d.shouldNotifyProbeFailure() {
		t.Fatal("first failure should notify")
	}
	now = now.Add(time.Minute)
	if d.shouldNotifyProbeFailure() {
		t.Fatal("second failure should be suppressed")
	}
	d.clearProbeFailure()
	now = now.Add(time.Minute)
	if !d.shouldNotifyProbeFailure() {
		t.Fatal("failure after a successful probe should notify")
	}
}

func TestStartRunsRecoveryAndImmediatePass(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PollInterval = time.Hour
	u := &fakeUpdater{}
	d := New(cfg, &fakeProbe{local: "aaa", remote: "aaa"}, u, nil)

	go d.Start()
	// give the immediate pass a moment to run
	deadline := time.Now().Add(2 * time.Second)
	for u.recovered == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Stop(ctx)

	if u.recovered != 1 {
		t.Fatalf("recovery passes = %d, want 1", u.recovered)
	}
}
