package deploy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blogctl/blogctl/internal/config"
	"github.com/blogctl/blogctl/internal/state"
)

type fakeRepo struct {
	calls     []string
	pullErr   error
	addErr    error
	staged    bool
	stagedErr error
	commitErr error
	pushErr   error
	commitMsg string
}

func (f *fakeRepo) Pull(_ context.Context) error {
	f.calls = append(f.calls, "pull")
	return f.pullErr
}

func (f *fakeRepo) AddAll(_ context.Context) error {
	f.calls = append(f.calls, "add")
	return f.addErr
}

func (f *fakeRepo) HasStagedChanges(_ context.Context) (bool, error) {
	f.calls = append(f.calls, "status")
	return f.staged, f.stagedErr
}

func (f *fakeRepo) Commit(_ context.Context, msg string) error {
	f.calls = append(f.calls, "commit")
	f.commitMsg = msg
	return f.commitErr
}

func (f *fakeRepo) Push(_ context.Context) error {
	f.calls = append(f.calls, "push")
	return f.pushErr
}

type fakeBuilder struct {
	called bool
	err    error
}

func (f *fakeBuilder) Build(_ context.Context) error {
	f.called = true
	return f.err
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestWorkflow(t *testing.T, cfg *config.Config, src, out *fakeRepo, b *fakeBuilder) *Workflow {
	t.Helper()
	t.Setenv("BLOGCTL_STATE_DIR", t.TempDir())
	w := New(cfg, src, out, b, nil)
	w.Now = fixedNow
	return w
}

func contains(calls []string, name string) bool {
	for _, c := range calls {
		if c == name {
			return true
		}
	}
	return false
}

func TestDeployCommitsAndPushesChanges(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PushSource = false
	src := &fakeRepo{}
	out := &fakeRepo{staged: true}
	b := &fakeBuilder{}
	w := newTestWorkflow(t, cfg, src, out, b)

	if err := w.Run(context.Background(), []string{"new", "post"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !b.called {
		t.Fatal("site builder was not invoked")
	}
	want := []string{"pull", "add", "status", "commit", "push"}
	if len(out.calls) != len(want) {
		t.Fatalf("output calls = %v, want %v", out.calls, want)
	}
	for i, c := range want {
		if out.calls[i] != c {
			t.Fatalf("output calls = %v, want %v", out.calls, want)
		}
	}
	if out.commitMsg != "new post" {
		t.Fatalf("commit message = %q, want %q", out.commitMsg, "new post")
	}
}

func TestDeploySynchronizesOutputRepoFirst(t *testing.T) {
	cfg := config.DefaultConfig()
	out := &fakeRepo{staged: true}
	w := newTestWorkflow(t, cfg, &fakeRepo{}, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.calls) == 0 || out.calls[0] != "pull" {
		t.Fatalf("output repository must be pulled before anything else, got %v", out.calls)
	}
}

func TestDeployOutputPullFailureAborts(t *testing.T) {
	cfg := config.DefaultConfig()
	src := &fakeRepo{}
	out := &fakeRepo{pullErr: errors.New("non-fast-forward")}
	b := &fakeBuilder{}
	w := newTestWorkflow(t, cfg, src, out, b)

	if err := w.Run(context.Background(), nil); err == nil {
		t.Fatal("expected output pull failure to propagate")
	}
	if b.called {
		t.Fatal("site must not be rebuilt after a failed output pull")
	}
	if len(src.calls) != 0 {
		t.Fatalf("source tree must be untouched after a failed output pull, got %v", src.calls)
	}
}

func TestDeployDefaultCommitMessage(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PushSource = false
	out := &fakeRepo{staged: true}
	w := newTestWorkflow(t, cfg, &fakeRepo{}, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "site update 2024-06-01T12:00:00Z"
	if out.commitMsg != want {
		t.Fatalf("commit message = %q, want %q", out.commitMsg, want)
	}
}

func TestDeployCleanTreeIsSuccessfulNoOp(t *testing.T) {
	cfg := config.DefaultConfig()
	out := &fakeRepo{staged: false}
	w := newTestWorkflow(t, cfg, &fakeRepo{}, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err != nil {
		t.Fatalf("clean tree should be a successful no-op, got %v", err)
	}
	if contains(out.calls, "commit") || contains(out.calls, "push") {
		t.Fatalf("no commit or push on a clean tree, got %v", out.calls)
	}
}

func TestDeployNeverPushesAfterFailedCommit(t *testing.T) {
	cfg := config.DefaultConfig()
	out := &fakeRepo{staged: true, commitErr: errors.New("hook rejected")}
	w := newTestWorkflow(t, cfg, &fakeRepo{}, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err == nil {
		t.Fatal("expected commit failure to propagate")
	}
	if contains(out.calls, "push") {
		t.Fatalf("push must never follow a failed commit, got %v", out.calls)
	}
}

func TestDeployBuildFailureSkipsGitOperations(t *testing.T) {
	cfg := config.DefaultConfig()
	out := &fakeRepo{}
	w := newTestWorkflow(t, cfg, &fakeRepo{}, out, &fakeBuilder{err: errors.New("hugo: template error")})

	if err := w.Run(context.Background(), nil); err == nil {
		t.Fatal("expected build failure to propagate")
	}
	if contains(out.calls, "add") || contains(out.calls, "commit") || contains(out.calls, "push") {
		t.Fatalf("output tree must not be staged or committed after a failed build, got %v", out.calls)
	}
}

func TestDeployPushesSourceWhenConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PushSource = true
	src := &fakeRepo{staged: true}
	out := &fakeRepo{staged: true}
	w := newTestWorkflow(t, cfg, src, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(src.calls, "commit") || !contains(src.calls, "push") {
		t.Fatalf("source tree should be committed and pushed, got %v", src.calls)
	}
}

func TestDeployCleanSourceTreeIsNotPushed(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PushSource = true
	src := &fakeRepo{staged: false}
	out := &fakeRepo{staged: true}
	w := newTestWorkflow(t, cfg, src, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if contains(src.calls, "commit") || contains(src.calls, "push") {
		t.Fatalf("clean source tree must not be committed, got %v", src.calls)
	}
}

func TestDeployDryRunSkipsCommit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DryRun = true
	out := &fakeRepo{staged: true}
	w := newTestWorkflow(t, cfg, &fakeRepo{}, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if contains(out.calls, "commit") || contains(out.calls, "push") {
		t.Fatalf("dry-run must not commit or push, got %v", out.calls)
	}
	if _, found, _ := state.GetRunRecord("deploy"); found {
		t.Fatal("dry-run must not persist a run record")
	}
}

func TestDeployPersistsRunRecord(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PushSource = false
	out := &fakeRepo{staged: true}
	w := newTestWorkflow(t, cfg, &fakeRepo{}, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec, found, err := state.GetRunRecord("deploy")
	if err != nil || !found {
		t.Fatalf("GetRunRecord: found=%v err=%v", found, err)
	}
	if rec.Phase != state.PhaseDone {
		t.Fatalf("phase = %q, want %q", rec.Phase, state.PhaseDone)
	}
	if rec.StartedAt.IsZero() || rec.FinishedAt.IsZero() {
		t.Fatal("record should carry start and finish timestamps")
	}
}

func TestDeployFailurePersistsRunRecord(t *testing.T) {
	cfg := config.DefaultConfig()
	out := &fakeRepo{staged: true, commitErr: errors.New("hook rejected")}
	w := newTestWorkflow(t, cfg, &fakeRepo{}, out, &fakeBuilder{})

	if err := w.Run(context.Background(), nil); err == nil {
		t.Fatal("expected commit failure to propagate")
	}
	rec, found, err := state.GetRunRecord("deploy")
	if err != nil || !found {
		t.Fatalf("GetRunRecord: found=%v err=%v", found, err)
	}
	if rec.Phase != state.PhaseFailed {
		t.Fatalf("phase = %q, want %q", rec.Phase, state.PhaseFailed)
	}
	if !strings.Contains(rec.Error, "hook rejected") {
		t.Fatalf("record error = %q, want it to carry the failure text", rec.Error)
	}
}
