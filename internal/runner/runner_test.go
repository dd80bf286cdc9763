package runner

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestOutputTrimsStdout(t *testing.T) {
	r := New(0)
	out, err := r.Output(context.Background(), "", "sh", "-c", "echo '  hello  '")
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected trimmed output, got %q", out)
	}
}

func TestRunPropagatesFailure(t *testing.T) {
	r := New(0)
	err := r.Run(context.Background(), "", "sh", "-c", "echo boom >&2; exit 3")
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestRunHonorsWorkingDir(t *testing.T) {
	dir := t.TempDir()
	r := New(0)
	out, err := r.Output(context.Background(), dir, "pwd")
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	// macOS tempdirs may resolve through symlinks; compare suffix only
	if !strings.HasSuffix(out, dir) && !strings.HasSuffix(dir, out) {
		t.Fatalf("expected pwd under %s, got %s", dir, out)
	}
}

func TestRunTimeout(t *testing.T) {
	r := New(50 * time.Millisecond)
	start := time.Now()
	err := r.Run(context.Background(), "", "sleep", "5")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout did not fire promptly")
	}
}

func TestRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(0)
	if err := r.Run(ctx, "", "sleep", "5"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestRunAppendsEnv(t *testing.T) {
	r := New(0)
	r.Env = []string{"BLOGCTL_TEST_VAR=pinned"}
	out, err := r.Output(context.Background(), "", "sh", "-c", "echo $BLOGCTL_TEST_VAR")
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if out != "pinned" {
		t.Fatalf("expected env var to be visible, got %q", out)
	}
}
