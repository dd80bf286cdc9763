package compose

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeRunner struct {
	calls []string
	fail  bool
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	if f.fail {
		return fmt.Errorf("simulated compose failure")
	}
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	return "", f.Run(ctx, dir, name, args...)
}

func TestStopArgs(t *testing.T) {
	fr := &fakeRunner{}
	p := NewProject("/srv/blog", "docker-compose.yml", "blog", "caddy", fr)
	if err := p.Stop(context.Background(), 30*time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	want := "docker compose -f docker-compose.yml -p blog stop -t 30 caddy"
	if fr.calls[0] != want {
		t.Fatalf("got %q, want %q", fr.calls[0], want)
	}
}

func TestStopWithoutTimeout(t *testing.T) {
	fr := &fakeRunner{}
	p := NewProject("/srv/blog", "", "", "caddy", fr)
	if err := p.Stop(context.Background(), 0); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if fr.calls[0] != "docker compose stop caddy" {
		t.Fatalf("unexpected command: %q", fr.calls[0])
	}
}

func TestUpBuildArgs(t *testing.T) {
	fr := &fakeRunner{}
	p := NewProject("/srv/blog", "docker-compose.yml", "blog", "caddy", fr)
	if err := p.UpBuild(context.Background()); err != nil {
		t.Fatalf("UpBuild failed: %v", err)
	}
	want := "docker compose -f docker-compose.yml -p blog up -d --build caddy"
	if fr.calls[0] != want {
		t.Fatalf("got %q, want %q", fr.calls[0], want)
	}
}

func TestUpDoesNotBuild(t *testing.T) {
	fr := &fakeRunner{}
	p := NewProject("/srv/blog", "", "blog", "caddy", fr)
	if err := p.Up(context.Background()); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if strings.Contains(fr.calls[0], "--build") {
		t.Fatalf("Up must not force a rebuild: %q", fr.calls[0])
	}
}

func TestBuildArgsAreSorted(t *testing.T) {
	fr := &fakeRunner{}
	p := NewProject("/srv/blog", "", "blog", "caddy", fr)
	err := p.Build(context.Background(), map[string]string{"CADDY_VERSION": "2.8.4", "ALPINE_VERSION": "3.20"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := "docker compose -p blog build --build-arg ALPINE_VERSION=3.20 --build-arg CADDY_VERSION=2.8.4 caddy"
	if fr.calls[0] != want {
		t.Fatalf("got %q, want %q", fr.calls[0], want)
	}
}

func TestFailurePropagates(t *testing.T) {
	fr := &fakeRunner{fail: true}
	p := NewProject("/srv/blog", "", "blog", "caddy", fr)
	if err := p.UpBuild(context.Background()); err == nil {
		t.Fatal("expected compose failure to propagate")
	}
}
