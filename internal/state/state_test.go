package state

import (
	"os"
	"testing"
	"time"
)

func TestStateCRUD(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("BLOGCTL_STATE_DIR", dir)
	defer os.Unsetenv("BLOGCTL_STATE_DIR")

	r := RunRecord{
		Workflow:          "update",
		Phase:             PhaseStopped,
		ServiceWasRunning: true,
		Head:              "deadbeef",
		StartedAt:         time.Now().UTC(),
	}

	if err := SaveRunRecord(r); err != nil {
		t.Fatalf("SaveRunRecord failed: %v", err)
	}

	got, ok, err := GetRunRecord("update")
	if err != nil {
		t.Fatalf("GetRunRecord returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if got.Phase != PhaseStopped || !got.ServiceWasRunning || got.Head != "deadbeef" {
		t.Fatalf("record mismatch: got %+v want %+v", got, r)
	}

	// Overwrite with a later phase
	r.Phase = PhaseDone
	r.FinishedAt = time.Now().UTC()
	if err := SaveRunRecord(r); err != nil {
		t.Fatalf("SaveRunRecord overwrite failed: %v", err)
	}
	got, _, err = GetRunRecord("update")
	if err != nil {
		t.Fatalf("GetRunRecord after overwrite failed: %v", err)
	}
	if got.Phase != PhaseDone {
		t.Fatalf("expected phase %q, got %q", PhaseDone, got.Phase)
	}

	// Second workflow record coexists
	if err := SaveRunRecord(RunRecord{Workflow: "deploy", Phase: PhaseDone, StartedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveRunRecord deploy failed: %v", err)
	}
	all, err := GetAllRunRecords()
	if err != nil {
		t.Fatalf("GetAllRunRecords failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}

	// Remove
	if err := RemoveRunRecord("update"); err != nil {
		t.Fatalf("RemoveRunRecord failed: %v", err)
	}
	all, err = GetAllRunRecords()
	if err != nil {
		t.Fatalf("GetAllRunRecords after remove failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 record after remove, got %d", len(all))
	}
	if _, ok := all["deploy"]; !ok {
		t.Fatal("deploy record should survive removal of update record")
	}
}

func TestGetRunRecordMissing(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("BLOGCTL_STATE_DIR", dir)
	defer os.Unsetenv("BLOGCTL_STATE_DIR")

	_, ok, err := GetRunRecord("nope")
	if err != nil {
		t.Fatalf("GetRunRecord returned error: %v", err)
	}
	if ok {
		t.Fatal("expected no record")
	}
}
