package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_MissingVideoDegradesToDataOnly(t *testing.T) {
	f := newFixture(t)
	f.opener.OpenErr = errors.New("probe failed")

	dataPath := filepath.Join(t.TempDir(), "trial.csv")
	os.WriteFile(dataPath, []byte(trialData), 0o644)

	sess, err := f.mgr.Open(context.Background(), "trial-1", "/videos/missing.mp4", dataPath)
	if err != nil {
		t.Fatalf("Open should degrade, not fail: %v", err)
	}
	if sess.MediaLoaded {
		t.Error("MediaLoaded = true, want false")
	}
	if !sess.DataLoaded {
		t.Error("DataLoaded = false, want true")
	}
	if sess.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", sess.TotalFrames())
	}
	if sess.SampleCount() != 3 {
		t.Errorf("SampleCount = %d, want 3", sess.SampleCount())
	}
	if _, moved := sess.MoveFrame(1); moved {
		t.Error("navigation should be inert without media")
	}
}

func TestOpen_MissingDataDegradesToVideoOnly(t *testing.T) {
	f := newFixture(t)
	f.opener.Dur = 3

	sess, err := f.mgr.Open(context.Background(), "trial-1", "/videos/trial.mp4",
		filepath.Join(t.TempDir(), "absent.csv"))
	if err != nil {
		t.Fatalf("Open should degrade, not fail: %v", err)
	}
	if sess.DataLoaded {
		t.Error("DataLoaded = true, want false")
	}
	if sess.SampleCount() != 0 {
		t.Errorf("SampleCount = %d, want 0", sess.SampleCount())
	}
	if sess.TotalFrames() != 90 {
		t.Errorf("TotalFrames = %d, want 90", sess.TotalFrames())
	}
}

func TestManager_GetAndClose(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, 3, trialData)

	got, ok := f.mgr.Get(sess.ID)
	if !ok || got.ID != sess.ID {
		t.Fatalf("Get(%q) = %v, %v", sess.ID, got, ok)
	}
	if f.mgr.Count() != 1 {
		t.Errorf("Count = %d, want 1", f.mgr.Count())
	}

	if !f.mgr.Close(sess.ID) {
		t.Fatal("Close returned false for open session")
	}
	if _, ok := f.mgr.Get(sess.ID); ok {
		t.Error("session still resolvable after Close")
	}
	if f.mgr.Close("nope") {
		t.Error("Close of unknown session returned true")
	}
	if !f.events.has(EventSessionClosed) {
		t.Error("missing session.closed event")
	}
}

// Cutting the worked series at the sample cursor's time keeps the row at
// the cut and everything after it.
func TestExportData_CutsAtSampleCursor(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, 3, trialData)
	sess.SetSample(1) // time 1

	saved, err := f.mgr.ExportData(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExportData: %v", err)
	}

	data, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	want := "Time,Force1,Force2\n1,2,0\n2,3,0\n"
	if string(data) != want {
		t.Fatalf("artifact = %q, want %q", data, want)
	}
	if !f.events.has(EventExportCompleted) {
		t.Error("missing export.completed event")
	}
}

func TestExportData_EmptySeriesIsHeaderOnly(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, 3, "just a header\n")

	saved, err := f.mgr.ExportData(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExportData: %v", err)
	}

	data, _ := os.ReadFile(saved.Path)
	if string(data) != "Time,Force1,Force2\n" {
		t.Fatalf("artifact = %q, want header only", data)
	}
}

func TestExportData_UnknownSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.ExportData(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestExportMedia_CapturesFromFrameCursor(t *testing.T) {
	f := newFixture(t)
	f.opener.CaptureData = []byte("mp4 fragments")
	sess := f.open(t, 3, trialData)
	sess.SetFrame(30) // 1.0s

	if !sess.BeginExport() {
		t.Fatal("BeginExport failed")
	}
	saved, err := f.mgr.ExportMedia(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExportMedia: %v", err)
	}

	if saved.Name != "trimmed-video.mp4" {
		t.Errorf("Name = %q, want trimmed-video.mp4", saved.Name)
	}
	if sess.Exporting() {
		t.Error("exporting flag not cleared after success")
	}
	if !f.events.has(EventExportStarted) || !f.events.has(EventExportCompleted) {
		t.Errorf("events = %v, want started and completed", f.events.types())
	}
}

// A failed capture logs, emits the failure, clears the exporting flag and
// leaves no artifact behind.
func TestExportMedia_FailureResetsState(t *testing.T) {
	f := newFixture(t)
	f.opener.CaptureErr = errors.New("encoder exploded")
	sess := f.open(t, 3, trialData)

	sess.BeginExport()
	if _, err := f.mgr.ExportMedia(context.Background(), sess.ID); err == nil {
		t.Fatal("expected capture failure")
	}

	if sess.Exporting() {
		t.Error("exporting flag not cleared after failure")
	}
	if !f.events.has(EventExportFailed) {
		t.Errorf("events = %v, want export.failed", f.events.types())
	}
	if _, _, err := f.snk.Open("trimmed-video.mp4"); err == nil {
		t.Error("artifact exists despite failed capture")
	}
}

func TestExportMedia_UnknownSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.ExportMedia(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
