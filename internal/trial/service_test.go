package trial

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kinedeck/kinedeck-agent/internal/db"
	"github.com/kinedeck/kinedeck-agent/internal/media"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	repo := NewRepository(database.Conn())
	return database, repo
}

func TestService_AddFolder(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)

	tmpDir := t.TempDir()

	source, err := svc.AddFolder(context.Background(), tmpDir, "Session A")
	if err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}

	if source.ID == "" {
		t.Error("source.ID is empty")
	}
	if source.Path != tmpDir {
		t.Errorf("source.Path = %s, want %s", source.Path, tmpDir)
	}
	if source.DisplayName != "Session A" {
		t.Errorf("source.DisplayName = %s, want Session A", source.DisplayName)
	}
}

func TestService_AddFolder_Existing(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	tmpDir := t.TempDir()

	first, err := svc.AddFolder(ctx, tmpDir, "Session A")
	if err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}
	second, err := svc.AddFolder(ctx, tmpDir, "Renamed")
	if err != nil {
		t.Fatalf("AddFolder() second call error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("re-adding the same folder created a new source: %s vs %s", second.ID, first.ID)
	}
}

func TestService_AddFolder_InvalidPath(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)

	_, err := svc.AddFolder(context.Background(), "/nonexistent/path", "Test")
	if err == nil {
		t.Error("AddFolder() should return error for nonexistent path")
	}
}

func TestService_AddFolder_NotDirectory(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)

	tmpFile, err := os.CreateTemp("", "trial")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	_, err = svc.AddFolder(context.Background(), tmpFile.Name(), "Test")
	if err == nil {
		t.Error("AddFolder() should return error for file path")
	}
}

func TestService_ExecuteScan_PairsChannelData(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "squat01.mp4"), []byte("fake video"), 0644)
	os.WriteFile(filepath.Join(tmpDir, "squat01.csv"), []byte("Time,F\n0,1\n"), 0644)
	os.WriteFile(filepath.Join(tmpDir, "run02.mp4"), []byte("another video"), 0644)

	source, err := svc.AddFolder(ctx, tmpDir, "Plates")
	if err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}

	job, err := svc.ScanSource(ctx, source.ID)
	if err != nil {
		t.Fatalf("ScanSource() error = %v", err)
	}

	if err := svc.ExecuteScan(ctx, job.ID, source.ID, source.Path); err != nil {
		t.Fatalf("ExecuteScan() error = %v", err)
	}

	trials, err := svc.GetTrials(ctx, source.ID)
	if err != nil {
		t.Fatalf("GetTrials() error = %v", err)
	}
	if len(trials) != 2 {
		t.Fatalf("found %d trials, want 2", len(trials))
	}

	byName := map[string]*Trial{}
	for _, tr := range trials {
		byName[tr.Name] = tr
	}

	squat := byName["squat01"]
	if squat == nil {
		t.Fatal("trial squat01 not found")
	}
	if squat.DataPath != filepath.Join(tmpDir, "squat01.csv") {
		t.Errorf("squat01 DataPath = %q, want sibling csv", squat.DataPath)
	}
	if squat.Fingerprint == "" {
		t.Error("squat01 fingerprint is empty")
	}

	run := byName["run02"]
	if run == nil {
		t.Fatal("trial run02 not found")
	}
	if run.DataPath != "" {
		t.Errorf("run02 DataPath = %q, want empty (no sibling csv)", run.DataPath)
	}

	updatedJob, _ := repo.GetJob(ctx, job.ID)
	if updatedJob.Status != JobStatusCompleted {
		t.Errorf("job status = %s, want %s", updatedJob.Status, JobStatusCompleted)
	}
	if updatedJob.Progress != 100 {
		t.Errorf("job progress = %d, want 100", updatedJob.Progress)
	}
}

func TestService_ExecuteScan_ProbesMedia(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	opener := &media.StubOpener{Dur: 3.2, Rate: 30}
	svc := NewService(repo, opener, nil)
	ctx := context.Background()

	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "squat01.mp4"), []byte("fake video"), 0644)

	source, _ := svc.AddFolder(ctx, tmpDir, "Plates")
	job, _ := svc.ScanSource(ctx, source.ID)
	if err := svc.ExecuteScan(ctx, job.ID, source.ID, source.Path); err != nil {
		t.Fatalf("ExecuteScan() error = %v", err)
	}

	trials, _ := svc.GetTrials(ctx, source.ID)
	if len(trials) != 1 {
		t.Fatalf("found %d trials, want 1", len(trials))
	}
	if trials[0].Duration != 3.2 {
		t.Errorf("trial.Duration = %v, want 3.2", trials[0].Duration)
	}
	if trials[0].FrameRate != 30 {
		t.Errorf("trial.FrameRate = %v, want 30", trials[0].FrameRate)
	}
}

func TestService_ExecuteScan_ProbeFailureStillCatalogues(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	opener := &media.StubOpener{OpenErr: os.ErrNotExist}
	svc := NewService(repo, opener, nil)
	ctx := context.Background()

	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "squat01.mp4"), []byte("fake video"), 0644)

	source, _ := svc.AddFolder(ctx, tmpDir, "Plates")
	job, _ := svc.ScanSource(ctx, source.ID)
	if err := svc.ExecuteScan(ctx, job.ID, source.ID, source.Path); err != nil {
		t.Fatalf("ExecuteScan() error = %v", err)
	}

	trials, _ := svc.GetTrials(ctx, source.ID)
	if len(trials) != 1 {
		t.Fatalf("found %d trials, want 1", len(trials))
	}
	if trials[0].Duration != 0 {
		t.Errorf("trial.Duration = %v, want 0 when probe fails", trials[0].Duration)
	}
}

func TestService_ExecuteScan_SkipsHiddenDirs(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	tmpDir := t.TempDir()

	os.WriteFile(filepath.Join(tmpDir, "visible.mp4"), []byte("visible"), 0644)

	hiddenDir := filepath.Join(tmpDir, ".hidden")
	os.Mkdir(hiddenDir, 0755)
	os.WriteFile(filepath.Join(hiddenDir, "hidden.mp4"), []byte("hidden"), 0644)

	source, _ := svc.AddFolder(ctx, tmpDir, "Test")
	job, _ := svc.ScanSource(ctx, source.ID)
	svc.ExecuteScan(ctx, job.ID, source.ID, source.Path)

	trials, _ := svc.GetTrials(ctx, source.ID)

	if len(trials) != 1 {
		t.Errorf("found %d trials, want 1 (should skip hidden)", len(trials))
	}
}

func TestService_ExecuteScan_RescanKeepsTrialID(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "squat01.mp4"), []byte("fake video"), 0644)

	source, _ := svc.AddFolder(ctx, tmpDir, "Plates")

	job1, _ := svc.ScanSource(ctx, source.ID)
	svc.ExecuteScan(ctx, job1.ID, source.ID, source.Path)
	first, _ := svc.GetTrials(ctx, source.ID)

	job2, _ := svc.ScanSource(ctx, source.ID)
	svc.ExecuteScan(ctx, job2.ID, source.ID, source.Path)
	second, _ := svc.GetTrials(ctx, source.ID)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("trial counts = %d then %d, want 1 and 1", len(first), len(second))
	}
	if second[0].ID != first[0].ID {
		t.Errorf("rescan changed trial ID: %s vs %s", second[0].ID, first[0].ID)
	}
}

func TestService_ExecuteScan_MissingFolderMarksOffline(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "recordings")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	source, err := svc.AddFolder(ctx, dir, "Plates")
	if err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove folder: %v", err)
	}

	job, err := svc.ScanSource(ctx, source.ID)
	if err != nil {
		t.Fatalf("ScanSource() error = %v", err)
	}
	if err := svc.ExecuteScan(ctx, job.ID, source.ID, source.Path); err == nil {
		t.Fatal("ExecuteScan() succeeded over a missing folder, want error")
	}

	got, _ := repo.GetSource(ctx, source.ID)
	if got.Present {
		t.Error("source still marked present after failed scan")
	}
	failed, _ := repo.GetJob(ctx, job.ID)
	if failed.Status != JobStatusFailed {
		t.Errorf("job status = %s, want %s", failed.Status, JobStatusFailed)
	}

	// The folder coming back (a remounted drive) recovers on the next scan.
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("recreate folder: %v", err)
	}
	job2, err := svc.ScanSource(ctx, source.ID)
	if err != nil {
		t.Fatalf("ScanSource() second call error = %v", err)
	}
	if err := svc.ExecuteScan(ctx, job2.ID, source.ID, source.Path); err != nil {
		t.Fatalf("ExecuteScan() after recreate error = %v", err)
	}

	got, _ = repo.GetSource(ctx, source.ID)
	if !got.Present {
		t.Error("source not marked present after successful rescan")
	}
}

func TestService_CreateExportJob_ReusesActive(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	first, err := svc.CreateExportJob(ctx, "sess-1", "trial-1")
	if err != nil {
		t.Fatalf("CreateExportJob() error = %v", err)
	}

	second, err := svc.CreateExportJob(ctx, "sess-1", "trial-1")
	if err != nil {
		t.Fatalf("CreateExportJob() second call error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call created a new job: %s vs %s", second.ID, first.ID)
	}

	if err := repo.UpdateJobStatus(ctx, first.ID, JobStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}

	third, err := svc.CreateExportJob(ctx, "sess-1", "trial-1")
	if err != nil {
		t.Fatalf("CreateExportJob() third call error = %v", err)
	}
	if third.ID == first.ID {
		t.Error("completed job should not be reused")
	}
}

func TestService_CreateExportJob_SessionsIndependent(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	a, _ := svc.CreateExportJob(ctx, "sess-a", "trial-1")
	b, _ := svc.CreateExportJob(ctx, "sess-b", "trial-1")

	if a.ID == b.ID {
		t.Error("exports for different sessions shared a job")
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"trial.mp4", true},
		{"trial.MP4", true},
		{"trial.mov", true},
		{"trial.mkv", true},
		{"trial.avi", false},
		{"trial.csv", false},
		{"notes.txt", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := IsVideoFile(tt.filename); got != tt.want {
				t.Errorf("IsVideoFile(%s) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestDataPathFor(t *testing.T) {
	tests := []struct {
		videoPath string
		want      string
	}{
		{"/data/squat01.mp4", "/data/squat01.csv"},
		{"/data/run.02.mov", "/data/run.02.csv"},
		{"clip.mkv", "clip.csv"},
	}

	for _, tt := range tests {
		if got := DataPathFor(tt.videoPath); got != tt.want {
			t.Errorf("DataPathFor(%s) = %s, want %s", tt.videoPath, got, tt.want)
		}
	}
}

func TestTrialName(t *testing.T) {
	tests := []struct {
		videoPath string
		want      string
	}{
		{"/data/squat01.mp4", "squat01"},
		{"/data/run.02.mov", "run.02"},
		{"clip.mkv", "clip"},
	}

	for _, tt := range tests {
		if got := TrialName(tt.videoPath); got != tt.want {
			t.Errorf("TrialName(%s) = %s, want %s", tt.videoPath, got, tt.want)
		}
	}
}
