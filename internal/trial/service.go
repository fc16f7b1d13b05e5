package trial

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kinedeck/kinedeck-agent/internal/media"
)

const fingerprintSize = 64 * 1024

type TrialService interface {
	AddFolder(ctx context.Context, path, displayName string) (*Source, error)
	RemoveSource(ctx context.Context, id string) error
	GetSources(ctx context.Context) ([]*Source, error)
	GetSource(ctx context.Context, id string) (*Source, error)
	GetTrials(ctx context.Context, sourceID string) ([]*Trial, error)
	GetTrial(ctx context.Context, id string) (*Trial, error)
	ListTrials(ctx context.Context) ([]*Trial, error)
	CountTrials(ctx context.Context) (int, error)
	ScanSource(ctx context.Context, sourceID string) (*Job, error)
	ExecuteScan(ctx context.Context, jobID, sourceID, path string) error
	CreateExportJob(ctx context.Context, sessionID, trialID string) (*Job, error)
}

type Service struct {
	repo   Repository
	opener media.Opener
	logger *slog.Logger
}

// NewService builds the trial catalogue service. The opener is used to probe
// freshly scanned videos for duration and frame rate; it may be nil, in which
// case trials are catalogued without media info.
func NewService(repo Repository, opener media.Opener, logger *slog.Logger) *Service {
	return &Service{repo: repo, opener: opener, logger: logger}
}

func (s *Service) AddFolder(ctx context.Context, path, displayName string) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory")
	}

	existing, err := s.repo.GetSourceByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if displayName == "" {
		displayName = filepath.Base(absPath)
	}

	source := &Source{
		ID:          NewID(),
		Type:        "folder",
		Path:        absPath,
		DisplayName: displayName,
		Present:     true,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.CreateSource(ctx, source); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("folder added", "source_id", source.ID, "path", absPath)
	}
	return source, nil
}

func (s *Service) RemoveSource(ctx context.Context, id string) error {
	if err := s.repo.DeleteTrialsBySource(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteSource(ctx, id)
}

func (s *Service) GetSources(ctx context.Context) ([]*Source, error) {
	return s.repo.ListSources(ctx)
}

func (s *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	return s.repo.GetSource(ctx, id)
}

func (s *Service) GetTrials(ctx context.Context, sourceID string) ([]*Trial, error) {
	return s.repo.ListTrials(ctx, sourceID)
}

func (s *Service) GetTrial(ctx context.Context, id string) (*Trial, error) {
	return s.repo.GetTrial(ctx, id)
}

func (s *Service) ListTrials(ctx context.Context) ([]*Trial, error) {
	return s.repo.ListAllTrials(ctx)
}

func (s *Service) CountTrials(ctx context.Context) (int, error) {
	return s.repo.CountTrials(ctx)
}

func (s *Service) ScanSource(ctx context.Context, sourceID string) (*Job, error) {
	source, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("source not found")
	}

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeScan,
		Status:    JobStatusPending,
		SourceID:  sourceID,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("scan job created", "job_id", job.ID, "source_id", sourceID)
	}
	return job, nil
}

// CreateExportJob enqueues a video export for a review session. An already
// pending or running export for the same session is returned as is, so
// repeated requests never stack a second capture.
func (s *Service) CreateExportJob(ctx context.Context, sessionID, trialID string) (*Job, error) {
	active, err := s.repo.GetActiveExportJob(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeExportVideo,
		Status:    JobStatusPending,
		TrialID:   trialID,
		SessionID: sessionID,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("export job created", "job_id", job.ID, "session_id", sessionID, "trial_id", trialID)
	}
	return job, nil
}

func (s *Service) ExecuteScan(ctx context.Context, jobID, sourceID, path string) error {
	s.repo.UpdateJobStatus(ctx, jobID, JobStatusRunning, "")
	if s.logger != nil {
		s.logger.Info("starting scan", "job_id", jobID, "path", path)
	}

	// An unmounted or deleted folder fails the scan rather than silently
	// cataloguing nothing; playback reports such sources as offline until a
	// later scan finds the folder back.
	if _, err := os.Stat(path); err != nil {
		s.repo.UpdateSourcePresent(ctx, sourceID, false)
		s.repo.UpdateJobStatus(ctx, jobID, JobStatusFailed, "source folder missing")
		return fmt.Errorf("source folder missing: %w", err)
	}
	s.repo.UpdateSourcePresent(ctx, sourceID, true)

	var videos []string
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && IsVideoFile(d.Name()) {
			videos = append(videos, p)
		}
		return nil
	})
	if err != nil {
		s.repo.UpdateJobStatus(ctx, jobID, JobStatusFailed, err.Error())
		return err
	}

	total := len(videos)
	if s.logger != nil {
		s.logger.Info("found trial videos", "count", total)
	}

	for i, videoPath := range videos {
		select {
		case <-ctx.Done():
			s.repo.UpdateJobStatus(ctx, jobID, JobStatusFailed, "cancelled")
			return ctx.Err()
		default:
		}

		if err := s.processVideo(ctx, sourceID, videoPath); err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to process video", "path", videoPath, "error", err)
			}
		}

		progress := 0
		if total > 0 {
			progress = (i + 1) * 100 / total
		}
		s.repo.UpdateJobProgress(ctx, jobID, progress)
	}

	s.repo.UpdateJobStatus(ctx, jobID, JobStatusCompleted, "")
	if s.logger != nil {
		s.logger.Info("scan completed", "job_id", jobID, "videos_processed", total)
	}
	return nil
}

func (s *Service) processVideo(ctx context.Context, sourceID, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	fingerprint, err := computeFingerprint(path)
	if err != nil {
		return err
	}

	dataPath := DataPathFor(path)
	if _, err := os.Stat(dataPath); err != nil {
		dataPath = ""
	}

	trial := &Trial{
		ID:          NewID(),
		SourceID:    sourceID,
		Name:        TrialName(path),
		VideoPath:   path,
		DataPath:    dataPath,
		VideoSize:   info.Size(),
		VideoMtime:  info.ModTime(),
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
	}

	if s.opener != nil {
		surface, err := s.opener.Open(ctx, path)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("probe failed, cataloguing without media info", "path", path, "error", err)
			}
		} else {
			mi := surface.Info()
			trial.Duration = mi.Duration
			trial.FrameRate = mi.FrameRate
			trial.Codec = mi.Codec
		}
	}

	return s.repo.UpsertTrial(ctx, trial)
}

func computeFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	lr := io.LimitReader(f, fingerprintSize)
	if _, err := io.Copy(h, lr); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
