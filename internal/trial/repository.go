package trial

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateSource(ctx context.Context, source *Source) error
	GetSource(ctx context.Context, id string) (*Source, error)
	GetSourceByPath(ctx context.Context, path string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, id string) error
	UpdateSourcePresent(ctx context.Context, id string, present bool) error

	UpsertTrial(ctx context.Context, trial *Trial) error
	GetTrial(ctx context.Context, id string) (*Trial, error)
	ListTrials(ctx context.Context, sourceID string) ([]*Trial, error)
	ListAllTrials(ctx context.Context) ([]*Trial, error)
	DeleteTrialsBySource(ctx context.Context, sourceID string) error
	CountTrials(ctx context.Context) (int, error)

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	GetActiveExportJob(ctx context.Context, sessionID string) (*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	UpdateJobArtifact(ctx context.Context, id, artifact string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateSource(ctx context.Context, s *Source) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (id, type, path, display_name, present, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.Type, s.Path, s.DisplayName, boolToInt(s.Present), s.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetSource(ctx context.Context, id string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, path, display_name, present, created_at
		FROM sources WHERE id = ?
	`, id)
	return r.scanSource(row)
}

func (r *SQLiteRepository) GetSourceByPath(ctx context.Context, path string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, path, display_name, present, created_at
		FROM sources WHERE path = ?
	`, path)
	return r.scanSource(row)
}

func (r *SQLiteRepository) scanSource(row *sql.Row) (*Source, error) {
	var s Source
	var present int
	var createdAt string

	err := row.Scan(&s.ID, &s.Type, &s.Path, &s.DisplayName, &present, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.Present = present == 1
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &s, nil
}

func (r *SQLiteRepository) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, path, display_name, present, created_at
		FROM sources ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		var s Source
		var present int
		var createdAt string

		if err := rows.Scan(&s.ID, &s.Type, &s.Path, &s.DisplayName, &present, &createdAt); err != nil {
			return nil, err
		}
		s.Present = present == 1
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sources = append(sources, &s)
	}
	return sources, rows.Err()
}

func (r *SQLiteRepository) DeleteSource(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateSourcePresent(ctx context.Context, id string, present bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE sources SET present = ? WHERE id = ?", boolToInt(present), id)
	return err
}

func (r *SQLiteRepository) UpsertTrial(ctx context.Context, t *Trial) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trials (id, source_id, name, video_path, data_path, video_size, video_mtime, fingerprint, duration_s, frame_rate, codec, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, video_path) DO UPDATE SET
			name = excluded.name,
			data_path = excluded.data_path,
			video_size = excluded.video_size,
			video_mtime = excluded.video_mtime,
			fingerprint = excluded.fingerprint,
			duration_s = excluded.duration_s,
			frame_rate = excluded.frame_rate,
			codec = excluded.codec
	`, t.ID, t.SourceID, t.Name, t.VideoPath, nullString(t.DataPath), t.VideoSize,
		t.VideoMtime.Format(time.RFC3339), t.Fingerprint,
		t.Duration, t.FrameRate, t.Codec, t.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetTrial(ctx context.Context, id string) (*Trial, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_id, name, video_path, data_path, video_size, video_mtime, fingerprint, duration_s, frame_rate, codec, created_at
		FROM trials WHERE id = ?
	`, id)

	var t Trial
	var dataPath sql.NullString
	var mtime, createdAt string
	err := row.Scan(&t.ID, &t.SourceID, &t.Name, &t.VideoPath, &dataPath, &t.VideoSize,
		&mtime, &t.Fingerprint, &t.Duration, &t.FrameRate, &t.Codec, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.DataPath = dataPath.String
	t.VideoMtime, _ = time.Parse(time.RFC3339, mtime)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

func (r *SQLiteRepository) ListTrials(ctx context.Context, sourceID string) ([]*Trial, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, name, video_path, data_path, video_size, video_mtime, fingerprint, duration_s, frame_rate, codec, created_at
		FROM trials WHERE source_id = ? ORDER BY name
	`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTrials(rows)
}

func (r *SQLiteRepository) ListAllTrials(ctx context.Context) ([]*Trial, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, name, video_path, data_path, video_size, video_mtime, fingerprint, duration_s, frame_rate, codec, created_at
		FROM trials ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTrials(rows)
}

func (r *SQLiteRepository) scanTrials(rows *sql.Rows) ([]*Trial, error) {
	var trials []*Trial
	for rows.Next() {
		var t Trial
		var dataPath sql.NullString
		var mtime, createdAt string

		if err := rows.Scan(&t.ID, &t.SourceID, &t.Name, &t.VideoPath, &dataPath, &t.VideoSize,
			&mtime, &t.Fingerprint, &t.Duration, &t.FrameRate, &t.Codec, &createdAt); err != nil {
			return nil, err
		}
		t.DataPath = dataPath.String
		t.VideoMtime, _ = time.Parse(time.RFC3339, mtime)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		trials = append(trials, &t)
	}
	return trials, rows.Err()
}

func (r *SQLiteRepository) DeleteTrialsBySource(ctx context.Context, sourceID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM trials WHERE source_id = ?", sourceID)
	return err
}

func (r *SQLiteRepository) CountTrials(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trials").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, source_id, trial_id, session_id, progress, error, artifact, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, nullString(j.SourceID), nullString(j.TrialID), nullString(j.SessionID),
		j.Progress, nullString(j.Error), nullString(j.Artifact),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, status, source_id, trial_id, session_id, progress, error, artifact, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return r.scanJob(row)
}

func (r *SQLiteRepository) scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var sourceID, trialID, sessionID, errMsg, artifact sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Type, &j.Status, &sourceID, &trialID, &sessionID, &j.Progress, &errMsg, &artifact, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.SourceID = sourceID.String
	j.TrialID = trialID.String
	j.SessionID = sessionID.String
	j.Error = errMsg.String
	j.Artifact = artifact.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, status, source_id, trial_id, session_id, progress, error, artifact, created_at, updated_at
		FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, status, source_id, trial_id, session_id, progress, error, artifact, created_at, updated_at
		FROM jobs WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) GetActiveExportJob(ctx context.Context, sessionID string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, status, source_id, trial_id, session_id, progress, error, artifact, created_at, updated_at
		FROM jobs
		WHERE type = ? AND session_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1
	`, JobTypeExportVideo, sessionID, JobStatusPending, JobStatusRunning)
	return r.scanJob(row)
}

func (r *SQLiteRepository) scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var j Job
		var sourceID, trialID, sessionID, errMsg, artifact sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&j.ID, &j.Type, &j.Status, &sourceID, &trialID, &sessionID, &j.Progress, &errMsg, &artifact, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		j.SourceID = sourceID.String
		j.TrialID = trialID.String
		j.SessionID = sessionID.String
		j.Error = errMsg.String
		j.Artifact = artifact.String
		j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, id)
	return err
}

func (r *SQLiteRepository) UpdateJobArtifact(ctx context.Context, id, artifact string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET artifact = ?, updated_at = datetime('now') WHERE id = ?
	`, artifact, id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
