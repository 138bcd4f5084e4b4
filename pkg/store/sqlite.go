package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shaandjain/local-audio-pins/pkg/db"
	"github.com/Shaandjain/local-audio-pins/pkg/geo"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
)

// ErrJobTerminal is returned when a terminal-state write targets a job that
// is already terminal (or does not exist).
var ErrJobTerminal = errors.New("job is already terminal")

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, device_id, status, progress, request, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.DeviceID, string(job.Status), string(progress), string(request),
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, status, progress, request, result, error, costs, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)

	var j model.Job
	var status string
	var progress, request string
	var result, jobErr, costs sql.NullString

	err := row.Scan(&j.ID, &j.DeviceID, &status, &progress, &request,
		&result, &jobErr, &costs, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	j.Status = model.JobStatus(status)

	if err := json.Unmarshal([]byte(progress), &j.Progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	if err := json.Unmarshal([]byte(request), &j.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	if result.Valid {
		j.Result = &model.JobResult{}
		if err := json.Unmarshal([]byte(result.String), j.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	if jobErr.Valid {
		j.Error = &model.JobError{}
		if err := json.Unmarshal([]byte(jobErr.String), j.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
	}
	if costs.Valid {
		j.Costs = &model.CostReport{}
		if err := json.Unmarshal([]byte(costs.String), j.Costs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal costs: %w", err)
		}
	}

	return &j, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'partial', 'failed')`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return checkJobUpdated(res, id)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, id string, patch ProgressPatch) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}

	p := job.Progress
	if patch.TotalPins != nil {
		p.TotalPins = *patch.TotalPins
	}
	if patch.CompletedPins != nil {
		p.CompletedPins = *patch.CompletedPins
	}
	if patch.CurrentStep != nil {
		p.CurrentStep = *patch.CurrentStep
	}

	buf, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?",
		string(buf), time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, result *model.JobResult, costs *model.CostReport) error {
	return s.finishJob(ctx, id, model.JobStatusCompleted, result, nil, costs)
}

func (s *SQLiteStore) PartialCompleteJob(ctx context.Context, id string, result *model.JobResult, jobErr *model.JobError, costs *model.CostReport) error {
	return s.finishJob(ctx, id, model.JobStatusPartial, result, jobErr, costs)
}

func (s *SQLiteStore) FailJob(ctx context.Context, id string, jobErr *model.JobError) error {
	return s.finishJob(ctx, id, model.JobStatusFailed, nil, jobErr, nil)
}

// finishJob moves a job into a terminal state. The WHERE clause guards the
// write-once invariant: a job already in a terminal state is never updated.
// A completed job's progress is finalized to totalPins/"Complete" and a
// failed job's step to "Failed"; a partial job keeps its last loop progress.
func (s *SQLiteStore) finishJob(ctx context.Context, id string, status model.JobStatus, result *model.JobResult, jobErr *model.JobError, costs *model.CostReport) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}

	progress := job.Progress
	switch status {
	case model.JobStatusCompleted:
		progress.CompletedPins = progress.TotalPins
		progress.CurrentStep = "Complete"
	case model.JobStatusFailed:
		progress.CurrentStep = "Failed"
	}
	progressBuf, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	var resultJSON, errJSON, costsJSON any
	if result != nil {
		buf, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = string(buf)
	}
	if jobErr != nil {
		buf, err := json.Marshal(jobErr)
		if err != nil {
			return fmt.Errorf("failed to marshal error: %w", err)
		}
		errJSON = string(buf)
	}
	if costs != nil {
		buf, err := json.Marshal(costs)
		if err != nil {
			return fmt.Errorf("failed to marshal costs: %w", err)
		}
		costsJSON = string(buf)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = ?, result = ?, error = ?, costs = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'partial', 'failed')`,
		string(status), string(progressBuf), resultJSON, errJSON, costsJSON, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return checkJobUpdated(res, id)
}

func checkJobUpdated(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobTerminal)
	}
	return nil
}

// --- Tours ---

func (s *SQLiteStore) CreateTour(ctx context.Context, tour *model.Tour) error {
	pins, err := json.Marshal(tour.Pins)
	if err != nil {
		return fmt.Errorf("failed to marshal pins: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tours (id, device_id, name, pins, center_lat, center_lng, generation_job_id, estimated_duration, total_distance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tour.ID, tour.DeviceID, tour.Name, string(pins),
		tour.CenterLat, tour.CenterLng, tour.GenerationJobID,
		tour.EstimatedDuration, tour.TotalDistance, tour.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) GetTour(ctx context.Context, id string) (*model.Tour, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, name, pins, center_lat, center_lng, generation_job_id, estimated_duration, total_distance, created_at
		 FROM tours WHERE id = ?`, id)

	tour, err := scanTour(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return tour, nil
}

func (s *SQLiteStore) ListTours(ctx context.Context, deviceID string) ([]*model.Tour, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, name, pins, center_lat, center_lng, generation_job_id, estimated_duration, total_distance, created_at
		 FROM tours WHERE device_id = ? ORDER BY created_at DESC`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tours []*model.Tour
	for rows.Next() {
		tour, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		tours = append(tours, tour)
	}
	return tours, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTour(row rowScanner) (*model.Tour, error) {
	var t model.Tour
	var pins string
	err := row.Scan(&t.ID, &t.DeviceID, &t.Name, &pins,
		&t.CenterLat, &t.CenterLng, &t.GenerationJobID,
		&t.EstimatedDuration, &t.TotalDistance, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pins), &t.Pins); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pins: %w", err)
	}
	return &t, nil
}

// --- Collections ---

func (s *SQLiteStore) AppendPins(ctx context.Context, collectionID string, pins []model.Pin) error {
	if len(pins) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range pins {
		p := &pins[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pins (id, collection_id, lat, lng, title, description, transcript, audio_file, category, is_ai_generated, ai_generation_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, collectionID, p.Lat, p.Lng, p.Title, p.Description,
			p.Transcript, p.AudioFile, string(p.Category),
			p.IsAIGenerated, p.AIGenerationID, p.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert pin %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetPins(ctx context.Context, collectionID string) ([]model.Pin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lng, title, description, transcript, audio_file, category, is_ai_generated, ai_generation_id, created_at
		 FROM pins WHERE collection_id = ? ORDER BY created_at`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPins(rows)
}

// GetPinsInRadius returns pins within radiusMeters of center. A bounding-box
// prefilter keeps the SQL cheap; the exact circle is enforced with the
// haversine distance.
func (s *SQLiteStore) GetPinsInRadius(ctx context.Context, collectionID string, center geo.Point, radiusMeters float64) ([]model.Pin, error) {
	bound := geo.BoundAround(center, radiusMeters)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lng, title, description, transcript, audio_file, category, is_ai_generated, ai_generation_id, created_at
		 FROM pins WHERE collection_id = ?
		 AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`,
		collectionID, bound.Min.Lat(), bound.Max.Lat(), bound.Min.Lon(), bound.Max.Lon())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates, err := scanPins(rows)
	if err != nil {
		return nil, err
	}

	var pins []model.Pin
	for _, p := range candidates {
		if geo.Distance(center, geo.Point{Lat: p.Lat, Lng: p.Lng}) <= radiusMeters {
			pins = append(pins, p)
		}
	}
	return pins, nil
}

func (s *SQLiteStore) GetPinsBatch(ctx context.Context, ids []string) (map[string]*model.Pin, error) {
	result := make(map[string]*model.Pin)
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT id, lat, lng, title, description, transcript, audio_file, category, is_ai_generated, ai_generation_id, created_at
			  FROM pins WHERE id IN (`
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pins, err := scanPins(rows)
	if err != nil {
		return nil, err
	}
	for i := range pins {
		result[pins[i].ID] = &pins[i]
	}
	return result, nil
}

func scanPins(rows *sql.Rows) ([]model.Pin, error) {
	var pins []model.Pin
	for rows.Next() {
		var p model.Pin
		var category string
		var aiGenID sql.NullString
		err := rows.Scan(&p.ID, &p.Lat, &p.Lng, &p.Title, &p.Description,
			&p.Transcript, &p.AudioFile, &category,
			&p.IsAIGenerated, &aiGenID, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		p.Category = model.Category(category)
		if aiGenID.Valid {
			p.AIGenerationID = aiGenID.String
		}
		pins = append(pins, p)
	}
	return pins, rows.Err()
}

// --- Preferences ---

func (s *SQLiteStore) GetPreferences(ctx context.Context, deviceID string) (*model.PreferenceProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT device_id, favorite_pin_ids, category_weights, created_at, updated_at
		 FROM preferences WHERE device_id = ?`, deviceID)

	var p model.PreferenceProfile
	var favorites, weights string
	err := row.Scan(&p.DeviceID, &favorites, &weights, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(favorites), &p.FavoritePinIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal favorites: %w", err)
	}
	if err := json.Unmarshal([]byte(weights), &p.CategoryWeights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) SavePreferences(ctx context.Context, profile *model.PreferenceProfile) error {
	favorites, err := json.Marshal(profile.FavoritePinIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal favorites: %w", err)
	}
	weights, err := json.Marshal(profile.CategoryWeights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO preferences (device_id, favorite_pin_ids, category_weights, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
			favorite_pin_ids = excluded.favorite_pin_ids,
			category_weights = excluded.category_weights,
			updated_at = excluded.updated_at`,
		profile.DeviceID, string(favorites), string(weights),
		profile.CreatedAt.UTC(), profile.UpdatedAt.UTC(),
	)
	return err
}
