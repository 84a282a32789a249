// internal/repository/track_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gnss-service/internal/database"
	"gnss-service/internal/model"
)

// trackRepository implements TrackRepository interface
type trackRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTrackRepository creates a new track repository
func NewTrackRepository(db *database.DB, logger *zap.Logger) TrackRepository {
	return &trackRepository{
		db:     db,
		logger: logger,
	}
}

// CreateSession creates a new track session
func (r *trackRepository) CreateSession(ctx context.Context, session *model.TrackSession) error {
	query := `
		INSERT INTO track_sessions (id, source, started_at, point_count)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.Source, session.StartedAt, session.PointCount,
	)

	if err != nil {
		r.logger.Error("Failed to create track session", zap.Error(err), zap.String("session_id", session.ID.String()))
		return fmt.Errorf("failed to create track session: %w", err)
	}

	r.logger.Info("Track session created", zap.String("session_id", session.ID.String()), zap.String("source", session.Source))
	return nil
}

// FinishSession stamps the session end time
func (r *trackRepository) FinishSession(ctx context.Context, id uuid.UUID, finishedAt time.Time) error {
	query := `UPDATE track_sessions SET finished_at = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, finishedAt)
	if err != nil {
		r.logger.Error("Failed to finish track session", zap.Error(err), zap.String("session_id", id.String()))
		return fmt.Errorf("failed to finish track session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("track session not found with id: %s", id)
	}

	return nil
}

// GetSession retrieves a track session by its UUID
func (r *trackRepository) GetSession(ctx context.Context, id uuid.UUID) (*model.TrackSession, error) {
	query := `
		SELECT id, source, started_at, finished_at, point_count
		FROM track_sessions WHERE id = $1
	`

	session := &model.TrackSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.Source, &session.StartedAt,
		&session.FinishedAt, &session.PointCount,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("track session not found with id: %s", id)
		}
		r.logger.Error("Failed to get track session", zap.Error(err), zap.String("session_id", id.String()))
		return nil, fmt.Errorf("failed to get track session: %w", err)
	}

	return session, nil
}

// ListSessions retrieves the most recent track sessions
func (r *trackRepository) ListSessions(ctx context.Context, limit int) ([]*model.TrackSession, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, source, started_at, finished_at, point_count
		FROM track_sessions
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list track sessions", zap.Error(err))
		return nil, fmt.Errorf("failed to list track sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.TrackSession
	for rows.Next() {
		session := &model.TrackSession{}
		if err := rows.Scan(
			&session.ID, &session.Source, &session.StartedAt,
			&session.FinishedAt, &session.PointCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan track session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// CreatePoint records one track point and bumps the session counter
func (r *trackRepository) CreatePoint(ctx context.Context, point *model.TrackPoint) error {
	query := `
		INSERT INTO track_points (
			id, session_id, latitude, longitude, altitude,
			speed_ms, fix_type, num_sv, protocol, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		point.ID, point.SessionID, point.Latitude, point.Longitude,
		point.Altitude, point.SpeedMs, point.FixType, point.NumSV,
		point.Protocol, point.Timestamp,
	)

	if err != nil {
		r.logger.Error("Failed to create track point", zap.Error(err), zap.String("session_id", point.SessionID.String()))
		return fmt.Errorf("failed to create track point: %w", err)
	}

	countQuery := `UPDATE track_sessions SET point_count = point_count + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, countQuery, point.SessionID); err != nil {
		return fmt.Errorf("failed to update point count: %w", err)
	}

	return nil
}

// ListPoints retrieves points for a session in capture order
func (r *trackRepository) ListPoints(ctx context.Context, sessionID uuid.UUID, limit int) ([]*model.TrackPoint, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT id, session_id, latitude, longitude, altitude,
			   speed_ms, fix_type, num_sv, protocol, timestamp
		FROM track_points
		WHERE session_id = $1
		ORDER BY timestamp ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		r.logger.Error("Failed to list track points", zap.Error(err), zap.String("session_id", sessionID.String()))
		return nil, fmt.Errorf("failed to list track points: %w", err)
	}
	defer rows.Close()

	var points []*model.TrackPoint
	for rows.Next() {
		point := &model.TrackPoint{}
		if err := rows.Scan(
			&point.ID, &point.SessionID, &point.Latitude, &point.Longitude,
			&point.Altitude, &point.SpeedMs, &point.FixType, &point.NumSV,
			&point.Protocol, &point.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan track point: %w", err)
		}
		points = append(points, point)
	}

	return points, rows.Err()
}

// DeleteOldSessions removes sessions older than the cutoff
func (r *trackRepository) DeleteOldSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM track_sessions WHERE started_at < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		r.logger.Error("Failed to delete old track sessions", zap.Error(err))
		return 0, fmt.Errorf("failed to delete old track sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("Old track sessions deleted", zap.Int64("count", deleted))
	}
	return deleted, nil
}
