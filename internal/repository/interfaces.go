// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gnss-service/internal/model"
)

// TrackRepository defines track data access operations
type TrackRepository interface {
	// Session lifecycle
	CreateSession(ctx context.Context, session *model.TrackSession) error
	FinishSession(ctx context.Context, id uuid.UUID, finishedAt time.Time) error
	GetSession(ctx context.Context, id uuid.UUID) (*model.TrackSession, error)
	ListSessions(ctx context.Context, limit int) ([]*model.TrackSession, error)

	// Point recording
	CreatePoint(ctx context.Context, point *model.TrackPoint) error
	ListPoints(ctx context.Context, sessionID uuid.UUID, limit int) ([]*model.TrackPoint, error)

	// Cleanup
	DeleteOldSessions(ctx context.Context, olderThan time.Time) (int64, error)
}
