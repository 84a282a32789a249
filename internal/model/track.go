// internal/model/track.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TrackSession represents one recorded connection, grouping the track
// points captured while it was live
type TrackSession struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Source     string     `json:"source" db:"source"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
	PointCount int        `json:"point_count" db:"point_count"`
}

// TrackPoint is one navigation fix extracted from the stream. Latitude
// and longitude are kept as exact decimals so repeated store/load
// round-trips never drift.
type TrackPoint struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	SessionID uuid.UUID       `json:"session_id" db:"session_id"`
	Latitude  decimal.Decimal `json:"latitude" db:"latitude"`
	Longitude decimal.Decimal `json:"longitude" db:"longitude"`
	Altitude  *float64        `json:"altitude,omitempty" db:"altitude"`
	SpeedMs   *float64        `json:"speed_ms,omitempty" db:"speed_ms"`
	FixType   *int            `json:"fix_type,omitempty" db:"fix_type"`
	NumSV     *int            `json:"num_sv,omitempty" db:"num_sv"`
	Protocol  string          `json:"protocol" db:"protocol"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// HasFix reports whether the point carries a usable position solution
func (p *TrackPoint) HasFix() bool {
	return p.FixType == nil || *p.FixType > 0
}
