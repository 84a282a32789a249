// internal/datalog/track_test.go
package datalog

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gnss-service/internal/decode"
	"gnss-service/internal/model"
)

// fakeTrackRepo records repository calls in memory
type fakeTrackRepo struct {
	mu       sync.Mutex
	sessions []*model.TrackSession
	points   []*model.TrackPoint
	finished []uuid.UUID
}

func (f *fakeTrackRepo) CreateSession(_ context.Context, s *model.TrackSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeTrackRepo) FinishSession(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, id)
	return nil
}

func (f *fakeTrackRepo) GetSession(context.Context, uuid.UUID) (*model.TrackSession, error) {
	return nil, nil
}

func (f *fakeTrackRepo) ListSessions(context.Context, int) ([]*model.TrackSession, error) {
	return nil, nil
}

func (f *fakeTrackRepo) CreatePoint(_ context.Context, p *model.TrackPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
	return nil
}

func (f *fakeTrackRepo) ListPoints(context.Context, uuid.UUID, int) ([]*model.TrackPoint, error) {
	return nil, nil
}

func (f *fakeTrackRepo) DeleteOldSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func navPVT(lat, lon float64, fixType byte) *decode.UBXMessage {
	payload := make([]byte, 92)
	payload[navPVTFixType] = fixType
	payload[navPVTNumSV] = 12
	binary.LittleEndian.PutUint32(payload[navPVTLon:], uint32(int32(lon*1e7)))
	binary.LittleEndian.PutUint32(payload[navPVTLat:], uint32(int32(lat*1e7)))
	binary.LittleEndian.PutUint32(payload[navPVTHMSL:], uint32(int32(37000)))  // 37 m
	binary.LittleEndian.PutUint32(payload[navPVTGSpeed:], uint32(int32(1500))) // 1.5 m/s
	return &decode.UBXMessage{Class: ubxClassNAV, ID: ubxIDNavPVT, Payload: payload}
}

func TestTrackRecorderNavPVT(t *testing.T) {
	repo := &fakeTrackRepo{}
	rec := NewTrackRecorder(repo, zap.NewNop())

	require.NoError(t, rec.Open("/dev/ttyACM0 @ 9600"))
	require.NoError(t, rec.Write(nil, navPVT(53.4508, -2.2401, 3)))
	require.NoError(t, rec.Close())

	require.Len(t, repo.sessions, 1)
	require.Len(t, repo.points, 1)
	require.Len(t, repo.finished, 1)
	assert.Equal(t, repo.sessions[0].ID, repo.finished[0])

	p := repo.points[0]
	assert.Equal(t, "53.4508", p.Latitude.String())
	assert.Equal(t, "-2.2401", p.Longitude.String())
	assert.InDelta(t, 37.0, *p.Altitude, 1e-9)
	assert.InDelta(t, 1.5, *p.SpeedMs, 1e-9)
	assert.Equal(t, 3, *p.FixType)
	assert.Equal(t, 12, *p.NumSV)
	assert.Equal(t, repo.sessions[0].ID, p.SessionID)
}

func TestTrackRecorderNoFixSkipped(t *testing.T) {
	repo := &fakeTrackRepo{}
	rec := NewTrackRecorder(repo, zap.NewNop())
	require.NoError(t, rec.Open("test"))
	defer rec.Close()

	require.NoError(t, rec.Write(nil, navPVT(53.4508, -2.2401, 0)))
	assert.Empty(t, repo.points)
}

func TestTrackRecorderColdWriteSkipped(t *testing.T) {
	repo := &fakeTrackRepo{}
	rec := NewTrackRecorder(repo, zap.NewNop())

	require.NoError(t, rec.Write(nil, navPVT(53.4508, -2.2401, 3)))
	assert.Empty(t, repo.points)
	require.NoError(t, rec.Close())
	assert.Empty(t, repo.finished)
}

func TestTrackRecorderGGA(t *testing.T) {
	repo := &fakeTrackRepo{}
	rec := NewTrackRecorder(repo, zap.NewNop())
	require.NoError(t, rec.Open("test"))
	defer rec.Close()

	gga := &decode.NMEASentence{
		Talker: "GN",
		Type:   "GGA",
		Fields: []string{"132059.00", "5327.04800", "N", "00214.40600", "W", "1", "12", "0.92", "37.0", "M", "48.4", "M", "", ""},
	}
	require.NoError(t, rec.Write(nil, gga))

	require.Len(t, repo.points, 1)
	p := repo.points[0]
	tolerance := decimal.RequireFromString("0.0000001")
	assert.True(t, p.Latitude.Sub(decimal.RequireFromString("53.4508")).Abs().LessThan(tolerance))
	assert.True(t, p.Longitude.Sub(decimal.RequireFromString("-2.2401")).Abs().LessThan(tolerance))
	assert.InDelta(t, 37.0, *p.Altitude, 1e-9)
	assert.Equal(t, 12, *p.NumSV)
}

func TestTrackRecorderGGANoFix(t *testing.T) {
	repo := &fakeTrackRepo{}
	rec := NewTrackRecorder(repo, zap.NewNop())
	require.NoError(t, rec.Open("test"))
	defer rec.Close()

	gga := &decode.NMEASentence{
		Talker: "GN",
		Type:   "GGA",
		Fields: []string{"132059.00", "", "", "", "", "0", "00", "99.99", "", "M", "", "M", "", ""},
	}
	require.NoError(t, rec.Write(nil, gga))
	assert.Empty(t, repo.points)
}

func TestTrackRecorderRMC(t *testing.T) {
	repo := &fakeTrackRepo{}
	rec := NewTrackRecorder(repo, zap.NewNop())
	require.NoError(t, rec.Open("test"))
	defer rec.Close()

	rmc := &decode.NMEASentence{
		Talker: "GN",
		Type:   "RMC",
		Fields: []string{"132059.00", "A", "5327.04800", "N", "00214.40600", "W", "1.944", "54.7", "240126", "", "", "A", "V"},
	}
	require.NoError(t, rec.Write(nil, rmc))

	require.Len(t, repo.points, 1)
	assert.InDelta(t, 1.0, *repo.points[0].SpeedMs, 1e-3)

	// void fix is skipped
	rmc.Fields[1] = "V"
	require.NoError(t, rec.Write(nil, rmc))
	assert.Len(t, repo.points, 1)
}
