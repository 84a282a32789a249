// internal/datalog/track.go
package datalog

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gnss-service/internal/decode"
	"gnss-service/internal/model"
	"gnss-service/internal/repository"
	"gnss-service/pkg/gnss"
)

// UBX NAV-PVT identifiers and payload offsets
const (
	ubxClassNAV   = 0x01
	ubxIDNavPVT   = 0x07
	navPVTMinLen  = 92
	navPVTFixType = 20
	navPVTNumSV   = 23
	navPVTLon     = 24
	navPVTLat     = 28
	navPVTHMSL    = 36
	navPVTGSpeed  = 60
)

// EventPublisher publishes stream events for interested listeners
type EventPublisher interface {
	Publish(event *model.StreamEvent)
}

// TrackRecorder is a Sink that extracts navigation fixes from the
// stream and persists them as track points. Frames carrying no
// position are passed over; a recorder with no open session skips
// writes silently.
type TrackRecorder struct {
	repo      repository.TrackRepository
	logger    *zap.Logger
	publisher EventPublisher

	mu      sync.Mutex
	session *model.TrackSession
}

// NewTrackRecorder creates a track recorder backed by repo
func NewTrackRecorder(repo repository.TrackRepository, logger *zap.Logger) *TrackRecorder {
	return &TrackRecorder{
		repo:   repo,
		logger: logger.With(zap.String("component", "track")),
	}
}

// SetPublisher attaches an event publisher notified when track
// sessions start and stop
func (t *TrackRecorder) SetPublisher(publisher EventPublisher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publisher = publisher
}

// Open starts a new track session for the given stream source
func (t *TrackRecorder) Open(source string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	session := &model.TrackSession{
		ID:        uuid.New(),
		Source:    source,
		StartedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.repo.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to start track session: %w", err)
	}

	t.session = session
	if t.publisher != nil {
		t.publisher.Publish(model.NewStreamEvent(model.EventTrackStarted, "INFO", "track", model.JSONObject{
			"session_id": session.ID.String(),
			"source":     source,
		}))
	}
	return nil
}

// Write extracts a position from the decoded message, if it carries
// one, and records it against the open session
func (t *TrackRecorder) Write(_ []byte, msg decode.Message) error {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()

	if session == nil {
		return nil
	}

	point := extractPoint(msg)
	if point == nil {
		return nil
	}
	point.ID = uuid.New()
	point.SessionID = session.ID
	point.Timestamp = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := t.repo.CreatePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to record track point: %w", err)
	}
	return nil
}

// Close finishes the open session, if any
func (t *TrackRecorder) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.repo.FinishSession(ctx, t.session.ID, time.Now()); err != nil {
		t.logger.Warn("Failed to finish track session", zap.Error(err), zap.String("session_id", t.session.ID.String()))
	}
	if t.publisher != nil {
		t.publisher.Publish(model.NewStreamEvent(model.EventTrackStopped, "INFO", "track", model.JSONObject{
			"session_id": t.session.ID.String(),
		}))
	}
	t.session = nil
	return nil
}

// extractPoint pulls a navigation fix out of a decoded message, or
// returns nil when the message carries none
func extractPoint(msg decode.Message) *model.TrackPoint {
	switch m := msg.(type) {
	case *decode.UBXMessage:
		return pointFromNavPVT(m)
	case *decode.NMEASentence:
		switch m.Type {
		case "GGA":
			return pointFromGGA(m)
		case "RMC":
			return pointFromRMC(m)
		}
	}
	return nil
}

// pointFromNavPVT decodes a UBX NAV-PVT payload
func pointFromNavPVT(m *decode.UBXMessage) *model.TrackPoint {
	if m.Class != ubxClassNAV || m.ID != ubxIDNavPVT || len(m.Payload) < navPVTMinLen {
		return nil
	}

	fixType := int(m.Payload[navPVTFixType])
	if fixType == 0 {
		return nil
	}

	lon := int32(binary.LittleEndian.Uint32(m.Payload[navPVTLon:]))
	lat := int32(binary.LittleEndian.Uint32(m.Payload[navPVTLat:]))
	hMSL := int32(binary.LittleEndian.Uint32(m.Payload[navPVTHMSL:]))
	gSpeed := int32(binary.LittleEndian.Uint32(m.Payload[navPVTGSpeed:]))
	numSV := int(m.Payload[navPVTNumSV])

	alt := float64(hMSL) / 1000     // mm -> m
	speed := float64(gSpeed) / 1000 // mm/s -> m/s

	return &model.TrackPoint{
		Latitude:  decimal.New(int64(lat), -7),
		Longitude: decimal.New(int64(lon), -7),
		Altitude:  &alt,
		SpeedMs:   &speed,
		FixType:   &fixType,
		NumSV:     &numSV,
		Protocol:  string(decode.ProtocolUBX),
	}
}

// pointFromGGA decodes an NMEA GGA sentence; fields are
// time, lat, NS, lon, EW, quality, numSV, HDOP, alt, ...
func pointFromGGA(m *decode.NMEASentence) *model.TrackPoint {
	if len(m.Fields) < 9 {
		return nil
	}

	quality := 0
	fmt.Sscanf(m.Field(5), "%d", &quality)
	if quality == 0 {
		return nil
	}

	lat, err := parseNMEACoord(m.Field(1), m.Field(2))
	if err != nil {
		return nil
	}
	lon, err := parseNMEACoord(m.Field(3), m.Field(4))
	if err != nil {
		return nil
	}

	point := &model.TrackPoint{
		Latitude:  lat,
		Longitude: lon,
		FixType:   &quality,
		Protocol:  string(decode.ProtocolNMEA),
	}

	var numSV int
	if _, err := fmt.Sscanf(m.Field(6), "%d", &numSV); err == nil {
		point.NumSV = &numSV
	}
	var alt float64
	if _, err := fmt.Sscanf(m.Field(8), "%f", &alt); err == nil {
		point.Altitude = &alt
	}

	return point
}

// pointFromRMC decodes an NMEA RMC sentence; fields are
// time, status, lat, NS, lon, EW, speed (knots), course, date, ...
func pointFromRMC(m *decode.NMEASentence) *model.TrackPoint {
	if len(m.Fields) < 7 || m.Field(1) != "A" {
		return nil
	}

	lat, err := parseNMEACoord(m.Field(2), m.Field(3))
	if err != nil {
		return nil
	}
	lon, err := parseNMEACoord(m.Field(4), m.Field(5))
	if err != nil {
		return nil
	}

	point := &model.TrackPoint{
		Latitude:  lat,
		Longitude: lon,
		Protocol:  string(decode.ProtocolNMEA),
	}

	var knots float64
	if _, err := fmt.Sscanf(m.Field(6), "%f", &knots); err == nil {
		speed := gnss.KnotsToMs(knots)
		point.SpeedMs = &speed
	}

	return point
}

// parseNMEACoord converts an NMEA ddmm.mmmmm coordinate with its
// hemisphere indicator to signed decimal degrees
func parseNMEACoord(value, hemi string) (decimal.Decimal, error) {
	dot := strings.IndexByte(value, '.')
	if dot < 3 {
		return decimal.Zero, fmt.Errorf("malformed coordinate: %q", value)
	}

	deg, err := decimal.NewFromString(value[:dot-2])
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed coordinate: %q", value)
	}
	min, err := decimal.NewFromString(value[dot-2:])
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed coordinate: %q", value)
	}

	coord := deg.Add(min.Div(decimal.NewFromInt(60)))
	if hemi == "S" || hemi == "W" {
		coord = coord.Neg()
	}
	return coord, nil
}
