// internal/handler/track_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gnss-service/internal/model"
	"gnss-service/internal/repository"
	"gnss-service/internal/utils"
	"gnss-service/pkg/gnss"
)

// TrackHandler handles recorded track HTTP requests
type TrackHandler struct {
	repo   repository.TrackRepository
	logger *utils.ServiceLogger
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(repo repository.TrackRepository, logger *zap.Logger) *TrackHandler {
	return &TrackHandler{
		repo:   repo,
		logger: utils.NewServiceLogger(logger, "track-handler"),
	}
}

// RegisterRoutes registers track-related routes
func (h *TrackHandler) RegisterRoutes(router *gin.RouterGroup) {
	tracks := router.Group("/tracks")
	{
		tracks.GET("", h.ListSessions)
		tracks.GET("/:session_id", h.GetSession)
		tracks.GET("/:session_id/points", h.ListPoints)
	}
}

// ListSessions lists recent track sessions
func (h *TrackHandler) ListSessions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	sessions, err := h.repo.ListSessions(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list track sessions", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list track sessions", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Track sessions retrieved", gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one track session
func (h *TrackHandler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return
	}

	session, err := h.repo.GetSession(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Track session not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Track session retrieved", session)
}

// ListPoints returns the points of one track session in capture order
func (h *TrackHandler) ListPoints(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return
	}

	limit := 1000
	if raw := c.Query("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= 10000 {
			limit = l
		}
	}

	points, err := h.repo.ListPoints(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("Failed to list track points", zap.Error(err), zap.String("session_id", id.String()))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list track points", err)
		return
	}

	format := c.DefaultQuery("format", "deg")
	views := make([]trackPointView, 0, len(points))
	for i := range points {
		views = append(views, trackPointView{
			TrackPoint: points[i],
			Position:   formatPosition(points[i], format),
		})
	}

	utils.SuccessResponse(c, http.StatusOK, "Track points retrieved", gin.H{
		"session_id": id,
		"format":     format,
		"points":     views,
		"count":      len(views),
	})
}

// trackPointView decorates a stored point with a display-formatted
// position
type trackPointView struct {
	*model.TrackPoint
	Position string `json:"position,omitempty"`
}

// formatPosition renders a point's coordinates in the requested
// display format. Plain decimal degrees ("deg") add no decoration.
func formatPosition(p *model.TrackPoint, format string) string {
	lat, _ := p.Latitude.Float64()
	lon, _ := p.Longitude.Float64()

	switch format {
	case "dms":
		return gnss.DegToDMS(lat, gnss.AxisLat) + " " + gnss.DegToDMS(lon, gnss.AxisLon)
	case "dmm":
		return gnss.DegToDMM(lat, gnss.AxisLat) + " " + gnss.DegToDMM(lon, gnss.AxisLon)
	case "iso6709":
		var alt float64
		if p.Altitude != nil {
			alt = *p.Altitude
		}
		return gnss.PosToISO6709(lat, lon, alt)
	default:
		return ""
	}
}
