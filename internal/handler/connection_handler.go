// internal/handler/connection_handler.go
package handler

import (
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gnss-service/internal/config"
	"gnss-service/internal/conn"
	"gnss-service/internal/stream"
	"gnss-service/internal/utils"
)

// ConnectionHandler handles receiver connection HTTP requests
type ConnectionHandler struct {
	manager  *conn.Manager
	receiver config.ReceiverConfig
	logger   *utils.ServiceLogger
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(manager *conn.Manager, receiver config.ReceiverConfig, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		manager:  manager,
		receiver: receiver,
		logger:   utils.NewServiceLogger(logger, "connection-handler"),
	}
}

// RegisterRoutes registers connection-related routes
func (h *ConnectionHandler) RegisterRoutes(router *gin.RouterGroup) {
	connection := router.Group("/connection")
	{
		connection.GET("", h.GetStatus)
		connection.POST("/serial", h.ConnectSerial)
		connection.POST("/file", h.ConnectFile)
		connection.DELETE("", h.Disconnect)
		connection.POST("/write", h.WriteData)
		connection.POST("/flush", h.Flush)
	}

	router.GET("/ports", h.ListPorts)
}

// ConnectSerialRequest is the serial connect request body. Omitted
// fields fall back to the configured receiver defaults.
type ConnectSerialRequest struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// ConnectFileRequest is the file replay connect request body
type ConnectFileRequest struct {
	Path string `json:"path" binding:"required"`
}

// WriteRequest carries hex-encoded bytes destined for the receiver
type WriteRequest struct {
	Data string `json:"data" binding:"required"`
}

// GetStatus returns the current connection state and stream counters
func (h *ConnectionHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Connection status retrieved", h.manager.Status())
}

// ConnectSerial opens the configured serial port and starts streaming
func (h *ConnectionHandler) ConnectSerial(c *gin.Context) {
	var req ConnectSerialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg := h.streamConfig(&req)
	if err := h.manager.Connect(cfg); err != nil {
		switch {
		case errors.Is(err, stream.ErrNoSource):
			utils.ErrorResponse(c, http.StatusBadRequest, "No serial port specified", err)
		case errors.Is(err, conn.ErrBusy):
			utils.ErrorResponse(c, http.StatusConflict, "Connection already active", err)
		default:
			h.logger.Error("Serial connect failed", zap.Error(err), zap.String("port", cfg.Port))
			utils.ErrorResponse(c, http.StatusBadGateway, "Failed to open serial port", err)
		}
		return
	}

	h.logger.Info("Serial connection established", zap.String("port", cfg.Port), zap.Int("baud_rate", cfg.BaudRate))
	utils.SuccessResponse(c, http.StatusOK, "Connected", h.manager.Status())
}

// ConnectFile starts replaying a capture file
func (h *ConnectionHandler) ConnectFile(c *gin.Context) {
	var req ConnectFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.manager.ConnectFile(req.Path); err != nil {
		switch {
		case errors.Is(err, conn.ErrBusy):
			utils.ErrorResponse(c, http.StatusConflict, "Connection already active", err)
		default:
			h.logger.Error("File connect failed", zap.Error(err), zap.String("path", req.Path))
			utils.ErrorResponse(c, http.StatusBadRequest, "Failed to open capture file", err)
		}
		return
	}

	h.logger.Info("File replay started", zap.String("path", req.Path))
	utils.SuccessResponse(c, http.StatusOK, "Connected", h.manager.Status())
}

// Disconnect closes the active connection; disconnecting an idle
// manager succeeds
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	if err := h.manager.Disconnect(); err != nil {
		h.logger.Error("Disconnect failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to disconnect", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Disconnected", h.manager.Status())
}

// WriteData forwards hex-encoded bytes to the receiver
func (h *ConnectionHandler) WriteData(c *gin.Context) {
	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	data, err := hex.DecodeString(req.Data)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Data must be hex encoded", err)
		return
	}

	if err := h.manager.Write(data); err != nil {
		switch {
		case errors.Is(err, conn.ErrNotConnected):
			utils.ErrorResponse(c, http.StatusConflict, "Receiver not connected", err)
		case errors.Is(err, stream.ErrReadOnly):
			utils.ErrorResponse(c, http.StatusConflict, "Stream source is read-only", err)
		default:
			h.logger.Error("Receiver write failed", zap.Error(err))
			utils.ErrorResponse(c, http.StatusBadGateway, "Failed to write to receiver", err)
		}
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Data written", gin.H{"bytes_written": len(data)})
}

// Flush drains the receiver input buffers
func (h *ConnectionHandler) Flush(c *gin.Context) {
	if err := h.manager.Flush(); err != nil {
		h.logger.Error("Flush failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusBadGateway, "Failed to flush stream", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Stream flushed", nil)
}

// ListPorts enumerates serial ports visible to the host
func (h *ConnectionHandler) ListPorts(c *gin.Context) {
	ports, err := stream.ListPorts()
	if err != nil {
		h.logger.Error("Port enumeration failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to enumerate serial ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Serial ports retrieved", gin.H{
		"ports": ports,
		"count": len(ports),
	})
}

// streamConfig merges the request with the configured receiver
// defaults
func (h *ConnectionHandler) streamConfig(req *ConnectSerialRequest) *stream.Config {
	cfg := &stream.Config{
		Port:     req.Port,
		BaudRate: req.BaudRate,
		DataBits: req.DataBits,
		StopBits: req.StopBits,
		Parity:   req.Parity,
		Timeout:  h.receiver.Timeout,
	}

	if cfg.Port == "" {
		cfg.Port = h.receiver.Port
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = h.receiver.BaudRate
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = h.receiver.DataBits
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = h.receiver.StopBits
	}
	if cfg.Parity == "" {
		cfg.Parity = h.receiver.Parity
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	return cfg
}
