package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/cloudnet/internal/logger"
	"github.com/timmy/cloudnet/internal/service"
	"github.com/timmy/cloudnet/internal/source/staging"
)

// Importer submits staged raw files.
type Importer interface {
	Import(ctx context.Context, src service.StagingSource) (*service.ImportStats, error)
}

// AdminHandler handles admin operations.
type AdminHandler struct {
	importer   Importer
	stagingDir string

	// Import job state
	mu            sync.RWMutex
	isRunning     bool
	currentStats  *service.ImportStats
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - importer: import service instance.
//   - stagingDir: directory whose manifest-carrying subdirectories can be imported.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(importer Importer, stagingDir string) *AdminHandler {
	return &AdminHandler{importer: importer, stagingDir: stagingDir}
}

// ImportRequest represents the import API request.
type ImportRequest struct {
	Source string `json:"source" binding:"required"`
}

// ImportResponse represents the import API response.
type ImportResponse struct {
	Message string               `json:"message"`
	Stats   *service.ImportStats `json:"stats,omitempty"`
}

// ImportStatusResponse represents the import status.
type ImportStatusResponse struct {
	IsRunning     bool                 `json:"is_running"`
	LastRunTime   string               `json:"last_run_time,omitempty"`
	LastRunStatus string               `json:"last_run_status,omitempty"`
	CurrentStats  *service.ImportStats `json:"current_stats,omitempty"`
}

// ListSources returns the staging directories that can be imported.
func (h *AdminHandler) ListSources(c *gin.Context) {
	sources, err := staging.ListStagingSources(h.stagingDir)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list staging sources: error=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// TriggerImport imports one staging directory and responds when it is done.
// Only one import runs at a time.
func (h *AdminHandler) TriggerImport(c *gin.Context) {
	ctx := c.Request.Context()

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid import request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Only listed names are accepted so the request cannot escape stagingDir.
	sources, err := staging.ListStagingSources(h.stagingDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !slices.Contains(sources, req.Source) {
		logger.CtxWarn(ctx, "Unknown staging source requested: source=%s, client_ip=%s", req.Source, c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source: " + req.Source})
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Import request rejected: already running, source=%s", req.Source)
		c.JSON(http.StatusConflict, gin.H{"error": "Import is already running"})
		return
	}
	h.isRunning = true
	h.currentStats = nil
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting import: source=%s", req.Source)

	// The import outlives a dropped client connection.
	importCtx := context.WithoutCancel(ctx)
	stats, err := h.importer.Import(importCtx, staging.NewAdapter(filepath.Join(h.stagingDir, req.Source)))

	h.mu.Lock()
	h.isRunning = false
	h.currentStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.CtxError(ctx, "Import failed: source=%s, error=%v", req.Source, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ImportResponse{
		Message: "Import completed successfully",
		Stats:   stats,
	})
}

// GetImportStatus returns the current import status.
func (h *AdminHandler) GetImportStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := ImportStatusResponse{
		IsRunning:     h.isRunning,
		LastRunStatus: h.lastRunStatus,
		CurrentStats:  h.currentStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}
