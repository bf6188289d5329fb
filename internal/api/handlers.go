package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"financial-diagnostics/internal/cache"
	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/logging"
	"financial-diagnostics/internal/recompute"
	"financial-diagnostics/internal/statements"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RecomputeRequest is the optional body of a company recompute
type RecomputeRequest struct {
	IsTaxRecord      *bool `json:"is_tax_record"` // nil recomputes both series
	ResetPublication bool  `json:"reset_publication"`
}

// PublicationRequest sets the publication flag of a period
type PublicationRequest struct {
	Published *bool `json:"published" binding:"required"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.deps.Metrics.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "healthy",
		"time":     time.Now().UTC(),
	})
}

// periodID reads and validates the :periodID path parameter.
func periodID(c *gin.Context) (string, bool) {
	id := c.Param("periodID")
	if _, err := uuid.Parse(id); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid period id")
		return "", false
	}
	return id, true
}

// handleRecompute recomputes one or both series of a company
func (s *Server) handleRecompute(c *gin.Context) {
	companyID := c.Param("companyID")

	var req RecomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	opts := recompute.Options{ResetPublication: req.ResetPublication}

	if req.IsTaxRecord == nil {
		results, err := s.deps.Recomputer.RecomputeCompany(c.Request.Context(), companyID, opts)
		if err != nil {
			s.serviceError(c, err)
			return
		}
		successResponse(c, results)
		return
	}

	result, err := s.deps.Recomputer.Recompute(c.Request.Context(), companyID, *req.IsTaxRecord, opts)
	if err != nil {
		s.serviceError(c, err)
		return
	}
	successResponse(c, result)
}

// handleStatementsChanged is called by the ingestion layer after any
// statement write
func (s *Server) handleStatementsChanged(c *gin.Context) {
	id, ok := periodID(c)
	if !ok {
		return
	}

	result, err := s.deps.Recomputer.OnStatementChanged(c.Request.Context(), id)
	if err != nil {
		s.serviceError(c, err)
		return
	}
	successResponse(c, result)
}

// handleDeletePeriod deletes a period and recomputes the rest of its series
func (s *Server) handleDeletePeriod(c *gin.Context) {
	id, ok := periodID(c)
	if !ok {
		return
	}

	result, err := s.deps.Recomputer.DeletePeriod(c.Request.Context(), id)
	if err != nil {
		s.serviceError(c, err)
		return
	}
	successResponse(c, result)
}

// handleSetPublication flips the publication flag of a period
func (s *Server) handleSetPublication(c *gin.Context) {
	id, ok := periodID(c)
	if !ok {
		return
	}

	var req PublicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "published is required")
		return
	}

	change, err := s.deps.Publication.SetPublished(c.Request.Context(), id, *req.Published)
	if err != nil {
		s.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"changed": change.Changed(),
		"data":    change,
	})
}

// handleGetPublishedMetrics serves the published rows of a series. The
// cache is consulted first; any cache failure falls back to the database.
// Rows are written back only if no invalidation ran since the generation
// was read.
func (s *Server) handleGetPublishedMetrics(c *gin.Context) {
	ctx := c.Request.Context()
	companyID := c.Param("companyID")

	isTax, err := statements.ParseSeriesName(c.Query("series"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	key := cache.PublishedSeriesKey(companyID, isTax)
	log := logging.FromContext(ctx)

	writeBack := false
	var gen int64
	if s.deps.Cache != nil {
		var cached []database.PublishedMetrics
		err := s.deps.Cache.GetJSON(ctx, key, &cached)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "cached": true, "data": cached})
			return
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Debug("Series cache read failed", "key", key, "error", err)
		}

		// must be read before the database load
		gen, err = s.deps.Cache.PublishedSeriesGeneration(ctx, companyID)
		if err != nil {
			log.Debug("Series cache generation read failed", "company_id", companyID, "error", err)
		} else {
			writeBack = true
		}
	}

	rows, err := s.deps.Metrics.ListPublishedMetrics(ctx, companyID, isTax)
	if err != nil {
		s.serviceError(c, err)
		return
	}
	if rows == nil {
		rows = []database.PublishedMetrics{}
	}

	if writeBack {
		stored, err := s.deps.Cache.StorePublishedSeries(ctx, companyID, isTax, gen, rows, s.deps.SeriesTTL)
		switch {
		case err != nil:
			log.Debug("Series cache write failed", "key", key, "error", err)
		case !stored:
			log.Debug("Series cache write skipped, invalidated during load", "key", key)
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "cached": false, "data": rows})
}

// handleReconcile re-runs series with open failure records
func (s *Server) handleReconcile(c *gin.Context) {
	if s.deps.Reconciler == nil {
		errorResponse(c, http.StatusServiceUnavailable, "reconciler not configured")
		return
	}

	report, err := s.deps.Reconciler.RunOnce(c.Request.Context())
	if err != nil {
		s.serviceError(c, err)
		return
	}
	successResponse(c, report)
}
