package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
)

// ProductLookup reads published product records.
type ProductLookup interface {
	GetByUUID(ctx context.Context, uuid string) (*domain.ProductRecord, error)
	Query(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductRecord, error)
}

// RawLookup reads raw upload records.
type RawLookup interface {
	Query(ctx context.Context, filter domain.RawFilter) ([]domain.RawRecord, error)
}

// FilesHandler serves product and raw file metadata.
type FilesHandler struct {
	products ProductLookup
	raws     RawLookup
}

// NewFilesHandler creates a new files handler.
func NewFilesHandler(products ProductLookup, raws RawLookup) *FilesHandler {
	return &FilesHandler{products: products, raws: raws}
}

// GetFile returns one product record by uuid, current or superseded.
func (h *FilesHandler) GetFile(c *gin.Context) {
	rec, err := h.products.GetByUUID(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		if domain.ErrNotFound.Has(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListFiles returns current product records filtered by site, date and
// product. showSuperseded=true also returns demoted frozen versions.
func (h *FilesHandler) ListFiles(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	filter := domain.ProductFilter{
		Site:            c.Query("site"),
		MeasurementDate: date,
		Product:         domain.ProductKind(c.Query("product")),
	}
	if filter.Product != "" {
		if _, ok := domain.LookupKind(filter.Product); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown product: " + string(filter.Product)})
			return
		}
	}
	filter.IncludeSuperseded, _ = strconv.ParseBool(c.Query("showSuperseded"))

	recs, err := h.products.Query(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// ListRawFiles returns raw upload records. unprocessed=true limits the
// result to records not yet consumed by a product.
func (h *FilesHandler) ListRawFiles(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	filter := domain.RawFilter{
		Site:            c.Query("site"),
		MeasurementDate: date,
		Instrument:      c.Query("instrument"),
	}
	filter.OnlyUnprocessed, _ = strconv.ParseBool(c.Query("unprocessed"))

	recs, err := h.raws.Query(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *FilesHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	logger.CtxError(c.Request.Context(), "File lookup failed: path=%s, error=%v", c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "metadata directory unavailable"})
}

// dateParam validates the optional date query parameter. It writes a 400
// and returns false when the date is malformed.
func dateParam(c *gin.Context) (string, bool) {
	date := c.Query("date")
	if date == "" {
		return "", true
	}
	if _, err := domain.ParseDate(date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return date, true
}
