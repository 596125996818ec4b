package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
	"github.com/timmy/cloudnet/internal/service"
)

// Submitter accepts raw files into the archive.
type Submitter interface {
	Submit(ctx context.Context, sub service.Submission, body io.ReadSeeker) (*domain.RawRecord, error)
}

// UploadHandler accepts raw instrument and model files.
type UploadHandler struct {
	submitter Submitter
	maxBytes  int64
}

// NewUploadHandler creates a new upload handler. maxUploadMB bounds the
// request body; zero or less disables the limit.
func NewUploadHandler(submitter Submitter, maxUploadMB int64) *UploadHandler {
	return &UploadHandler{submitter: submitter, maxBytes: maxUploadMB << 20}
}

// UploadData stores one raw file whose sha256 is the :checksum path parameter.
//
// Form fields: file, site, measurementDate, and exactly one of instrument
// and model. Responds 201 with the raw record, 400 on invalid metadata or a
// checksum mismatch, 409 when the content was already uploaded and 413 when
// the body is too large.
func (h *UploadHandler) UploadData(c *gin.Context) {
	ctx := c.Request.Context()
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds size limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	rec, err := h.submitter.Submit(ctx, service.Submission{
		Filename:        fh.Filename,
		Site:            c.PostForm("site"),
		MeasurementDate: c.PostForm("measurementDate"),
		Instrument:      c.PostForm("instrument"),
		Model:           c.PostForm("model"),
		Checksum:        c.Param("checksum"),
	}, file)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, rec)
	case domain.ErrInvalidUpload.Has(err):
		logger.CtxWarn(ctx, "Upload rejected: filename=%s, client_ip=%s, error=%v", fh.Filename, c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.ErrDuplicate.Has(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		logger.CtxError(ctx, "Upload failed: filename=%s, error=%v", fh.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
	}
}
