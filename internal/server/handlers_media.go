package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/barcode"
	"github.com/MarcoPoloResearchLab/trainhub/internal/uploads"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	opUploadVideo   = "uploads.video"
	opUploadImage   = "uploads.image"
	opBarcodeLookup = "barcode.lookup"

	multipartOverhead int64 = 1 << 20
)

var errUploadsDisabled = &requestError{code: "uploads.disabled", message: "uploads are not configured"}

func (h *httpHandler) handleUploadVideo(c *gin.Context) {
	h.handleUpload(c, opUploadVideo, "video", "video_url", uploads.MaxVideoBytes)
}

func (h *httpHandler) handleUploadImage(c *gin.Context) {
	h.handleUpload(c, opUploadImage, "image", "image_url", uploads.MaxImageBytes)
}

func (h *httpHandler) handleUpload(c *gin.Context, operation, field, urlKey string, limit int64) {
	if h.uploads == nil {
		h.respondFailure(c, operation, errUploadsDisabled)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			h.respondFailure(c, operation, uploads.ErrMissingFile)
			return
		}
		h.respondFailure(c, operation, uploads.ErrTooLarge)
		return
	}

	var url string
	if field == "video" {
		url, err = h.uploads.SaveVideo(header)
	} else {
		url, err = h.uploads.SaveImage(header)
	}
	if err != nil {
		h.respondFailure(c, operation, err)
		return
	}
	respondOK(c, gin.H{urlKey: url})
}

func (h *httpHandler) handleBarcodeLookup(c *gin.Context) {
	if h.barcode == nil {
		h.respondFailure(c, opBarcodeLookup, barcode.ErrUnavailable)
		return
	}
	product, err := h.barcode.Lookup(c.Request.Context(), c.Query("upc"))
	if err != nil {
		h.respondFailure(c, opBarcodeLookup, err)
		return
	}
	respondOK(c, gin.H{"product": product})
}

type realtimeEventPayload struct {
	IDs       []string `json:"ids"`
	Operation string   `json:"operation,omitempty"`
	Timestamp string   `json:"timestamp"`
	Source    string   `json:"source"`
}

// handleEvents streams change notifications as server-sent events until the client leaves.
func (h *httpHandler) handleEvents(c *gin.Context) {
	principal := h.principal(c)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, principal)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(realtimeEventReady, gin.H{"source": realtimeSourceBackend})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				IDs:       message.IDs,
				Operation: message.Operation,
				Timestamp: message.Timestamp.Format(time.RFC3339),
				Source:    realtimeSourceBackend,
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
			return true
		}
	})
	h.logger.Debug("event stream closed", zap.String("principal", principal))
}
