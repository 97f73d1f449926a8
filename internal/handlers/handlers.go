package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/plate-scan/internal/recognition"
	"github.com/example/plate-scan/internal/registry"
	"github.com/example/plate-scan/internal/scan"
)

// MaxUploadSize bounds an uploaded image.
const MaxUploadSize = 10 << 20

// RegisterHealthRoutes wires /health and, when gatherer is set, /metrics.
func RegisterHealthRoutes(router *gin.Engine, gatherer prometheus.Gatherer) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verr *registry.ValidationError
	switch {
	case errors.Is(err, scan.ErrBusy), errors.Is(err, scan.ErrAlreadyScanning), errors.Is(err, registry.ErrDuplicatePlate):
		return http.StatusConflict
	case errors.Is(err, scan.ErrCaptureUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, recognition.ErrRecognitionFailed), registry.IsTransport(err):
		return http.StatusBadGateway
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scan.ErrInvalidPlate), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
