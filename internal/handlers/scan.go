package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/plate-scan/internal/frame"
	"github.com/example/plate-scan/internal/scan"
)

// registryPingTimeout bounds the registry connectivity check.
const registryPingTimeout = 5 * time.Second

// multipartOverhead is the slack allowed above MaxUploadSize for form framing.
const multipartOverhead = 64 << 10

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/webp": true,
	"image/tiff": true,
}

// Scanner is the scan controller served over HTTP.
type Scanner interface {
	StartAutoScan(ctx context.Context) (*scan.Session, error)
	StopAutoScan()
	SetMode(m scan.Mode)
	ScanImage(ctx context.Context, src frame.Source) (scan.Outcome, error)
	LookupPlate(ctx context.Context, plate string) (scan.Outcome, error)
	Status() scan.Status
}

// Pinger checks connectivity to a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterScanRoutes wires the scanner API. events serves the WebSocket
// stream; registry backs the connectivity check.
func RegisterScanRoutes(router *gin.Engine, scanner Scanner, events http.Handler, registry Pinger) {
	group := router.Group("/scan")

	group.POST("/upload", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		if !allowedImageTypes[file.Header.Get("Content-Type")] {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		f, err := frame.Decode(src)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to decode image"})
			return
		}
		still := frame.NewStill(f)
		defer still.Close()

		// An upload is a switch to upload mode, which ends auto-scan. An
		// attempt already in flight still holds the slot and yields 409.
		if scanner.Status().Mode != scan.ModeUpload {
			scanner.SetMode(scan.ModeUpload)
		}
		outcome, err := scanner.ScanImage(c.Request.Context(), still)
		if err != nil {
			abortWithOutcome(c, outcome, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	})

	group.POST("/start", func(c *gin.Context) {
		session, err := scanner.StartAutoScan(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessionId": session.ID(), "status": scanner.Status()})
	})

	group.POST("/stop", func(c *gin.Context) {
		scanner.StopAutoScan()
		c.JSON(http.StatusOK, scanner.Status())
	})

	group.PUT("/mode", func(c *gin.Context) {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode is required"})
			return
		}
		mode, err := scan.ParseMode(body.Mode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		scanner.SetMode(mode)
		c.JSON(http.StatusOK, scanner.Status())
	})

	group.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, scanner.Status())
	})

	group.GET("/plates/:plate", func(c *gin.Context) {
		outcome, err := scanner.LookupPlate(c.Request.Context(), c.Param("plate"))
		if err != nil {
			abortWithOutcome(c, outcome, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	})

	if events != nil {
		group.GET("/events", gin.WrapH(events))
	}

	router.GET("/registry/status", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), registryPingTimeout)
		defer cancel()

		if err := registry.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connected": true})
	})
}

func abortWithOutcome(c *gin.Context, outcome scan.Outcome, err error) {
	body := gin.H{"error": err.Error()}
	if outcome.Type != "" {
		body["outcome"] = outcome
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}
