// Package rekognition implements a recognition engine on AWS Rekognition
// DetectText.
package rekognition

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/example/plate-scan/internal/recognition"
)

// DetectTextAPI is the subset of the Rekognition client the engine calls.
type DetectTextAPI interface {
	DetectText(ctx context.Context, in *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Engine sends binary frames to Rekognition and returns the detected lines.
type Engine struct {
	client        DetectTextAPI
	minConfidence float32
	logger        *zap.Logger
}

// New builds an engine. Words below minConfidence (0-100) are discarded by
// the service.
func New(client DetectTextAPI, minConfidence float32, logger *zap.Logger) *Engine {
	return &Engine{client: client, minConfidence: minConfidence, logger: logger.Named("rekognition")}
}

// Name identifies the engine.
func (e *Engine) Name() string { return "rekognition" }

// Recognize runs DetectText. Rekognition has no character whitelist, so the
// text is uppercased here and the adapter strips what is left over.
func (e *Engine) Recognize(ctx context.Context, req recognition.Request, report func(float64)) (recognition.Output, error) {
	encoded, err := req.Image.PNG()
	if err != nil {
		return recognition.Output{}, err
	}
	report(0)

	out, err := e.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: encoded},
		Filters: &types.DetectTextFilters{
			WordFilter: &types.DetectionFilter{MinConfidence: aws.Float32(e.minConfidence)},
		},
	})
	if err != nil {
		return recognition.Output{}, fmt.Errorf("detect text: %w", err)
	}

	var (
		lines []string
		total float64
	)
	for _, d := range out.TextDetections {
		if d.Type != types.TextTypesLine || d.DetectedText == nil {
			continue
		}
		lines = append(lines, strings.ToUpper(*d.DetectedText))
		total += float64(aws.ToFloat32(d.Confidence))
	}
	e.logger.Debug("rekognition detections",
		zap.Int("detections", len(out.TextDetections)),
		zap.Int("lines", len(lines)))

	res := recognition.Output{Text: strings.Join(lines, "\n")}
	if len(lines) > 0 {
		res.Confidence = total / float64(len(lines)) / 100
	}
	report(1)
	return res, nil
}
