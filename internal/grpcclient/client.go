package grpcclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/plate-scan/internal/logging"
	"github.com/example/plate-scan/internal/recognition"
)

// RecognizeMethod is the server-streaming RPC exposed by the OCR service.
// The request is a Struct with image_png (base64), whitelist, language, width
// and height; each streamed Struct carries progress, or text and confidence,
// or error.
const RecognizeMethod = "/ocr.v1.Recognizer/Recognize"

var recognizeStream = &grpc.StreamDesc{StreamName: "Recognize", ServerStreams: true}

// DialRecognizer returns a ready-to-use gRPC recognition engine.
func DialRecognizer(ctx context.Context, addr string, logger *zap.Logger) (*Recognizer, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_recognizer", "", err)
		logger.Error("failed to dial recognizer", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewRecognizer(conn, logger), conn, nil
}

// NewRecognizer builds an engine on an existing connection.
func NewRecognizer(conn grpc.ClientConnInterface, logger *zap.Logger) *Recognizer {
	return &Recognizer{conn: conn, logger: logger.Named("grpc_recognizer")}
}

// Recognizer implements recognition.Engine over gRPC.
type Recognizer struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// Name identifies the engine in logs and results.
func (g *Recognizer) Name() string { return "grpc" }

// Recognize streams one binary frame to the OCR service and relays its
// progress until the final text arrives.
func (g *Recognizer) Recognize(ctx context.Context, req recognition.Request, report func(float64)) (recognition.Output, error) {
	encoded, err := req.Image.PNG()
	if err != nil {
		return recognition.Output{}, err
	}
	msg, err := structpb.NewStruct(map[string]interface{}{
		"image_png": base64.StdEncoding.EncodeToString(encoded),
		"whitelist": req.Whitelist,
		"language":  req.Language,
		"width":     float64(req.Image.Width()),
		"height":    float64(req.Image.Height()),
	})
	if err != nil {
		return recognition.Output{}, fmt.Errorf("build request: %w", err)
	}

	stream, err := g.conn.NewStream(ctx, recognizeStream, RecognizeMethod)
	if err != nil {
		return recognition.Output{}, g.fail("grpcclient.open_stream", err)
	}
	if err := stream.SendMsg(msg); err != nil {
		return recognition.Output{}, g.fail("grpcclient.send_image", err)
	}
	if err := stream.CloseSend(); err != nil {
		return recognition.Output{}, g.fail("grpcclient.close_send", err)
	}

	var (
		out  recognition.Output
		done bool
	)
	for {
		resp := &structpb.Struct{}
		err := stream.RecvMsg(resp)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return recognition.Output{}, g.fail("grpcclient.recv", err)
		}

		fields := resp.GetFields()
		if msg := fields["error"].GetStringValue(); msg != "" {
			return recognition.Output{}, g.fail("grpcclient.engine", errors.New(msg))
		}
		if v, ok := fields["progress"]; ok {
			report(v.GetNumberValue())
		}
		if v, ok := fields["text"]; ok {
			out.Text = v.GetStringValue()
			out.Confidence = fields["confidence"].GetNumberValue()
			done = true
		}
	}
	if !done {
		return recognition.Output{}, g.fail("grpcclient.recv", errors.New("stream ended without text"))
	}
	return out, nil
}

func (g *Recognizer) fail(operation string, err error) error {
	wrapped := logging.NewOperationError(operation, "", err)
	g.logger.Error("recognizer call failed", zap.Error(wrapped))
	return wrapped
}
