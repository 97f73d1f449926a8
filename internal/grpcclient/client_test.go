package grpcclient

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/plate-scan/internal/frame"
	"github.com/example/plate-scan/internal/logging"
	"github.com/example/plate-scan/internal/recognition"
)

type recognizerService interface {
	recognize(req *structpb.Struct, stream grpc.ServerStream) error
}

type fakeOCR struct {
	replies []map[string]interface{}
	got     *structpb.Struct
}

func (f *fakeOCR) recognize(req *structpb.Struct, stream grpc.ServerStream) error {
	f.got = req
	for _, r := range f.replies {
		msg, err := structpb.NewStruct(r)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
	return nil
}

var recognizerDesc = grpc.ServiceDesc{
	ServiceName: "ocr.v1.Recognizer",
	HandlerType: (*recognizerService)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Recognize",
		ServerStreams: true,
		Handler: func(srv interface{}, stream grpc.ServerStream) error {
			req := &structpb.Struct{}
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return srv.(recognizerService).recognize(req, stream)
		},
	}},
}

func startFake(t *testing.T, svc *fakeOCR) *Recognizer {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&recognizerDesc, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewRecognizer(conn, zap.NewNop())
}

func request() recognition.Request {
	img := frame.Preprocess(&frame.Frame{Image: image.NewRGBA(image.Rect(0, 0, 3, 2))})
	return recognition.Request{Image: img, Whitelist: recognition.Whitelist, Language: recognition.Language}
}

func TestRecognizeRelaysProgressAndText(t *testing.T) {
	svc := &fakeOCR{replies: []map[string]interface{}{
		{"progress": 0.25},
		{"progress": 0.75},
		{"text": "XYZ 123", "confidence": 0.91},
	}}
	engine := startFake(t, svc)

	var progress []float64
	out, err := engine.Recognize(context.Background(), request(), func(p float64) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "XYZ 123", out.Text)
	assert.InDelta(t, 0.91, out.Confidence, 1e-9)
	assert.Equal(t, []float64{0.25, 0.75}, progress)

	fields := svc.got.GetFields()
	assert.Equal(t, recognition.Whitelist, fields["whitelist"].GetStringValue())
	assert.Equal(t, "eng", fields["language"].GetStringValue())
	assert.Equal(t, float64(3), fields["width"].GetNumberValue())
	_, err = base64.StdEncoding.DecodeString(fields["image_png"].GetStringValue())
	assert.NoError(t, err)
}

func TestRecognizeEngineErrorIsFailure(t *testing.T) {
	svc := &fakeOCR{replies: []map[string]interface{}{
		{"progress": 0.5},
		{"error": "model not loaded"},
	}}
	engine := startFake(t, svc)

	_, err := engine.Recognize(context.Background(), request(), func(float64) {})
	require.Error(t, err)
	var opErr *logging.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "grpcclient.engine", opErr.Operation)
}

func TestRecognizeWithoutTextFails(t *testing.T) {
	engine := startFake(t, &fakeOCR{replies: []map[string]interface{}{{"progress": 1.0}}})

	_, err := engine.Recognize(context.Background(), request(), func(float64) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream ended without text")
}
