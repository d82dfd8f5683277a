package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

const echoProcedure = "/test.v1.EchoService/Echo"

type echoService struct{}

func (echoService) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	h := connect.NewUnaryHandler(echoProcedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			if _, ok := req.Msg.AsMap()["fail"]; ok {
				return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("bad input"))
			}
			return connect.NewResponse(req.Msg), nil
		},
		connect.WithInterceptors(interceptors...),
	)
	return "/test.v1.EchoService/", h
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := NewHandler(logger, []ConnectService{echoService{}}, func(mux *http.ServeMux) {
		mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {})
	})
	srv := httptest.NewServer(h)

	client := connect.NewClient[structpb.Struct, structpb.Struct](srv.Client(), srv.URL+echoProcedure)
	msg, err := structpb.NewStruct(map[string]any{"x": "y"})
	require.NoError(t, err)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
	require.NoError(t, err)
	assert.Equal(t, "y", resp.Msg.AsMap()["x"])

	msg, err = structpb.NewStruct(map[string]any{"fail": true})
	require.NoError(t, err)
	_, err = client.CallUnary(context.Background(), connect.NewRequest(msg))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	r, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)

	// Close waits for in-flight handlers, so every log line is written.
	srv.Close()
	logs := buf.String()
	assert.Contains(t, logs, "procedure="+echoProcedure)
	assert.Contains(t, logs, "rpc rejected")
	assert.Contains(t, logs, "path=/healthz")
}
