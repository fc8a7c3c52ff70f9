package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"authority/internal/observability/middleware"

	"github.com/stretchr/testify/require"
)

func TestLoggerCarriesServiceAndRequestIDs(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(&buf, Options{Service: "authority", Env: "test", Level: "debug"})

	var ctx context.Context
	h := middleware.WithRequestAndTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	FromContext(ctx, base).Debug("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "authority", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "req-1", line["request_id"])
	require.NotEmpty(t, line["trace_id"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "WARN", parseLevel("warning").String())
	require.Equal(t, "INFO", parseLevel("bogus").String())
}
