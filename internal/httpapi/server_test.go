package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placementqa/internal/dataset"
	"placementqa/internal/domain"
	"placementqa/internal/service"
)

type fakeEngine struct {
	question, model string
}

func (f *fakeEngine) Ask(_ context.Context, question, model string) service.Answer {
	f.question, f.model = question, model
	return service.Answer{Text: "42", Source: service.SourceAggregation}
}

func (f *fakeEngine) Dataset() *dataset.Dataset {
	return dataset.New("test.csv", []domain.Record{{Name: "Alice", CollegeName: "MIT", PlacementStatus: "Placed", GPA: 3.5}})
}

func newServer(t *testing.T) (*httptest.Server, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "placementqa_test_total", Help: "test"}))
	srv := httptest.NewServer(NewServer(eng, reg, nil, "").Handler())
	t.Cleanup(srv.Close)
	return srv, eng
}

func TestAsk(t *testing.T) {
	srv, eng := newServer(t)
	resp, err := http.Post(srv.URL+"/api/ask", "application/json",
		strings.NewReader(`{"question":"How many students were placed?","model":"accurate"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body askResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "42", body.Answer)
	assert.Equal(t, "aggregation", body.Source)
	assert.Equal(t, "How many students were placed?", eng.question)
	assert.Equal(t, "accurate", eng.model)
}

func TestAsk_BadRequest(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	get, err := http.Get(srv.URL + "/api/ask")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func TestHealthSummaryAndMetrics(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/summary")
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	resp.Body.Close()
	assert.Equal(t, "test.csv", summary["source"])
	assert.Equal(t, 1.0, summary["rows"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "placementqa_test_total")
}
