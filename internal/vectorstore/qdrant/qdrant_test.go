package qdrant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placementqa/internal/domain"
)

type recorded struct {
	method string
	path   string
	body   string
}

func fakeQdrant(t *testing.T, searchResult string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		switch {
		case r.Method == http.MethodDelete:
			http.Error(w, "not found", http.StatusNotFound)
		case r.URL.Path == "/collections/passages/points/search":
			_, _ = io.WriteString(w, searchResult)
		default:
			_, _ = io.WriteString(w, `{"result":true,"status":"ok"}`)
		}
	}))
	return srv, &calls
}

func TestStorage_InitUpsert(t *testing.T) {
	srv, calls := fakeQdrant(t, "")
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "passages"})
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Passage{{Index: 7, Text: "Alice"}}, [][]float32{{1, 0}}))

	require.Len(t, *calls, 3)
	assert.Equal(t, http.MethodDelete, (*calls)[0].method)
	assert.Equal(t, http.MethodPut, (*calls)[1].method)
	assert.Contains(t, (*calls)[1].body, `"distance":"Cosine"`)

	var upsert struct {
		Points []struct {
			ID      int            `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal([]byte((*calls)[2].body), &upsert))
	require.Len(t, upsert.Points, 1)
	assert.Equal(t, 7, upsert.Points[0].ID)
	assert.Equal(t, "Alice", upsert.Points[0].Payload["text"])
}

func TestStorage_UpsertDimensionMismatch(t *testing.T) {
	srv, _ := fakeQdrant(t, "")
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "passages"})
	require.NoError(t, s.Init(context.Background(), 3))
	require.Error(t, s.Upsert(context.Background(), []domain.Passage{{Index: 0}}, [][]float32{{1}}))
}

func TestStorage_SearchBreaksTiesByIndex(t *testing.T) {
	result := `{"result":[
		{"id":3,"score":0.5,"payload":{"index":3,"text":"D"}},
		{"id":1,"score":0.9,"payload":{"index":1,"text":"B"}},
		{"id":0,"score":0.5,"payload":{"index":0,"text":"A"}}
	]}`
	srv, _ := fakeQdrant(t, result)
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "passages"})

	res, err := s.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{"B", "A", "D"}, []string{res[0].Passage.Text, res[1].Passage.Text, res[2].Passage.Text})
}
