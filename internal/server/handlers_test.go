package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/config"
	"github.com/hyperjump/glyphseek/internal/embedding"
	"github.com/hyperjump/glyphseek/internal/errs"
	"github.com/hyperjump/glyphseek/internal/metrics"
	"github.com/hyperjump/glyphseek/internal/models"
	"github.com/hyperjump/glyphseek/internal/quantize"
	"github.com/hyperjump/glyphseek/internal/search"
)

type bytesSource struct {
	data []byte
	err  error
}

func (b *bytesSource) Fetch(context.Context) ([]byte, error) { return b.data, b.err }
func (b *bytesSource) Location() string                      { return "test" }

// buildCorpus embeds names with the hash embedder so that searching a name
// ranks its entry first.
func buildCorpus(t *testing.T, names ...string) []byte {
	t.Helper()
	emb := embedding.NewHashEmbedder(64)
	vectors, err := emb.EmbedBatch(context.Background(), names)
	if err != nil {
		t.Fatal(err)
	}
	m, err := quantize.Quantize(vectors)
	if err != nil {
		t.Fatal(err)
	}
	chars := make([]string, len(names))
	codes := make([]string, len(names))
	for i := range names {
		chars[i] = string(rune(0x1F600 + i))
		codes[i] = fmt.Sprintf("U+%X", 0x1F600+i)
	}
	a, err := artifact.FromMatrix(chars, codes, names, m)
	if err != nil {
		t.Fatal(err)
	}
	data, err := artifact.Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestServer(t *testing.T, src *bytesSource, factory embedding.Factory) (*Server, *embedding.Provider) {
	t.Helper()
	if factory == nil {
		factory = func(context.Context) (embedding.Embedder, error) {
			return embedding.NewHashEmbedder(64), nil
		}
	}
	provider := embedding.NewProvider(factory)
	engine := search.NewEngine(provider, src, &config.SearchConfig{DefaultLimit: 2, MaxLimit: 5})
	srv := NewServer(engine, provider, metrics.New(), &config.ServerConfig{Host: "localhost", Port: 0}, nil)
	return srv, provider
}

func TestHandleSearch(t *testing.T) {
	src := &bytesSource{data: buildCorpus(t, "grinning face", "dog face", "party popper")}
	srv, _ := newTestServer(t, src, nil)
	h := srv.Handler()

	body, _ := json.Marshal(models.SearchQuery{Query: "dog", Limit: 3})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || len(resp.Results) != 3 {
		t.Fatalf("total = %d, results = %d", resp.Total, len(resp.Results))
	}
	if resp.Results[0].Name != "dog face" || resp.Results[0].Rank != 1 {
		t.Errorf("top result = %+v", resp.Results[0])
	}
	if resp.Query != "dog" {
		t.Errorf("query = %q", resp.Query)
	}
}

func TestHandleSearchGet(t *testing.T) {
	src := &bytesSource{data: buildCorpus(t, "grinning face", "dog face", "party popper")}
	srv, _ := newTestServer(t, src, nil)
	h := srv.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=party", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("default limit 2 expected, got %d", len(resp.Results))
	}
	if resp.Results[0].Name != "party popper" {
		t.Errorf("top result = %+v", resp.Results[0])
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=party&limit=x", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}
}

func TestHandleSearch_ErrorMapping(t *testing.T) {
	corpus := buildCorpus(t, "grinning face")
	tests := []struct {
		name    string
		src     *bytesSource
		factory embedding.Factory
		body    string
		want    int
	}{
		{"invalid body", &bytesSource{data: corpus}, nil, "{", http.StatusBadRequest},
		{"empty query", &bytesSource{data: corpus}, nil, `{"query": "  "}`, http.StatusBadRequest},
		{"model unavailable", &bytesSource{data: corpus}, func(context.Context) (embedding.Embedder, error) {
			return nil, errors.New("missing model")
		}, `{"query": "x"}`, http.StatusServiceUnavailable},
		{"data unavailable", &bytesSource{err: errs.ErrDataUnavailable}, nil, `{"query": "x"}`, http.StatusBadGateway},
		{"corrupt data", &bytesSource{data: corpus[:len(corpus)-2]}, nil, `{"query": "x"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.src, tt.factory)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			var out map[string]string
			if err := json.NewDecoder(w.Body).Decode(&out); err != nil || out["error"] == "" {
				t.Errorf("expected error body, got %v (%v)", out, err)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(errors.New("x")); got != http.StatusInternalServerError {
		t.Errorf("unknown error: got %d", got)
	}
	if got := statusFor(&errs.DimensionMismatchError{Expected: 2, Actual: 3}); got != http.StatusServiceUnavailable {
		t.Errorf("dimension mismatch: got %d", got)
	}
}

func TestHandleStatus(t *testing.T) {
	src := &bytesSource{data: buildCorpus(t, "grinning face", "dog face")}
	srv, provider := newTestServer(t, src, nil)
	h := srv.Handler()

	get := func() models.Status {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status: got %d", w.Code)
		}
		var st models.Status
		if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
			t.Fatal(err)
		}
		return st
	}

	if st := get(); st.Model.Ready || st.Corpus.Loaded {
		t.Errorf("before any search: %+v", st)
	}
	if err := provider.Preload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.engine.SearchTopK(context.Background(), "dog", 1); err != nil {
		t.Fatal(err)
	}
	st := get()
	if !st.Model.Ready || st.Model.Loading {
		t.Errorf("model status: %+v", st.Model)
	}
	if st.Corpus != (models.CorpusStatus{Loaded: true, Entries: 2, Dim: 64}) {
		t.Errorf("corpus status: %+v", st.Corpus)
	}
}

func TestHandleStatusStream(t *testing.T) {
	release := make(chan struct{})
	src := &bytesSource{data: buildCorpus(t, "grinning face")}
	srv, provider := newTestServer(t, src, func(context.Context) (embedding.Embedder, error) {
		<-release
		return embedding.NewHashEmbedder(64), nil
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}

	events := make(chan models.ProviderStatus, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var st models.ProviderStatus
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &st); err == nil {
				events <- st
			}
		}
		close(events)
	}()
	next := func() models.ProviderStatus {
		t.Helper()
		select {
		case st, ok := <-events:
			if !ok {
				t.Fatal("stream closed")
			}
			return st
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
		return models.ProviderStatus{}
	}

	if st := next(); st != (models.ProviderStatus{}) {
		t.Fatalf("first event = %+v", st)
	}
	go func() { _ = provider.Preload(context.Background()) }()
	if st := next(); st != (models.ProviderStatus{Loading: true}) {
		t.Fatalf("second event = %+v", st)
	}
	close(release)
	if st := next(); st != (models.ProviderStatus{Ready: true}) {
		t.Fatalf("third event = %+v", st)
	}
}

func TestHandleCorpus(t *testing.T) {
	data := buildCorpus(t, "grinning face", "dog face")
	srv, _ := newTestServer(t, &bytesSource{data: data}, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/corpus.cbor", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != artifact.MediaType {
		t.Errorf("content type = %s", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), data) {
		t.Error("served artifact should be the canonical encoding of the loaded corpus")
	}

	bad, _ := newTestServer(t, &bytesSource{err: errs.ErrDataUnavailable}, nil)
	w = httptest.NewRecorder()
	bad.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/corpus.cbor", nil))
	if w.Code != http.StatusBadGateway {
		t.Errorf("unavailable corpus: got %d", w.Code)
	}
}

func TestHandleHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &bytesSource{data: buildCorpus(t, "a")}, nil)
	h := srv.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `glyphseek_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("metrics should count the health request:\n%s", body)
	}
}
