package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/builder"
	"github.com/hyperjump/glyphseek/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "happy",
		QueryTime: 7,
		Total:     2,
		Results: []*models.Result{
			{Glyph: "😀", Code: "U+1F600", Name: "grinning", Score: 101.25, Rank: 1},
			{Glyph: "🎉", Code: "U+1F389", Name: "tada", Score: 55.5, Rank: 2},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", OutputCompact, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != "happy" || decoded.QueryTime != 7 || decoded.Total != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].Glyph != "😀" {
		t.Errorf("decoded results = %+v", decoded.Results)
	}
	if !strings.Contains(buf.String(), `"query_time_ms": 7`) {
		t.Errorf("expected query_time_ms field:\n%s", buf.String())
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`Found 2 results for "happy" in 7ms`, "😀", "grinning", "U+1F389", "101.25"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "😀 grinning\n🎉 tada\n" {
		t.Errorf("compact output = %q", got)
	}
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	st := &models.Status{
		Model:  models.ProviderStatus{Loading: true},
		Corpus: models.CorpusStatus{Loaded: true, Entries: 1870, Dim: 384},
	}
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Model:  loading") || !strings.Contains(buf.String(), "1870 entries, dim 384") {
		t.Errorf("status output:\n%s", buf.String())
	}

	buf.Reset()
	if err := WriteStatus(&buf, &models.Status{}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Model:  not loaded") || !strings.Contains(buf.String(), "Corpus: not loaded") {
		t.Errorf("empty status output:\n%s", buf.String())
	}
}

func TestWriteLocalStatus(t *testing.T) {
	var buf bytes.Buffer
	size, cached := int64(2048), int64(1870)
	st := &LocalStatus{
		Model:            "onnx:model.onnx:384",
		Corpus:           "/data/corpus.cbor",
		DiskUsageBytes:   &size,
		CachePath:        "/data/cache.db",
		CachedEmbeddings: &cached,
	}
	if err := WriteLocalStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"onnx:model.onnx:384", "2.00 KB", "cached_embeddings:  1870"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteLocalStatus(&buf, &LocalStatus{Model: "hash-32", Corpus: "c"}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["cached_embeddings"]; ok {
		t.Error("cached_embeddings should be omitted when unknown")
	}
}

func TestWriteArtifactInfo(t *testing.T) {
	a := &artifact.Artifact{
		Dim:        2,
		Chars:      []string{"😀", "🐶", "🎉"},
		Codes:      []string{"U+1F600", "U+1F436", "U+1F389"},
		Names:      []string{"grinning", "dog", "tada"},
		Embeddings: []int8{127, 0, 0, 127, 89, 89},
	}
	info := NewArtifactInfo("/tmp/corpus.cbor", 2048, a, 2)
	if len(info.Sample) != 2 || info.Entries != 3 {
		t.Fatalf("info = %+v", info)
	}
	if NewArtifactInfo("x", 0, a, 10).Entries != 3 {
		t.Error("sample larger than corpus should clamp")
	}

	var buf bytes.Buffer
	if err := WriteArtifactInfo(&buf, info, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "2.00 KB") || !strings.Contains(out, "Entries:  3") || !strings.Contains(out, "dog") {
		t.Errorf("inspect output:\n%s", out)
	}
	if strings.Contains(out, "tada") {
		t.Error("only the sample should be listed")
	}
}

func TestWriteBuildSummary(t *testing.T) {
	s := &builder.Summary{
		Output:   "/tmp/corpus.cbor",
		Bytes:    3 << 20,
		Report:   builder.Report{Entries: 1870, Dim: 384, Scale: 504.2, MeanCosine: 0.99991},
		Duration: 1500 * time.Millisecond,
	}
	var buf bytes.Buffer
	if err := WriteBuildSummary(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Database saved to /tmp/corpus.cbor", "1870", "384", "3.00 MB", "0.99991"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, buf.String())
		}
	}
}
