// Package cli formats command output for the glyphseek CLI.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/builder"
	"github.com/hyperjump/glyphseek/internal/models"
	"github.com/hyperjump/glyphseek/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one "glyph name" line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, compact or json)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%s %s\n", r.Glyph, r.Name)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", response.Total, response.Query, response.QueryTime)
	for _, r := range response.Results {
		fmt.Fprintf(w, "%3d. %s  %-32s %-24s %8.2f\n",
			r.Rank, r.Glyph, utils.Truncate(r.Name, 29), r.Code, r.Score)
	}
	fmt.Fprintln(w)
}

// WriteStatus writes server readiness.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	model := "not loaded"
	switch {
	case st.Model.Loading:
		model = "loading"
	case st.Model.Ready:
		model = "ready"
	}
	fmt.Fprintf(w, "Model:  %s\n", model)
	if st.Corpus.Loaded {
		fmt.Fprintf(w, "Corpus: %d entries, dim %d\n", st.Corpus.Entries, st.Corpus.Dim)
	} else {
		fmt.Fprintln(w, "Corpus: not loaded")
	}
	return nil
}

// LocalStatus describes on-disk state when no server is running.
type LocalStatus struct {
	Model            string `json:"model"`
	Corpus           string `json:"corpus"`
	DiskUsageBytes   *int64 `json:"disk_usage_bytes,omitempty"`
	CachePath        string `json:"cache_path,omitempty"`
	CachedEmbeddings *int64 `json:"cached_embeddings,omitempty"`
}

// WriteLocalStatus writes the output of status when run without a server.
func WriteLocalStatus(w io.Writer, st *LocalStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "model:              %s\n", st.Model)
	fmt.Fprintf(w, "corpus:             %s\n", st.Corpus)
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage:         %s   # corpus + embedding cache on disk\n", utils.FormatBytes(*st.DiskUsageBytes))
	}
	if st.CachePath != "" {
		fmt.Fprintf(w, "cache_path:         %s\n", st.CachePath)
	}
	if st.CachedEmbeddings != nil {
		fmt.Fprintf(w, "cached_embeddings:  %d   # for this model\n", *st.CachedEmbeddings)
	}
	return nil
}

// ArtifactInfo summarizes a decoded artifact file.
type ArtifactInfo struct {
	Path    string         `json:"path"`
	Bytes   int64          `json:"bytes"`
	Dim     int            `json:"dim"`
	Entries int            `json:"entries"`
	Sample  []models.Entry `json:"sample"`
}

// NewArtifactInfo describes a with its first n entries as the sample.
func NewArtifactInfo(path string, size int64, a *artifact.Artifact, n int) *ArtifactInfo {
	n = min(n, a.Len())
	info := &ArtifactInfo{Path: path, Bytes: size, Dim: a.Dim, Entries: a.Len(), Sample: make([]models.Entry, n)}
	for i := 0; i < n; i++ {
		info.Sample[i] = models.Entry{Glyph: a.Chars[i], Code: a.Codes[i], Name: a.Names[i]}
	}
	return info
}

// WriteArtifactInfo writes the output of the inspect command.
func WriteArtifactInfo(w io.Writer, info *ArtifactInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	fmt.Fprintf(w, "Artifact: %s (%s)\n", info.Path, utils.FormatBytes(info.Bytes))
	fmt.Fprintf(w, "Entries:  %d\n", info.Entries)
	fmt.Fprintf(w, "Dim:      %d\n", info.Dim)
	if len(info.Sample) > 0 {
		fmt.Fprintln(w, "\nFirst entries:")
		for i, e := range info.Sample {
			fmt.Fprintf(w, "%5d  %s  %-24s %s\n", i, e.Glyph, e.Code, e.Name)
		}
	}
	return nil
}

// WriteBuildSummary writes the result of a build.
func WriteBuildSummary(w io.Writer, s *builder.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "\nDatabase saved to %s\n", s.Output)
	fmt.Fprintf(w, "  Entries:        %d\n", s.Report.Entries)
	fmt.Fprintf(w, "  Embedding dim:  %d\n", s.Report.Dim)
	fmt.Fprintf(w, "  Scale:          %.4f\n", s.Report.Scale)
	fmt.Fprintf(w, "  Cached:         %d\n", s.Cached)
	fmt.Fprintf(w, "  Reconstruction: mean cosine %.5f, min %.5f, std %.5f\n",
		s.Report.MeanCosine, s.Report.MinCosine, s.Report.StdCosine)
	fmt.Fprintf(w, "  File size:      %s\n", utils.FormatBytes(int64(s.Bytes)))
	fmt.Fprintf(w, "  Took:           %s\n", s.Duration.Round(time.Millisecond))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
