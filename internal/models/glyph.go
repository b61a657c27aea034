// Package models defines the data structures shared by search, build and the HTTP API.
package models

// Entry is one searchable glyph. Its position in the corpus is its index.
type Entry struct {
	Glyph string `json:"glyph"` // one or more code points rendered as one symbol
	Code  string `json:"code"`  // e.g. "U+1F44D U+1F3FD"
	Name  string `json:"name"`
}

// ProviderStatus is the embedding provider's readiness.
type ProviderStatus struct {
	Loading bool `json:"loading"`
	Ready   bool `json:"ready"`
}

// CorpusStatus describes the decoded corpus, if any.
type CorpusStatus struct {
	Loaded  bool `json:"loaded"`
	Entries int  `json:"entries,omitempty"`
	Dim     int  `json:"dim,omitempty"`
}

// Status is the combined readiness reported by the server.
type Status struct {
	Model  ProviderStatus `json:"model"`
	Corpus CorpusStatus   `json:"corpus"`
}
