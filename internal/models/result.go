package models

// Result is a ranked glyph. Score is the raw quantized dot product: it orders
// results but is not a cosine value.
type Result struct {
	Glyph string  `json:"glyph"`
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string    `json:"query"`
	Results   []*Result `json:"results"`
	Total     int       `json:"total"`
	QueryTime int64     `json:"query_time_ms"`
}
