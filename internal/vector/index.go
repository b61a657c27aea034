// Package vector scores a float query against the quantized corpus matrix and
// selects the best entries.
package vector

// VectorResult is a single hit. Index is the entry's position in the corpus.
type VectorResult struct {
	Index int
	Score float64 // raw dot product against the int8 row; ranks like cosine, not a cosine value
}
