package embedding

// DefaultOutputName is the token-level output of sentence-transformer exports.
const DefaultOutputName = "last_hidden_state"

// ONNXConfig configures an ONNXEmbedder.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string // onnxruntime shared library; empty uses the platform default
	OutputName  string
	Dimensions  int
	MaxTokens   int
	CacheSize   int
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.OutputName == "" {
		c.OutputName = DefaultOutputName
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxTokens <= 2 {
		c.MaxTokens = 256
	}
	return c
}

// MeanPool averages the token vectors in hidden (laid out token-major, dim
// floats per token) over the positions where mask is 1.
func MeanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var n float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		base := t * dim
		if base+dim > len(hidden) {
			break
		}
		for j := 0; j < dim; j++ {
			out[j] += hidden[base+j]
		}
		n++
	}
	if n == 0 {
		return out
	}
	for j := range out {
		out[j] /= n
	}
	return out
}
