// Package artifact encodes and decodes the corpus artifact: glyph metadata plus
// the quantized embedding matrix in one self-describing CBOR container.
package artifact

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/hyperjump/glyphseek/internal/errs"
	"github.com/hyperjump/glyphseek/internal/quantize"
)

// MediaType is the content type used when the artifact is served over HTTP.
const MediaType = "application/cbor"

// MaxDim is the largest embedding dimension accepted by the decoder.
const MaxDim = 1 << 16

// maxDecodedSize bounds the inflated size of a compressed artifact.
const maxDecodedSize = 256 << 20

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Artifact is the decoded corpus. Entries are parallel across Chars, Codes, Names
// and the rows of Embeddings; entry order is the corpus index space.
type Artifact struct {
	Dim        int
	Chars      []string
	Codes      []string
	Names      []string
	Embeddings []int8 // row-major, len == Dim * Len()
}

// wire is the on-disk layout. Field names are part of the format.
type wire struct {
	Dim        int      `cbor:"dim"`
	Chars      []string `cbor:"chars"`
	Codes      []string `cbor:"codes"`
	Names      []string `cbor:"names"`
	Embeddings []byte   `cbor:"embeddings"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1 << 24,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: cbor dec mode: %v", err))
	}
}

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	})
	return zstdEnc, zstdDec, zstdErr
}

// FromMatrix assembles an artifact from entry metadata and a quantized matrix.
func FromMatrix(chars, codes, names []string, m *quantize.Matrix) (*Artifact, error) {
	a := &Artifact{
		Dim:        m.Dim,
		Chars:      chars,
		Codes:      codes,
		Names:      names,
		Embeddings: m.Data,
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return a, nil
}

// Len returns the number of entries.
func (a *Artifact) Len() int {
	return len(a.Chars)
}

// Row returns entry i's quantized embedding.
func (a *Artifact) Row(i int) []int8 {
	return a.Embeddings[i*a.Dim : (i+1)*a.Dim]
}

// Validate checks the structural invariants. Violations are ErrCorruptData.
func (a *Artifact) Validate() error {
	return checkShape(a.Dim, len(a.Chars), len(a.Codes), len(a.Names), len(a.Embeddings))
}

func checkShape(dim, chars, codes, names, embeddings int) error {
	if dim <= 0 || dim > MaxDim {
		return errs.Corrupt("dim must be in [1, %d], got %d", MaxDim, dim)
	}
	if codes != chars || names != chars {
		return errs.Corrupt("metadata lengths differ: chars=%d codes=%d names=%d", chars, codes, names)
	}
	if embeddings != dim*chars {
		return errs.Corrupt("embeddings length %d, want dim*entries = %d", embeddings, dim*chars)
	}
	return nil
}

// Encode serializes a well-formed artifact. An ill-formed one is ErrInvalidInput.
func Encode(a *Artifact) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	w := wire{
		Dim:        a.Dim,
		Chars:      a.Chars,
		Codes:      a.Codes,
		Names:      a.Names,
		Embeddings: make([]byte, len(a.Embeddings)),
	}
	for i, v := range a.Embeddings {
		w.Embeddings[i] = byte(v)
	}
	data, err := encMode.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return data, nil
}

// EncodeCompressed is Encode followed by zstd compression. Decode accepts both forms.
func EncodeCompressed(a *Artifact) ([]byte, error) {
	data, err := Encode(a)
	if err != nil {
		return nil, err
	}
	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decode parses an artifact, inflating zstd input first. Any failure is
// ErrCorruptData and no partially decoded artifact is returned.
func Decode(data []byte) (*Artifact, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		_, dec, err := zstdCodecs()
		if err != nil {
			return nil, fmt.Errorf("%w: zstd decoder: %v", errs.ErrDataUnavailable, err)
		}
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, errs.Corrupt("inflate: %v", err)
		}
	}
	var w wire
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, errs.Corrupt("cbor: %v", err)
	}
	if err := checkShape(w.Dim, len(w.Chars), len(w.Codes), len(w.Names), len(w.Embeddings)); err != nil {
		return nil, err
	}
	a := &Artifact{
		Dim:        w.Dim,
		Chars:      nonNil(w.Chars),
		Codes:      nonNil(w.Codes),
		Names:      nonNil(w.Names),
		Embeddings: make([]int8, len(w.Embeddings)),
	}
	for i, b := range w.Embeddings {
		a.Embeddings[i] = int8(b)
	}
	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
