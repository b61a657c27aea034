// Package builder turns a raw emoji description file into the corpus artifact:
// entry preparation, batched embedding, quantization and encoding.
package builder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/hyperjump/glyphseek/internal/errs"
	"github.com/hyperjump/glyphseek/internal/models"
)

// RawEmoji is one record of the emoji-datasource JSON file.
type RawEmoji struct {
	Unified     string   `json:"unified"`
	ShortName   string   `json:"short_name"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	ShortNames  []string `json:"short_names"`
	ObsoletedBy string   `json:"obsoleted_by,omitempty"`
	HasImgApple bool     `json:"has_img_apple"`
}

// Prepared is an entry together with the text embedded for it.
type Prepared struct {
	Entry       models.Entry
	Description string
}

// LoadRawCorpus reads and parses the raw corpus file at path.
func LoadRawCorpus(path string) ([]RawEmoji, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw corpus: %w", err)
	}
	return ParseRawCorpus(data)
}

// ParseRawCorpus decodes a JSON array of raw records.
func ParseRawCorpus(data []byte) ([]RawEmoji, error) {
	var raw []RawEmoji
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Invalid("parse raw corpus: %v", err)
	}
	return raw, nil
}

// PrepareEntries drops obsolete records and those without an Apple image, then
// derives each entry's glyph, code, name and description. Order is preserved;
// it becomes the corpus index space.
func PrepareEntries(raw []RawEmoji) ([]Prepared, error) {
	out := make([]Prepared, 0, len(raw))
	for i, r := range raw {
		if r.ObsoletedBy != "" || !r.HasImgApple {
			continue
		}
		glyph, code, err := parseUnified(r.Unified)
		if err != nil {
			return nil, errs.Invalid("record %d (%s): %v", i, r.ShortName, err)
		}
		name := underscoresToSpaces(r.ShortName)
		out = append(out, Prepared{
			Entry:       models.Entry{Glyph: glyph, Code: code, Name: name},
			Description: describe(name, r),
		})
	}
	if len(out) == 0 {
		return nil, errs.Invalid("raw corpus has no usable entries")
	}
	return out, nil
}

// parseUnified turns "1F44D-1F3FD" into the glyph and "U+1F44D U+1F3FD".
func parseUnified(unified string) (glyph, code string, err error) {
	if unified == "" {
		return "", "", fmt.Errorf("empty unified code")
	}
	parts := strings.Split(unified, "-")
	var g strings.Builder
	codes := make([]string, len(parts))
	for i, hex := range parts {
		cp, err := strconv.ParseUint(hex, 16, 32)
		if err != nil || cp > unicode.MaxRune {
			return "", "", fmt.Errorf("bad code point %q", hex)
		}
		if cp >= 0xD800 && cp <= 0xDFFF {
			return "", "", fmt.Errorf("surrogate code point %q", hex)
		}
		g.WriteRune(rune(cp))
		codes[i] = "U+" + hex
	}
	return g.String(), strings.Join(codes, " "), nil
}

func describe(name string, r RawEmoji) string {
	keywords := []string{
		name,
		strings.ToLower(r.Name),
		strings.ToLower(r.Category),
		strings.ToLower(r.Subcategory),
	}
	for _, s := range r.ShortNames {
		keywords = append(keywords, underscoresToSpaces(s))
	}
	seen := make(map[string]struct{}, len(keywords))
	unique := keywords[:0]
	for _, k := range keywords {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	return strings.Join(unique, " ")
}

func underscoresToSpaces(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
