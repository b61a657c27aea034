package search

import (
	"strings"

	"github.com/hyperjump/glyphseek/internal/config"
	"github.com/hyperjump/glyphseek/internal/models"
)

// ProcessQuery collapses runs of whitespace in the query text and applies the
// configured limits.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	query.Query = strings.Join(strings.Fields(query.Query), " ")
	return query.Validate(cfg.DefaultLimit, cfg.MaxLimit)
}
