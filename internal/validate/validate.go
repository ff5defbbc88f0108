// Package validate applies the SEO quality rules a draft must pass before it
// may be published.
package validate

import (
	"fmt"

	"github.com/TobiSchelling/geopages/internal/content"
	"github.com/TobiSchelling/geopages/internal/database"
)

// Violation messages. Callers match on these, so keep them stable.
const (
	ErrWordCountBelowMin = "word count below minimum"
	ErrWordCountAboveMax = "word count above maximum"
	ErrMissingIntro      = "intro is empty"
	ErrNoSections        = "content has no sections"
	ErrEntityNotFound    = "geo entity not found"
	ErrEntityInactive    = "geo entity is inactive"
)

// Input is everything a validation run looks at.
type Input struct {
	PageType database.PageType
	Slug     string
	Content  *content.Document
	// Entity is the geo entity the item's entity_id resolves to, nil if it
	// does not resolve.
	Entity *database.GeoEntity
}

// Validate checks word count, structure and the required fields, in that
// order, and returns every violation found. An empty result means the draft
// passed. A zero content_max_words disables the upper bound.
func Validate(in Input, s database.Settings) []string {
	errs := []string{}

	var doc content.Document
	if in.Content != nil {
		doc = *in.Content
	}

	words := doc.WordCount()
	if words < s.ContentMinWords {
		errs = append(errs, ErrWordCountBelowMin)
	}
	if s.ContentMaxWords > 0 && words > s.ContentMaxWords {
		errs = append(errs, ErrWordCountAboveMax)
	}

	if doc.Intro == "" {
		errs = append(errs, ErrMissingIntro)
	}
	if len(doc.Sections) == 0 {
		errs = append(errs, ErrNoSections)
	}
	for i, sec := range doc.Sections {
		if sec.Heading == "" {
			errs = append(errs, fmt.Sprintf("section %d has no heading", i+1))
		}
		if sec.Body == "" {
			errs = append(errs, fmt.Sprintf("section %d has no body", i+1))
		}
	}

	switch {
	case in.Entity == nil:
		errs = append(errs, ErrEntityNotFound)
	default:
		if !in.Entity.IsActive {
			errs = append(errs, ErrEntityInactive)
		}
		if in.Entity.Slug != in.Slug {
			errs = append(errs, fmt.Sprintf("slug %q does not match geo entity slug %q", in.Slug, in.Entity.Slug))
		}
		if in.Entity.EntityType != in.PageType {
			errs = append(errs, fmt.Sprintf("page type %q does not match geo entity type %q", in.PageType, in.Entity.EntityType))
		}
	}
	if in.Slug == "" {
		errs = append(errs, "slug is empty")
	}
	if !in.PageType.Valid() {
		errs = append(errs, fmt.Sprintf("unknown page type %q", in.PageType))
	}

	return errs
}
