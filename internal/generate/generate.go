// Package generate drafts landing-page content with an LLM provider.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/TobiSchelling/geopages/internal/content"
	"github.com/TobiSchelling/geopages/internal/llm"
	"github.com/TobiSchelling/geopages/internal/pipeline"
)

// DefaultMaxTokens bounds a single draft when none is configured.
const DefaultMaxTokens = 4096

// ErrNoProvider is returned when no LLM provider could be configured.
var ErrNoProvider = errors.New("no LLM provider available")

const systemPrompt = `You write local SEO landing pages for a dental clinic directory. ` +
	`Pages help patients find dentists in a specific place. Be concrete and helpful, ` +
	`never invent clinic names, prices or statistics, and avoid medical claims.`

const pagePrompt = `Write the landing page for dentists in %s.

Page type: %s
Location: %s
Target length: between %d and %d words across the intro and section bodies.

Cover: finding a dentist in the area, common treatments (checkups, cleanings, fillings, orthodontics, emergency care), what to expect at a first visit, insurance and payment questions, and how to book.

Respond with ONLY this JSON:
{
    "title": "Page title, under 60 characters",
    "meta_description": "Search snippet, under 155 characters",
    "intro": "Opening paragraph in markdown",
    "sections": [
        {"heading": "Section heading", "level": 2, "body": "Markdown body"}
    ],
    "confidence": 0.0
}

Set "confidence" between 0 and 1 to reflect how well the page meets the brief.`

type draftResponse struct {
	content.Document
	Confidence *float64 `json:"confidence"`
}

// Generator is the LLM-backed content source for the pipeline.
type Generator struct {
	provider  llm.Provider
	maxTokens int
}

// New creates a generator. A nil provider makes every call fail with
// ErrNoProvider, which the pipeline accounts as a failed attempt.
func New(provider llm.Provider, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Generator{provider: provider, maxTokens: maxTokens}
}

// Generate drafts the page for one entity.
func (g *Generator) Generate(ctx context.Context, e pipeline.EntityInfo) (pipeline.Draft, error) {
	if g.provider == nil {
		return pipeline.Draft{}, ErrNoProvider
	}

	text, err := g.provider.Generate(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    buildPrompt(e),
		MaxTokens: g.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return pipeline.Draft{}, err
	}

	var resp draftResponse
	if err := llm.DecodeJSONResponse(text, &resp); err != nil {
		return pipeline.Draft{}, err
	}

	doc := resp.Document
	doc.Normalize()
	if doc.Intro == "" && len(doc.Sections) == 0 {
		return pipeline.Draft{}, fmt.Errorf("model returned no page content for %s", e.Slug)
	}

	confidence := 0.0
	if resp.Confidence != nil {
		confidence = clamp(*resp.Confidence)
	} else {
		log.Printf("Model gave no confidence for %s %s, using 0", e.PageType, e.Slug)
	}

	return pipeline.Draft{Content: doc, Confidence: confidence}, nil
}

func buildPrompt(e pipeline.EntityInfo) string {
	location := e.Name
	if e.ParentName != "" {
		location = e.Name + ", " + e.ParentName
	}
	lo, hi := e.MinWords, e.MaxWords
	if hi <= 0 || hi < lo {
		hi = lo + 1000
	}
	return fmt.Sprintf(pagePrompt, location, e.PageType, location, lo, hi)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
