package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultSectionLevel is the heading level used when a section carries none.
const DefaultSectionLevel = 2

var md = goldmark.New()

// Section is one heading with its markdown body.
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Body    string `json:"body"`
}

// Document is the structured draft of a landing page: an intro followed by
// ordered sections. Bodies are markdown.
type Document struct {
	Title           string    `json:"title,omitempty"`
	MetaDescription string    `json:"meta_description,omitempty"`
	Intro           string    `json:"intro"`
	Sections        []Section `json:"sections"`
}

// Decode parses a JSON document and normalizes it.
func Decode(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("decoding content: %w", err)
	}
	d.Normalize()
	return d, nil
}

// Normalize trims whitespace, clamps heading levels into 2..6 and drops
// sections with neither heading nor body.
func (d *Document) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.MetaDescription = strings.TrimSpace(d.MetaDescription)
	d.Intro = strings.TrimSpace(d.Intro)

	sections := d.Sections[:0]
	for _, s := range d.Sections {
		s.Heading = strings.TrimSpace(s.Heading)
		s.Body = strings.TrimSpace(s.Body)
		if s.Heading == "" && s.Body == "" {
			continue
		}
		switch {
		case s.Level <= 0:
			s.Level = DefaultSectionLevel
		case s.Level < 2:
			s.Level = 2
		case s.Level > 6:
			s.Level = 6
		}
		sections = append(sections, s)
	}
	if len(sections) == 0 {
		sections = nil
	}
	d.Sections = sections
}

// WordCount counts the words of the intro and every section body. Markdown
// syntax is not counted, only the text it renders.
func (d Document) WordCount() int {
	n := countWords(d.Intro)
	for _, s := range d.Sections {
		n += countWords(s.Body)
	}
	return n
}

// Markdown renders the document as a single markdown page.
func (d Document) Markdown() string {
	var b strings.Builder
	if d.Title != "" {
		b.WriteString("# ")
		b.WriteString(d.Title)
		b.WriteString("\n\n")
	}
	if d.Intro != "" {
		b.WriteString(d.Intro)
		b.WriteString("\n\n")
	}
	for _, s := range d.Sections {
		level := s.Level
		if level <= 0 {
			level = DefaultSectionLevel
		}
		if s.Heading != "" {
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
			b.WriteString(s.Heading)
			b.WriteString("\n\n")
		}
		if s.Body != "" {
			b.WriteString(s.Body)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// HTML renders the document through goldmark.
func (d Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(d.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("rendering content: %w", err)
	}
	return buf.String(), nil
}

// Summary returns the first maxLen characters of the intro, cut on a word
// boundary.
func (d Document) Summary(maxLen int) string {
	intro := strings.Join(strings.Fields(d.Intro), " ")
	r := []rune(intro)
	if len(r) <= maxLen {
		return intro
	}
	cut := string(r[:maxLen])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

func countWords(source string) int {
	if strings.TrimSpace(source) == "" {
		return 0
	}
	src := []byte(source)
	root := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Type() == ast.TypeBlock {
			b.WriteByte(' ')
		}
		switch n := node.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		case *ast.AutoLink:
			b.WriteByte(' ')
			b.Write(n.Label(src))
			b.WriteByte(' ')
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			// code lines are not child nodes
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})

	return len(strings.Fields(b.String()))
}
