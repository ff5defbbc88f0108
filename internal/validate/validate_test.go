package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/geopages/internal/content"
	"github.com/TobiSchelling/geopages/internal/database"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func doc(introWords, bodyWords int) *content.Document {
	return &content.Document{
		Intro: words(introWords),
		Sections: []content.Section{
			{Heading: "Finding a dentist", Level: 2, Body: words(bodyWords)},
		},
	}
}

func city() *database.GeoEntity {
	return &database.GeoEntity{ID: 1, EntityType: database.PageTypeCity, Slug: "springfield", IsActive: true}
}

func settings(lo, hi int) database.Settings {
	return database.Settings{ContentMinWords: lo, ContentMaxWords: hi, AutoPublishThreshold: 0.85}
}

func input(d *content.Document) Input {
	return Input{PageType: database.PageTypeCity, Slug: "springfield", Content: d, Entity: city()}
}

func TestValidatePasses(t *testing.T) {
	errs := Validate(input(doc(50, 600)), settings(500, 1500))
	require.Empty(t, errs)
	require.NotNil(t, errs)
}

func TestValidateWordCountBelowMin(t *testing.T) {
	errs := Validate(input(doc(20, 100)), settings(300, 1500))
	require.Equal(t, []string{ErrWordCountBelowMin}, errs)
}

func TestValidateWordCountAboveMax(t *testing.T) {
	errs := Validate(input(doc(20, 2000)), settings(300, 1500))
	require.Equal(t, []string{ErrWordCountAboveMax}, errs)
}

func TestValidateZeroMaxDisablesUpperBound(t *testing.T) {
	require.Empty(t, Validate(input(doc(20, 5000)), settings(300, 0)))
}

func TestValidateStructure(t *testing.T) {
	d := &content.Document{
		Sections: []content.Section{{Heading: "", Body: words(10)}, {Heading: "H", Body: ""}},
	}
	errs := Validate(input(d), settings(0, 0))
	require.Equal(t, []string{
		ErrMissingIntro,
		"section 1 has no heading",
		"section 2 has no body",
	}, errs)

	errs = Validate(input(&content.Document{Intro: "intro"}), settings(0, 0))
	require.Equal(t, []string{ErrNoSections}, errs)
}

func TestValidateNilContent(t *testing.T) {
	errs := Validate(input(nil), settings(10, 100))
	require.Equal(t, []string{ErrWordCountBelowMin, ErrMissingIntro, ErrNoSections}, errs)
}

func TestValidateEntity(t *testing.T) {
	in := input(doc(10, 10))
	in.Entity = nil
	require.Equal(t, []string{ErrEntityNotFound}, Validate(in, settings(0, 0)))

	in = input(doc(10, 10))
	in.Entity.IsActive = false
	require.Equal(t, []string{ErrEntityInactive}, Validate(in, settings(0, 0)))

	in = input(doc(10, 10))
	in.Slug = "shelbyville"
	errs := Validate(in, settings(0, 0))
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "does not match geo entity slug")

	in = input(doc(10, 10))
	in.PageType = database.PageTypeState
	errs = Validate(in, settings(0, 0))
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "does not match geo entity type")
}
