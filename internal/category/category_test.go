package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allCategories = map[Category]bool{
	SocialMedia:  true,
	Gaming:       true,
	Streaming:    true,
	Creative:     true,
	News:         true,
	Productivity: true,
	Other:        true,
}

func TestClassifyTotality(t *testing.T) {
	inputs := []string{"", "com.instagram.android", "com.unknown.app", "not a package", "🎮"}
	for pkg := range priorityTable {
		inputs = append(inputs, pkg)
	}
	hints := []Hint{HintNone, HintGame, HintAudio, HintVideo, HintImage, HintSocial, HintNews, HintMaps, HintProductivity, Hint(99)}

	for _, pkg := range inputs {
		for _, h := range hints {
			got := Classify(pkg, h)
			assert.True(t, allCategories[got], "Classify(%q, %d) returned unknown category %q", pkg, h, got)
		}
	}
}

func TestPriorityTablePrecedence(t *testing.T) {
	// A hint must never override a priority table entry.
	for pkg, want := range priorityTable {
		for _, h := range []Hint{HintNone, HintGame, HintProductivity} {
			assert.Equal(t, want, Classify(pkg, h), "package %s with hint %d", pkg, h)
		}
	}
}

func TestHintFallback(t *testing.T) {
	const pkg = "com.example.unlisted"

	cases := []struct {
		hint Hint
		want Category
	}{
		{HintGame, Gaming},
		{HintAudio, Streaming},
		{HintVideo, Streaming},
		{HintImage, Creative},
		{HintSocial, SocialMedia},
		{HintNews, News},
		{HintMaps, Productivity},
		{HintProductivity, Productivity},
		{HintNone, Other},
		{Hint(42), Other},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(pkg, tc.hint), "hint %d", tc.hint)
	}
}

func TestIsProductive(t *testing.T) {
	// Allow-listed regardless of category.
	assert.True(t, IsProductive("com.slack", Productivity))
	assert.True(t, IsProductive("com.slack", Other))
	assert.True(t, IsProductive("com.duolingo", SocialMedia))

	// Category fallback.
	assert.True(t, IsProductive("com.example.unlisted", Productivity))

	// Neither.
	assert.False(t, IsProductive("com.example.unlisted", Gaming))
	assert.False(t, IsProductive("com.instagram.android", SocialMedia))
	assert.False(t, IsProductive("", Other))
}
