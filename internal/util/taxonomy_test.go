package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTaxonomyValue(t *testing.T) {
	tests := map[string]string{
		"News, Updates":     "News Updates",
		"  spaced   out  ":  "spaced out",
		",,,":               "",
		"plain":             "plain",
		"tab\tand\nnewline": "tab and newline",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeTaxonomyValue(in), "SanitizeTaxonomyValue(%q)", in)
	}
}

func TestJoinTaxonomy(t *testing.T) {
	joined, ok := JoinTaxonomy([]string{"News, Updates", "intro", "  "})
	assert.True(t, ok)
	assert.Equal(t, "News Updates,intro", joined)

	_, ok = JoinTaxonomy([]string{",", " "})
	assert.False(t, ok)

	_, ok = JoinTaxonomy(nil)
	assert.False(t, ok)
}
