package importfile

import (
	"encoding/json/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
)

func sampleData() *domain.SeedImportData {
	return &domain.SeedImportData{
		Source: domain.ImportSource{
			Type:      domain.SourceTypeWXR,
			SiteTitle: "Example",
			SiteURL:   "https://blog.example.com",
		},
		Authors: map[string]*domain.ImportAuthor{
			"alice": {DisplayName: "Alice", Email: "alice@example.com", Mnemonic: []string{"abandon", "ability"}},
		},
		ImageCache: map[string]string{},
		Progress:   domain.ImportProgress{TotalPosts: 1, Phase: domain.PhasePending},
		Posts:      []domain.ImportPostRef{{ID: 1, Path: []string{"posts", "hello"}, AuthorLogin: "alice"}},
		WXRPosts: map[int]*domain.ImportPost{
			1: {ID: 1, Title: "Hello", Slug: "hello", Content: "<p>hi</p>", Categories: []string{}, Tags: []string{"t"}},
		},
	}
}

func TestCreateParse_Plain(t *testing.T) {
	file, err := Create(sampleData(), "")
	require.NoError(t, err)
	assert.False(t, file.Encrypted)
	assert.Equal(t, domain.ImportFileFormatV1, file.Format)

	content, err := Serialize(file)
	require.NoError(t, err)

	data, err := Parse(content, "")
	require.NoError(t, err)
	assert.Equal(t, sampleData(), data)
}

func TestCreateParse_Encrypted(t *testing.T) {
	file, err := Create(sampleData(), "hunter2")
	require.NoError(t, err)
	assert.True(t, file.Encrypted)
	assert.NotContains(t, string(file.Data), "abandon", "mnemonics must not be stored in clear")

	content, err := Serialize(file)
	require.NoError(t, err)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(content, &envelope))
	assert.IsType(t, "", envelope["data"])

	data, err := Parse(content, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, sampleData(), data)
}

func TestParse_EncryptedWithoutPassword(t *testing.T) {
	file, err := Create(sampleData(), "hunter2")
	require.NoError(t, err)
	content, err := Serialize(file)
	require.NoError(t, err)

	_, err = Parse(content, "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = Parse(content, "wrong")
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	for _, content := range []string{
		`{"format":"seed-import-v2","encrypted":false,"data":{}}`,
		`{"encrypted":false,"data":{}}`,
	} {
		_, err := Parse([]byte(content), "")
		assert.ErrorIs(t, err, ErrUnsupportedFormat, content)
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`not json`), "")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse([]byte(`{"format":"seed-import-v1","encrypted":false}`), "")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse([]byte(`{"format":"seed-import-v1","encrypted":true,"data":{"x":1}}`), "pw")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_FillsEmptyMaps(t *testing.T) {
	data, err := Parse([]byte(`{"format":"seed-import-v1","encrypted":false,"data":{"posts":[]}}`), "")
	require.NoError(t, err)
	assert.NotNil(t, data.Authors)
	assert.NotNil(t, data.ImageCache)
	assert.NotNil(t, data.WXRPosts)
}
