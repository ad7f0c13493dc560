package domain

import (
	"encoding/json/jsontext"
)

// SourceTypeWXR tags import data built from a WordPress export.
const SourceTypeWXR = "wordpress-wxr"

// ImportSource describes where the import data came from.
type ImportSource struct {
	Type       string `json:"type"`
	SiteTitle  string `json:"siteTitle"`
	SiteURL    string `json:"siteUrl"`
	ExportDate string `json:"exportDate"` // RFC 3339, when the import data was built
}

// ImportAuthor is one entry of the authors table, keyed by normalized login.
type ImportAuthor struct {
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Mnemonic    []string `json:"mnemonic,omitempty"`
	PublicKey   string   `json:"publicKey,omitempty"`
}

// ImportProgress mirrors the session counters inside the import data.
type ImportProgress struct {
	TotalPosts     int         `json:"totalPosts"`
	ImportedPosts  int         `json:"importedPosts"`
	LastImportedID *int        `json:"lastImportedId,omitempty"`
	Phase          ImportPhase `json:"phase"`
	Error          string      `json:"error,omitempty"`
}

// ImportPostRef is one unit of work: a post, its destination path, and
// whether it has been processed.
type ImportPostRef struct {
	ID          int      `json:"id"`
	Path        []string `json:"path"`
	AuthorLogin string   `json:"authorLogin"`
	Imported    bool     `json:"imported"`
}

// ImportPost is the subset of a WXR item needed to write the document.
type ImportPost struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Content     string   `json:"content"`
	PostDateGMT string   `json:"postDateGmt,omitempty"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
}

// SeedImportData is the persisted working document for one session.
// Every Posts[i].ID has a matching WXRPosts entry.
type SeedImportData struct {
	Source     ImportSource             `json:"source"`
	Authors    map[string]*ImportAuthor `json:"authors"`
	ImageCache map[string]string        `json:"imageCache"`
	Progress   ImportProgress           `json:"progress"`
	Posts      []ImportPostRef          `json:"posts"`
	WXRPosts   map[int]*ImportPost      `json:"wxrPosts"`
}

// Remaining returns the indexes of posts not yet processed, in order.
func (d *SeedImportData) Remaining() []int {
	var idx []int
	for i := range d.Posts {
		if !d.Posts[i].Imported {
			idx = append(idx, i)
		}
	}
	return idx
}

// MarkProcessed flags the given post ids as imported. Unknown ids are ignored.
// It returns how many refs changed.
func (d *SeedImportData) MarkProcessed(ids ...int) int {
	if len(ids) == 0 {
		return 0
	}
	done := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	changed := 0
	for i := range d.Posts {
		if d.Posts[i].Imported {
			continue
		}
		if _, ok := done[d.Posts[i].ID]; ok {
			d.Posts[i].Imported = true
			changed++
		}
	}
	return changed
}

// ProcessedCount returns how many posts are flagged imported.
func (d *SeedImportData) ProcessedCount() int {
	n := 0
	for i := range d.Posts {
		if d.Posts[i].Imported {
			n++
		}
	}
	return n
}

// ImportFileFormatV1 is the only import file format understood today.
const ImportFileFormatV1 = "seed-import-v1"

// ImportFile is the versioned envelope stored for a session. Data holds either
// the SeedImportData object or, when Encrypted, a base64 ciphertext string.
type ImportFile struct {
	Format    string         `json:"format"`
	Encrypted bool           `json:"encrypted"`
	Data      jsontext.Value `json:"data"`
}
