package domain

import (
	"slices"
	"time"
)

// ImportPhase is a step in the import state machine.
//
//	pending -> authors -> posts -> complete
//	                 \        \-> error
//	                  \-> error
type ImportPhase string

const (
	// PhaseParsing is reported while the export is parsed. It is never persisted.
	PhaseParsing  ImportPhase = "parsing"
	PhasePending  ImportPhase = "pending"
	PhaseAuthors  ImportPhase = "authors"
	PhasePosts    ImportPhase = "posts"
	PhaseComplete ImportPhase = "complete"
	PhaseError    ImportPhase = "error"
)

// IsTerminal reports whether no further work will happen in this phase.
func (p ImportPhase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// ImportMode selects who signs imported documents.
type ImportMode string

const (
	// ModeGhostwritten signs everything with the publisher key and keeps the
	// original author as display-only metadata.
	ModeGhostwritten ImportMode = "ghostwritten"

	// ModeAuthored gives each eligible author a generated key of their own.
	ModeAuthored ImportMode = "authored"
)

// Valid reports whether m is a known mode.
func (m ImportMode) Valid() bool {
	return m == ModeGhostwritten || m == ModeAuthored
}

// ImportResultItem identifies one post in the results summary.
type ImportResultItem struct {
	Path  []string `json:"path"`
	Title string   `json:"title"`
}

// ImportFailure is a post that could not be imported.
type ImportFailure struct {
	Path  []string `json:"path"`
	Title string   `json:"title"`
	Error string   `json:"error"`
}

// ImportResults accumulates per-post outcomes for a session.
type ImportResults struct {
	Imported int                `json:"imported"`
	Skipped  []ImportResultItem `json:"skipped"`
	Failed   []ImportFailure    `json:"failed"`
}

// NewImportResults returns empty results with non-nil lists so they encode as [].
func NewImportResults() *ImportResults {
	return &ImportResults{Skipped: []ImportResultItem{}, Failed: []ImportFailure{}}
}

// Clone returns a deep copy of r.
func (r *ImportResults) Clone() *ImportResults {
	if r == nil {
		return nil
	}
	out := &ImportResults{
		Imported: r.Imported,
		Skipped:  make([]ImportResultItem, len(r.Skipped)),
		Failed:   make([]ImportFailure, len(r.Failed)),
	}
	for i, s := range r.Skipped {
		out.Skipped[i] = ImportResultItem{Path: slices.Clone(s.Path), Title: s.Title}
	}
	for i, f := range r.Failed {
		out.Failed[i] = ImportFailure{Path: slices.Clone(f.Path), Title: f.Title, Error: f.Error}
	}
	return out
}

// ImportState is the control-plane record of one import session: where it
// writes, how it signs, and where it left off.
type ImportState struct {
	ImportID          string         `json:"importId"`
	IsAuthored        bool           `json:"isAuthored"`
	DestinationUID    string         `json:"destinationUid"`
	DestinationPath   []string       `json:"destinationPath"`
	PublisherKeyName  string         `json:"publisherKeyName"`
	OverwriteExisting bool           `json:"overwriteExisting"`
	Phase             ImportPhase    `json:"phase"`
	TotalPosts        int            `json:"totalPosts"`
	ImportedPosts     int            `json:"importedPosts"`
	LastImportedPost  *int           `json:"lastImportedPostId,omitempty"`
	Error             string         `json:"error,omitempty"`
	Results           *ImportResults `json:"results,omitempty"`
	LastUpdated       int64          `json:"lastUpdated"` // unix milliseconds

	// Encrypted is true when the session's import file needs a password to decode.
	Encrypted bool `json:"encrypted"`
	// ProcessedPostIDs lists every post finished in this session and is never
	// trimmed. Resume replays it onto the decoded import file: encrypted files
	// are not rewritten, and a plain file may trail the last recorded post.
	ProcessedPostIDs []int     `json:"processedPostIds,omitempty"`
	SiteTitle        string    `json:"siteTitle,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// IsResumable reports whether the session can be continued.
func (s *ImportState) IsResumable() bool {
	return s != nil && !s.Phase.IsTerminal()
}

// Touch stamps LastUpdated with t.
func (s *ImportState) Touch(t time.Time) {
	s.LastUpdated = t.UnixMilli()
}

// UpdatedAt returns LastUpdated as a time.
func (s *ImportState) UpdatedAt() time.Time {
	return time.UnixMilli(s.LastUpdated)
}

// Clone returns a deep copy of s.
func (s *ImportState) Clone() *ImportState {
	if s == nil {
		return nil
	}
	out := *s
	out.DestinationPath = slices.Clone(s.DestinationPath)
	out.ProcessedPostIDs = slices.Clone(s.ProcessedPostIDs)
	out.Results = s.Results.Clone()
	if s.LastImportedPost != nil {
		v := *s.LastImportedPost
		out.LastImportedPost = &v
	}
	return &out
}
