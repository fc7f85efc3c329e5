package domain

import "time"

// Entry is one vocabulary item as written by the learner or a source file.
type Entry struct {
	Word        string
	Translation string
	Context     string
	Hash        string
}

// Vocabulary is a saved item owned by one user. Each item has exactly one
// scheduling card. SourceID names the source that first provided the item;
// Manual is set once the user saves it by hand.
type Vocabulary struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Word        string    `json:"word"`
	Translation string    `json:"translation"`
	Context     string    `json:"context,omitempty"`
	Hash        string    `json:"hash"`
	SourceID    *int64    `json:"source_id,omitempty"`
	Manual      bool      `json:"manual"`
	CreatedAt   time.Time `json:"created_at"`
}

// Entry returns the content part of the item.
func (v Vocabulary) Entry() Entry {
	return Entry{Word: v.Word, Translation: v.Translation, Context: v.Context, Hash: v.Hash}
}

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source is a directory or git repository holding vocabulary files.
type Source struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}
