package types

import "time"

// Outfit represents one generated recommendation kept in the history.
type Outfit struct {
	// ID is the unique identifier of the generation.
	ID int64 `json:"id" db:"id"`

	// UserID is the account the recommendation was generated for.
	UserID int64 `json:"user_id" db:"user_id"`

	// Season is the season the caller asked for.
	Season string `json:"season" db:"season"`

	// Event is the occasion the caller asked for.
	Event string `json:"event" db:"event"`

	// Outfit is the raw provider output, passed through unvalidated.
	Outfit string `json:"outfit" db:"outfit"`

	// ArchiveKey is the object key of the archived raw provider response.
	// Empty when archival is disabled or failed.
	ArchiveKey string `json:"-" db:"archive_key"`

	// GeneratedAt is the timestamp the recommendation was produced.
	GeneratedAt time.Time `json:"generated_at" db:"generated_at"`
}
