package models

import "encoding/json"

// Link is the value persisted under link:<slug>. Timestamps and expiration
// are unix seconds.
type Link struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Slug       string `json:"slug"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
	Expiration int64  `json:"expiration,omitempty"`

	// Extra поля сохранённого значения, которых нет в Link; переживают edit
	Extra map[string]json.RawMessage `json:"-"`
}

// LinkMetadata is the envelope stored next to the value so listing can skip
// decoding it. URL and Comment mirror the value.
type LinkMetadata struct {
	Expiration int64  `json:"expiration,omitempty"`
	URL        string `json:"url,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// LinkRecord is one element of a listing.
type LinkRecord struct {
	Slug    string `json:"slug"`
	URL     string `json:"url"`
	Comment string `json:"comment,omitempty"`
}

type CreateLinkInput struct {
	URL        string `json:"url" binding:"required,url,max=2048"`
	Slug       string `json:"slug,omitempty" binding:"omitempty,slug,max=2048"`
	Comment    string `json:"comment,omitempty" binding:"max=2048"`
	Expiration *int64 `json:"expiration,omitempty"`
}

type EditLinkInput struct {
	URL          string  `json:"url" binding:"required,url,max=2048"`
	Slug         string  `json:"slug" binding:"required,slug,max=2048"`
	PreviousSlug string  `json:"previousSlug,omitempty" binding:"omitempty,slug,max=2048"`
	Comment      *string `json:"comment,omitempty" binding:"omitempty,max=2048"`
	Expiration   *int64  `json:"expiration,omitempty"`
}
