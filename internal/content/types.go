// Package content stores stories, their ordered blocks and the bibliography.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a story, block or reference does not exist.
	ErrNotFound = errors.New("content: not found")
	// ErrInvalidBlock is returned for blocks with an unknown type or a payload
	// that does not match their type.
	ErrInvalidBlock = errors.New("content: invalid block")
)

// Supported languages.
const (
	LangEN = "en"
	LangDE = "de"
)

// OtherLanguage returns the language a block list is mirrored into.
func OtherLanguage(lang string) string {
	if lang == LangDE {
		return LangEN
	}
	return LangDE
}

// ValidLanguage reports whether lang is a supported language.
func ValidLanguage(lang string) bool {
	return lang == LangEN || lang == LangDE
}

// Story is a titled, per-language sequence of blocks.
type Story struct {
	ID          string    `json:"id" doc:"Story ID"`
	Slug        string    `json:"slug" doc:"URL slug, shared by both languages" example:"sea-level-rise"`
	Language    string    `json:"language" enum:"en,de" doc:"Language of this variant"`
	Title       string    `json:"title" doc:"Story title"`
	Description string    `json:"description,omitempty" doc:"Short description"`
	Published   bool      `json:"published" doc:"Visible to readers"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReferenceType classifies a bibliography entry.
type ReferenceType string

const (
	RefJournal ReferenceType = "journal"
	RefReport  ReferenceType = "report"
	RefDataset ReferenceType = "dataset"
	RefBook    ReferenceType = "book"
)

// Reference is a bibliography entry. Its ID is the citation key used in
// block text.
type Reference struct {
	ID      string        `json:"id" doc:"Citation key" example:"ipcc2021"`
	Title   string        `json:"title"`
	Authors []string      `json:"authors"`
	Year    int           `json:"year,omitempty"`
	Type    ReferenceType `json:"type" enum:"journal,report,dataset,book"`
	Journal string        `json:"journal,omitempty"`
	URL     string        `json:"url,omitempty"`
}

// Validate checks the required fields.
func (r Reference) Validate() error {
	if r.ID == "" {
		return errors.New("reference id is required")
	}
	if r.Title == "" {
		return errors.New("reference title is required")
	}
	switch r.Type {
	case RefJournal, RefReport, RefDataset, RefBook:
	default:
		return fmt.Errorf("unknown reference type %q", r.Type)
	}
	return nil
}

// ContentFormatHTML marks block content that must be converted to markdown
// before it is stored.
const ContentFormatHTML = "html"

// Block is one typed element of a story.
type Block struct {
	ID         string
	StoryID    string
	Language   string
	OrderIndex int
	Title      string
	Content    string
	// ContentFormat is only read on input.
	ContentFormat string
	Payload       Payload
	References    []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Type returns the block's type, taken from its payload.
func (b Block) Type() BlockType {
	if b.Payload == nil {
		return ""
	}
	return b.Payload.BlockType()
}

// Texts returns every translatable string of the block in reading order:
// title, content, then payload texts.
func (b Block) Texts() []string {
	out := []string{b.Title, b.Content}
	if b.Payload != nil {
		out = append(out, Texts(b.Payload)...)
	}
	return out
}

type blockJSON struct {
	ID            string          `json:"id,omitempty"`
	StoryID       string          `json:"storyId,omitempty"`
	Language      string          `json:"language,omitempty"`
	Type          BlockType       `json:"type"`
	OrderIndex    int             `json:"orderIndex"`
	Title         string          `json:"title,omitempty"`
	Content       string          `json:"content,omitempty"`
	ContentFormat string          `json:"contentFormat,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	References    []string        `json:"references"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time      `json:"updatedAt,omitempty"`
}

// MarshalJSON writes the payload under "data" next to its "type".
func (b Block) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return nil, fmt.Errorf("block %s: %w: no payload", b.ID, ErrInvalidBlock)
	}
	data, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, err
	}
	out := blockJSON{
		ID:         b.ID,
		StoryID:    b.StoryID,
		Language:   b.Language,
		Type:       b.Payload.BlockType(),
		OrderIndex: b.OrderIndex,
		Title:      b.Title,
		Content:    b.Content,
		Data:       data,
		References: b.References,
	}
	if out.References == nil {
		out.References = []string{}
	}
	if !b.CreatedAt.IsZero() {
		out.CreatedAt = &b.CreatedAt
	}
	if !b.UpdatedAt.IsZero() {
		out.UpdatedAt = &b.UpdatedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes "data" into the payload variant named by "type".
func (b *Block) UnmarshalJSON(data []byte) error {
	var in blockJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p, err := DecodePayload(in.Type, in.Data)
	if err != nil {
		return err
	}
	*b = Block{
		ID:            in.ID,
		StoryID:       in.StoryID,
		Language:      in.Language,
		OrderIndex:    in.OrderIndex,
		Title:         in.Title,
		Content:       in.Content,
		ContentFormat: in.ContentFormat,
		Payload:       p,
		References:    in.References,
	}
	if in.CreatedAt != nil {
		b.CreatedAt = *in.CreatedAt
	}
	if in.UpdatedAt != nil {
		b.UpdatedAt = *in.UpdatedAt
	}
	return nil
}
