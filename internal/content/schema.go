package content

import (
	"reflect"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// blockDoc documents the wire form of Block for OpenAPI.
type blockDoc struct {
	ID            string         `json:"id,omitempty" doc:"Block ID, generated when empty"`
	StoryID       string         `json:"storyId,omitempty" doc:"Owning story"`
	Language      string         `json:"language,omitempty" enum:"en,de"`
	Type          BlockType      `json:"type" doc:"Payload variant"`
	OrderIndex    int            `json:"orderIndex,omitempty" doc:"Position within the story"`
	Title         string         `json:"title,omitempty"`
	Content       string         `json:"content,omitempty" doc:"Markdown body"`
	ContentFormat string         `json:"contentFormat,omitempty" enum:"markdown,html" doc:"html content is converted to markdown on save"`
	Data          map[string]any `json:"data,omitempty" doc:"Payload of the variant named by type"`
	References    []string       `json:"references,omitempty" doc:"Explicitly cited reference IDs"`
	CreatedAt     *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time     `json:"updatedAt,omitempty"`
}

// Schema implements huma.SchemaProvider so request validation sees the
// JSON form written by MarshalJSON.
func (Block) Schema(r huma.Registry) *huma.Schema {
	s := huma.SchemaFromType(r, reflect.TypeOf(blockDoc{}))
	if t, ok := s.Properties["type"]; ok {
		for _, bt := range BlockTypes() {
			t.Enum = append(t.Enum, string(bt))
		}
		t.PrecomputeMessages()
	}
	return s
}
