// Package citation numbers \cite{id} markers across a whole story.
package citation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joeblew999/plat-climate/internal/content"
	"github.com/joeblew999/plat-climate/internal/templates"
)

// marker matches \cite{id} and \cite{id1, id2}.
var marker = regexp.MustCompile(`\\cite\{([^}]*)\}`)

// Result is the numbering of one story render.
type Result struct {
	// Numbers maps a cited reference id to its 1-based number.
	Numbers map[string]int `json:"numbers"`
	// Ordered lists cited references by number, then the uncited ones in
	// their original order.
	Ordered []content.Reference `json:"references"`
}

// IDs returns the reference ids of every marker in text, in order.
func IDs(text string) []string {
	var ids []string
	for _, m := range marker.FindAllStringSubmatch(text, -1) {
		for _, id := range strings.Split(m[1], ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Process numbers citations in document order: blocks in order and, per
// block, the title, content and payload texts followed by the block's
// explicit reference list. Only ids present in refs get a number.
func Process(blocks []content.Block, refs []content.Reference) Result {
	known := make(map[string]int, len(refs))
	for i, r := range refs {
		if _, dup := known[r.ID]; !dup {
			known[r.ID] = i
		}
	}

	res := Result{Numbers: make(map[string]int)}
	cite := func(id string) {
		i, ok := known[id]
		if !ok {
			return
		}
		if _, seen := res.Numbers[id]; seen {
			return
		}
		res.Numbers[id] = len(res.Ordered) + 1
		res.Ordered = append(res.Ordered, refs[i])
	}

	for _, b := range blocks {
		for _, text := range b.Texts() {
			for _, id := range IDs(text) {
				cite(id)
			}
		}
		for _, id := range b.References {
			cite(id)
		}
	}

	listed := make(map[string]bool)
	for _, r := range refs {
		if _, cited := res.Numbers[r.ID]; cited || listed[r.ID] {
			continue
		}
		listed[r.ID] = true
		res.Ordered = append(res.Ordered, r)
	}
	return res
}

// Render replaces every marker in text with superscript citation links.
// Unknown ids render as [?].
func (r Result) Render(text string) (string, error) {
	var renderErr error
	out := marker.ReplaceAllStringFunc(text, func(m string) string {
		var sb strings.Builder
		for _, id := range IDs(m) {
			n, ok := r.Numbers[id]
			html, err := templates.Default().Render("citation", map[string]any{
				"ID":     id,
				"Number": n,
				"Known":  ok,
			})
			if err != nil && renderErr == nil {
				renderErr = fmt.Errorf("render citation %s: %w", id, err)
			}
			sb.WriteString(html)
		}
		return sb.String()
	})
	return out, renderErr
}

// RenderBlock returns b with citations rendered in its title, content and
// payload texts. The payload is copied; b's own payload is not modified.
func (r Result) RenderBlock(b content.Block) (content.Block, error) {
	var err error
	if b.Title, err = r.Render(b.Title); err != nil {
		return b, err
	}
	if b.Content, err = r.Render(b.Content); err != nil {
		return b, err
	}
	if b.Payload == nil {
		return b, nil
	}
	p, err := content.ClonePayload(b.Payload)
	if err != nil {
		return b, fmt.Errorf("copy block %s payload: %w", b.ID, err)
	}
	if err := content.MapTexts(p, r.Render); err != nil {
		return b, err
	}
	b.Payload = p
	return b, nil
}

// Entry formats one bibliography line, e.g.
// "[1] IPCC (2021). AR6. Nature. https://example.org". Uncited references
// (n <= 0) get no number.
func Entry(n int, ref content.Reference) string {
	var sb strings.Builder
	if n > 0 {
		fmt.Fprintf(&sb, "[%d] ", n)
	}
	if len(ref.Authors) > 0 {
		sb.WriteString(strings.Join(ref.Authors, ", "))
		sb.WriteByte(' ')
	}
	if ref.Year > 0 {
		fmt.Fprintf(&sb, "(%d). ", ref.Year)
	}
	sb.WriteString(ref.Title)
	sb.WriteByte('.')
	if ref.Journal != "" {
		sb.WriteString(" " + ref.Journal + ".")
	}
	if ref.URL != "" {
		sb.WriteString(" " + ref.URL)
	}
	return sb.String()
}
