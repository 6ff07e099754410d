package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-climate/internal/content"
)

func refs(ids ...string) []content.Reference {
	out := make([]content.Reference, len(ids))
	for i, id := range ids {
		out[i] = content.Reference{ID: id, Title: "Title " + id, Type: content.RefJournal}
	}
	return out
}

func md(text string, explicit ...string) content.Block {
	return content.Block{Content: text, Payload: &content.Markdown{}, References: explicit}
}

func TestProcessDocumentOrder(t *testing.T) {
	blocks := []content.Block{md(`See \cite{b}.`), md(`And \cite{a}.`), md(`Again \cite{b}.`)}

	res := Process(blocks, refs("a", "b"))
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, res.Numbers)
	require.Len(t, res.Ordered, 2)
	assert.Equal(t, "b", res.Ordered[0].ID)
	assert.Equal(t, "a", res.Ordered[1].ID)
}

func TestProcessScanOrderAndUncited(t *testing.T) {
	blocks := []content.Block{
		{
			Title:      `Rise \cite{c}`,
			Content:    `Body \cite{a, b}`,
			Payload:    &content.Image{Caption: `Photo \cite{d}`},
			References: []string{"e", "a"},
		},
		md(`\cite{missing} \cite{f}`),
	}

	res := Process(blocks, refs("x", "a", "b", "c", "d", "e", "f", "y"))
	assert.Equal(t, map[string]int{"c": 1, "a": 2, "b": 3, "d": 4, "e": 5, "f": 6}, res.Numbers)

	var order []string
	for _, r := range res.Ordered {
		order = append(order, r.ID)
	}
	assert.Equal(t, []string{"c", "a", "b", "d", "e", "f", "x", "y"}, order)
}

func TestProcessDuplicateReferenceIDs(t *testing.T) {
	res := Process([]content.Block{md(`\cite{a}`)}, refs("a", "b", "a", "b"))
	assert.Len(t, res.Ordered, 2)
}

func TestIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, IDs(`x \cite{a} y \cite{ b ,c } \cite{}`))
	assert.Empty(t, IDs("no markers"))
}

func TestRender(t *testing.T) {
	res := Process([]content.Block{md(`\cite{b} \cite{a}`)}, refs("a", "b"))

	out, err := res.Render(`Seas rise \cite{a}. Unknown \cite{zz}. Both \cite{b,a}.`)
	require.NoError(t, err)
	assert.Equal(t,
		`Seas rise <sup class="citation"><a href="#ref-a">[2]</a></sup>. `+
			`Unknown <sup class="citation">[?]</sup>. `+
			`Both <sup class="citation"><a href="#ref-b">[1]</a></sup><sup class="citation"><a href="#ref-a">[2]</a></sup>.`,
		out)

	b, err := res.RenderBlock(content.Block{Title: `T \cite{b}`, Content: "plain", Payload: &content.Markdown{}})
	require.NoError(t, err)
	assert.Contains(t, b.Title, "[1]")
	assert.Equal(t, "plain", b.Content)
}

func TestRenderBlockPayloadTexts(t *testing.T) {
	callout := &content.Callout{Variant: "warning", Text: `Sea rise \cite{a}`}
	block := content.Block{ID: "c1", Payload: callout}

	res := Process([]content.Block{block}, refs("a"))
	require.Equal(t, map[string]int{"a": 1}, res.Numbers)

	out, err := res.RenderBlock(block)
	require.NoError(t, err)
	rendered := out.Payload.(*content.Callout)
	assert.Equal(t, `Sea rise <sup class="citation"><a href="#ref-a">[1]</a></sup>`, rendered.Text)
	assert.Equal(t, "warning", rendered.Variant)
	assert.Equal(t, `Sea rise \cite{a}`, callout.Text, "input payload is left as is")

	stats := content.Block{Payload: &content.Statistics{Stats: []content.Statistic{{Label: `Loss \cite{zz}`}}}}
	out, err = res.RenderBlock(stats)
	require.NoError(t, err)
	assert.Equal(t, `Loss <sup class="citation">[?]</sup>`, out.Payload.(*content.Statistics).Stats[0].Label)
}

func TestEntry(t *testing.T) {
	r := content.Reference{ID: "ipcc", Title: "AR6", Authors: []string{"IPCC", "WMO"}, Year: 2021, Journal: "Climate Reports", URL: "https://ipcc.ch"}
	assert.Equal(t, "[3] IPCC, WMO (2021). AR6. Climate Reports. https://ipcc.ch", Entry(3, r))
	assert.Equal(t, "[1] Plain.", Entry(1, content.Reference{Title: "Plain"}))
	assert.Equal(t, "Plain.", Entry(0, content.Reference{Title: "Plain"}), "uncited")
}
