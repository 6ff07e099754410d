package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-climate/internal/db"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Driver: db.DriverDuckDB, DataDir: t.TempDir(), DBName: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	clock := clockwork.NewFakeClockAt(epoch)
	s := NewStore(conn, clock, nil)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
	return s, clock
}

func TestBlockJSON(t *testing.T) {
	in := `{"type":"statistics","orderIndex":2,"title":"Key figures",
		"data":{"stats":[{"label":"Sea level","value":"3.7","unit":"mm/yr","trend":"up"}]},
		"references":["ipcc2021"]}`

	var b Block
	require.NoError(t, json.Unmarshal([]byte(in), &b))
	assert.Equal(t, TypeStatistics, b.Type())
	stats := b.Payload.(*Statistics)
	require.Len(t, stats.Stats, 1)
	assert.Equal(t, "mm/yr", stats.Stats[0].Unit)
	assert.Equal(t, []string{"Key figures", "", "Sea level"}, b.Texts())

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"statistics","orderIndex":2,"title":"Key figures",
		"data":{"stats":[{"label":"Sea level","value":"3.7","unit":"mm/yr","trend":"up"}]},
		"references":["ipcc2021"]}`, string(out))
}

func TestBlockJSONRejectsUnknownType(t *testing.T) {
	var b Block
	err := json.Unmarshal([]byte(`{"type":"carousel"}`), &b)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	err = json.Unmarshal([]byte(`{"type":"image","data":{"url":7}}`), &b)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	p, err := DecodePayload(TypeDivider, nil)
	require.NoError(t, err)
	assert.Equal(t, &Divider{}, p)
}

func TestEveryTypeHasAPayload(t *testing.T) {
	types := BlockTypes()
	assert.Len(t, types, 24)
	for _, bt := range types {
		p, err := NewPayload(bt)
		require.NoError(t, err)
		assert.Equal(t, bt, p.BlockType())
		assert.Equal(t, bt, p.Shared().BlockType())
	}
}

func TestSharedClearsTranslatableFields(t *testing.T) {
	m := &InteractiveMap{
		Layers:  []MapLayer{{ID: "coastal-risk", Visible: true, Opacity: 0.7}},
		Center:  [2]float64{10, 54},
		Zoom:    6,
		Caption: "Coastal flood risk",
	}
	shared := m.Shared().(*InteractiveMap)
	assert.Equal(t, m.Layers, shared.Layers)
	assert.Equal(t, m.Center, shared.Center)
	assert.Empty(t, shared.Caption)

	shared.Layers[0].ID = "changed"
	assert.Equal(t, "coastal-risk", m.Layers[0].ID, "shared payload does not alias")

	q := &AnimatedQuote{Quote: Quote{Text: "Act now", Author: "Guterres", Role: "Secretary-General"}, Animation: "fade"}
	assert.Equal(t, []string{"Act now", "Secretary-General"}, Texts(q))
	assert.Equal(t, &AnimatedQuote{Quote: Quote{Author: "Guterres"}, Animation: "fade"}, q.Shared())
}

func TestMapTextsAndClone(t *testing.T) {
	stats := &Statistics{Stats: []Statistic{{Label: "rise", Value: "3.7"}, {Label: "loss", Value: "12"}}}
	clone, err := ClonePayload(stats)
	require.NoError(t, err)

	require.NoError(t, MapTexts(clone, func(s string) (string, error) { return strings.ToUpper(s), nil }))
	assert.Equal(t, []string{"RISE", "LOSS"}, Texts(clone))
	assert.Equal(t, "3.7", clone.(*Statistics).Stats[0].Value, "shared fields untouched")
	assert.Equal(t, []string{"rise", "loss"}, Texts(stats), "original not modified")

	boom := errors.New("boom")
	assert.ErrorIs(t, MapTexts(&Callout{Text: "x"}, func(string) (string, error) { return "", boom }), boom)
}

func TestMirror(t *testing.T) {
	src := []Block{
		{ID: "e1", StoryID: "s", Title: "Intro", Content: "Hello", Payload: &Markdown{}},
		{ID: "e2", StoryID: "s", Title: "Figures", Payload: &Statistics{Stats: []Statistic{{Label: "Rise", Value: "1"}}}, References: []string{"r1"}},
		{ID: "e3", StoryID: "s", Title: "Photo", Payload: &Image{URL: "/img/a.png", Alt: "Dyke"}},
	}
	other := []Block{
		{ID: "d1", StoryID: "s", Language: LangDE, Title: "Einleitung", Content: "Hallo", Payload: &Markdown{}, OrderIndex: 0},
		{ID: "d2", StoryID: "s", Language: LangDE, Title: "Zitat", Payload: &Quote{Text: "Jetzt"}},
		{ID: "d3", StoryID: "s", Language: LangDE, Title: "Foto", Payload: &Image{URL: "/img/a.png", Alt: "Deich"}},
		{ID: "d4", StoryID: "s", Language: LangDE, Title: "Extra", Payload: &Divider{}},
	}

	ids := 0
	got := Mirror(src, other, LangDE, func() string { ids++; return fmt.Sprintf("new-%d", ids) })
	require.Len(t, got, 3)

	assert.Equal(t, "d1", got[0].ID, "same type at same index is kept")
	assert.Equal(t, "Einleitung", got[0].Title)

	assert.Equal(t, "new-1", got[1].ID)
	assert.Equal(t, LangDE, got[1].Language)
	assert.Equal(t, 1, got[1].OrderIndex)
	assert.Equal(t, "[DE] Figures", got[1].Title)
	assert.Empty(t, got[1].Content)
	assert.Equal(t, &Statistics{Stats: []Statistic{{Value: "1"}}}, got[1].Payload)
	assert.Equal(t, []string{"r1"}, got[1].References)

	assert.Equal(t, "d3", got[2].ID)
	assert.Equal(t, 2, got[2].OrderIndex)

	for i := range src {
		assert.Equal(t, src[i].Type(), got[i].Type())
	}
}

func TestNormalizeConvertsHTML(t *testing.T) {
	b := Block{Content: "<h2>Sea level</h2><p>Rising <strong>fast</strong>.</p>", ContentFormat: ContentFormatHTML, Payload: &Markdown{}}
	require.NoError(t, normalize(&b))
	assert.Contains(t, b.Content, "## Sea level")
	assert.Contains(t, b.Content, "Rising **fast**.")
	assert.NotContains(t, b.Content, "<p>")
	assert.Empty(t, b.ContentFormat)

	assert.ErrorIs(t, normalize(&Block{}), ErrInvalidBlock)
}

func TestStories(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	en, err := s.CreateStory(ctx, Story{Slug: "sea-level", Language: LangEN, Title: "Sea level"})
	require.NoError(t, err)
	assert.Equal(t, "id-01", en.ID)
	assert.Equal(t, epoch, en.CreatedAt)
	_, err = s.CreateStory(ctx, Story{Slug: "sea-level", Language: LangDE, Title: "Meeresspiegel"})
	require.NoError(t, err)

	_, err = s.CreateStory(ctx, Story{Slug: "sea-level", Language: LangEN, Title: "Duplicate"})
	assert.Error(t, err)
	_, err = s.CreateStory(ctx, Story{Slug: "x", Language: "fr", Title: "X"})
	assert.Error(t, err)

	all, err := s.ListStories(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	de, err := s.ListStories(ctx, LangDE)
	require.NoError(t, err)
	require.Len(t, de, 1)
	assert.Equal(t, "Meeresspiegel", de[0].Title)

	got, err := s.GetStory(ctx, "sea-level", LangEN)
	require.NoError(t, err)
	assert.Equal(t, en.ID, got.ID)
	assert.True(t, got.CreatedAt.Equal(epoch))

	_, err = s.GetStory(ctx, "missing", LangEN)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveBlocksMirrorsOtherLanguage(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveBlocks(ctx, "story", LangEN, []Block{
		{Title: "Intro", Content: "<p>Hello</p>", ContentFormat: ContentFormatHTML, Payload: &Markdown{}},
		{Title: "Map", Payload: &InteractiveMap{Layers: []MapLayer{{ID: "coastal-risk", Visible: true}}, Caption: "Risk"}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "Hello", saved[0].Content)
	assert.Equal(t, 1, saved[1].OrderIndex)

	de, err := s.ListBlocks(ctx, "story", LangDE)
	require.NoError(t, err)
	require.Len(t, de, 2)
	assert.Equal(t, "[DE] Intro", de[0].Title)
	assert.Empty(t, de[0].Content)
	assert.Equal(t, TypeInteractiveMap, de[1].Type())
	assert.Equal(t, "coastal-risk", de[1].Payload.(*InteractiveMap).Layers[0].ID)
	assert.Empty(t, de[1].Payload.(*InteractiveMap).Caption)

	// Translate the German intro, then shrink the English list.
	de[0].Title, de[0].Content = "Einleitung", "Hallo"
	_, err = s.SaveBlocks(ctx, "story", LangDE, de)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = s.SaveBlocks(ctx, "story", LangEN, saved[:1])
	require.NoError(t, err)

	de, err = s.ListBlocks(ctx, "story", LangDE)
	require.NoError(t, err)
	require.Len(t, de, 1, "surplus removed")
	assert.Equal(t, "Einleitung", de[0].Title, "translation kept")

	en, err := s.ListBlocks(ctx, "story", LangEN)
	require.NoError(t, err)
	require.Len(t, en, 1)
	assert.True(t, en[0].UpdatedAt.Equal(epoch.Add(time.Hour)))
	assert.True(t, en[0].CreatedAt.Equal(epoch))
}

func TestCreateAndDeleteBlock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateBlock(ctx, Block{StoryID: "story", Language: LangEN, Payload: &Divider{}})
	require.NoError(t, err)
	assert.Equal(t, 0, first.OrderIndex)

	second, err := s.CreateBlock(ctx, Block{StoryID: "story", Language: LangEN, Title: "Hero", Payload: &Hero{Subtitle: "Rising seas"}})
	require.NoError(t, err)
	assert.Equal(t, 1, second.OrderIndex)

	_, err = s.CreateBlock(ctx, Block{StoryID: "story", Language: "xx", Payload: &Divider{}})
	assert.Error(t, err)

	require.NoError(t, s.DeleteBlock(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteBlock(ctx, first.ID), ErrNotFound)

	blocks, err := s.ListBlocks(ctx, "story", LangEN)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Rising seas", blocks[0].Payload.(*Hero).Subtitle)
}

func blockTypes(t *testing.T, s *Store, lang string) []BlockType {
	t.Helper()
	blocks, err := s.ListBlocks(context.Background(), "story", lang)
	require.NoError(t, err)
	types := make([]BlockType, len(blocks))
	for i, b := range blocks {
		types[i] = b.Type()
	}
	return types
}

func TestCreateAndDeleteBlockKeepLanguagesAligned(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveBlocks(ctx, "story", LangEN, []Block{{Title: "Intro", Content: "Hello", Payload: &Markdown{}}})
	require.NoError(t, err)

	callout, err := s.CreateBlock(ctx, Block{StoryID: "story", Language: LangEN, Payload: &Callout{Text: "Act now", Variant: "warning"}})
	require.NoError(t, err)
	assert.Equal(t, []BlockType{TypeMarkdown, TypeCallout}, blockTypes(t, s, LangEN))
	assert.Equal(t, blockTypes(t, s, LangEN), blockTypes(t, s, LangDE), "after create")

	de, err := s.ListBlocks(ctx, "story", LangDE)
	require.NoError(t, err)
	assert.Equal(t, "warning", de[1].Payload.(*Callout).Variant)
	assert.Empty(t, de[1].Payload.(*Callout).Text)

	_, err = s.CreateBlock(ctx, Block{StoryID: "story", Language: LangDE, Payload: &Divider{}})
	require.NoError(t, err)
	assert.Equal(t, blockTypes(t, s, LangDE), blockTypes(t, s, LangEN), "after create in de")

	require.NoError(t, s.DeleteBlock(ctx, callout.ID))
	assert.Equal(t, []BlockType{TypeMarkdown, TypeDivider}, blockTypes(t, s, LangEN))
	assert.Equal(t, blockTypes(t, s, LangEN), blockTypes(t, s, LangDE), "after delete")

	en, err := s.ListBlocks(ctx, "story", LangEN)
	require.NoError(t, err)
	for i, b := range en {
		assert.Equal(t, i, b.OrderIndex)
	}
}

func TestReferences(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertReference(ctx, Reference{ID: "ipcc2021", Title: "AR6", Type: RefReport, Authors: []string{"IPCC"}, Year: 2021}))
	require.NoError(t, s.UpsertReference(ctx, Reference{ID: "church2013", Title: "Sea level change", Type: RefJournal, Journal: "Nature"}))
	require.NoError(t, s.UpsertReference(ctx, Reference{ID: "ipcc2021", Title: "AR6 WG1", Type: RefReport, Authors: []string{"IPCC"}, Year: 2021}))

	assert.Error(t, s.UpsertReference(ctx, Reference{ID: "x", Title: "X", Type: "blog"}))

	refs, err := s.ListReferences(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "ipcc2021", refs[0].ID, "update keeps position")
	assert.Equal(t, "AR6 WG1", refs[0].Title)
	assert.Equal(t, []string{"IPCC"}, refs[0].Authors)
	assert.Equal(t, []string{}, refs[1].Authors)

	require.NoError(t, s.DeleteReference(ctx, "ipcc2021"))
	assert.ErrorIs(t, s.DeleteReference(ctx, "ipcc2021"), ErrNotFound)
}
