package humastar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-climate/internal/templates"
)

type Thing struct {
	ID string `json:"id"`
}

type thingBody struct {
	Thing
}

func (b thingBody) Actions() []Action {
	return ActionsFor(b.ID, []ActionDef{{Rel: "delete", Pattern: "/api/things/%s", Method: http.MethodDelete}})
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	p := Paginate(items, PageInput{Offset: 2, Limit: 2})
	assert.Equal(t, []int{3, 4}, p.Data)
	assert.Equal(t, 5, p.Total)

	p = Paginate(items, PageInput{Offset: 9, Limit: 2})
	assert.Empty(t, p.Data)
	assert.NotNil(t, p.Data)

	assert.Equal(t, []string{
		`</x?offset=0&limit=2>; rel="first"`,
		`</x?offset=0&limit=2>; rel="prev"`,
		`</x?offset=4&limit=2>; rel="next"`,
		`</x?offset=4&limit=2>; rel="last"`,
	}, Paginate(items, PageInput{Offset: 2, Limit: 2}).PaginationLinks("/x"))

	assert.Nil(t, PageBody[int]{Total: 3}.PaginationLinks("/x"), "zero limit has no links")
}

func TestActionLinkHeader(t *testing.T) {
	a := Action{Rel: "edit", Href: "/api/things/1", Method: "PUT", Title: "Edit"}
	assert.Equal(t, `</api/things/1>; rel="edit"; method="PUT"; title="Edit"`, a.LinkHeader())
	assert.Equal(t, `</a>; rel="up"`, Action{Rel: "up", Href: "/a"}.LinkHeader())
}

func TestLinks(t *testing.T) {
	links := NewLinks()
	cfg := huma.DefaultConfig("test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, links.Transformer())
	_, api := humatest.New(t, cfg)

	huma.Get(api, EntryPoint, func(ctx context.Context, _ *EmptyInput) (*struct{ Body Thing }, error) {
		return &struct{ Body Thing }{}, nil
	})
	huma.Get(api, "/api/things", func(ctx context.Context, in *PageInput) (*struct{ Body PageBody[Thing] }, error) {
		return &struct{ Body PageBody[Thing] }{Body: Paginate([]Thing{{ID: "a"}, {ID: "b"}}, *in)}, nil
	})
	huma.Get(api, "/api/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body thingBody }, error) {
		return &struct{ Body thingBody }{Body: thingBody{Thing{ID: in.ID}}}, nil
	})
	huma.Get(api, "/api/stream", func(ctx context.Context, _ *EmptyInput) (*struct{ Body Thing }, error) {
		return &struct{ Body Thing }{}, nil
	}, huma.OperationTags("events"))
	links.Derive(api)

	entry := api.Get(EntryPoint).Header().Values("Link")
	assert.Contains(t, entry, `</api/things>; rel="things"`)
	assert.NotContains(t, entry, `</api/stream>; rel="stream"`)

	list := api.Get("/api/things?limit=1").Header().Values("Link")
	assert.Contains(t, list, `</api/things/{id}>; rel="item"`)
	assert.Contains(t, list, `</api/things?offset=1&limit=1>; rel="next"`)

	item := api.Get("/api/things/7").Header().Values("Link")
	assert.Contains(t, item, `</api/things>; rel="collection"`)
	assert.Contains(t, item, `</api/things/7>; rel="self"`)
	assert.Contains(t, item, `</api/things/7>; rel="delete"; method="DELETE"`)
}

func TestRenderList(t *testing.T) {
	r, err := templates.New()
	require.NoError(t, err)

	empty, err := RenderList(r, "reference-item", nil, "Nothing here")
	require.NoError(t, err)
	assert.Equal(t, `<p class="empty-state">Nothing here</p>`, empty)

	h := Handler{Renderer: r}
	html, err := h.RenderList("reference-item", []any{
		map[string]string{"ID": "a", "Text": "[1] A."},
		map[string]string{"ID": "b", "Text": "[2] B."},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, `<li id="ref-a">[1] A.</li><li id="ref-b">[2] B.</li>`, html)

	_, err = RenderList(r, "no-such-template", []any{"x"}, "")
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("test", "1.0.0"))
	h := &Handler{}
	huma.Get(api, "/events", func(ctx context.Context, _ *EmptyInput) (*huma.StreamResponse, error) {
		return h.Stream(func(sse SSE) {
			sse.Signals(map[string]any{"count": 2})
			sse.Error("boom")
		}), nil
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, "datastar-patch-signals")
	assert.Contains(t, body, `{"count":2}`)
	assert.Contains(t, body, `{"error":"boom"}`)
}
