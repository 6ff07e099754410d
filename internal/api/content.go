package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-climate/internal/citation"
	"github.com/joeblew999/plat-climate/internal/content"
	"github.com/joeblew999/plat-climate/internal/humastar"
	"github.com/joeblew999/plat-climate/internal/service"
)

type LangInput struct {
	Lang string `query:"lang" enum:"en,de" default:"en" doc:"Content language"`
}

type SlugInput struct {
	Slug string `path:"slug" doc:"Story slug" example:"sea-level-rise"`
	LangInput
}

type StoryRequest struct {
	Slug        string `json:"slug" minLength:"1" doc:"URL slug, shared by both languages" example:"sea-level-rise"`
	Language    string `json:"language" enum:"en,de" doc:"Language of this variant"`
	Title       string `json:"title" minLength:"1" doc:"Story title"`
	Description string `json:"description,omitempty" doc:"Short description"`
	Published   bool   `json:"published,omitempty" doc:"Visible to readers"`
}

type ContentQuery struct {
	Story string `query:"story" required:"true" doc:"Story ID"`
	LangInput
}

type SaveBlocksRequest struct {
	StoryID string          `json:"storyId" minLength:"1" doc:"Story ID"`
	Lang    string          `json:"lang" enum:"en,de" doc:"Language of the block list"`
	Blocks  []content.Block `json:"blocks" doc:"Complete ordered block list"`
}

type BlockIDInput struct {
	BlockID string `path:"blockId" doc:"Block ID"`
}

type RefIDInput struct {
	ID string `path:"id" doc:"Citation key" example:"ipcc2021"`
}

// referenceActions are advertised on every reference response.
var referenceActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/references/%s", Method: http.MethodPut, Title: "Edit reference"},
	{Rel: "delete", Pattern: "/api/references/%s", Method: http.MethodDelete, Title: "Delete reference"},
}

// ReferenceBody is a reference with its hypermedia actions.
type ReferenceBody struct {
	content.Reference
}

func (b ReferenceBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, referenceActions)
}

// NumberedReference is a bibliography line of a rendered story. Number is
// zero for references the story does not cite.
type NumberedReference struct {
	content.Reference
	Number int    `json:"number,omitempty" doc:"Citation number"`
	Text   string `json:"text" doc:"Formatted bibliography entry"`
}

type RenderedStory struct {
	Story      content.Story       `json:"story"`
	Blocks     []content.Block     `json:"blocks" doc:"Blocks with citation markers replaced"`
	References []NumberedReference `json:"references" doc:"Cited references by number, then the uncited ones"`
}

// RegisterStories registers story routes.
func (h *APIHandler) RegisterStories(api huma.API) {
	huma.Get(api, "/api/stories", h.ListStories, huma.OperationTags("stories"))
	huma.Post(api, "/api/stories", h.CreateStory, huma.OperationTags("stories"), h.admin(api))
	huma.Get(api, "/api/stories/{slug}", h.GetStory, huma.OperationTags("stories"))
	huma.Get(api, "/api/stories/{slug}/render", h.RenderStory, huma.OperationTags("stories"))
}

// RegisterContent registers block routes.
func (h *APIHandler) RegisterContent(api huma.API) {
	huma.Get(api, "/api/content", h.ListBlocks, huma.OperationTags("content"))
	huma.Post(api, "/api/content", h.SaveBlocks, huma.OperationTags("content"), h.admin(api))
	huma.Put(api, "/api/content", h.CreateBlock, huma.OperationTags("content"), h.admin(api))
	huma.Delete(api, "/api/content/{blockId}", h.DeleteBlock, huma.OperationTags("content"), h.admin(api))
}

// RegisterReferences registers bibliography routes.
func (h *APIHandler) RegisterReferences(api huma.API) {
	huma.Get(api, "/api/references", h.ListReferences, huma.OperationTags("references"))
	huma.Post(api, "/api/references", h.CreateReference, huma.OperationTags("references"), h.admin(api))
	huma.Put(api, "/api/references/{id}", h.PutReference, huma.OperationTags("references"), h.admin(api))
	huma.Delete(api, "/api/references/{id}", h.DeleteReference, huma.OperationTags("references"), h.admin(api))
}

func (h *APIHandler) ListStories(ctx context.Context, input *LangInput) (*struct{ Body []content.Story }, error) {
	stories, err := h.svc.Content.ListStories(ctx, input.Lang)
	if err != nil {
		return nil, h.contentError("list stories", err)
	}
	if stories == nil {
		stories = []content.Story{}
	}
	return &struct{ Body []content.Story }{Body: stories}, nil
}

func (h *APIHandler) CreateStory(ctx context.Context, input *struct{ Body StoryRequest }) (*struct{ Body content.Story }, error) {
	b := input.Body
	st, err := h.svc.Content.CreateStory(ctx, content.Story{
		Slug:        b.Slug,
		Language:    b.Language,
		Title:       b.Title,
		Description: b.Description,
		Published:   b.Published,
	})
	if err != nil {
		return nil, h.contentError("create story", err)
	}
	h.publish(service.ResourceStories, service.ActionCreated, st.ID)
	return &struct{ Body content.Story }{Body: st}, nil
}

func (h *APIHandler) GetStory(ctx context.Context, input *SlugInput) (*struct{ Body content.Story }, error) {
	st, err := h.svc.Content.GetStory(ctx, input.Slug, input.Lang)
	if err != nil {
		return nil, h.contentError("get story", err)
	}
	return &struct{ Body content.Story }{Body: st}, nil
}

// RenderStory numbers citations once over the whole story and renders every
// block with those numbers.
func (h *APIHandler) RenderStory(ctx context.Context, input *SlugInput) (*struct{ Body RenderedStory }, error) {
	st, err := h.svc.Content.GetStory(ctx, input.Slug, input.Lang)
	if err != nil {
		return nil, h.contentError("get story", err)
	}
	blocks, err := h.svc.Content.ListBlocks(ctx, st.ID, input.Lang)
	if err != nil {
		return nil, h.contentError("list blocks", err)
	}
	refs, err := h.svc.Content.ListReferences(ctx)
	if err != nil {
		return nil, h.contentError("list references", err)
	}

	res := citation.Process(blocks, refs)
	out := RenderedStory{Story: st, Blocks: make([]content.Block, len(blocks)), References: make([]NumberedReference, len(res.Ordered))}
	for i, b := range blocks {
		if out.Blocks[i], err = res.RenderBlock(b); err != nil {
			return nil, h.internalError("render block", err)
		}
	}
	for i, ref := range res.Ordered {
		n := res.Numbers[ref.ID]
		out.References[i] = NumberedReference{Reference: ref, Number: n, Text: citation.Entry(n, ref)}
	}
	return &struct{ Body RenderedStory }{Body: out}, nil
}

func (h *APIHandler) ListBlocks(ctx context.Context, input *ContentQuery) (*struct{ Body []content.Block }, error) {
	blocks, err := h.svc.Content.ListBlocks(ctx, input.Story, input.Lang)
	if err != nil {
		return nil, h.contentError("list blocks", err)
	}
	if blocks == nil {
		blocks = []content.Block{}
	}
	return &struct{ Body []content.Block }{Body: blocks}, nil
}

func (h *APIHandler) SaveBlocks(ctx context.Context, input *struct{ Body SaveBlocksRequest }) (*struct{ Body []content.Block }, error) {
	b := input.Body
	saved, err := h.svc.Content.SaveBlocks(ctx, b.StoryID, b.Lang, b.Blocks)
	if err != nil {
		return nil, h.contentError("save blocks", err)
	}
	h.publish(service.ResourceBlocks, service.ActionUpdated, b.StoryID)
	return &struct{ Body []content.Block }{Body: saved}, nil
}

func (h *APIHandler) CreateBlock(ctx context.Context, input *struct{ Body content.Block }) (*struct{ Body content.Block }, error) {
	if !content.ValidLanguage(input.Body.Language) {
		return nil, huma.Error400BadRequest("block language must be en or de")
	}
	if input.Body.StoryID == "" {
		return nil, huma.Error400BadRequest("block storyId is required")
	}
	b, err := h.svc.Content.CreateBlock(ctx, input.Body)
	if err != nil {
		return nil, h.contentError("create block", err)
	}
	h.publish(service.ResourceBlocks, service.ActionCreated, b.ID)
	return &struct{ Body content.Block }{Body: b}, nil
}

func (h *APIHandler) DeleteBlock(ctx context.Context, input *BlockIDInput) (*struct{ Status int }, error) {
	if err := h.svc.Content.DeleteBlock(ctx, input.BlockID); err != nil {
		return nil, h.contentError("delete block", err)
	}
	h.publish(service.ResourceBlocks, service.ActionDeleted, input.BlockID)
	return &struct{ Status int }{Status: http.StatusNoContent}, nil
}

func (h *APIHandler) ListReferences(ctx context.Context, input *humastar.PageInput) (*struct {
	Body humastar.PageBody[content.Reference]
}, error) {
	refs, err := h.svc.Content.ListReferences(ctx)
	if err != nil {
		return nil, h.contentError("list references", err)
	}
	return &struct {
		Body humastar.PageBody[content.Reference]
	}{Body: humastar.Paginate(refs, *input)}, nil
}

func (h *APIHandler) CreateReference(ctx context.Context, input *struct{ Body content.Reference }) (*struct{ Body ReferenceBody }, error) {
	return h.upsertReference(ctx, input.Body)
}

func (h *APIHandler) PutReference(ctx context.Context, input *struct {
	RefIDInput
	Body content.Reference
}) (*struct{ Body ReferenceBody }, error) {
	ref := input.Body
	ref.ID = input.ID
	return h.upsertReference(ctx, ref)
}

func (h *APIHandler) upsertReference(ctx context.Context, ref content.Reference) (*struct{ Body ReferenceBody }, error) {
	if err := ref.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if err := h.svc.Content.UpsertReference(ctx, ref); err != nil {
		return nil, h.contentError("save reference", err)
	}
	h.publish(service.ResourceReferences, service.ActionUpdated, ref.ID)
	return &struct{ Body ReferenceBody }{Body: ReferenceBody{ref}}, nil
}

func (h *APIHandler) DeleteReference(ctx context.Context, input *RefIDInput) (*struct{ Status int }, error) {
	if err := h.svc.Content.DeleteReference(ctx, input.ID); err != nil {
		return nil, h.contentError("delete reference", err)
	}
	h.publish(service.ResourceReferences, service.ActionDeleted, input.ID)
	return &struct{ Status int }{Status: http.StatusNoContent}, nil
}
