package humastar

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// EntryPoint is the path that links to every collection.
const EntryPoint = "/api/health"

// Links holds RFC 8288 Link header values keyed by operation path.
type Links struct {
	mu    sync.RWMutex
	paths map[string][]string
}

// NewLinks returns an empty link table. Install its Transformer in the Huma
// config, then call Derive once every route is registered.
func NewLinks() *Links {
	return &Links{paths: map[string][]string{}}
}

// Derive walks the OpenAPI document and adds hypermedia links: item to
// collection, collection to item template, the entry point to every
// collection, and describedby links to the OpenAPI document. Paths tagged
// "events" are skipped.
func (l *Links) Derive(api huma.API) {
	oapi := api.OpenAPI()

	var collections, items []string
	for p, pi := range oapi.Paths {
		if hasTag(primaryTags(pi), "events") {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}

	for _, item := range items {
		parent := path.Dir(item)
		if _, ok := oapi.Paths[parent]; ok && !strings.Contains(parent, "{") {
			l.add(item, parent, "collection")
		}
	}
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item) == coll {
				l.add(coll, item, "item")
			}
		}
		if coll != EntryPoint {
			l.add(coll, EntryPoint, "up")
			l.add(EntryPoint, coll, lastSegment(coll))
		}
	}
	l.add(EntryPoint, "/openapi.json", "describedby")
	l.add(EntryPoint, "/openapi.json", "service-desc")
	l.add(EntryPoint, "/docs", "service-doc")
}

// For returns the link header values of an operation path.
func (l *Links) For(opPath string) []string {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.paths[opPath]...)
}

func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.paths[from] {
		if existing == val {
			return
		}
	}
	l.paths[from] = append(l.paths[from], val)
}

// Transformer returns a Huma Transformer that injects Link headers: the
// derived links of the operation, a self link on item endpoints, pagination
// links from [Pager] bodies and action links from [Actor] bodies.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}
		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}
