package mapsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/joeblew999/plat-climate/internal/mapdata"
)

// ErrNoData is returned for a 204 response.
var ErrNoData = errors.New("no data")

// StatusError is a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// HTTPSource reads layer payloads from the map-data endpoints of a running
// server.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source rooted at baseURL. A nil client means
// http.DefaultClient, which has no timeout.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (h *HTTPSource) VectorGeoJSON(ctx context.Context, id string) ([]byte, error) {
	return h.get(ctx, "/api/map-data/vector/"+url.PathEscape(id))
}

func (h *HTTPSource) COG(ctx context.Context, id string) ([]byte, error) {
	return h.get(ctx, "/api/map-data/cog/"+url.PathEscape(id))
}

func (h *HTTPSource) VectorTile(ctx context.Context, id string, z, x, y int) ([]byte, error) {
	return h.get(ctx, fmt.Sprintf("/api/map-data/vector/%s/%d/%d/%d", url.PathEscape(id), z, x, y))
}

func (h *HTTPSource) get(ctx context.Context, path string) ([]byte, error) {
	u := h.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, ErrNoData
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: u, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return body, nil
}

// ServiceSource reads payloads in-process from a map data service.
type ServiceSource struct {
	Service *mapdata.Service
}

func (s ServiceSource) VectorGeoJSON(ctx context.Context, id string) ([]byte, error) {
	res, err := s.Service.VectorGeoJSON(ctx, id)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (s ServiceSource) COG(ctx context.Context, id string) ([]byte, error) {
	return s.Service.COG(ctx, id)
}

func (s ServiceSource) VectorTile(ctx context.Context, id string, z, x, y int) ([]byte, error) {
	t, err := s.Service.VectorTile(ctx, id, z, x, y)
	if err != nil {
		return nil, err
	}
	return t.Data, nil
}
