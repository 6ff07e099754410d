package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-climate/internal/mapdata"
)

type TileInput struct {
	LayerIDInput
	Z int `path:"z" doc:"Zoom level"`
	X int `path:"x" doc:"Tile column"`
	Y int `path:"y" doc:"Tile row (XYZ)"`
}

type PNGTileInput struct {
	LayerIDInput
	Z    int    `path:"z" doc:"Zoom level"`
	X    int    `path:"x" doc:"Tile column"`
	File string `path:"file" doc:"Tile row with .png extension" example:"42.png"`
}

// RawOutput is a binary or pre-encoded response body.
type RawOutput struct {
	Status       int
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// RegisterMapData registers the layer payload routes.
func (h *APIHandler) RegisterMapData(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-vector-geojson",
		Method:      http.MethodGet,
		Path:        "/api/map-data/vector/{layerId}",
		Summary:     "Whole-file vector data as GeoJSON",
		Description: "Missing layers return an empty FeatureCollection, never 404.",
		Tags:        []string{"map-data"},
	}, h.GetVectorGeoJSON)
	huma.Register(api, huma.Operation{
		OperationID: "get-vector-tile",
		Method:      http.MethodGet,
		Path:        "/api/map-data/vector/{layerId}/{z}/{x}/{y}",
		Summary:     "Decompressed Mapbox vector tile",
		Tags:        []string{"map-data"},
		Errors:      []int{http.StatusBadRequest},
	}, h.GetVectorTile)
	huma.Register(api, huma.Operation{
		OperationID: "get-cog",
		Method:      http.MethodGet,
		Path:        "/api/map-data/cog/{layerId}",
		Summary:     "Raw Cloud Optimized GeoTIFF bytes",
		Tags:        []string{"map-data"},
		Errors:      []int{http.StatusNotFound},
	}, h.GetCOG)
	huma.Register(api, huma.Operation{
		OperationID: "get-raster-tile",
		Method:      http.MethodGet,
		Path:        "/api/map-tiles/{layerId}/{z}/{x}/{file}",
		Summary:     "Raster tile from a tile archive",
		Tags:        []string{"map-data"},
		Errors:      []int{http.StatusBadRequest},
	}, h.GetRasterTile)
}

func (h *APIHandler) GetVectorGeoJSON(ctx context.Context, input *LayerIDInput) (*RawOutput, error) {
	res, err := h.svc.MapData.VectorGeoJSON(ctx, input.LayerID)
	if err != nil {
		return nil, h.internalError("vector data", err)
	}
	return &RawOutput{
		Status:       http.StatusOK,
		ContentType:  "application/geo+json",
		CacheControl: res.CacheControl,
		Body:         res.Body,
	}, nil
}

func (h *APIHandler) GetVectorTile(ctx context.Context, input *TileInput) (*RawOutput, error) {
	t, err := h.svc.MapData.VectorTile(ctx, input.LayerID, input.Z, input.X, input.Y)
	return h.tileOutput(t, err)
}

func (h *APIHandler) GetRasterTile(ctx context.Context, input *PNGTileInput) (*RawOutput, error) {
	row, ok := strings.CutSuffix(input.File, ".png")
	if !ok {
		return nil, huma.Error400BadRequest("tile must end in .png")
	}
	y, err := strconv.Atoi(row)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid tile row", err)
	}
	t, err := h.svc.MapData.RasterTile(ctx, input.LayerID, input.Z, input.X, y)
	return h.tileOutput(t, err)
}

func (h *APIHandler) tileOutput(t mapdata.Tile, err error) (*RawOutput, error) {
	switch {
	case errors.Is(err, mapdata.ErrInvalidTile):
		return nil, huma.Error400BadRequest(err.Error())
	case errors.Is(err, mapdata.ErrNoTile), errors.Is(err, mapdata.ErrNotFound):
		return &RawOutput{Status: http.StatusNoContent}, nil
	case err != nil:
		return nil, h.internalError("read tile", err)
	}
	return &RawOutput{
		Status:       http.StatusOK,
		ContentType:  t.ContentType,
		CacheControl: mapdata.CacheHit,
		Body:         t.Data,
	}, nil
}

func (h *APIHandler) GetCOG(ctx context.Context, input *LayerIDInput) (*RawOutput, error) {
	data, err := h.svc.MapData.COG(ctx, input.LayerID)
	if errors.Is(err, mapdata.ErrNotFound) {
		return nil, huma.Error404NotFound("no raster for layer")
	}
	if err != nil {
		return nil, h.internalError("read cog", err)
	}
	return &RawOutput{
		Status:       http.StatusOK,
		ContentType:  "image/tiff",
		CacheControl: mapdata.CacheHit,
		Body:         data,
	}, nil
}
