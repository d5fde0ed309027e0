package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/class-attendance/internal/tiling"
)

// TilesHandler previews how a photo is split before detection
type TilesHandler struct {
	layout tiling.Layout
}

// NewTilesHandler creates a new tiles handler
func NewTilesHandler(layout tiling.Layout) *TilesHandler {
	return &TilesHandler{layout: layout}
}

// TileResponse is one planned tile in pixel coordinates
type TileResponse struct {
	Index int `json:"index"`
	X1    int `json:"x1"`
	Y1    int `json:"y1"`
	X2    int `json:"x2"`
	Y2    int `json:"y2"`
}

// PlanResponse lists the tiles of a resolution
type PlanResponse struct {
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Tiles    []TileResponse `json:"tiles"`
	MaxFaceW int            `json:"max_face_width"`
	MaxFaceH int            `json:"max_face_height"`
}

// Plan returns the tile plan for ?width=&height=.
func (h *TilesHandler) Plan(w http.ResponseWriter, r *http.Request) {
	width, errW := strconv.Atoi(r.URL.Query().Get("width"))
	height, errH := strconv.Atoi(r.URL.Query().Get("height"))
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		respondError(w, http.StatusBadRequest, "width and height must be positive integers")
		return
	}

	planned := h.layout.Plan(width, height)
	tiles := make([]TileResponse, len(planned))
	for i, t := range planned {
		tiles[i] = TileResponse{
			Index: t.Index,
			X1:    t.Rect.Min.X,
			Y1:    t.Rect.Min.Y,
			X2:    t.Rect.Max.X,
			Y2:    t.Rect.Max.Y,
		}
	}
	maxW, maxH := h.layout.Guarantee(width, height)
	respondJSON(w, http.StatusOK, PlanResponse{
		Width:    width,
		Height:   height,
		Tiles:    tiles,
		MaxFaceW: maxW,
		MaxFaceH: maxH,
	})
}
