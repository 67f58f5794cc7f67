package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"aiart/internal/domain"
	"aiart/internal/middleware"
	"aiart/internal/pipeline"
)

const maxGenerateBody = 64 << 10

type generateRequest struct {
	Prompt     string `json:"prompt"`
	LastSearch string `json:"lastSearch"`
	ParentID   *int64 `json:"parentId"`
}

type imageResponse struct {
	domain.ImageRecord
	URL string `json:"url"`
}

type pageResponse struct {
	Images   []imageResponse `json:"images"`
	Page     int             `json:"page"`
	HasMore  bool            `json:"hasMore"`
	NextPage *int            `json:"nextPage"`
}

func (a *App) toResponse(rec domain.ImageRecord) imageResponse {
	return imageResponse{ImageRecord: rec, URL: a.BaseURL + "/" + rec.StoragePath}
}

func (a *App) toResponses(recs []domain.ImageRecord) []imageResponse {
	return lo.Map(recs, func(rec domain.ImageRecord, _ int) imageResponse {
		return a.toResponse(rec)
	})
}

// ImagesGenerate runs the generation pipeline synchronously and returns the
// stored record.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerateRequest(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	rec, err := a.Images.Generate(r.Context(), domain.GenerationRequest{
		Prompt:     req.Prompt,
		LastSearch: req.LastSearch,
		OwnerID:    middleware.OwnerIDFromContext(r.Context()),
		ParentID:   req.ParentID,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidPrompt):
		a.error(w, http.StatusBadRequest, "bad_request", "Prompt is required")
		return
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "parent image not found")
		return
	case err != nil:
		a.log(r).Error().Err(err).Msg("image generation failed")
		a.error(w, http.StatusInternalServerError, generationErrorCode(err), err.Error())
		return
	}
	a.json(w, http.StatusCreated, a.toResponse(*rec))
}

func generationErrorCode(err error) string {
	var (
		exhausted *domain.GenerationExhaustedError
		authErr   *domain.AuthError
		transport *domain.TransportError
	)
	switch {
	case errors.As(err, &exhausted):
		return "generation_exhausted"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &transport):
		return "upstream_unavailable"
	default:
		return "internal"
	}
}

func decodeGenerateRequest(r *http.Request) (generateRequest, error) {
	var req generateRequest
	r.Body = http.MaxBytesReader(nil, r.Body, maxGenerateBody)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		parse := r.ParseForm
		if mediaType == "multipart/form-data" {
			parse = func() error { return r.ParseMultipartForm(maxGenerateBody) }
		}
		if err := parse(); err != nil {
			return req, err
		}
		req.Prompt = r.PostFormValue("prompt")
		req.LastSearch = r.PostFormValue("lastSearch")
		if raw := strings.TrimSpace(r.PostFormValue("parentId")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return req, err
			}
			req.ParentID = &id
		}
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	}
	return req, nil
}

// ImagesList returns one archive page, newest first.
func (a *App) ImagesList(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > pipeline.MaxArchivePage {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid page")
			return
		}
		page = n
	}
	res, err := a.Images.ListPage(r.Context(), page)
	if err != nil {
		a.log(r).Error().Err(err).Msg("list images failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list images")
		return
	}
	out := pageResponse{Images: a.toResponses(res.Images), Page: res.Page, HasMore: res.HasMore}
	if res.HasMore {
		out.NextPage = &res.NextPage
	}
	a.json(w, http.StatusOK, out)
}

// ImagesRecent returns the newest images whose files are still present.
func (a *App) ImagesRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}
	recs, err := a.Images.Recent(r.Context(), limit)
	if err != nil {
		a.log(r).Error().Err(err).Msg("recent images failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list images")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"images": a.toResponses(recs)})
}

func (a *App) ImageGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.imageID(w, r)
	if !ok {
		return
	}
	rec, err := a.Images.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "Image not found")
		return
	}
	if err != nil {
		a.log(r).Error().Err(err).Int64("image_id", id).Msg("get image failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load image")
		return
	}
	a.json(w, http.StatusOK, a.toResponse(*rec))
}

func (a *App) ImageDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := a.imageID(w, r)
	if !ok {
		return
	}
	err := a.Images.Remove(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "Image not found")
		return
	}
	if err != nil {
		a.log(r).Error().Err(err).Int64("image_id", id).Msg("delete image failed")
		a.error(w, http.StatusInternalServerError, "internal", "Failed to delete image")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "Image deleted successfully"})
}

func (a *App) imageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "Invalid image ID")
		return 0, false
	}
	return id, true
}
