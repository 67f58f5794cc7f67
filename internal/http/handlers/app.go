package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"aiart/internal/domain"
	"aiart/internal/pipeline"
)

// ImageService is the part of the generation service used by the handlers.
type ImageService interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.ImageRecord, error)
	Get(ctx context.Context, id int64) (*domain.ImageRecord, error)
	Remove(ctx context.Context, id int64) error
	ListPage(ctx context.Context, page int) (*pipeline.Page, error)
	Recent(ctx context.Context, limit int) ([]domain.ImageRecord, error)
}

type App struct {
	Images ImageService
	Logger zerolog.Logger
	// BaseURL prefixes storage paths in responses, e.g. "/images".
	BaseURL string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": message, "code": errCode})
}

// log returns the request logger when the logging middleware set one.
func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}
