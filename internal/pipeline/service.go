package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"aiart/internal/domain"
)

const (
	// ArchivePageSize is the number of records per archive page.
	ArchivePageSize = 30
	// MaxArchivePage keeps the row offset within a 32-bit integer.
	MaxArchivePage = math.MaxInt32/ArchivePageSize - 1

	DefaultRecentLimit = 50
	MaxRecentLimit     = 1000

	existenceCheckConcurrency = 8
)

// BlobStore persists image bytes.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
}

// Generator produces an image for a request, retrying as needed.
type Generator interface {
	GenerateWithRetry(ctx context.Context, prompt, lastSearch string) (*Result, error)
}

// Page is one page of the archive.
type Page struct {
	Images   []domain.ImageRecord
	Page     int
	HasMore  bool
	NextPage int
}

// Service stores generated images and their records.
type Service struct {
	generator Generator
	repo      domain.ImageRepository
	store     BlobStore
	logger    zerolog.Logger
}

func NewService(generator Generator, repo domain.ImageRepository, store BlobStore, logger zerolog.Logger) *Service {
	return &Service{
		generator: generator,
		repo:      repo,
		store:     store,
		logger:    logger.With().Str("component", "generation_service").Logger(),
	}
}

// Generate runs the pipeline for req and persists the image and its record.
func (s *Service) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.ImageRecord, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.ErrInvalidPrompt
	}
	if req.ParentID != nil {
		if _, err := s.repo.GetByID(ctx, *req.ParentID); err != nil {
			return nil, fmt.Errorf("parent image %d: %w", *req.ParentID, err)
		}
	}

	result, err := s.generator.GenerateWithRetry(ctx, req.Prompt, req.LastSearch)
	if err != nil {
		return nil, err
	}

	key := uuid.NewString() + ".png"
	storagePath, err := s.store.Put(ctx, key, result.Image.Data, result.Image.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	rec, err := s.repo.Create(ctx, domain.NewImageRecord{
		Prompt:      result.FinalPrompt,
		StoragePath: storagePath,
		ModelID:     result.Image.SourceModelID,
		OwnerID:     req.OwnerID,
		ParentID:    req.ParentID,
	})
	if err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), storagePath); delErr != nil {
			s.logger.Error().Err(delErr).Str("storage_path", storagePath).Msg("orphaned image blob")
		}
		return nil, fmt.Errorf("save image record: %w", err)
	}

	s.logger.Info().
		Int64("image_id", rec.ID).
		Int("attempts", result.Attempts).
		Str("storage_path", storagePath).
		Msg("image generated")
	return rec, nil
}

// Get returns one image record.
func (s *Service) Get(ctx context.Context, id int64) (*domain.ImageRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// Remove deletes the record and then its blob. Both failures are reported.
func (s *Service) Remove(ctx context.Context, id int64) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var result *multierror.Error
	removed, err := s.repo.Remove(ctx, id)
	switch {
	case err != nil:
		result = multierror.Append(result, fmt.Errorf("delete image record: %w", err))
	case !removed:
		return domain.ErrNotFound
	}
	if err := s.store.Delete(ctx, rec.StoragePath); err != nil {
		result = multierror.Append(result, fmt.Errorf("delete image blob: %w", err))
	}
	return result.ErrorOrNil()
}

// ListPage returns a page of the archive, newest first. Pages start at 1.
func (s *Service) ListPage(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxArchivePage {
		return &Page{Page: page}, nil
	}
	// One extra row tells whether another page exists.
	rows, err := s.repo.ListRecent(ctx, ArchivePageSize+1, (page-1)*ArchivePageSize)
	if err != nil {
		return nil, err
	}
	out := &Page{Page: page, HasMore: len(rows) > ArchivePageSize}
	if out.HasMore {
		rows = rows[:ArchivePageSize]
		out.NextPage = page + 1
	}
	out.Images = rows
	return out, nil
}

// Recent returns up to limit of the newest records whose blob is present.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.ImageRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	rows, err := s.repo.ListRecent(ctx, limit, 0)
	if err != nil {
		return nil, err
	}

	present := make([]bool, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(existenceCheckConcurrency)
	for i := range rows {
		g.Go(func() error {
			present[i] = s.store.Exists(gctx, rows[i].StoragePath)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.ImageRecord, 0, len(rows))
	for i, rec := range rows {
		if present[i] {
			out = append(out, rec)
		}
	}
	return out, nil
}
