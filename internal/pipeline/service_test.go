package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiart/internal/domain"
	"aiart/internal/storage"
)

type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	rows      []domain.ImageRecord
	createErr error
	removeErr error
}

func (r *memRepo) Create(_ context.Context, in domain.NewImageRecord) (*domain.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	rec := domain.ImageRecord{
		ID:          r.nextID,
		Prompt:      in.Prompt,
		StoragePath: in.StoragePath,
		ModelID:     in.ModelID,
		OwnerID:     in.OwnerID,
		ParentID:    in.ParentID,
		CreatedAt:   time.Unix(r.nextID, 0),
	}
	r.rows = append(r.rows, rec)
	return &rec, nil
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*domain.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.rows {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memRepo) ListRecent(_ context.Context, limit, offset int) ([]domain.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ImageRecord, 0, len(r.rows))
	for i := len(r.rows) - 1; i >= 0; i-- {
		out = append(out, r.rows[i])
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) Remove(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removeErr != nil {
		return false, r.removeErr
	}
	for i, rec := range r.rows {
		if rec.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type failingStore struct {
	*storage.FileStore
	deleteErr error
}

func (s failingStore) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.FileStore.Delete(ctx, key)
}

type generatorFunc func(ctx context.Context, prompt, lastSearch string) (*Result, error)

func (f generatorFunc) GenerateWithRetry(ctx context.Context, prompt, lastSearch string) (*Result, error) {
	return f(ctx, prompt, lastSearch)
}

func okGenerator(context.Context, string, string) (*Result, error) {
	return &Result{
		Image:       &domain.GeneratedImage{Data: []byte("png"), MIMEType: domain.DefaultImageMIME, SourceModelID: "imagegeneration@006"},
		FinalPrompt: "composed prompt",
		Attempts:    1,
	}, nil
}

func newFileStore(t *testing.T) *storage.FileStore {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestServiceGenerateStoresImageAndRecord(t *testing.T) {
	repo := &memRepo{}
	fs := newFileStore(t)
	svc := NewService(generatorFunc(okGenerator), repo, fs, zerolog.Nop())

	owner := int64(7)
	rec, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "a cat", OwnerID: &owner})
	require.NoError(t, err)
	assert.Equal(t, "composed prompt", rec.Prompt)
	assert.Equal(t, "imagegeneration@006", rec.ModelID)
	assert.Equal(t, &owner, rec.OwnerID)
	assert.Nil(t, rec.ParentID)
	assert.True(t, strings.HasSuffix(rec.StoragePath, ".png"))
	assert.True(t, fs.Exists(context.Background(), rec.StoragePath))
}

func TestServiceGenerateValidation(t *testing.T) {
	called := false
	gen := generatorFunc(func(ctx context.Context, p, l string) (*Result, error) {
		called = true
		return okGenerator(ctx, p, l)
	})
	svc := NewService(gen, &memRepo{}, newFileStore(t), zerolog.Nop())

	_, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidPrompt)

	parent := int64(99)
	_, err = svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "p", ParentID: &parent})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, called)
}

func TestServiceGenerateWithParent(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(generatorFunc(okGenerator), repo, newFileStore(t), zerolog.Nop())

	first, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "a"})
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "b", ParentID: &first.ID})
	require.NoError(t, err)
	require.NotNil(t, second.ParentID)
	assert.Equal(t, first.ID, *second.ParentID)
	assert.NotEqual(t, first.StoragePath, second.StoragePath)
}

func TestServiceGeneratePropagatesPipelineErrors(t *testing.T) {
	want := &domain.GenerationExhaustedError{Attempts: 3}
	svc := NewService(generatorFunc(func(context.Context, string, string) (*Result, error) {
		return nil, want
	}), &memRepo{}, newFileStore(t), zerolog.Nop())

	_, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "p"})
	assert.ErrorIs(t, err, want)
}

func TestServiceGenerateCleansUpBlobWhenRecordFails(t *testing.T) {
	fs := newFileStore(t)
	repo := &memRepo{createErr: errors.New("db down")}
	svc := NewService(generatorFunc(okGenerator), repo, fs, zerolog.Nop())

	_, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save image record")

	entries, err := os.ReadDir(fs.BasePath())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestServiceRemove(t *testing.T) {
	repo := &memRepo{}
	fs := newFileStore(t)
	svc := NewService(generatorFunc(okGenerator), repo, fs, zerolog.Nop())
	rec, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "p"})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(context.Background(), rec.ID))
	assert.False(t, fs.Exists(context.Background(), rec.StoragePath))
	assert.ErrorIs(t, svc.Remove(context.Background(), rec.ID), domain.ErrNotFound)
}

func TestServiceRemoveAggregatesErrors(t *testing.T) {
	repo := &memRepo{}
	fs := newFileStore(t)
	svc := NewService(generatorFunc(okGenerator), repo, fs, zerolog.Nop())
	rec, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "p"})
	require.NoError(t, err)

	repo.removeErr = errors.New("row locked")
	svc = NewService(generatorFunc(okGenerator), repo, failingStore{FileStore: fs, deleteErr: errors.New("disk busy")}, zerolog.Nop())

	err = svc.Remove(context.Background(), rec.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row locked")
	assert.Contains(t, err.Error(), "disk busy")
}

func TestServiceListPage(t *testing.T) {
	repo := &memRepo{}
	for i := 0; i < ArchivePageSize+5; i++ {
		_, err := repo.Create(context.Background(), domain.NewImageRecord{Prompt: fmt.Sprint(i), StoragePath: fmt.Sprintf("%d.png", i)})
		require.NoError(t, err)
	}
	svc := NewService(generatorFunc(okGenerator), repo, newFileStore(t), zerolog.Nop())

	first, err := svc.ListPage(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.Len(t, first.Images, ArchivePageSize)
	assert.True(t, first.HasMore)
	assert.Equal(t, 2, first.NextPage)
	assert.Equal(t, int64(ArchivePageSize+5), first.Images[0].ID)

	second, err := svc.ListPage(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, second.Images, 5)
	assert.False(t, second.HasMore)
	assert.Zero(t, second.NextPage)

	beyond, err := svc.ListPage(context.Background(), math.MaxInt)
	require.NoError(t, err)
	assert.Empty(t, beyond.Images)
	assert.False(t, beyond.HasMore)
}

func TestServiceRecentSkipsMissingBlobs(t *testing.T) {
	repo := &memRepo{}
	fs := newFileStore(t)
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("%02d.png", i)
		if i%2 == 0 {
			_, err := fs.Put(context.Background(), key, []byte("x"), domain.DefaultImageMIME)
			require.NoError(t, err)
		}
		_, err := repo.Create(context.Background(), domain.NewImageRecord{StoragePath: key})
		require.NoError(t, err)
	}
	svc := NewService(generatorFunc(okGenerator), repo, fs, zerolog.Nop())

	recent, err := svc.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "18.png", recent[0].StoragePath)
	for _, rec := range recent {
		assert.True(t, fs.Exists(context.Background(), rec.StoragePath))
	}

	limited, err := svc.Recent(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
