package repo

import (
	"context"
	"fmt"

	"aiart/internal/domain"
	"aiart/internal/infra"
	"aiart/internal/sqlinline"
)

// ImageRepositoryPG implements domain.ImageRepository on PostgreSQL.
type ImageRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewImageRepository constructs a repository over the given executor.
func NewImageRepository(sql infra.SQLExecutor) *ImageRepositoryPG {
	return &ImageRepositoryPG{sql: sql}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*domain.ImageRecord, error) {
	var rec domain.ImageRecord
	if err := row.Scan(&rec.ID, &rec.Prompt, &rec.StoragePath, &rec.ModelID, &rec.OwnerID, &rec.ParentID, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a record and returns it with the generated id and timestamp.
func (r *ImageRepositoryPG) Create(ctx context.Context, in domain.NewImageRecord) (*domain.ImageRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertImage, in.Prompt, in.StoragePath, in.ModelID, in.OwnerID, in.ParentID)
	rec, err := scanImage(row)
	if err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}
	return rec, nil
}

// GetByID returns domain.ErrNotFound when no record has the id.
func (r *ImageRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.ImageRecord, error) {
	rec, err := scanImage(r.sql.QueryRow(ctx, sqlinline.QSelectImageByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select image %d: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns records newest first.
func (r *ImageRepositoryPG) ListRecent(ctx context.Context, limit, offset int) ([]domain.ImageRecord, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListRecentImages, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []domain.ImageRecord
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return out, nil
}

// Remove deletes the record and reports whether a row existed.
func (r *ImageRepositoryPG) Remove(ctx context.Context, id int64) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteImage, id)
	if err != nil {
		return false, fmt.Errorf("delete image %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

var _ domain.ImageRepository = (*ImageRepositoryPG)(nil)
