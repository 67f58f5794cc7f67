package domain

import "context"

// ImageRepository persists image records.
type ImageRepository interface {
	Create(ctx context.Context, rec NewImageRecord) (*ImageRecord, error)
	GetByID(ctx context.Context, id int64) (*ImageRecord, error)
	ListRecent(ctx context.Context, limit, offset int) ([]ImageRecord, error)
	Remove(ctx context.Context, id int64) (bool, error)
}
