package store

import (
	"context"
	"errors"

	"glassmon/internal/model"
)

var (
	ErrNotFound      = errors.New("defect not found")
	ErrAlreadyTagged = errors.New("defect already tagged")
)

// DefectStore is the slice of the shared defects table the tagger needs.
type DefectStore interface {
	// ListUntagged returns rows without a tag number, oldest detection
	// first. A limit <= 0 means no limit.
	ListUntagged(ctx context.Context, limit int) ([]model.Defect, error)
	// MaxTagNumber returns the highest committed tag number, or 0.
	MaxTagNumber(ctx context.Context) (int64, error)
	// UpdateTag commits tag and taggedImageURL in one write. It fails with
	// ErrAlreadyTagged if the row already carries a tag.
	UpdateTag(ctx context.Context, id string, tag int64, taggedImageURL *string) error
}
