package inventory

import (
	"context"
	"time"

	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
)

// Repository reads product availability state.
type Repository interface {
	FindExpiredReserved(ctx context.Context, cutoff time.Time) ([]models.Product, error)
}

type repository struct {
	db *db.Client
}

func NewRepository(client *db.Client) Repository {
	if client == nil {
		return nil
	}
	return &repository{db: client}
}

// FindExpiredReserved returns products that have sat reserved since before
// the cutoff.
func (r *repository) FindExpiredReserved(ctx context.Context, cutoff time.Time) ([]models.Product, error) {
	var list []models.Product
	err := r.db.DB().WithContext(ctx).
		Where("status = ? AND reserved_at IS NOT NULL AND reserved_at < ?", enums.ProductStatusReserved, cutoff).
		Order("reserved_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired reservations")
	}
	return list, nil
}
