package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/internal/inventory"
	"github.com/sokohub/sokohub-backend/internal/orders"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	"github.com/sokohub/sokohub-backend/pkg/logger"
)

const cancelReasonReservationExpired = "reservation-expired"

// txRunner is the transactional surface jobs need from the db client.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StaleReservationJobParams configure the reservation reconciler.
type StaleReservationJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Products  inventory.Repository
	Orders    orders.Repository
	Inventory inventory.Service
	TTL       time.Duration
}

// NewStaleReservationJob builds the job that returns products stuck in
// reserved to the shelf when their payment never resolved.
func NewStaleReservationJob(params StaleReservationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("reservation ttl required")
	}
	return &staleReservationJob{
		logg:      params.Logger,
		db:        params.DB,
		products:  params.Products,
		orders:    params.Orders,
		inventory: params.Inventory,
		ttl:       params.TTL,
		now:       time.Now,
	}, nil
}

type staleReservationJob struct {
	logg      *logger.Logger
	db        txRunner
	products  inventory.Repository
	orders    orders.Repository
	inventory inventory.Service
	ttl       time.Duration
	now       func() time.Time
}

func (j *staleReservationJob) Name() string { return "stale-reservations" }

// Run releases every reservation older than the TTL and cancels its pending
// orders. Each product gets its own transaction; one bad product does not
// stop the sweep.
func (j *staleReservationJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	products, err := j.products.FindExpiredReserved(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query expired reservations: %w", err)
	}

	released := 0
	var errs []error
	for _, product := range products {
		skip, err := j.hasRecentCheckout(ctx, product, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if skip {
			continue
		}
		if err := j.releaseProduct(ctx, product); err != nil {
			errs = append(errs, fmt.Errorf("release product %s: %w", product.ID, err))
			continue
		}
		released++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(products),
		"released":   released,
	})
	j.logg.Info(logCtx, "stale reservation sweep complete")
	return multierr.Combine(errs...)
}

// hasRecentCheckout reports whether the product was re-reserved by a checkout
// younger than the cutoff. reserved_at alone cannot tell a stuck reservation
// from one that just changed hands, so the order age decides.
func (j *staleReservationJob) hasRecentCheckout(ctx context.Context, product models.Product, cutoff time.Time) (bool, error) {
	recent, err := j.orders.HasPendingYoungerThan(ctx, product.ID, cutoff)
	if err != nil {
		return false, fmt.Errorf("check recent orders for %s: %w", product.ID, err)
	}
	return recent, nil
}

func (j *staleReservationJob) releaseProduct(ctx context.Context, product models.Product) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.orders.WithTx(tx)
		pending, err := repo.FindStalePendingByProduct(ctx, product.ID)
		if err != nil {
			return err
		}
		now := j.now().UTC()
		for _, order := range pending {
			_, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{
				"cancel_reason": cancelReasonReservationExpired,
				"cancelled_at":  now,
			})
			if err != nil {
				return err
			}
			_, err = repo.UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed, nil)
			if err != nil {
				return err
			}
		}
		return j.inventory.Release(ctx, tx, product.ID)
	})
}
