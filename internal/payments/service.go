package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/internal/inventory"
	"github.com/sokohub/sokohub-backend/internal/ledger"
	"github.com/sokohub/sokohub-backend/internal/orders"
	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
	"github.com/sokohub/sokohub-backend/pkg/mpesa"
)

const cancelReasonPaymentFailed = "payment-failed"

// Service applies asynchronous payment outcomes to orders. Every transition
// here is a compare-and-set against the pending state, so a redelivered
// callback finds nothing left to do.
type Service interface {
	HandleCallback(ctx context.Context, cb *mpesa.Callback) error
}

type service struct {
	db        *db.Client
	orders    orders.Repository
	inventory inventory.Service
	ledger    ledger.Service
	log       *logger.Logger
	now       func() time.Time
}

func NewService(
	client *db.Client,
	orderRepo orders.Repository,
	inv inventory.Service,
	ledgerSvc ledger.Service,
	log *logger.Logger,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:        client,
		orders:    orderRepo,
		inventory: inv,
		ledger:    ledgerSvc,
		log:       log,
		now:       time.Now,
	}, nil
}

// HandleCallback settles every order tagged with the callback's reference.
// Orders are processed in independent transactions so one bad row cannot hold
// the rest of the session hostage; failures are collected and reported
// together. An unmatched reference is logged and swallowed because the
// gateway retries on anything but an acknowledgement.
func (s *service) HandleCallback(ctx context.Context, cb *mpesa.Callback) error {
	ctx = s.log.WithField(ctx, "payment_ref", cb.Reference())

	list, err := s.orders.FindByPaymentRef(ctx, cb.Reference())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		s.log.Warn(ctx, "payment callback matched no orders")
		return nil
	}

	var errs error
	for i := range list {
		order := &list[i]
		octx := s.log.WithField(ctx, "order_id", order.ID.String())

		var err error
		if cb.Succeeded() {
			err = s.settleSuccess(octx, order, cb)
		} else {
			err = s.settleFailure(octx, order)
		}
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return errs
	}

	outcome := "failed"
	if cb.Succeeded() {
		outcome = "completed"
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"orders":  len(list),
		"outcome": outcome,
		"desc":    cb.ResultDesc(),
	}), "payment callback processed")
	return nil
}

// settleSuccess confirms one order: payment completed, product sold, seller
// credited. All three happen in one transaction guarded by the pending
// payment CAS and the seller_paid flag.
func (s *service) settleSuccess(ctx context.Context, order *models.Order, cb *mpesa.Callback) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)

		fields := map[string]any{}
		if receipt := cb.Receipt(); receipt != "" {
			fields["payment_receipt"] = receipt
		}
		moved, err := repo.UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusCompleted, fields)
		if err != nil {
			return err
		}
		if !moved {
			return s.auditSettled(ctx, repo, order.ID)
		}

		confirmed, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed, nil)
		if err != nil {
			return err
		}
		if !confirmed {
			// Payment landed after the order left pending, most likely a
			// cancellation that raced the gateway. Keep the completed payment
			// on record for the refund flow and do not touch inventory.
			s.log.Warn(ctx, "payment completed for order no longer pending")
			return nil
		}

		if err := s.inventory.FinalizeSold(ctx, tx, order.ProductID); err != nil {
			return err
		}

		flipped, err := repo.MarkSellerPaid(ctx, order.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		return s.ledger.Credit(ctx, tx, order.SellerID, order.ID, order.TotalPriceCents)
	})
}

// auditSettled runs when the payment CAS found nothing pending, which is the
// redelivery path. A settled order missing its ledger credit is the one state
// that must never go unnoticed.
func (s *service) auditSettled(ctx context.Context, repo orders.Repository, orderID uuid.UUID) error {
	current, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if current.PaymentStatus == enums.PaymentStatusCompleted && !current.SellerPaid {
		s.log.Error(ctx, "completed order has no ledger credit", pkgerrors.New(pkgerrors.CodeInternal, "seller credit missing"))
	}
	return nil
}

// settleFailure cancels one order after a declined or abandoned charge and
// puts the product back on the shelf.
func (s *service) settleFailure(ctx context.Context, order *models.Order) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)

		moved, err := repo.UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed, nil)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}

		cancelled, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{
			"cancel_reason": cancelReasonPaymentFailed,
			"cancelled_at":  s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if !cancelled {
			return nil
		}
		return s.inventory.Release(ctx, tx, order.ProductID)
	})
}
