package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/internal/inventory"
	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
	"github.com/sokohub/sokohub-backend/pkg/pagination"
)

// Actor identifies who is performing an order operation.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// UpdateStatusInput carries a requested status change.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Reason  string
}

// Service exposes order reads and the fulfilment status flow. Payment-driven
// transitions live in the payments package; this service only handles the
// human-driven ones.
type Service interface {
	Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	UpdateStatus(ctx context.Context, actor Actor, input UpdateStatusInput) (*models.Order, error)
}

type service struct {
	db        *db.Client
	repo      Repository
	inventory inventory.Service
	log       *logger.Logger
	now       func() time.Time
}

func NewService(client *db.Client, repo Repository, inv inventory.Service, log *logger.Logger) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{db: client, repo: repo, inventory: inv, log: log, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	return s.repo.ListByBuyer(ctx, buyerID, params)
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	return s.repo.ListBySeller(ctx, sellerID, params)
}

// UpdateStatus applies one edge of the status graph on behalf of an actor.
// Cancellation also releases the product reservation in the same transaction,
// so a cancelled order can never strand its product in reserved.
func (s *service) UpdateStatus(ctx context.Context, actor Actor, input UpdateStatusInput) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, order, input.Status); err != nil {
		return nil, err
	}
	if err := ValidateTransition(order.Status, input.Status); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	switch input.Status {
	case enums.OrderStatusCancelled:
		reason := input.Reason
		if reason == "" {
			reason = "cancelled-by-" + string(actor.Role)
		}
		fields["cancel_reason"] = reason
		fields["cancelled_at"] = s.now().UTC()
	case enums.OrderStatusDelivered:
		fields["delivered_at"] = s.now().UTC()
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, order.Status, input.Status, fields)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		if input.Status == enums.OrderStatusCancelled {
			return s.inventory.Release(ctx, tx, order.ProductID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"from":     string(order.Status),
		"to":       string(input.Status),
	}), "order status updated")

	return s.repo.FindByID(ctx, order.ID)
}

func canView(actor Actor, order *models.Order) bool {
	if actor.Role == enums.ActorRoleAdmin {
		return true
	}
	return actor.ID == order.BuyerID || actor.ID == order.SellerID
}

// authorizeTransition enforces who may request which edge. Buyers may only
// cancel their own pending orders; sellers drive fulfilment forward on their
// side but never cancel, since a paid order needs the refund flow an admin
// owns; admins may do anything the graph allows.
func authorizeTransition(actor Actor, order *models.Order, to enums.OrderStatus) error {
	if actor.Role == enums.ActorRoleAdmin {
		return nil
	}
	switch {
	case actor.ID == order.SellerID:
		switch to {
		case enums.OrderStatusConfirmed, enums.OrderStatusShipped, enums.OrderStatusDelivered:
			return nil
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "sellers may only move orders forward")
		}
	case actor.ID == order.BuyerID:
		if to != enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeForbidden, "buyers may only cancel orders")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled by the buyer")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
}
