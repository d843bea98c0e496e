package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/internal/cart"
	"github.com/sokohub/sokohub-backend/internal/checkout/helpers"
	"github.com/sokohub/sokohub-backend/internal/inventory"
	"github.com/sokohub/sokohub-backend/internal/ledger"
	"github.com/sokohub/sokohub-backend/internal/orders"
	"github.com/sokohub/sokohub-backend/pkg/config"
	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
	"github.com/sokohub/sokohub-backend/pkg/mpesa"
)

// Gateway is the slice of the payment client checkout needs.
type Gateway interface {
	InitiatePush(ctx context.Context, phone string, amountCents int, reference string) (string, error)
}

var _ Gateway = (*mpesa.Client)(nil)

// Input is a checkout request for the buyer's whole cart.
type Input struct {
	BuyerID         uuid.UUID
	Phone           string
	ShippingAddress string
}

// Result reports what the checkout produced. Skipped lists the titles of cart
// items that could not be purchased; they stay in the cart.
type Result struct {
	SessionID  uuid.UUID      `json:"sessionId"`
	PaymentRef string         `json:"paymentRef"`
	TotalCents int            `json:"totalCents"`
	Orders     []models.Order `json:"orders"`
	Skipped    []string       `json:"skipped,omitempty"`
}

// SessionStatus aggregates the payment progress of one checkout session.
type SessionStatus struct {
	SessionID uuid.UUID           `json:"sessionId"`
	Payment   enums.PaymentStatus `json:"payment"`
	Orders    []models.Order      `json:"orders"`
}

// Service turns a cart into per-seller orders and kicks off payment.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
	GetSession(ctx context.Context, buyerID, sessionID uuid.UUID) (*SessionStatus, error)
}

type service struct {
	db          *db.Client
	countryCode string
	testMode    bool
	cart        cart.Repository
	orders      orders.Repository
	inventory   inventory.Service
	ledger      ledger.Service
	gateway     Gateway
	log         *logger.Logger
}

func NewService(
	client *db.Client,
	cfg *config.Config,
	cartRepo cart.Repository,
	orderRepo orders.Repository,
	inv inventory.Service,
	ledgerSvc ledger.Service,
	gateway Gateway,
	log *logger.Logger,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
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
	if gateway == nil && !cfg.Mpesa.TestMode {
		return nil, fmt.Errorf("gateway required outside test mode")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:          client,
		countryCode: cfg.Mpesa.CountryCode,
		testMode:    cfg.Mpesa.TestMode,
		cart:        cartRepo,
		orders:      orderRepo,
		inventory:   inv,
		ledger:      ledgerSvc,
		gateway:     gateway,
		log:         log,
	}, nil
}

// Execute runs the whole checkout in one transaction: reserve every sellable
// cart item, write one pending order per item, remove those items from the
// cart, then ask the gateway for a payment push. A gateway failure rolls all
// of it back; the buyer retries with nothing half-committed.
func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	phone, err := mpesa.NormalizePhone(input.Phone, s.countryCode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid phone number")
	}

	result := Result{SessionID: uuid.New()}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cart.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		items, err := cartRepo.ListByBuyer(ctx, input.BuyerID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		sellable := make([]models.CartItem, 0, len(items))
		for _, item := range items {
			switch {
			case item.Product == nil:
				result.Skipped = append(result.Skipped, item.ProductID.String())
			case item.Product.SellerID == input.BuyerID:
				result.Skipped = append(result.Skipped, item.Product.Title)
			case item.Product.Status != enums.ProductStatusAvailable:
				result.Skipped = append(result.Skipped, item.Product.Title)
			default:
				sellable = append(sellable, item)
			}
		}

		groups := helpers.GroupBySeller(sellable)
		purchased := make([]uuid.UUID, 0, len(sellable))
		for _, group := range groups {
			for _, item := range group.Items {
				err := s.inventory.Reserve(ctx, tx, item.ProductID)
				if coded := pkgerrors.As(err); coded != nil && coded.Code() == pkgerrors.CodeConflict {
					result.Skipped = append(result.Skipped, item.Product.Title)
					continue
				}
				if err != nil {
					return err
				}

				order := models.Order{
					ID:                uuid.New(),
					BuyerID:           input.BuyerID,
					SellerID:          group.SellerID,
					ProductID:         item.ProductID,
					Qty:               item.Qty,
					TotalPriceCents:   item.Product.PriceCents * item.Qty,
					Status:            enums.OrderStatusPending,
					PaymentStatus:     enums.PaymentStatusPending,
					CheckoutSessionID: result.SessionID,
					PaymentPhone:      phone,
					ShippingAddress:   input.ShippingAddress,
				}
				if err := orderRepo.Create(ctx, &order); err != nil {
					return err
				}
				result.Orders = append(result.Orders, order)
				result.TotalCents += order.TotalPriceCents
				purchased = append(purchased, item.ProductID)
			}
		}
		if len(result.Orders) == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "no cart item is available for checkout")
		}

		if err := cartRepo.RemoveItems(ctx, input.BuyerID, purchased); err != nil {
			return err
		}

		ref, err := s.requestPayment(ctx, phone, result.TotalCents, result.SessionID)
		if err != nil {
			return err
		}
		result.PaymentRef = ref
		if err := orderRepo.TagPaymentRef(ctx, result.SessionID, ref); err != nil {
			return err
		}
		for i := range result.Orders {
			result.Orders[i].PaymentRef = &ref
		}

		// Test mode never gets a gateway callback, so the orders settle
		// here instead.
		if s.testMode {
			return s.settleWithoutGateway(ctx, tx, orderRepo, result.Orders)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"session_id":  result.SessionID.String(),
		"payment_ref": result.PaymentRef,
		"orders":      len(result.Orders),
		"total_cents": result.TotalCents,
		"skipped":     len(result.Skipped),
	}), "checkout completed")

	return &result, nil
}

// settleWithoutGateway finalizes freshly created orders inside the checkout
// transaction: payment completed, order confirmed, product sold, seller
// credited. The seller_paid flip guards the credit just like the callback
// path.
func (s *service) settleWithoutGateway(ctx context.Context, tx *gorm.DB, repo orders.Repository, created []models.Order) error {
	for i := range created {
		order := &created[i]
		if _, err := repo.UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusCompleted, nil); err != nil {
			return err
		}
		if _, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed, nil); err != nil {
			return err
		}
		if err := s.inventory.FinalizeSold(ctx, tx, order.ProductID); err != nil {
			return err
		}
		flipped, err := repo.MarkSellerPaid(ctx, order.ID)
		if err != nil {
			return err
		}
		if flipped {
			if err := s.ledger.Credit(ctx, tx, order.SellerID, order.ID, order.TotalPriceCents); err != nil {
				return err
			}
		}
		order.PaymentStatus = enums.PaymentStatusCompleted
		order.Status = enums.OrderStatusConfirmed
		order.SellerPaid = true
	}
	return nil
}

func (s *service) requestPayment(ctx context.Context, phone string, totalCents int, sessionID uuid.UUID) (string, error) {
	if s.testMode {
		return fmt.Sprintf("test-%s", sessionID), nil
	}
	ref, err := s.gateway.InitiatePush(ctx, phone, totalCents, sessionID.String())
	if err != nil {
		return "", err
	}
	return ref, nil
}

// GetSession reports a session's orders plus a rolled-up payment status:
// failed once any order failed, completed once all completed, pending
// otherwise.
func (s *service) GetSession(ctx context.Context, buyerID, sessionID uuid.UUID) (*SessionStatus, error) {
	list, err := s.orders.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if list[0].BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "session belongs to another buyer")
	}

	status := enums.PaymentStatusCompleted
	for _, order := range list {
		if order.PaymentStatus == enums.PaymentStatusFailed {
			status = enums.PaymentStatusFailed
			break
		}
		if order.PaymentStatus != enums.PaymentStatusCompleted {
			status = enums.PaymentStatusPending
		}
	}
	return &SessionStatus{SessionID: sessionID, Payment: status, Orders: list}, nil
}
