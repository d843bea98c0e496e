package orders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/internal/inventory"
	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
)

func setupOrdersServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn := setupOrdersTestDB(t)
	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  title TEXT NOT NULL,
  apartment TEXT,
  price_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'available',
  reserved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(products).Error)
	return conn
}

func newOrdersService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()

	client := db.NewWithConn(conn)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	svc, err := NewService(client, NewRepository(client), inventory.NewService(), logg)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	client := db.NewWithConn(conn)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})

	_, err := NewService(nil, NewRepository(client), inventory.NewService(), logg)
	require.Error(t, err)

	_, err = NewService(client, nil, inventory.NewService(), logg)
	require.Error(t, err)

	_, err = NewService(client, NewRepository(client), nil, logg)
	require.Error(t, err)
}

func TestSellerMovesOrderThroughFulfilment(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	svc := newOrdersService(t, conn)
	order := seedOrder(t, conn, func(o *models.Order) {
		o.Status = enums.OrderStatusConfirmed
	})
	seller := Actor{ID: order.SellerID, Role: enums.ActorRoleStudent}

	got, err := svc.UpdateStatus(context.Background(), seller, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusShipped,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, got.Status)

	got, err = svc.UpdateStatus(context.Background(), seller, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusDelivered,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
}

func TestSellerCannotCancelPaidOrder(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	svc := newOrdersService(t, conn)

	product := models.Product{
		ID:         uuid.New(),
		SellerID:   uuid.New(),
		Title:      "mini fridge",
		PriceCents: 9000,
		Status:     enums.ProductStatusSold,
	}
	require.NoError(t, conn.Create(&product).Error)

	order := seedOrder(t, conn, func(o *models.Order) {
		o.SellerID = product.SellerID
		o.ProductID = product.ID
		o.Status = enums.OrderStatusConfirmed
		o.PaymentStatus = enums.PaymentStatusCompleted
		o.SellerPaid = true
	})
	seller := Actor{ID: order.SellerID, Role: enums.ActorRoleStudent}

	_, err := svc.UpdateStatus(context.Background(), seller, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusCancelled,
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())

	var current models.Order
	require.NoError(t, conn.First(&current, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, current.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, current.PaymentStatus)

	var kept models.Product
	require.NoError(t, conn.First(&kept, "id = ?", product.ID).Error)
	assert.Equal(t, enums.ProductStatusSold, kept.Status)
}

func TestBuyerCancelsPendingOrderAndFreesProduct(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	svc := newOrdersService(t, conn)

	product := models.Product{
		ID:         uuid.New(),
		SellerID:   uuid.New(),
		Title:      "mini fridge",
		PriceCents: 9000,
		Status:     enums.ProductStatusReserved,
	}
	require.NoError(t, conn.Create(&product).Error)

	order := seedOrder(t, conn, func(o *models.Order) {
		o.SellerID = product.SellerID
		o.ProductID = product.ID
	})
	buyer := Actor{ID: order.BuyerID, Role: enums.ActorRoleStudent}

	got, err := svc.UpdateStatus(context.Background(), buyer, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, "cancelled-by-student", *got.CancelReason)

	var freed models.Product
	require.NoError(t, conn.First(&freed, "id = ?", product.ID).Error)
	assert.Equal(t, enums.ProductStatusAvailable, freed.Status)
}

func TestBuyerMayOnlyCancel(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	svc := newOrdersService(t, conn)
	order := seedOrder(t, conn, nil)
	buyer := Actor{ID: order.BuyerID, Role: enums.ActorRoleStudent}

	_, err := svc.UpdateStatus(context.Background(), buyer, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusConfirmed,
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())
}

func TestBuyerCannotCancelConfirmedOrder(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	svc := newOrdersService(t, conn)
	order := seedOrder(t, conn, func(o *models.Order) {
		o.Status = enums.OrderStatusConfirmed
	})
	buyer := Actor{ID: order.BuyerID, Role: enums.ActorRoleStudent}

	_, err := svc.UpdateStatus(context.Background(), buyer, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusCancelled,
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeStateConflict, coded.Code())
}

func TestStrangerCannotTouchOrder(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	svc := newOrdersService(t, conn)
	order := seedOrder(t, conn, nil)
	stranger := Actor{ID: uuid.New(), Role: enums.ActorRoleStudent}

	_, err := svc.Get(context.Background(), stranger, order.ID)
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())

	_, err = svc.UpdateStatus(context.Background(), stranger, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusCancelled,
	})
	require.Error(t, err)
}

func TestAdminSkipsOwnershipChecks(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	svc := newOrdersService(t, conn)
	order := seedOrder(t, conn, nil)
	admin := Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}

	got, err := svc.Get(context.Background(), admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	updated, err := svc.UpdateStatus(context.Background(), admin, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusConfirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, updated.Status)
}

func TestUpdateStatusRejectsIllegalEdge(t *testing.T) {
	conn := setupOrdersServiceDB(t)
	svc := newOrdersService(t, conn)
	order := seedOrder(t, conn, nil)
	seller := Actor{ID: order.SellerID, Role: enums.ActorRoleStudent}

	_, err := svc.UpdateStatus(context.Background(), seller, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusDelivered,
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeStateConflict, coded.Code())
}
