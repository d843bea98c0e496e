package checkout

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/internal/cart"
	"github.com/sokohub/sokohub-backend/internal/inventory"
	"github.com/sokohub/sokohub-backend/internal/ledger"
	"github.com/sokohub/sokohub-backend/internal/orders"
	"github.com/sokohub/sokohub-backend/pkg/config"
	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
)

type fakeGateway struct {
	ref   string
	err   error
	phone string
	cents int
}

func (f *fakeGateway) InitiatePush(_ context.Context, phone string, amountCents int, _ string) (string, error) {
	f.phone = phone
	f.cents = amountCents
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, schema := range []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  title TEXT NOT NULL,
  apartment TEXT,
  price_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'available',
  reserved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL DEFAULT 1,
  total_price_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  checkout_session_id TEXT NOT NULL,
  payment_ref TEXT,
  payment_receipt TEXT,
  payment_phone TEXT NOT NULL,
  seller_paid INTEGER NOT NULL DEFAULT 0,
  shipping_address TEXT NOT NULL,
  cancel_reason TEXT,
  cancelled_at DATETIME,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS seller_balances (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL UNIQUE,
  current_balance_cents INTEGER NOT NULL DEFAULT 0,
  total_earnings_cents INTEGER NOT NULL DEFAULT 0,
  total_orders INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  order_id TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  paid_at DATETIME,
  created_at DATETIME
);`,
	} {
		require.NoError(t, conn.Exec(schema).Error)
	}
	return conn
}

func newCheckoutService(t *testing.T, conn *gorm.DB, gateway Gateway, testMode bool) Service {
	t.Helper()

	client := db.NewWithConn(conn)
	cfg := &config.Config{}
	cfg.Mpesa.CountryCode = "254"
	cfg.Mpesa.TestMode = testMode
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	ledgerService, err := ledger.NewService(client, ledger.NewRepository(client), orders.NewRepository(client), logg)
	require.NoError(t, err)
	svc, err := NewService(client, cfg, cart.NewRepository(client), orders.NewRepository(client), inventory.NewService(), ledgerService, gateway, logg)
	require.NoError(t, err)
	return svc
}

func seedListing(t *testing.T, conn *gorm.DB, sellerID uuid.UUID, title string, priceCents int, status enums.ProductStatus) models.Product {
	t.Helper()

	product := models.Product{
		ID:         uuid.New(),
		SellerID:   sellerID,
		Title:      title,
		PriceCents: priceCents,
		Status:     status,
	}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

func addToCart(t *testing.T, conn *gorm.DB, buyerID, productID uuid.UUID, qty int) {
	t.Helper()

	item := models.CartItem{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		ProductID: productID,
		Qty:       qty,
	}
	require.NoError(t, conn.Create(&item).Error)
}

func TestExecuteFansOutPerSeller(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	gateway := &fakeGateway{ref: "ws_CO_991"}
	svc := newCheckoutService(t, conn, gateway, false)

	buyerID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()
	lamp := seedListing(t, conn, sellerA, "desk lamp", 50000, enums.ProductStatusAvailable)
	mugs := seedListing(t, conn, sellerB, "mug set", 30000, enums.ProductStatusAvailable)
	addToCart(t, conn, buyerID, lamp.ID, 1)
	addToCart(t, conn, buyerID, mugs.ID, 2)

	result, err := svc.Execute(context.Background(), Input{
		BuyerID:         buyerID,
		Phone:           "0712345678",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, "ws_CO_991", result.PaymentRef)
	assert.Equal(t, 110000, result.TotalCents)
	assert.Equal(t, 110000, gateway.cents)
	assert.Equal(t, "254712345678", gateway.phone)

	totals := map[uuid.UUID]int{}
	for _, order := range result.Orders {
		assert.Equal(t, result.SessionID, order.CheckoutSessionID)
		assert.Equal(t, enums.OrderStatusPending, order.Status)
		assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
		require.NotNil(t, order.PaymentRef)
		assert.Equal(t, "ws_CO_991", *order.PaymentRef)
		totals[order.SellerID] = order.TotalPriceCents
	}
	assert.Equal(t, 50000, totals[sellerA])
	assert.Equal(t, 60000, totals[sellerB])

	// Both products reserved, cart emptied.
	var reserved int64
	require.NoError(t, conn.Model(&models.Product{}).Where("status = ?", enums.ProductStatusReserved).Count(&reserved).Error)
	assert.EqualValues(t, 2, reserved)

	var remaining int64
	require.NoError(t, conn.Model(&models.CartItem{}).Where("buyer_id = ?", buyerID).Count(&remaining).Error)
	assert.EqualValues(t, 0, remaining)
}

func TestExecuteSkipsUnsellableItems(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, conn, &fakeGateway{ref: "ws_CO_5"}, false)

	buyerID := uuid.New()
	sold := seedListing(t, conn, uuid.New(), "sold bike", 80000, enums.ProductStatusSold)
	own := seedListing(t, conn, buyerID, "my own kettle", 4000, enums.ProductStatusAvailable)
	good := seedListing(t, conn, uuid.New(), "headphones", 25000, enums.ProductStatusAvailable)
	addToCart(t, conn, buyerID, sold.ID, 1)
	addToCart(t, conn, buyerID, own.ID, 1)
	addToCart(t, conn, buyerID, good.ID, 1)

	result, err := svc.Execute(context.Background(), Input{
		BuyerID:         buyerID,
		Phone:           "0712345678",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, good.ID, result.Orders[0].ProductID)
	assert.ElementsMatch(t, []string{"sold bike", "my own kettle"}, result.Skipped)

	// Skipped items stay in the cart for the buyer to deal with.
	var remaining []models.CartItem
	require.NoError(t, conn.Where("buyer_id = ?", buyerID).Find(&remaining).Error)
	require.Len(t, remaining, 2)
}

func TestExecuteFailsWhenNothingSellable(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, conn, &fakeGateway{ref: "ws_CO_5"}, false)

	buyerID := uuid.New()
	sold := seedListing(t, conn, uuid.New(), "sold bike", 80000, enums.ProductStatusSold)
	addToCart(t, conn, buyerID, sold.ID, 1)

	_, err := svc.Execute(context.Background(), Input{
		BuyerID:         buyerID,
		Phone:           "0712345678",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeConflict, coded.Code())
}

func TestExecuteEmptyCart(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, conn, &fakeGateway{ref: "ws_CO_5"}, false)

	_, err := svc.Execute(context.Background(), Input{
		BuyerID:         uuid.New(),
		Phone:           "0712345678",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeValidation, coded.Code())
}

func TestExecuteRollsBackOnGatewayFailure(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	gateway := &fakeGateway{err: pkgerrors.New(pkgerrors.CodeDependency, "gateway down")}
	svc := newCheckoutService(t, conn, gateway, false)

	buyerID := uuid.New()
	lamp := seedListing(t, conn, uuid.New(), "desk lamp", 50000, enums.ProductStatusAvailable)
	addToCart(t, conn, buyerID, lamp.ID, 1)

	_, err := svc.Execute(context.Background(), Input{
		BuyerID:         buyerID,
		Phone:           "0712345678",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.Error(t, err)

	// Nothing half-committed: no orders, product back to available, cart intact.
	var orderCount int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 0, orderCount)

	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", lamp.ID).Error)
	assert.Equal(t, enums.ProductStatusAvailable, product.Status)

	var cartCount int64
	require.NoError(t, conn.Model(&models.CartItem{}).Where("buyer_id = ?", buyerID).Count(&cartCount).Error)
	assert.EqualValues(t, 1, cartCount)
}

func TestExecuteTestModeSkipsGateway(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, conn, nil, true)

	buyerID := uuid.New()
	lamp := seedListing(t, conn, uuid.New(), "desk lamp", 50000, enums.ProductStatusAvailable)
	addToCart(t, conn, buyerID, lamp.ID, 1)

	result, err := svc.Execute(context.Background(), Input{
		BuyerID:         buyerID,
		Phone:           "0712345678",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.NoError(t, err)
	assert.Equal(t, "test-"+result.SessionID.String(), result.PaymentRef)
	assert.True(t, strings.HasPrefix(result.PaymentRef, "test-"))

	// No callback arrives in test mode, so the order settles during checkout.
	var order models.Order
	require.NoError(t, conn.Where("checkout_session_id = ?", result.SessionID).First(&order).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, order.PaymentStatus)
	assert.True(t, order.SellerPaid)

	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", lamp.ID).Error)
	assert.Equal(t, enums.ProductStatusSold, product.Status)

	var entries []models.LedgerEntry
	require.NoError(t, conn.Where("seller_id = ?", lamp.SellerID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, 50000, entries[0].AmountCents)

	var balance models.SellerBalance
	require.NoError(t, conn.Where("seller_id = ?", lamp.SellerID).First(&balance).Error)
	assert.Equal(t, 50000, balance.CurrentBalanceCents)
}

func TestExecuteRejectsBadPhone(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, conn, &fakeGateway{ref: "ws_CO_5"}, false)

	_, err := svc.Execute(context.Background(), Input{
		BuyerID:         uuid.New(),
		Phone:           "not a phone",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeValidation, coded.Code())
}

func TestGetSessionRollsUpPaymentStatus(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	gateway := &fakeGateway{ref: "ws_CO_7"}
	svc := newCheckoutService(t, conn, gateway, false)

	buyerID := uuid.New()
	lamp := seedListing(t, conn, uuid.New(), "desk lamp", 50000, enums.ProductStatusAvailable)
	mugs := seedListing(t, conn, uuid.New(), "mug set", 30000, enums.ProductStatusAvailable)
	addToCart(t, conn, buyerID, lamp.ID, 1)
	addToCart(t, conn, buyerID, mugs.ID, 1)

	result, err := svc.Execute(context.Background(), Input{
		BuyerID:         buyerID,
		Phone:           "0712345678",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.NoError(t, err)

	status, err := svc.GetSession(context.Background(), buyerID, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, status.Payment)
	assert.Len(t, status.Orders, 2)

	// One failed payment taints the whole session.
	require.NoError(t, conn.Model(&models.Order{}).
		Where("id = ?", result.Orders[0].ID).
		Update("payment_status", enums.PaymentStatusFailed).Error)

	status, err = svc.GetSession(context.Background(), buyerID, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, status.Payment)
}

func TestGetSessionHidesOtherBuyers(t *testing.T) {
	conn := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, conn, &fakeGateway{ref: "ws_CO_8"}, false)

	buyerID := uuid.New()
	lamp := seedListing(t, conn, uuid.New(), "desk lamp", 50000, enums.ProductStatusAvailable)
	addToCart(t, conn, buyerID, lamp.ID, 1)

	result, err := svc.Execute(context.Background(), Input{
		BuyerID:         buyerID,
		Phone:           "0712345678",
		ShippingAddress: "Hall 9, Room 12",
	})
	require.NoError(t, err)

	_, err = svc.GetSession(context.Background(), uuid.New(), result.SessionID)
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())

	_, err = svc.GetSession(context.Background(), buyerID, uuid.New())
	require.Error(t, err)
	coded = pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeNotFound, coded.Code())
}
