package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	ordersvc "github.com/sokohub/sokohub-backend/internal/orders"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/pagination"
	"github.com/sokohub/sokohub-backend/pkg/types"
)

type stubOrdersService struct {
	order      *models.Order
	list       []models.Order
	next       string
	err        error
	lastActor  ordersvc.Actor
	lastInput  ordersvc.UpdateStatusInput
	listedSide string
}

func (s *stubOrdersService) Get(_ context.Context, actor ordersvc.Actor, _ uuid.UUID) (*models.Order, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

func (s *stubOrdersService) ListForBuyer(_ context.Context, _ uuid.UUID, _ pagination.Params) ([]models.Order, string, error) {
	s.listedSide = "buyer"
	return s.list, s.next, s.err
}

func (s *stubOrdersService) ListForSeller(_ context.Context, _ uuid.UUID, _ pagination.Params) ([]models.Order, string, error) {
	s.listedSide = "seller"
	return s.list, s.next, s.err
}

func (s *stubOrdersService) UpdateStatus(_ context.Context, actor ordersvc.Actor, input ordersvc.UpdateStatusInput) (*models.Order, error) {
	s.lastActor = actor
	s.lastInput = input
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderID", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:                uuid.New(),
		BuyerID:           uuid.New(),
		SellerID:          uuid.New(),
		ProductID:         uuid.New(),
		Qty:               1,
		TotalPriceCents:   50000,
		Status:            enums.OrderStatusConfirmed,
		PaymentStatus:     enums.PaymentStatusCompleted,
		CheckoutSessionID: uuid.New(),
		PaymentPhone:      "254712345678",
		ShippingAddress:   "Hall 9, Room 12",
	}
}

func TestUpdateOrderStatusForwardsActorAndInput(t *testing.T) {
	order := sampleOrder()
	svc := &stubOrdersService{order: order}
	sellerID := order.SellerID

	req := authedRequest(http.MethodPatch, "/api/v1/orders/"+order.ID.String()+"/status",
		`{"status": "shipped"}`, sellerID.String(), "student")
	req = withOrderParam(req, order.ID.String())
	rec := httptest.NewRecorder()
	UpdateOrderStatus(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastActor.ID != sellerID || svc.lastActor.Role != enums.ActorRoleStudent {
		t.Fatalf("unexpected actor %+v", svc.lastActor)
	}
	if svc.lastInput.OrderID != order.ID {
		t.Fatalf("unexpected order id %s", svc.lastInput.OrderID)
	}
	if svc.lastInput.Status != enums.OrderStatusShipped {
		t.Fatalf("unexpected status %s", svc.lastInput.Status)
	}
}

func TestUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrdersService{order: sampleOrder()}

	req := authedRequest(http.MethodPatch, "/api/v1/orders/x/status",
		`{"status": "teleported"}`, uuid.NewString(), "student")
	req = withOrderParam(req, uuid.NewString())
	rec := httptest.NewRecorder()
	UpdateOrderStatus(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateOrderStatusRejectsBadOrderID(t *testing.T) {
	svc := &stubOrdersService{order: sampleOrder()}

	req := authedRequest(http.MethodPatch, "/api/v1/orders/nope/status",
		`{"status": "shipped"}`, uuid.NewString(), "student")
	req = withOrderParam(req, "nope")
	rec := httptest.NewRecorder()
	UpdateOrderStatus(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListOrdersPicksSide(t *testing.T) {
	svc := &stubOrdersService{list: []models.Order{*sampleOrder()}}

	req := authedRequest(http.MethodGet, "/api/v1/orders?side=seller", "", uuid.NewString(), "student")
	rec := httptest.NewRecorder()
	ListOrders(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.listedSide != "seller" {
		t.Fatalf("expected seller listing, got %q", svc.listedSide)
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestListOrdersDefaultsToBuyer(t *testing.T) {
	svc := &stubOrdersService{}

	req := authedRequest(http.MethodGet, "/api/v1/orders", "", uuid.NewString(), "student")
	rec := httptest.NewRecorder()
	ListOrders(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.listedSide != "buyer" {
		t.Fatalf("expected buyer listing, got %q", svc.listedSide)
	}
}

func TestListOrdersRejectsUnknownSide(t *testing.T) {
	svc := &stubOrdersService{}

	req := authedRequest(http.MethodGet, "/api/v1/orders?side=admin", "", uuid.NewString(), "student")
	rec := httptest.NewRecorder()
	ListOrders(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetOrderNotVisible(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")}

	orderID := uuid.NewString()
	req := authedRequest(http.MethodGet, "/api/v1/orders/"+orderID, "", uuid.NewString(), "student")
	req = withOrderParam(req, orderID)
	rec := httptest.NewRecorder()
	GetOrder(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
