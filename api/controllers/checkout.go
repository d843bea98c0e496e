package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sokohub/sokohub-backend/api/responses"
	"github.com/sokohub/sokohub-backend/api/validators"
	checkoutsvc "github.com/sokohub/sokohub-backend/internal/checkout"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
)

// Checkout converts the caller's cart into orders and starts payment.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), checkoutsvc.Input{
			BuyerID:         actor.ID,
			Phone:           payload.Phone,
			ShippingAddress: payload.ShippingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

// CheckoutSession reports payment progress for one checkout session.
func CheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session id"))
			return
		}

		status, err := svc.GetSession(r.Context(), actor.ID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponse{
			SessionID: status.SessionID,
			Payment:   string(status.Payment),
			Orders:    newOrderResponses(status.Orders),
		})
	}
}

type checkoutRequest struct {
	Phone           string `json:"phone" validate:"required,min=9,max=15"`
	ShippingAddress string `json:"shipping_address" validate:"required,min=3,max=500"`
}

type checkoutResponse struct {
	SessionID  uuid.UUID       `json:"session_id"`
	PaymentRef string          `json:"payment_ref"`
	TotalCents int             `json:"total_cents"`
	Orders     []orderResponse `json:"orders"`
	Skipped    []string        `json:"skipped,omitempty"`
}

type sessionResponse struct {
	SessionID uuid.UUID       `json:"session_id"`
	Payment   string          `json:"payment"`
	Orders    []orderResponse `json:"orders"`
}

func newCheckoutResponse(result *checkoutsvc.Result) checkoutResponse {
	if result == nil {
		return checkoutResponse{}
	}
	return checkoutResponse{
		SessionID:  result.SessionID,
		PaymentRef: result.PaymentRef,
		TotalCents: result.TotalCents,
		Orders:     newOrderResponses(result.Orders),
		Skipped:    result.Skipped,
	}
}
