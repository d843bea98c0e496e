package webhooks

import (
	"context"
	"net/http"

	"github.com/sokohub/sokohub-backend/api/responses"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
	"github.com/sokohub/sokohub-backend/pkg/mpesa"
)

type MpesaCallbackService interface {
	HandleCallback(ctx context.Context, cb *mpesa.Callback) error
}

// MpesaWebhook receives asynchronous STK push outcomes. The gateway keeps
// redelivering until it sees a 2xx, so every parseable callback is
// acknowledged even when processing fails; redelivery of a processed callback
// is a no-op downstream.
func MpesaWebhook(svc MpesaCallbackService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		cb, err := mpesa.ParseCallback(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed callback"))
			return
		}

		if err := svc.HandleCallback(ctx, cb); err != nil {
			if logg != nil {
				logg.Error(ctx, "payment callback processing failed", err)
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "accepted"})
	}
}
