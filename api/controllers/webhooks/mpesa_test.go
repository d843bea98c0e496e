package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sokohub/sokohub-backend/pkg/logger"
	"github.com/sokohub/sokohub-backend/pkg/mpesa"
	"github.com/sokohub/sokohub-backend/pkg/types"
)

type stubCallbackService struct {
	err      error
	received *mpesa.Callback
}

func (s *stubCallbackService) HandleCallback(_ context.Context, cb *mpesa.Callback) error {
	s.received = cb
	return s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard})
}

const successBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1100.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

func postCallback(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestMpesaWebhookAcksProcessedCallback(t *testing.T) {
	svc := &stubCallbackService{}
	rec := postCallback(t, MpesaWebhook(svc, testLogger()), successBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.received == nil {
		t.Fatal("expected callback to reach the service")
	}
	if svc.received.Reference() != "ws_CO_191220191020363925" {
		t.Fatalf("unexpected reference %q", svc.received.Reference())
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape: %T", envelope.Data)
	}
	if data["status"] != "accepted" {
		t.Fatalf("unexpected status %v", data["status"])
	}
}

func TestMpesaWebhookAcksEvenWhenProcessingFails(t *testing.T) {
	// The gateway keeps redelivering on non-2xx, so a processing failure on
	// a parseable callback must still be acknowledged.
	svc := &stubCallbackService{err: errors.New("db down")}
	rec := postCallback(t, MpesaWebhook(svc, testLogger()), successBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite processing failure, got %d", rec.Code)
	}
}

func TestMpesaWebhookRejectsMalformedBody(t *testing.T) {
	svc := &stubCallbackService{}
	rec := postCallback(t, MpesaWebhook(svc, testLogger()), `{"Body": {}}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.received != nil {
		t.Fatal("malformed callback must not reach the service")
	}
}

func TestMpesaWebhookWithoutService(t *testing.T) {
	rec := postCallback(t, MpesaWebhook(nil, testLogger()), successBody)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
