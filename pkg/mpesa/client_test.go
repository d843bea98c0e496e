package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/sokohub/sokohub-backend/pkg/config"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
)

type fakeDoer struct {
	lastReq *http.Request
	body    []byte
	resp    *http.Response
	err     error
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	if req.Body != nil {
		f.body, _ = io.ReadAll(req.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func jsonResponse(status int, payload any) *http.Response {
	raw, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func newTestClient(t *testing.T, doer *fakeDoer) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.MpesaConfig{
		BaseURL:     "https://gateway.example.com/",
		APIKey:      "test-key",
		ShortCode:   "600123",
		CallbackURL: "https://api.example.com/api/v1/webhooks/mpesa",
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.http = doer
	return client
}

func TestInitiatePushSendsWholeUnits(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(http.StatusOK, map[string]string{
		"checkout_request_id": "ws_CO_1902",
		"response_code":       "0",
	})}
	client := newTestClient(t, doer)

	ref, err := client.InitiatePush(context.Background(), "0712345678", 110050, "session-1")
	if err != nil {
		t.Fatalf("InitiatePush: %v", err)
	}
	if ref != "ws_CO_1902" {
		t.Fatalf("unexpected correlation id %q", ref)
	}

	var sent pushRequest
	if err := json.Unmarshal(doer.body, &sent); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if sent.Amount != "1100.50" {
		t.Fatalf("amount not converted to units: %q", sent.Amount)
	}
	if sent.Phone != "254712345678" {
		t.Fatalf("phone not normalized: %q", sent.Phone)
	}
	if sent.Reference != "session-1" {
		t.Fatalf("unexpected reference %q", sent.Reference)
	}
	if got := doer.lastReq.Header.Get("Authorization"); got != "Bearer test-key" {
		t.Fatalf("unexpected auth header %q", got)
	}
	if doer.lastReq.URL.String() != "https://gateway.example.com/stkpush/v1/processrequest" {
		t.Fatalf("unexpected url %s", doer.lastReq.URL)
	}
}

func TestInitiatePushRejectsBadInput(t *testing.T) {
	client := newTestClient(t, &fakeDoer{})

	if _, err := client.InitiatePush(context.Background(), "not-a-phone", 100, "ref"); err == nil {
		t.Fatal("expected error for bad phone")
	}
	if _, err := client.InitiatePush(context.Background(), "0712345678", 0, "ref"); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := client.InitiatePush(context.Background(), "0712345678", 100, " "); err == nil {
		t.Fatal("expected error for blank reference")
	}
}

func TestInitiatePushGatewayFailures(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		doer := &fakeDoer{resp: jsonResponse(http.StatusBadGateway, map[string]string{})}
		client := newTestClient(t, doer)
		_, err := client.InitiatePush(context.Background(), "0712345678", 100, "ref")
		coded := pkgerrors.As(err)
		if coded == nil || coded.Code() != pkgerrors.CodeDependency {
			t.Fatalf("expected dependency error, got %v", err)
		}
	})

	t.Run("declined response code", func(t *testing.T) {
		doer := &fakeDoer{resp: jsonResponse(http.StatusOK, map[string]string{
			"checkout_request_id":  "ws_CO_1",
			"response_code":        "1032",
			"response_description": "request cancelled by user",
		})}
		client := newTestClient(t, doer)
		_, err := client.InitiatePush(context.Background(), "0712345678", 100, "ref")
		coded := pkgerrors.As(err)
		if coded == nil || coded.Code() != pkgerrors.CodeDependency {
			t.Fatalf("expected dependency error, got %v", err)
		}
	})

	t.Run("missing correlation id", func(t *testing.T) {
		doer := &fakeDoer{resp: jsonResponse(http.StatusOK, map[string]string{"response_code": "0"})}
		client := newTestClient(t, doer)
		if _, err := client.InitiatePush(context.Background(), "0712345678", 100, "ref"); err == nil {
			t.Fatal("expected error for missing correlation id")
		}
	})
}
