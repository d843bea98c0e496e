package mpesa

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// Callback is the asynchronous STK push outcome posted to our webhook. The
// gateway nests it under Body.stkCallback and reports the interesting values
// as a loose name/value list.
type Callback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []callbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type callbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseCallback decodes a webhook body.
func ParseCallback(r io.Reader) (*Callback, error) {
	var cb Callback
	if err := json.NewDecoder(r).Decode(&cb); err != nil {
		return nil, fmt.Errorf("decode mpesa callback: %w", err)
	}
	if cb.Body.StkCallback.CheckoutRequestID == "" {
		return nil, fmt.Errorf("mpesa callback missing CheckoutRequestID")
	}
	return &cb, nil
}

// Reference returns the correlation id the push was initiated with.
func (c *Callback) Reference() string {
	return c.Body.StkCallback.CheckoutRequestID
}

// Succeeded reports whether the charge went through. The gateway uses result
// code zero for success and anything else for failure or cancellation.
func (c *Callback) Succeeded() bool {
	return c.Body.StkCallback.ResultCode == 0
}

// ResultDesc returns the gateway's human description of the outcome.
func (c *Callback) ResultDesc() string {
	return c.Body.StkCallback.ResultDesc
}

// Receipt returns the gateway receipt number, empty on failure callbacks.
func (c *Callback) Receipt() string {
	raw, ok := c.metadata("MpesaReceiptNumber")
	if !ok {
		return ""
	}
	var receipt string
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return ""
	}
	return receipt
}

// Phone returns the paying phone number when the gateway included it.
func (c *Callback) Phone() string {
	raw, ok := c.metadata("PhoneNumber")
	if !ok {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	return ""
}

// AmountCents returns the charged amount in cents. The gateway reports whole
// currency units, sometimes with a decimal fraction.
func (c *Callback) AmountCents() (int, bool) {
	raw, ok := c.metadata("Amount")
	if !ok {
		return 0, false
	}
	var amount decimal.Decimal
	if err := json.Unmarshal(raw, &amount); err != nil {
		return 0, false
	}
	return int(amount.Mul(decimal.NewFromInt(100)).IntPart()), true
}

func (c *Callback) metadata(name string) (json.RawMessage, bool) {
	for _, item := range c.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == name {
			return item.Value, true
		}
	}
	return nil, false
}
