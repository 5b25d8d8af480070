package order

import (
	"strings"
)

// Defaults applied when the buyer leaves payment fields out.
const (
	DefaultPaymentMethod = "UPI"
	DefaultCurrency      = "INR"
)

// Request field names, used in validation messages.
const (
	FieldRecipientName = "purchaserName"
	FieldMobile        = "mobile"
	FieldAddress       = "address"
	FieldLandmark      = "landmark"
)

const maxPaymentMethodLen = 32

// CheckoutRequest holds the input for converting a cart into an order.
type CheckoutRequest struct {
	BuyerID       int64
	Delivery      Delivery
	PaymentMethod string
	Currency      string
}

// normalize trims input, applies defaults and validates it. It never touches
// storage.
func (r CheckoutRequest) normalize() (CheckoutRequest, error) {
	r.Delivery = Delivery{
		RecipientName: strings.TrimSpace(r.Delivery.RecipientName),
		Mobile:        strings.TrimSpace(r.Delivery.Mobile),
		Address:       strings.TrimSpace(r.Delivery.Address),
		Landmark:      strings.TrimSpace(r.Delivery.Landmark),
	}

	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{FieldRecipientName, r.Delivery.RecipientName},
		{FieldMobile, r.Delivery.Mobile},
		{FieldAddress, r.Delivery.Address},
		{FieldLandmark, r.Delivery.Landmark},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return r, &ValidationError{Missing: missing}
	}

	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	if r.PaymentMethod == "" {
		r.PaymentMethod = DefaultPaymentMethod
	}
	if len(r.PaymentMethod) > maxPaymentMethodLen {
		return r, &ValidationError{Reason: "paymentMethod is too long"}
	}

	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	if !isCurrencyCode(r.Currency) {
		return r, &ValidationError{Reason: "currency must be a 3-letter code"}
	}

	if r.BuyerID <= 0 {
		return r, &ValidationError{Reason: "buyer is required"}
	}
	return r, nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := range len(s) {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
