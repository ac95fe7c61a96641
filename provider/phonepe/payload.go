package phonepe

import (
	"strings"
	"unicode"

	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
)

const (
	instrumentPayPage   = "PAY_PAGE"
	flowPGCheckout      = "PG_CHECKOUT"
	defaultRedirectMode = "REDIRECT"
	defaultMessage      = "Order Payment"
	defaultExpireAfter  = 1200
	maxMessageLen       = 100
	mobileDigits        = 10
)

type PaymentInstrument struct {
	Type string `json:"type"`
}

// LegacyPayload is the /pg/v1/pay request, sent base64 encoded
type LegacyPayload struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	CallbackURL           string            `json:"callbackUrl"`
	MerchantUserID        string            `json:"merchantUserId"`
	RedirectMode          string            `json:"redirectMode"`
	MobileNumber          string            `json:"mobileNumber"`
	Message               string            `json:"message"`
	PaymentInstrument     PaymentInstrument `json:"paymentInstrument"`
}

type MerchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
}

type PaymentFlow struct {
	Type         string       `json:"type"`
	Message      string       `json:"message"`
	MerchantURLs MerchantURLs `json:"merchantUrls"`
}

// CurrentPayload is the /checkout/v2/pay request
type CurrentPayload struct {
	MerchantOrderID string            `json:"merchantOrderId"`
	Amount          int64             `json:"amount"`
	ExpireAfter     int               `json:"expireAfter"`
	MetaInfo        provider.MetaInfo `json:"metaInfo"`
	PaymentFlow     PaymentFlow       `json:"paymentFlow"`
}

// LegacyRequestBody wraps the encoded legacy payload
type LegacyRequestBody struct {
	Request string `json:"request"`
}

// ToMinorUnits converts an amount in rupees to paise, rounding half away from zero
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// normalizeMobile keeps the digits of phone, at most the last 10
func normalizeMobile(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > mobileDigits {
		digits = digits[len(digits)-mobileDigits:]
	}
	return digits
}

// paymentMessage returns the shopper facing message, capped at 100 characters
func paymentMessage(productInfo string) string {
	msg := strings.TrimFunc(productInfo, unicode.IsSpace)
	if msg == "" {
		msg = defaultMessage
	}
	if r := []rune(msg); len(r) > maxMessageLen {
		msg = string(r[:maxMessageLen])
	}
	return msg
}

// callbackURL picks the url the shopper returns to
func callbackURL(cfg Config, req provider.PaymentRequest) string {
	return firstNonEmpty(req.RedirectURL, req.CallbackURL, cfg.CallbackURL)
}

func buildLegacyPayload(creds credentials, req provider.PaymentRequest, gatewayOrderID string, amountPaise int64, callback string) LegacyPayload {
	return LegacyPayload{
		MerchantID:            creds.MerchantID,
		MerchantTransactionID: gatewayOrderID,
		Amount:                amountPaise,
		RedirectURL:           callback,
		CallbackURL:           callback,
		MerchantUserID:        firstNonEmpty(req.MerchantUserID, req.Customer.Email, req.Customer.PhoneNumber),
		RedirectMode:          firstNonEmpty(req.RedirectMode, defaultRedirectMode),
		MobileNumber:          normalizeMobile(req.Customer.PhoneNumber),
		Message:               paymentMessage(req.ProductInfo),
		PaymentInstrument:     PaymentInstrument{Type: instrumentPayPage},
	}
}

func buildCurrentPayload(req provider.PaymentRequest, gatewayOrderID string, amountPaise int64, callback string) CurrentPayload {
	meta := req.MetaInfo
	meta.SetDefault(1, req.Customer.Name)
	meta.SetDefault(2, req.OrderID)

	expireAfter := req.ExpireAfter
	if expireAfter <= 0 {
		expireAfter = defaultExpireAfter
	}

	return CurrentPayload{
		MerchantOrderID: gatewayOrderID,
		Amount:          amountPaise,
		ExpireAfter:     expireAfter,
		MetaInfo:        meta,
		PaymentFlow: PaymentFlow{
			Type:         flowPGCheckout,
			Message:      paymentMessage(req.ProductInfo),
			MerchantURLs: MerchantURLs{RedirectURL: callback},
		},
	}
}
