package phonepe

import "strings"

const maskVisible = 6

// Mask hides the middle of a credential. Values longer than 12 characters keep
// their first and last 6 characters; shorter ones keep only the last 2.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	r := []rune(v)
	n := len(r)
	if n <= maskVisible*2 {
		if n <= 2 {
			return v
		}
		return strings.Repeat("*", n-2) + string(r[n-2:])
	}
	return string(r[:maskVisible]) + "…" + string(r[n-maskVisible:])
}

// maskHeaders returns a copy of headers with credential bearing values masked
func maskHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		switch k {
		case headerAuthorization:
			out[k] = bearerPrefix + Mask(strings.TrimPrefix(v, bearerPrefix))
		case headerVerify, headerMerchantID:
			out[k] = Mask(v)
		default:
			out[k] = v
		}
	}
	return out
}
