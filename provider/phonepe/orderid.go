package phonepe

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxOrderBaseLen   = 30
	maxGatewayOrderID = 40
)

// sanitizeOrderBase keeps [A-Za-z0-9_-] of orderID, capped at 30 characters
func sanitizeOrderBase(orderID string, now time.Time) string {
	var b strings.Builder
	for _, r := range orderID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
			if b.Len() == maxOrderBaseLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return fmt.Sprintf("ORD_%d", now.UnixMilli())
	}
	return b.String()
}

// withSuffix joins base and suffix, shortening base so the result fits the gateway limit
func withSuffix(base, suffix string) string {
	if room := maxGatewayOrderID - len(suffix); len(base) > room {
		base = base[:room]
	}
	return base + suffix
}

// GatewayOrderID derives the gateway facing id <base>_<unixMillis> from a merchant order id.
// The result never equals orderID.
func GatewayOrderID(orderID string, now time.Time) string {
	id := withSuffix(sanitizeOrderBase(orderID, now), fmt.Sprintf("_%d", now.UnixMilli()))
	if id == orderID {
		return RetryGatewayOrderID(orderID, now)
	}
	return id
}

// RetryGatewayOrderID derives a fresh id <base>_<unixMillis>_<nnnn> for a retried payment
func RetryGatewayOrderID(orderID string, now time.Time) string {
	suffix := fmt.Sprintf("_%d_%04d", now.UnixMilli(), now.UnixNano()%10000)
	return withSuffix(sanitizeOrderBase(orderID, now), suffix)
}
