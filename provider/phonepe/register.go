package phonepe

import "github.com/mstgnz/paygate/provider"

// Register PhonePe provider with the gateway registry
func init() {
	provider.Register(providerName, NewProvider)
}
