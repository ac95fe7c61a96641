package phonepe

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const checksumSeparator = "###"

// SignedRequest is a payload together with its wire forms and X-VERIFY checksum
type SignedRequest struct {
	Payload       any
	CanonicalJSON []byte
	Base64Payload string
	Checksum      string
	Headers       map[string]string
}

// CanonicalJSON encodes v as compact JSON. Struct fields keep declaration order,
// map keys are sorted and HTML characters are not escaped.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Checksum computes hex(sha256(base64Payload + route + secret)) + "###" + saltIndex
func Checksum(base64Payload, route, secret, saltIndex string) string {
	sum := sha256.Sum256([]byte(base64Payload + route + secret))
	return hex.EncodeToString(sum[:]) + checksumSeparator + saltIndex
}

// Sign canonicalizes payload and signs it for route. It has no side effects.
func Sign(payload any, route, secret, saltIndex string) (*SignedRequest, error) {
	raw, err := CanonicalJSON(payload)
	if err != nil {
		return nil, err
	}

	b64 := base64.StdEncoding.EncodeToString(raw)
	checksum := Checksum(b64, route, secret, saltIndex)

	return &SignedRequest{
		Payload:       payload,
		CanonicalJSON: raw,
		Base64Payload: b64,
		Checksum:      checksum,
		Headers:       map[string]string{headerVerify: checksum},
	}, nil
}
