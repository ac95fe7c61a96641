package phonepe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"a", "a"},
		{"ab", "ab"},
		{"abcdef", "****ef"},
		{"123456789012", "**********12"},
		{"ABCDEFGHIJKLMNOP", "ABCDEF…KLMNOP"},
		{"SU2505071234567890", "SU2505…567890"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mask(tt.in))
		})
	}
}

func TestMaskHeaders(t *testing.T) {
	in := map[string]string{
		"Authorization": "O-Bearer eyJhbGciOiJIUzI1NiJ9.payload",
		"X-VERIFY":      "905bd901a241f10e7b18bc09d1e70350###1",
		"X-MERCHANT-ID": "MERCHANTUAT",
		"Content-Type":  "application/json",
	}

	out := maskHeaders(in)
	assert.Equal(t, "O-Bearer eyJhbG…ayload", out["Authorization"])
	assert.Equal(t, "905bd9…50###1", out["X-VERIFY"])
	assert.Equal(t, "*********AT", out["X-MERCHANT-ID"])
	assert.Equal(t, "application/json", out["Content-Type"])
	assert.Equal(t, "MERCHANTUAT", in["X-MERCHANT-ID"])
}
