package security

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcdef", "ab****"},
		{"PKABCDEFGHIJ1234", "PKAB********1234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskCredential(tt.in))
	}
}

func TestMaskSensitive(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		hidden  string
		visible string
	}{
		{"key=value", "request failed: api_key=supersecretvalue123", "supersecretvalue123", "api_key="},
		{"password colon", "smtp auth: password: hunter2hunter2", "hunter2hunter2", "password: "},
		{"bearer", "Authorization: Bearer abc.def.ghi123", "abc.def.ghi123", "Bearer "},
		{"alpaca key id", "403 for key PKTESTKEY1234567890 on /v2/orders", "PKTESTKEY1234567890", "/v2/orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := MaskSensitive(tt.in)
			assert.NotContains(t, out, tt.hidden)
			assert.Contains(t, out, tt.visible)
			assert.True(t, ContainsSensitiveData(tt.in))
		})
	}

	plain := "order rejected: insufficient buying power"
	assert.Equal(t, plain, MaskSensitive(plain))
	assert.False(t, ContainsSensitiveData(plain))
}

func TestMaskedError(t *testing.T) {
	assert.Equal(t, "", MaskedError(nil))
	assert.NotContains(t, MaskedError(errors.New("password=topsecret99")), "topsecret99")
}

func TestMaskCredential_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("masking preserves length and hides the middle", prop.ForAll(
		func(s string) bool {
			out := MaskCredential(s)
			if len(out) != len(s) {
				return false
			}
			if len(s) > 8 {
				return strings.Count(out[4:len(out)-4], "*") == len(s)-8
			}
			return true
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
