package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, expected string
	}{
		{"0501234567", "0501234567"},
		{" +966 50-123-4567 ", "+966501234567"},
		{"٠٥٠١٢٣٤٥٦٧", "0501234567"},
		{"(050) 123.4567", "0501234567"},
		{"call me", ""},
		{"+", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizePhone(tt.in), tt.in)
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "05******67", MaskPhone("0501234567"))
	assert.Equal(t, "+96********67", MaskPhone("+966 50 123 4567"))
	assert.Equal(t, "***", MaskPhone("123"))
	assert.Equal(t, "", MaskPhone(""))
}

func TestHashPhone(t *testing.T) {
	ps := NewService("salt")
	assert.Equal(t, ps.HashPhone("050 123 4567"), ps.HashPhone("٠٥٠١٢٣٤٥٦٧"))
	assert.NotEqual(t, ps.HashPhone("0501234567"), NewService("other").HashPhone("0501234567"))
	assert.Len(t, ps.HashPhone("0501234567"), 64)
	assert.Empty(t, ps.HashPhone("n/a"))
}

func TestNewSecureToken(t *testing.T) {
	ps := NewService("")
	a, err := ps.NewSecureToken()
	require.NoError(t, err)
	b, err := ps.NewSecureToken()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a[:6]+"...", MaskToken(a))
	assert.Equal(t, "***", MaskToken("abc"))
}
