package utils

import (
	"strings"
	"testing"

	"cpass/src/types"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTicketCode(t *testing.T) {
	code, err := GenerateTicketCode()
	assert.Nil(t, err)
	assert.True(t, strings.HasPrefix(code, "CP-T-"), "unexpected prefix: %s", code)

	random := strings.TrimPrefix(code, "CP-T-")
	assert.Len(t, random, codeLength)
	for _, r := range random {
		assert.Contains(t, codeCharset, string(r), "character outside charset: %c", r)
	}
}

func TestGenerateTicketCodeIsUnpredictable(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		code, err := GenerateTicketCode()
		assert.Nil(t, err)
		assert.False(t, seen[code], "duplicate code after %d draws: %s", i, code)
		seen[code] = true
	}
}

func TestClassifyPriority(t *testing.T) {
	cases := []struct {
		name       string
		priceCents int64
		quantity   int
		want       types.TicketPriority
	}{
		{"single cheap ticket", 1500, 1, types.PRIORITY_NORMAL},
		{"bulk order", 1500, 4, types.PRIORITY_HIGH},
		{"just under bulk", 1500, 3, types.PRIORITY_NORMAL},
		{"vip by price", 20000, 1, types.PRIORITY_VIP},
		{"vip beats bulk", 50000, 6, types.PRIORITY_VIP},
		{"free ticket", 0, 1, types.PRIORITY_NORMAL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyPriority(tc.priceCents, tc.quantity))
		})
	}
}
