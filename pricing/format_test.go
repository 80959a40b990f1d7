package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDisplayAmount(t *testing.T) {
	cases := []struct {
		wei      string
		decimals int
		want     string
	}{
		{"0", 4, "0"},
		{"1000000000000000000", 4, "1"},
		{"50000000000000000", 4, "0.05"},
		{"1234567890000000000", 4, "1.2345"},
		{"1234567890000000000", 2, "1.23"},
		{"1234567890000000000", 0, "1"},
		{"1999999999999999999", 18, "1.999999999999999999"},
		{"1", 18, "0.000000000000000001"},
		{"1", 4, "0"},
		{"3000000000000000000000", 6, "3000"},
	}
	for _, tc := range cases {
		got, err := FormatDisplayAmount(tc.wei, tc.decimals)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, got, "wei=%s decimals=%d", tc.wei, tc.decimals)
	}

	_, err := FormatDisplayAmount("12.5", 4)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
