package price

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected int64
	}{
		{"plain", "1234567", 1234567},
		{"thousands commas", "1,234,567", 1234567},
		{"persian digits", "۸۵۰,۰۰۰", 850000},
		{"arabic digits", "٨٥٠٠٠٠", 850000},
		{"persian separator", "۳۲٬۷۵۰٬۰۰۰", 32750000},
		{"rial converted to toman", "1,500,000,000", 150000000},
		{"threshold boundary stays put", "100,000,000", 100000000},
		{"just above threshold", "100,000,010", 10000001},
		{"garbage", "abc", 0},
		{"mixed garbage", "12a34", 0},
		{"empty", "", 0},
		{"negative", "-500", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.raw))
		})
	}
}

func TestFoldDigits(t *testing.T) {
	assert.Equal(t, "850,000 تومان", FoldDigits("۸۵۰,۰۰۰ تومان"))
	assert.Equal(t, "price 123", FoldDigits("price ١٢٣"))
	assert.Equal(t, "unchanged", FoldDigits("unchanged"))
}
