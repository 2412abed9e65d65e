package supplier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"50123.45", 50123.45},
		{"0.00000001", 0.00000001},
		{"-1.5", -1.5},
		{"", 0},
		{"not-a-number", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseFloat(tt.in), "input %q", tt.in)
	}
}
