package mathhelp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEuclidianMod(t *testing.T) {
	tests := []struct {
		d, m int
		want int
	}{
		{d: 5, m: 4, want: 1},
		{d: 4, m: 4, want: 0},
		{d: -1, m: 4, want: 3},
		{d: -5, m: 4, want: 3},
		{d: 5, m: -4, want: -3},
		{d: 0, m: 7, want: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d mod %d", tt.d, tt.m), func(t *testing.T) {
			assert.Equal(t, tt.want, EuclidianMod(tt.d, tt.m))
		})
	}
}
