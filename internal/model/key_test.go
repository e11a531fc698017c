package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple lowercase", "melbourne", "melbourne"},
		{"uppercase folded", "Melbourne", "melbourne"},
		{"city state comma", "Melbourne, FL", "melbourne-fl"},
		{"double spaces", "melbourne  fl", "melbourne-fl"},
		{"leading trailing space", "  palm bay ", "palm-bay"},
		{"slash separator", "miami/dade", "miami-dade"},
		{"existing hyphens collapse", "winter--park", "winter-park"},
		{"parcel id untouched", "28-37-29-00-00250.0-0000.00", "28-37-29-00-00250.0-0000.00"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CacheKey(tt.in))
		})
	}
}

func TestCacheKeyIdempotent(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"Melbourne, FL", "Cocoa Beach", "titusville"} {
		once := CacheKey(in)
		assert.Equal(t, once, CacheKey(once))
	}
}
