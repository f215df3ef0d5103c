package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		perms    []string
		required string
		want     bool
	}{
		{"exact match", []string{"counting.scan"}, "counting.scan", true},
		{"no match", []string{"counting.read"}, "counting.scan", false},
		{"resource wildcard", []string{"counting.*"}, "counting.scan", true},
		{"wildcard wrong resource", []string{"billing.*"}, "counting.scan", false},
		{"full admin", []string{"*"}, "counting.scan", true},
		{"empty requirement always passes", []string{}, "", true},
		{"empty permission list", nil, "counting.scan", false},
		{"wildcard does not match bare resource", []string{"counting.*"}, "counting", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.perms, tt.required))
		})
	}
}

func TestHasAnyPermission(t *testing.T) {
	perms := []string{"counting.read"}

	assert.True(t, HasAnyPermission(perms, []string{"counting.scan", "counting.read"}))
	assert.False(t, HasAnyPermission(perms, []string{"counting.scan", "counting.manage"}))
	assert.False(t, HasAnyPermission(perms, nil))
}

func TestHasAllPermissions(t *testing.T) {
	perms := []string{"counting.*"}

	assert.True(t, HasAllPermissions(perms, []string{"counting.scan", "counting.read"}))
	assert.False(t, HasAllPermissions([]string{"counting.read"}, []string{"counting.scan", "counting.read"}))
	assert.True(t, HasAllPermissions(nil, nil))
}
