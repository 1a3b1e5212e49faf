package tenancy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{name: "lowercase", id: "t_acme", valid: true},
		{name: "mixed case and digits", id: "Tenant_42", valid: true},
		{name: "leading underscore", id: "_internal", valid: true},
		{name: "single letter", id: "a", valid: true},
		{name: "max length", id: strings.Repeat("a", MaxIdentifierLength), valid: true},
		{name: "empty", id: "", valid: false},
		{name: "leading digit", id: "1tenant", valid: false},
		{name: "hyphen", id: "t-acme", valid: false},
		{name: "space", id: "t acme", valid: false},
		{name: "quote injection", id: `t"; DROP SCHEMA public CASCADE; --`, valid: false},
		{name: "statement separator", id: "t_acme;", valid: false},
		{name: "dot qualified", id: "public.t_acme", valid: false},
		{name: "unicode letter", id: "tenant_é", valid: false},
		{name: "trailing newline", id: "t_acme\n", valid: false},
		{name: "too long", id: strings.Repeat("a", MaxIdentifierLength+1), valid: false},
		{name: "reserved prefix", id: "pg_tenant", valid: false},
		{name: "reserved prefix upper", id: "PG_tenant", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if tt.valid {
				assert.NoError(t, err)
				assert.True(t, IsValidIdentifier(tt.id))
				return
			}
			assert.ErrorIs(t, err, ErrInvalidIdentifier)
			assert.False(t, IsValidIdentifier(tt.id))
		})
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank("  \t"))
	assert.False(t, IsBlank("t_acme"))
}
