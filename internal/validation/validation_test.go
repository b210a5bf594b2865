package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=20,username"`
	Phone    string `json:"phoneNumber" validate:"omitempty,phone"`
}

func TestValidator_Struct(t *testing.T) {
	v := New()

	tests := []struct {
		name       string
		in         signup
		wantFields []string
	}{
		{name: "valid", in: signup{Email: "a@example.com", Username: "ada_99"}},
		{name: "valid with phone", in: signup{Email: "a@example.com", Username: "ada", Phone: "+1 (555) 010-9999"}},
		{name: "bad email", in: signup{Email: "nope", Username: "ada"}, wantFields: []string{"email"}},
		{name: "username charset", in: signup{Email: "a@example.com", Username: "ada lovelace"}, wantFields: []string{"username"}},
		{name: "username too short", in: signup{Email: "a@example.com", Username: "ad"}, wantFields: []string{"username"}},
		{name: "phone too short", in: signup{Email: "a@example.com", Username: "ada", Phone: "12345"}, wantFields: []string{"phoneNumber"}},
		{name: "everything missing", in: signup{}, wantFields: []string{"email", "username"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			var verr *Error
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.wantFields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tt.wantFields))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Fields: map[string]string{"b": "is required", "a": "is invalid"}}
	assert.Equal(t, "validation failed: a: is invalid; b: is required", err.Error())
}

func TestValidator_Var(t *testing.T) {
	v := New()

	assert.NoError(t, v.Var("phoneNumber", "+44 20 7946 0958", "phone"))

	err := v.Var("phoneNumber", "call me", "phone")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"phoneNumber": "must be a valid phone number"}, verr.Fields)
}
