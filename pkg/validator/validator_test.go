package validator

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginLike struct {
	Identifier string `json:"identifier" validate:"required_without=Username"`
	Username   string `json:"username" validate:"required_without=Identifier"`
	Password   string `json:"password" validate:"required"`
}

type accountLike struct {
	Username string `json:"username" validate:"required,min=3,max=50,excludes=@"`
	Email    string `json:"email" validate:"required,email"`
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(loginLike{Identifier: "admin", Password: "x"}))
	assert.NoError(t, Validate(loginLike{Username: "admin", Password: "x"}))
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := Validate(loginLike{})
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	fields := ve.Fields()
	assert.Equal(t, "is required", fields["password"])
	assert.Contains(t, fields["identifier"], "is required when")
}

func TestValidate_ExcludesAndEmail(t *testing.T) {
	err := Validate(accountLike{Username: "a@b", Email: "nope"})
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, `must not contain "@"`, ve.Fields()["username"])
	assert.Equal(t, "must be a valid email address", ve.Fields()["email"])
	assert.Contains(t, ve.Error(), "field 'email'")
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("ops@example.com", "email"))
	assert.Error(t, Var("ops", "email"))
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"username":"admin","password":"pw"}`))
	var dst loginLike
	require.NoError(t, DecodeAndValidate(req, &dst))
	assert.Equal(t, "admin", dst.Username)

	bad := httptest.NewRequest("POST", "/", strings.NewReader(`{`))
	err := DecodeAndValidate(bad, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
