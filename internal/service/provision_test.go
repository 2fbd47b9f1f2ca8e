package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/logistics-auth/internal/auth"
	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
)

func newTestProvisioner(store *memoryAccounts) *Provisioner {
	p := NewProvisioner(store, auth.NewBcryptHasher(bcrypt.MinCost), "", newTestLogger())
	p.now = func() time.Time { return testNow }
	return p
}

func validInput() CreateAccountInput {
	return CreateAccountInput{
		Username:  " dispatcher ",
		Email:     "dispatch@test.com",
		Password:  "s3cure-pass",
		FirstName: "Deniz",
		LastName:  "Yilmaz",
		Phone:     "0532 123 45 67",
	}
}

func TestCreateAccount_Success(t *testing.T) {
	store := newMemoryAccounts()
	p := newTestProvisioner(store)

	acct, err := p.CreateAccount(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, acct.ID)
	assert.Equal(t, "dispatcher", acct.Username)
	assert.Equal(t, "+905321234567", acct.Phone)
	assert.True(t, acct.IsActive)
	assert.Equal(t, testNow, acct.CreatedAt)
	assert.Equal(t, testNow, acct.PasswordChangedAt)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte("s3cure-pass")))

	stored := store.get(acct.ID)
	assert.Equal(t, acct.Email, stored.Email)
}

func TestCreateAccount_Inactive(t *testing.T) {
	in := validInput()
	in.Inactive = true

	acct, err := newTestProvisioner(newMemoryAccounts()).CreateAccount(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, acct.IsActive)
}

func TestCreateAccount_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateAccountInput)
		want   string
	}{
		{"missing username", func(in *CreateAccountInput) { in.Username = "" }, "username"},
		{"username with at sign", func(in *CreateAccountInput) { in.Username = "a@b" }, "username"},
		{"bad email", func(in *CreateAccountInput) { in.Email = "not-an-email" }, "email"},
		{"short password", func(in *CreateAccountInput) { in.Password = "short" }, "password"},
		{"bad phone", func(in *CreateAccountInput) { in.Phone = "12" }, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			_, err := newTestProvisioner(newMemoryAccounts()).CreateAccount(context.Background(), in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	store := newMemoryAccounts()
	p := newTestProvisioner(store)

	_, err := p.CreateAccount(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Username = "DISPATCHER"
	in.Email = "other@test.com"
	_, err = p.CreateAccount(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("", "TR")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = NormalizePhone("+1 650-253-0000", "TR")
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", got)

	_, err = NormalizePhone("not a phone", "TR")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
