package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/utafrali/logistics-auth/internal/auth"
	"github.com/utafrali/logistics-auth/internal/domain"
	"github.com/utafrali/logistics-auth/internal/repository"
	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
	"github.com/utafrali/logistics-auth/pkg/validator"
)

// DefaultPhoneRegion is used to parse phone numbers without a country code.
const DefaultPhoneRegion = "TR"

// CreateAccountInput holds the parameters for provisioning an account.
type CreateAccountInput struct {
	// Usernames may not contain "@" so they never collide with an email.
	Username  string `json:"username" validate:"required,min=3,max=64,excludes=@"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=32"`
	Inactive  bool   `json:"inactive"`
}

// Provisioner creates accounts. It is used by operator tooling, not by the
// login path.
type Provisioner struct {
	accounts repository.AccountRepository
	hasher   auth.Hasher
	region   string
	logger   *slog.Logger
	now      func() time.Time
}

// NewProvisioner creates a new provisioner. An empty region falls back to
// DefaultPhoneRegion.
func NewProvisioner(accounts repository.AccountRepository, hasher auth.Hasher, region string, logger *slog.Logger) *Provisioner {
	if region == "" {
		region = DefaultPhoneRegion
	}
	return &Provisioner{
		accounts: accounts,
		hasher:   hasher,
		region:   strings.ToUpper(region),
		logger:   logger,
		now:      time.Now,
	}
}

// CreateAccount validates input, hashes the password and stores a new account.
func (p *Provisioner) CreateAccount(ctx context.Context, in CreateAccountInput) (*domain.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)

	if err := validator.Validate(in); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			return nil, apperrors.InvalidInput(verr.Error())
		}
		return nil, fmt.Errorf("validate account input: %w", err)
	}

	phone, err := NormalizePhone(in.Phone, p.region)
	if err != nil {
		return nil, err
	}

	hash, err := p.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := p.now().UTC()
	acct := &domain.Account{
		ID:                uuid.New().String(),
		Username:          in.Username,
		Email:             in.Email,
		PasswordHash:      hash,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Phone:             phone,
		IsActive:          !in.Inactive,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := p.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	p.logger.InfoContext(ctx, "account created",
		slog.String("account_id", acct.ID),
		slog.String("username", acct.Username),
	)

	return acct, nil
}

// NormalizePhone formats raw as E.164. An empty number stays empty.
func NormalizePhone(raw, region string) (string, error) {
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", apperrors.InvalidInput(fmt.Sprintf("invalid phone number %q", raw))
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", apperrors.InvalidInput(fmt.Sprintf("invalid phone number %q", raw))
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
