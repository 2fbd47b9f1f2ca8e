package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher is the one-way password hashing primitive.
type Hasher interface {
	Hash(ctx context.Context, password string) (string, error)
	// Verify reports whether password matches hash. A mismatch is (false, nil);
	// an error means the check could not be made.
	Verify(ctx context.Context, hash, password string) (bool, error)
}

// MaxPasswordBytes is the longest password bcrypt compares in full.
const MaxPasswordBytes = 72

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher. Tests use bcrypt.MinCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h *BcryptHasher) Hash(_ context.Context, password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify compares password with a bcrypt hash. Passwords longer than
// MaxPasswordBytes never match: bcrypt would ignore the excess bytes.
func (h *BcryptHasher) Verify(_ context.Context, hash, password string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}

// BoundedHasher limits how many hash operations run at once so a login burst
// cannot starve the rest of the process of CPU.
type BoundedHasher struct {
	inner Hasher
	sem   *semaphore.Weighted
}

// NewBoundedHasher wraps inner with a limit of n concurrent operations.
func NewBoundedHasher(inner Hasher, n int) *BoundedHasher {
	if n < 1 {
		n = 1
	}
	return &BoundedHasher{inner: inner, sem: semaphore.NewWeighted(int64(n))}
}

// Hash waits for a slot, then delegates.
func (b *BoundedHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash slot: %w", err)
	}
	defer b.sem.Release(1)
	return b.inner.Hash(ctx, password)
}

// Verify waits for a slot, then delegates.
func (b *BoundedHasher) Verify(ctx context.Context, hash, password string) (bool, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("acquire hash slot: %w", err)
	}
	defer b.sem.Release(1)
	return b.inner.Verify(ctx, hash, password)
}
