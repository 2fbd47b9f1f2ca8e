package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/logistics-auth/internal/app"
	"github.com/utafrali/logistics-auth/internal/auth"
	"github.com/utafrali/logistics-auth/internal/config"
	"github.com/utafrali/logistics-auth/internal/service"
	pkgconfig "github.com/utafrali/logistics-auth/pkg/config"
	"github.com/utafrali/logistics-auth/pkg/logger"
)

// usageError marks bad invocations, which exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func isUsage(err error) bool {
	var u usageError
	return errors.As(err, &u)
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	return fs
}

func hashPassword(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("hash-password", stderr)
	cost := fs.Int("cost", bcrypt.DefaultCost+2, "bcrypt cost (4-31)")
	fromStdin := fs.Bool("password-stdin", false, "read the password from stdin instead of prompting")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}
	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		return usageError{fmt.Errorf("--cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)}
	}

	password, err := readPassword(stdin, stderr, *fromStdin)
	if err != nil {
		return err
	}

	hash, err := auth.NewBcryptHasher(*cost).Hash(ctx, password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func createAccount(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("create-account", stderr)
	var in service.CreateAccountInput
	fs.StringVar(&in.Username, "username", "", "login name (required, no '@')")
	fs.StringVar(&in.Email, "email", "", "email address (required)")
	fs.StringVar(&in.FirstName, "first-name", "", "given name")
	fs.StringVar(&in.LastName, "last-name", "", "family name")
	fs.StringVar(&in.Phone, "phone", "", "phone number, normalized to E.164")
	fs.BoolVar(&in.Inactive, "inactive", false, "create the account deactivated")
	region := fs.String("region", service.DefaultPhoneRegion, "region for phone numbers without a country code")
	fromStdin := fs.Bool("password-stdin", false, "read the password from stdin instead of prompting")
	envFile := fs.String("env-file", ".env", "env file with store settings")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}
	if in.Username == "" || in.Email == "" {
		return usageError{errors.New("--username and --email are required")}
	}

	// Only the store settings are needed; JWT secrets are not validated here.
	cfg := &config.Config{}
	if err := pkgconfig.Load(cfg, *envFile); err != nil {
		return err
	}
	log := logger.NewWithWriter("authctl", cfg.LogLevel, stderr)

	password, err := readPassword(stdin, stderr, *fromStdin)
	if err != nil {
		return err
	}
	in.Password = password

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	acct, err := service.NewProvisioner(store.Accounts, app.NewHasher(cfg), *region, log).CreateAccount(ctx, in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(acct.Summary())
}
