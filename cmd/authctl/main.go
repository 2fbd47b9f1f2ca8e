// Command authctl is the operator tool for the auth service. It provisions
// accounts directly in the account store and produces bcrypt hashes.
//
// Usage:
//
//	authctl hash-password [--cost 12] [--password-stdin]
//	authctl create-account --username NAME --email ADDR [--first-name F]
//	        [--last-name L] [--phone P] [--region TR] [--inactive]
//	        [--password-stdin] [--env-file .env]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const usage = `usage: authctl <command> [flags]

commands:
  hash-password    print a bcrypt hash for a password
  create-account   create an account in the configured store
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run returns the process exit code: 0 on success, 1 on failure, 2 on
// usage errors.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "hash-password":
		err = hashPassword(ctx, args[1:], stdin, stdout, stderr)
	case "create-account":
		err = createAccount(ctx, args[1:], stdin, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "authctl: unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case isUsage(err):
		fmt.Fprintf(stderr, "authctl %s: %v\n", args[0], err)
		return 2
	default:
		fmt.Fprintf(stderr, "authctl %s: %v\n", args[0], err)
		return 1
	}
}
