// wallet is the command-line client: sign in, check the balance, and move money with OTP
// authorization.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"paywallet/internal/config"
)

var version = "dev"

const runtimeKey = "runtime"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "wallet",
		Usage:   "Personal wallet with OTP-authorized transfers",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "signup",
				Usage:  "Create an account and sign in",
				Action: signup,
			},
			{
				Name:      "login",
				Usage:     "Sign in with a password",
				ArgsUsage: "<email or mobile>",
				Action:    login,
			},
			{
				Name:      "login-otp",
				Usage:     "Sign in with a one-time code",
				ArgsUsage: "<email or mobile>",
				Action:    loginOTP,
			},
			{
				Name:   "balance",
				Usage:  "Show the current balance",
				Action: balance,
			},
			{
				Name:  "history",
				Usage: "Show recent transactions",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "number of records to show"},
				},
				Action: history,
			},
			{
				Name:      "send",
				Usage:     "Send money to another registered user",
				ArgsUsage: "<recipient email> <amount>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "note shown to both parties"},
				},
				Action: send,
			},
			{
				Name:      "add",
				Usage:     "Add money to your wallet",
				ArgsUsage: "<amount>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
				},
				Action: add,
			},
			{
				Name:   "passwd",
				Usage:  "Change your password",
				Action: passwd,
			},
			{
				Name:  "contacts",
				Usage: "List contacts",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "favorite", Aliases: []string{"f"}, Usage: "toggle the favourite flag of this email"},
				},
				Action: contacts,
			},
			{
				Name:   "audit",
				Usage:  "Show the recorded steps of your recent requests",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20}},
				Action: auditTrail,
			},
			{
				Name:   "doctor",
				Usage:  "Check the local store and limits policy",
				Action: doctor,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and forget the cached balance",
				Action: logout,
			},
		},
		Before: func(cCtx *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return cli.Exit(fmt.Sprintf("config: %v", err), 1)
			}
			rt, err := newRuntime(cCtx.Context, cfg, cCtx.App.Writer)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			cCtx.App.Metadata[runtimeKey] = rt
			return nil
		},
		After: func(cCtx *cli.Context) error {
			rt, ok := cCtx.App.Metadata[runtimeKey].(*runtime)
			if !ok {
				return nil
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return rt.shutdown(shutdownCtx)
		},
		Metadata: map[string]interface{}{},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
