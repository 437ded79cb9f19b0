package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	authzdomain "paywallet/internal/authz/domain"
	"paywallet/internal/failure"
	"paywallet/internal/health"
	identitydomain "paywallet/internal/identity/domain"
	ledgerdomain "paywallet/internal/ledger/domain"
	"paywallet/internal/wallet"
)

func runtimeOf(cCtx *cli.Context) *runtime {
	return cCtx.App.Metadata[runtimeKey].(*runtime)
}

func sessionOf(cCtx *cli.Context) *otpSession {
	return &otpSession{
		ctx:     cCtx.Context,
		rt:      runtimeOf(cCtx),
		prompts: newPrompter(os.Stdin, cCtx.App.Writer),
	}
}

// userError turns a wallet error into a one-line message and a non-zero exit.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, wallet.ErrNotSignedIn) {
		return cli.Exit("Not signed in. Run: wallet login", 1)
	}
	return cli.Exit(failure.Message(err), 1)
}

func signup(cCtx *cli.Context) error {
	s := sessionOf(cCtx)
	var form identitydomain.Registration
	fields := []struct {
		label string
		dst   *string
	}{
		{"First name", &form.FirstName},
		{"Last name", &form.LastName},
		{"Email", &form.Email},
		{"Mobile", &form.Mobile},
	}
	for _, f := range fields {
		v, err := s.prompts.line(f.label)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	pw, err := s.prompts.secret("Password")
	if err != nil {
		return err
	}
	form.Password = pw

	p, err := s.rt.wallet.SignUp(cCtx.Context, form)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(cCtx.App.Writer, "Welcome, %s.\n", p.Name())
	return nil
}

func login(cCtx *cli.Context) error {
	s := sessionOf(cCtx)
	id := cCtx.Args().First()
	if id == "" {
		v, err := s.prompts.line("Email or mobile")
		if err != nil {
			return err
		}
		id = v
	}
	pw, err := s.prompts.secret("Password")
	if err != nil {
		return err
	}
	p, err := s.rt.wallet.SignIn(cCtx.Context, id, pw)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(cCtx.App.Writer, "Signed in as %s.\n", p.Email)
	return nil
}

func loginOTP(cCtx *cli.Context) error {
	s := sessionOf(cCtx)
	id := cCtx.Args().First()
	if id == "" {
		v, err := s.prompts.line("Email or mobile")
		if err != nil {
			return err
		}
		id = v
	}
	a, err := s.rt.wallet.BeginLogin(cCtx.Context, id)
	if err != nil {
		return userError(err)
	}
	return finish(s.authorize(a))
}

func balance(cCtx *cli.Context) error {
	rt := runtimeOf(cCtx)
	snap, err := rt.wallet.Refresh(cCtx.Context)
	if err != nil && !errors.Is(err, failure.ErrStaleData) {
		return userError(err)
	}
	fmt.Fprintf(cCtx.App.Writer, "Balance: %s INR\n", snap.Balance.StringFixed(2))
	if snap.Stale {
		fmt.Fprintf(cCtx.App.Writer, "(saved %s)\n", snap.FetchedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func history(cCtx *cli.Context) error {
	rt := runtimeOf(cCtx)
	snap, err := rt.wallet.Refresh(cCtx.Context)
	if err != nil && !errors.Is(err, failure.ErrStaleData) {
		return userError(err)
	}
	tw := tabwriter.NewWriter(cCtx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tCOUNTERPARTY\tSTATUS\tDESCRIPTION")
	for i, r := range snap.Transactions {
		if i == cCtx.Int("limit") {
			break
		}
		party, sign := r.To, "-"
		if r.Type != ledgerdomain.TypeSent {
			party, sign = r.From, "+"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Type, sign, r.Amount.StringFixed(2), party, r.Status, r.Description)
	}
	return tw.Flush()
}

func send(cCtx *cli.Context) error {
	if cCtx.NArg() != 2 {
		return cli.Exit("usage: wallet send <recipient email> <amount>", 2)
	}
	s := sessionOf(cCtx)
	a, err := s.rt.wallet.SendMoney(cCtx.Context, cCtx.Args().Get(0), cCtx.Args().Get(1), cCtx.String("description"))
	if err != nil {
		return userError(err)
	}
	return finish(s.authorize(a))
}

func add(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return cli.Exit("usage: wallet add <amount>", 2)
	}
	s := sessionOf(cCtx)
	a, err := s.rt.wallet.AddMoney(cCtx.Context, cCtx.Args().First(), cCtx.String("description"))
	if err != nil {
		return userError(err)
	}
	return finish(s.authorize(a))
}

func passwd(cCtx *cli.Context) error {
	s := sessionOf(cCtx)
	pw, err := s.prompts.secret("New password")
	if err != nil {
		return err
	}
	again, err := s.prompts.secret("Repeat new password")
	if err != nil {
		return err
	}
	if pw != again {
		return cli.Exit("Passwords do not match", 1)
	}
	a, err := s.rt.wallet.ChangePassword(cCtx.Context, pw)
	if err != nil {
		return userError(err)
	}
	return finish(s.authorize(a))
}

func contacts(cCtx *cli.Context) error {
	rt := runtimeOf(cCtx)
	if email := cCtx.String("favorite"); email != "" {
		on, err := rt.wallet.ToggleFavorite(cCtx.Context, email)
		if err != nil {
			return userError(err)
		}
		fmt.Fprintf(cCtx.App.Writer, "%s favourite: %t\n", email, on)
	}
	cs, err := rt.wallet.Contacts(cCtx.Context)
	if err != nil {
		return userError(err)
	}
	tw := tabwriter.NewWriter(cCtx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tEMAIL\tMOBILE")
	for _, c := range cs {
		star := ""
		if c.Favorite {
			star = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", star, c.Name, c.Email, c.Mobile)
	}
	return tw.Flush()
}

func auditTrail(cCtx *cli.Context) error {
	rt := runtimeOf(cCtx)
	p, ok := rt.wallet.Principal()
	if !ok {
		return userError(wallet.ErrNotSignedIn)
	}
	entries, err := rt.audit.Recent(cCtx.Context, p.UserID, cCtx.Int("limit"))
	if err != nil {
		return userError(err)
	}
	tw := tabwriter.NewWriter(cCtx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tATTEMPT\tRESOURCE\tACTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.AttemptID, e.Resource, e.Action)
	}
	return tw.Flush()
}

func doctor(cCtx *cli.Context) error {
	rt := runtimeOf(cCtx)
	report := rt.health.Check(cCtx.Context)
	for _, p := range report.Probes {
		status := "ok"
		if p.Err != nil {
			status = p.Err.Error()
		}
		fmt.Fprintf(cCtx.App.Writer, "%-14s %s\n", p.Name, status)
	}
	if report.Status != health.StatusServing {
		return cli.Exit(string(report.Status), 1)
	}
	return nil
}

func logout(cCtx *cli.Context) error {
	if err := runtimeOf(cCtx).wallet.SignOut(cCtx.Context); err != nil {
		return userError(err)
	}
	fmt.Fprintln(cCtx.App.Writer, "Signed out.")
	return nil
}

// finish maps the end of an attempt to the exit status. Commit and expiry outcomes were already
// printed by the result subscriber.
func finish(_ authzdomain.Attempt, err error) error {
	switch failure.KindOf(err) {
	case failure.KindRemoteRejected, failure.KindExpired:
		return cli.Exit("", 1)
	}
	return userError(err)
}
