// Command securevote is the terminal front end of the SecureVote voter
// client: register, log in, enroll in MFA, browse elections, and cast a
// ballot with a fresh TOTP code.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"securevote/client/internal/api"
	"securevote/client/internal/app"
	"securevote/client/internal/config"
	"securevote/client/internal/db"
	"securevote/client/internal/db/migrate"
	"securevote/client/internal/mfaenroll"
	"securevote/client/internal/otpcode"
	"securevote/client/internal/receipt"
	receiptrepo "securevote/client/internal/receipt/repository"
	"securevote/client/internal/session"
	sessionrepo "securevote/client/internal/session/repository"
	"securevote/client/internal/telemetry"
	otelsetup "securevote/client/internal/telemetry/otel"
	"securevote/client/internal/voting"
	votingdomain "securevote/client/internal/voting/domain"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: securevote <command> [arguments]

Commands:
  register            create a new voter account
  login               log in and persist the session
  logout              end the current session
  whoami              show the current identity
  mfa-setup           enroll an authenticator app (TOTP)
  elections           list elections
  vote <election-id>  cast a ballot in an election
  receipts            list locally stored vote receipts
  results <election-id>  show election results (if the service allows)
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		log.Fatalf("database path: %v", err)
	}
	database, err := db.Open(dbPath)
	if err != nil {
		log.Fatalf("open local store: %v", err)
	}
	defer database.Close()
	if err := migrate.Up(database); err != nil {
		log.Fatalf("migrate local store: %v", err)
	}

	ctx := context.Background()
	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "securevote-client", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		if cfg.OTLPEndpoint != "" {
			time.Sleep(telemetry.ShutdownDrainDuration)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	client := api.New(cfg.APIURL, cfg.Timeout())
	sessions := session.NewManager(client, sessionrepo.NewSQLiteStore(database))
	recorder := receipt.NewRecorder(receiptrepo.NewSQLiteRepository(database))
	emitter := otelsetup.NewEventEmitter(providers.LoggerProvider)
	a := app.New(client, sessions, recorder, emitter)

	if err := a.Start(ctx); err != nil {
		log.Fatalf("resume session: %v", err)
	}
	if notice := a.View().Notice; notice != "" {
		fmt.Println(notice)
	}

	if err := run(ctx, a, command, args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", api.Message(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, command string, args []string) error {
	switch command {
	case "register":
		return runRegister(ctx, a)
	case "login":
		return runLogin(ctx, a)
	case "logout":
		a.Logout(ctx)
		fmt.Println("Logged out.")
		return nil
	case "whoami":
		return runWhoami(a)
	case "mfa-setup":
		return runMFASetup(ctx, a, args)
	case "elections":
		return runElections(ctx, a)
	case "vote":
		if len(args) < 1 {
			return errors.New("usage: securevote vote <election-id>")
		}
		return runVote(ctx, a, args[0])
	case "receipts":
		return runReceipts(ctx, a)
	case "results":
		if len(args) < 1 {
			return errors.New("usage: securevote results <election-id>")
		}
		return runResults(ctx, a, args[0])
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func requireLogin(a *app.App) error {
	if a.Sessions().State() != session.StateAuthenticated {
		return errors.New("not logged in; run: securevote login")
	}
	return nil
}

func runRegister(ctx context.Context, a *app.App) error {
	a.OpenRegister()
	email, err := prompt("Email: ")
	if err != nil {
		return err
	}
	password, err := prompt("Password: ")
	if err != nil {
		return err
	}
	if err := a.Register(ctx, email, password); err != nil {
		return err
	}
	fmt.Println(a.View().Notice)
	return nil
}

func runLogin(ctx context.Context, a *app.App) error {
	email, err := prompt("Email: ")
	if err != nil {
		return err
	}
	password, err := prompt("Password: ")
	if err != nil {
		return err
	}
	if err := a.Login(ctx, email, password); err != nil {
		return err
	}
	ident := a.Sessions().Identity()
	fmt.Printf("Logged in as %s.\n", ident.Email)
	if a.View().Kind == app.ViewMFARequired {
		fmt.Println("MFA is not enabled yet. Run: securevote mfa-setup")
	}
	return nil
}

func runWhoami(a *app.App) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	ident := a.Sessions().Identity()
	fmt.Printf("Email:       %s\n", ident.Email)
	fmt.Printf("Active:      %v\n", ident.IsActive)
	fmt.Printf("Verified:    %v\n", ident.IsVerified)
	fmt.Printf("MFA enabled: %v\n", ident.MFAEnabled)
	return nil
}

func runMFASetup(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("mfa-setup", flag.ContinueOnError)
	qrPath := fs.String("qr", "securevote-qr.png", "file to write the QR image to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireLogin(a); err != nil {
		return err
	}

	if err := a.BeginEnrollment(ctx); err != nil {
		return err
	}
	enrollment := a.Enrollment()
	if enrollment == nil || enrollment.State() != mfaenroll.StateAwaitingScan {
		return errors.New("MFA setup did not start; try again")
	}

	if err := enrollment.WriteQR(*qrPath); err != nil {
		log.Printf("write QR image: %v", err)
	} else {
		fmt.Printf("QR image written to %s — scan it with your authenticator app.\n", *qrPath)
	}
	if secret := enrollment.ManualSecret(); secret != "" {
		fmt.Printf("Manual entry secret: %s\n", secret)
	}

	if _, err := prompt("Press Enter once you have scanned the code..."); err != nil {
		return err
	}
	a.ConfirmScanned()

	for {
		code, err := prompt("6-digit code: ")
		if err != nil {
			return err
		}
		err = a.SubmitMFACode(ctx, otpcode.Normalize(code))
		if err == nil {
			if a.Enrollment() == nil {
				fmt.Println("MFA enabled.")
				return nil
			}
			continue
		}
		if errors.Is(err, mfaenroll.ErrCodeFormat) || errors.Is(err, api.ErrInvalidCode) {
			fmt.Println(api.Message(err), "— try again.")
			continue
		}
		return err
	}
}

func runElections(ctx context.Context, a *app.App) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	elections, err := a.OpenElections(ctx)
	if err != nil {
		return err
	}
	if a.View().Kind == app.ViewMFARequired {
		return errors.New("MFA must be enabled before browsing elections; run: securevote mfa-setup")
	}
	if len(elections) == 0 {
		fmt.Println("No active elections.")
		return nil
	}
	printElections(elections)
	return nil
}

func printElections(elections []votingdomain.Election) {
	for _, e := range elections {
		open := "closed"
		if e.IsVotingOpen {
			open = "open"
		}
		fmt.Printf("%s  %s (voting %s)\n", e.ID, e.Title, open)
		if e.Description != "" {
			fmt.Printf("    %s\n", e.Description)
		}
	}
}

func runVote(ctx context.Context, a *app.App, electionID string) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	// Load the catalog so the election can be resolved.
	if _, err := a.OpenElections(ctx); err != nil {
		return err
	}
	if a.View().Kind == app.ViewMFARequired {
		return errors.New("MFA must be enabled before voting; run: securevote mfa-setup")
	}

	if err := a.EnterVoting(ctx, electionID); err != nil {
		return err
	}
	ballot := a.Ballot()
	if ballot.State() == voting.StateIneligible {
		fmt.Println(ballot.Status().Message)
		return nil
	}

	election := ballot.Election()
	fmt.Printf("%s\n", election.Title)
	for i, c := range election.Candidates {
		label := c.Name
		if c.Party != "" {
			label += " (" + c.Party + ")"
		}
		fmt.Printf("  %d. %s\n", i+1, label)
	}

	choice, err := prompt("Candidate number: ")
	if err != nil {
		return err
	}
	var selected *votingdomain.Candidate
	for i := range election.Candidates {
		if fmt.Sprintf("%d", i+1) == choice {
			selected = &election.Candidates[i]
		}
	}
	if selected == nil {
		return errors.New("no such candidate")
	}
	if err := a.SelectCandidate(selected.ID); err != nil {
		return err
	}
	a.ConfirmSelection()

	fmt.Printf("You are voting for %s in %q. This cannot be undone.\n", selected.Name, election.Title)
	for {
		code, err := prompt("6-digit code to confirm: ")
		if err != nil {
			return err
		}
		err = a.CastBallot(ctx, otpcode.Normalize(code))
		if err == nil {
			result := a.Ballot().Result()
			fmt.Println(result.Message)
			if result.VoteID != "" {
				fmt.Printf("Receipt ID: %s\n", result.VoteID)
			}
			return nil
		}
		if errors.Is(err, voting.ErrCodeFormat) || errors.Is(err, api.ErrInvalidCode) {
			fmt.Println(api.Message(err), "— try again.")
			continue
		}
		return err
	}
}

func runReceipts(ctx context.Context, a *app.App) error {
	receipts, err := a.Receipts(ctx)
	if err != nil {
		return err
	}
	if len(receipts) == 0 {
		fmt.Println("No vote receipts stored.")
		return nil
	}
	for _, r := range receipts {
		fmt.Printf("%s  %s — %s (vote %s)\n",
			r.CastAt.Local().Format("2006-01-02 15:04"), r.ElectionTitle, r.CandidateName, r.VoteID)
	}
	return nil
}

func runResults(ctx context.Context, a *app.App, electionID string) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	results, err := a.Results(ctx, electionID)
	if err != nil {
		return err
	}
	fmt.Printf("%s — %d votes, %.1f%% turnout\n",
		results.Election.Title, results.TotalVotes, results.TurnoutPercentage)
	for _, r := range results.Results {
		fmt.Printf("  %-20s %5d (%.1f%%)\n", r.Candidate.Name, r.Votes, r.Percentage)
	}
	return nil
}
