package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joescharf/ghcrm/internal/models"
	"github.com/joescharf/ghcrm/internal/output"
)

var (
	authEmail         string
	authName          string
	authPasswordStdin bool
)

// stdin is the source for prompts and --password-stdin, replaceable in tests.
var stdin io.Reader = os.Stdin

// readPassword reads a password without echo, replaceable in tests.
var readPassword = func(prompt string) (string, error) {
	fmt.Fprint(ui.ErrOut, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(ui.ErrOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the API",
	Long: `Log in with email and password. The session token is stored in the
local database and used by every later command until it expires or you log out.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return loginRun(cmd.Context())
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and log in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signupRun(cmd.Context())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return logoutRun(cmd.Context())
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return whoamiRun(cmd.Context())
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVarP(&authEmail, "email", "e", "", "Account email (prompted when omitted)")
		c.Flags().BoolVar(&authPasswordStdin, "password-stdin", false, "Read the password from stdin")
	}
	signupCmd.Flags().StringVar(&authName, "name", "", "Display name")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

// promptLine reads one line from r after printing prompt.
func promptLine(r *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(ui.ErrOut, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readCredentials collects the email and password from flags, stdin, or
// interactive prompts.
func readCredentials() (email, password string, err error) {
	r := bufio.NewReader(stdin)

	email = strings.TrimSpace(authEmail)
	if email == "" {
		if email, err = promptLine(r, "Email: "); err != nil {
			return "", "", err
		}
	}

	if authPasswordStdin {
		b, err := io.ReadAll(r)
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		return email, strings.TrimRight(string(b), "\r\n"), nil
	}

	password, err = readPassword("Password: ")
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

func loginRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	email, password, err := readCredentials()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would log in as %s", email)
		return nil
	}

	if _, err := svc.Login(ctx, email, password); err != nil {
		return err
	}

	ui.Success("Logged in as %s", output.Cyan(email))
	navigator.ToDashboard()
	return nil
}

func signupRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	email, password, err := readCredentials()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create account %s", email)
		return nil
	}

	req := models.SignupRequest{Email: email, Password: password, Name: strings.TrimSpace(authName)}
	if _, err := svc.Signup(ctx, req); err != nil {
		return err
	}

	ui.Success("Account created for %s", output.Cyan(email))
	navigator.ToDashboard()
	return nil
}

func logoutRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	if !svc.IsAuthenticated() {
		ui.Info("Not logged in")
	}

	if dryRun {
		ui.DryRunMsg("Would clear the stored session")
		return nil
	}

	if err := svc.Logout(ctx); err != nil {
		return err
	}
	ui.Success("Logged out")
	return nil
}

func whoamiRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	if !svc.IsAuthenticated() {
		return fmt.Errorf("not logged in (run 'ghcrm login')")
	}

	p, err := svc.Profile(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(p.Email))
	if p.Name != "" {
		fmt.Fprintf(ui.Out, "  Name: %s\n", p.Name)
	}
	fmt.Fprintf(ui.Out, "  ID:   %d\n", p.ID)
	return nil
}
