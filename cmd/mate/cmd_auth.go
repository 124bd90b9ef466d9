package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deskmate/internal/creds"
	"deskmate/internal/usage"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store credentials",
	Long: `Authenticate against the backend with email and password.

The issued credential pair is stored in ~/.deskmate/credentials.json and
reused by every other command until it expires or 'mate logout' removes it.`,
	RunE: runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and delete stored credentials",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated account",
	RunE:  runWhoami,
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect authentication state",
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential status without calling the backend",
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authStatusCmd)
}

// promptLine reads one line from stdin, with a prompt on stderr so piped
// output stays clean.
func promptLine(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, err := promptLine("email")
	if err != nil {
		return err
	}
	password, err := promptLine("password")
	if err != nil {
		return err
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	t := tracker()
	err = client.Login(context.Background(), email, password)
	record(t, usage.Event{Operation: "login", Failed: err != nil})
	if err != nil {
		zlog().Warn("login failed", zap.String("email", email), zap.Error(err))
		return err
	}
	zlog().Info("login succeeded", zap.String("email", email))

	fmt.Printf("logged in as %s\n", email)
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	email, err := promptLine("email")
	if err != nil {
		return err
	}
	fullName, err := promptLine("full name")
	if err != nil {
		return err
	}
	password, err := promptLine("password")
	if err != nil {
		return err
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	user, err := client.Register(context.Background(), email, password, fullName)
	if err != nil {
		return err
	}

	fmt.Printf("account created for %s, run 'mate login' to sign in\n", user.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	if err := client.Logout(context.Background()); err != nil {
		return err
	}
	zlog().Info("logged out, credentials cleared")

	fmt.Println("logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	user, err := client.Me(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", user.FullName, user.Email)
	if user.Company != "" {
		fmt.Printf("company: %s\n", user.Company)
	}
	fmt.Printf("member since: %s\n", user.CreatedAt.Format("2006-01-02"))
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := credStore(cfg)
	if err != nil {
		return err
	}

	pair, err := store.Load()
	if err == creds.ErrNoCredentials {
		fmt.Println("not logged in")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("credentials stored")
	if !pair.SavedAt.IsZero() {
		fmt.Printf("saved: %s (%s ago)\n", pair.SavedAt.Format(time.RFC3339), time.Since(pair.SavedAt).Round(time.Second))
	}
	if pair.RefreshToken == "" {
		fmt.Println("warning: no refresh token, session will not auto-renew")
	}
	fmt.Printf("backend: %s\n", cfg.API.BaseURL)
	return nil
}
