package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"exam-service/internal/auth"
	"exam-service/internal/config"
	"exam-service/internal/infra/blob"
	"exam-service/internal/remote"
)

// NewLoginCmd authenticates against the upstream exam API and saves the
// session so later commands can reuse it.
func NewLoginCmd(configPath *string) *cobra.Command {
	var login string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the upstream exam API and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Remote.BaseURL == "" {
				return errors.New("remote.base_url is not configured")
			}
			if login == "" {
				login = cfg.Remote.Login
			}
			password := os.Getenv("EXAM_REMOTE_PASSWORD")
			if password == "" {
				password = cfg.Remote.Password
			}
			if login == "" || password == "" {
				return errors.New("login and password are required (flag, remote.* config or EXAM_REMOTE_PASSWORD)")
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			client := remote.New(remote.Options{
				BaseURL: cfg.Remote.BaseURL,
				Timeout: config.TTLDuration(cfg.Remote.Timeout, 15*time.Second),
			}, log)
			session, err := client.Login(cmd.Context(), login, password)
			if err != nil {
				return err
			}
			sessions, err := sessionStore(cfg)
			if err != nil {
				return err
			}
			if err := sessions.SaveSession(cmd.Context(), session); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s until %s\n", login, session.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "upstream login (defaults to remote.login)")
	return cmd
}

// NewLogoutCmd forgets the saved upstream session.
func NewLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved upstream session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			sessions, err := sessionStore(cfg)
			if err != nil {
				return err
			}
			if err := sessions.ClearSession(cmd.Context()); err != nil && !errors.Is(err, blob.ErrNotExist) {
				return err
			}
			return nil
		},
	}
}

// NewDecodeTokenCmd prints the claims of a token without verifying it.
func NewDecodeTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-token <token>",
		Short: "Print the unverified claims of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := auth.Decode(args[0])
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"user":  claims.User,
				"email": claims.Email(),
				"role":  claims.Role,
				"name":  claims.Name,
				"iss":   claims.Issuer,
			}
			if claims.ExpiresAt != nil {
				out["exp"] = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

// NewHashPasswordCmd prints a bcrypt hash for a users[].password_hash entry.
func NewHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash of a password for the users config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}
