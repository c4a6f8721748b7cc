package cli

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"tchat/internal/api"
	"tchat/internal/auth"
	"tchat/internal/configuration"
)

func newClient(config *configuration.Config) *api.Client {
	return api.NewClient(config.APIURL, time.Duration(config.RequestTimeout)*time.Second, nil, nil)
}

// NewLoginCmd instantiates and returns the login command.
func NewLoginCmd(config *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the chat backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := PromptCredentials()
			if err != nil {
				return err
			}

			token, err := newClient(config).Login(cmd.Context(), email, password)
			if err != nil {
				return errors.Wrap(err, "logging in")
			}

			authn := auth.Load(config.CredentialsFile)
			if err := authn.SetToken(token); err != nil {
				return errors.Wrap(err, "persisting credentials")
			}
			claims := authn.Claims()
			Success("Logged in as %s\n", claims.Username)
			return nil
		},
	}
}

// NewRegisterCmd instantiates and returns the register command.
func NewRegisterCmd(config *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account on the chat backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := PromptUsername()
			if err != nil {
				return err
			}
			email, password, err := PromptCredentials()
			if err != nil {
				return err
			}

			token, err := newClient(config).Register(cmd.Context(), username, email, password)
			if err != nil {
				return errors.Wrap(err, "registering")
			}

			authn := auth.Load(config.CredentialsFile)
			if err := authn.SetToken(token); err != nil {
				return errors.Wrap(err, "persisting credentials")
			}
			Success("Registered as %s\n", username)
			return nil
		},
	}
}

// NewLogoutCmd instantiates and returns the logout command.
func NewLogoutCmd(config *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			authn := auth.Load(config.CredentialsFile)
			if !authn.LoggedIn() {
				Muted("Not logged in.\n")
				return nil
			}
			if err := authn.Logout(); err != nil {
				return errors.Wrap(err, "logging out")
			}
			Success("Logged out.\n")
			return nil
		},
	}
}
