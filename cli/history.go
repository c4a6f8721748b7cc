package cli

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"tchat/internal/api"
	"tchat/internal/auth"
	"tchat/internal/configuration"
)

// NewHistoryCmd instantiates and returns the history command.
func NewHistoryCmd(config *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			authn := auth.Load(config.CredentialsFile)
			if !authn.LoggedIn() {
				return ErrNotLoggedIn
			}

			client := api.NewClient(config.APIURL, time.Duration(config.RequestTimeout)*time.Second, authn.Token, nil)
			histories, err := client.ChatHistory(cmd.Context(), authn.UserID())
			if err != nil {
				return errors.Wrap(err, "fetching chat history")
			}

			if len(histories) == 0 {
				Muted("No conversations yet.\n")
				return nil
			}
			Title("Conversations")
			for _, history := range histories {
				Info("%s", history.ChatID)
				title := history.Title
				if title == "" {
					title = "(untitled)"
				}
				Muted("  %s", title)
				if history.Timestamp != "" {
					Muted("  %s", history.Timestamp)
				}
				Info("\n")
			}
			Separator()
			return nil
		},
	}
}

// NewDeleteCmd instantiates and returns the delete command.
func NewDeleteCmd(config *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authn := auth.Load(config.CredentialsFile)
			if !authn.LoggedIn() {
				return ErrNotLoggedIn
			}
			chatID := args[0]
			if !QueryUser("Delete chat " + chatID + "?") {
				return nil
			}

			client := api.NewClient(config.APIURL, time.Duration(config.RequestTimeout)*time.Second, authn.Token, nil)
			if err := client.DeleteChat(cmd.Context(), chatID); err != nil {
				return errors.Wrap(err, "deleting chat")
			}
			Success("Deleted %s\n", chatID)
			return nil
		},
	}
}
