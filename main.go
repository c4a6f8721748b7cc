package main

import (
	"github.com/spf13/cobra"

	"tchat/cli"
	"tchat/internal/configuration"
)

const configFilepath = "~/.config/tchat/config.json"

var rootCmd = &cobra.Command{
	Use:     "tchat",
	Short:   "A terminal client for streaming chat",
	Version: "1.0",
}

func main() {
	config, err := configuration.Parse(configFilepath)
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(cli.NewChatCmd(config))
	rootCmd.AddCommand(cli.NewLoginCmd(config))
	rootCmd.AddCommand(cli.NewRegisterCmd(config))
	rootCmd.AddCommand(cli.NewLogoutCmd(config))
	rootCmd.AddCommand(cli.NewHistoryCmd(config))
	rootCmd.AddCommand(cli.NewDeleteCmd(config))
	rootCmd.Execute()
}
