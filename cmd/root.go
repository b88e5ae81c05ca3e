package cmd

import (
	"github.com/bnema/editor-relay/internal/config"
	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configFile string
	v := config.New()
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "Editor relay: hand a document between a browser editor and a remote consumer",
		Long:          "relay runs and drives a small HTTP relay that lets a web editor and a polling consumer exchange one text document per session, identified by an 8-character id.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			wired, err := wireApp(v, configFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			*a = *wired
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./relay.toml or ~/.config/editor-relay/relay.toml)")
	flags.String("relay-url", "", "Relay base URL for client commands")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	_ = v.BindPFlag(config.KeyClientBaseURL, flags.Lookup("relay-url"))
	_ = v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(a),
		newSessionCmd(a),
		newEditCmd(a),
		newStatusCmd(a),
	)

	return rootCmd
}
