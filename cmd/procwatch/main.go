package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "procwatch",
		Short:         "Keep a list of programs running",
		Long:          "procwatch periodically checks that every enabled program in its list is running and starts the ones that are not.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.ConfigPath, "config", "c", defaultConfigPath, "path to the TOML configuration file")
	pf.StringVar(&g.APIUrl, "api-url", "", "talk to a running daemon at this base URL instead of editing the file")
	pf.DurationVar(&g.APITimeout, "api-timeout", 10*time.Second, "timeout for API requests")
	pf.BoolVar(&g.Insecure, "insecure", false, "skip TLS verification for --api-url")
	pf.StringVar(&g.Token, "token", os.Getenv("PROCWATCH_TOKEN"), "bearer token for an API with auth enabled")
	pf.StringVar(&g.User, "user", "", "name:password for an API with auth enabled")

	root.AddCommand(
		createRunCommand(g),
		createListCommand(g),
		createAddCommand(g),
		createRemoveCommand(g),
		createEnableCommand(g, true),
		createEnableCommand(g, false),
		createEditCommand(g),
		createSettingsCommand(g),
		createCheckCommand(g),
		createStatusCommand(g),
		createHistoryCommand(g),
		createWatchdogCommand(g),
		createHashPasswordCommand(),
	)
	return root
}
