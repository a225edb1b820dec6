package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "topic-digest-bot",
	Short: "Summarize Telegram channels and forum topics on a schedule",
	Long: `topic-digest-bot collects recent messages from a Telegram channel or forum
supergroup, summarizes the main channel and each configured topic with an LLM,
and posts the summaries to Discord, Slack or a Telegram chat.

Running without a subcommand is the same as "serve".`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute 执行命令行入口
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "etc/config.yaml", "the config file")

	rootCmd.AddCommand(serveCmd, onceCmd, channelsCmd, topicsCmd)
}
