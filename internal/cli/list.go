package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fachebot/topic-digest-bot/internal/source"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var chatLimit int32

var (
	headerColor = color.New(color.Bold, color.FgHiBlue)
	idColor     = color.New(color.FgCyan)
	kindColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.FgHiBlack)
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List the groups and channels this account has joined, with their IDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := login(c)
		if err != nil {
			return err
		}
		defer closeApp(app)

		chats, err := app.ListChats(chatLimit)
		if err != nil {
			return fmt.Errorf("获取聊天列表失败: %w", err)
		}

		headerColor.Println("Groups and Channels")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, chat := range chats {
			username := dimColor.Sprint("-")
			if chat.Username != "" {
				username = "@" + chat.Username
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", idColor.Sprint(chat.ID), kindColor.Sprint(chat.Kind), chat.Title, username)
		}
		return w.Flush()
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics [channel]",
	Short: "List the forum topics of a channel (defaults to the configured source)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		ref := c.Source.Channel
		if len(args) == 1 {
			ref = source.ChannelRef(args[0])
		}

		app, err := login(c)
		if err != nil {
			return err
		}
		defer closeApp(app)

		ctx := context.Background()
		ch, err := source.NewResolver(app).Resolve(ctx, ref)
		if err != nil {
			return err
		}

		headerColor.Printf("%s ", ch.Title)
		idColor.Printf("(%d)\n", ch.ID)
		if !ch.Forum {
			dimColor.Println("This chat has no forum topics.")
			return nil
		}

		groups := source.NewCatalog(app).ListGroups(ctx, ch)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%s\n", idColor.Sprint(g.ID), g.Title)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if len(groups) == source.MaxGroups {
			dimColor.Printf("Only the first %d topics are listed.\n", source.MaxGroups)
		}
		return nil
	},
}

func init() {
	channelsCmd.Flags().Int32Var(&chatLimit, "limit", 100, "maximum number of chats to list")
}
