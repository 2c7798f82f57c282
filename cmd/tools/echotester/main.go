package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/tavus-echo/backend/internal/config"
	"github.com/zhouzirui/tavus-echo/backend/internal/logging"
	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/tavus"
)

// echoClient is the part of the tavus client the tester drives.
type echoClient interface {
	CreateSession(ctx context.Context) (conversation.Session, error)
	EndSession(ctx context.Context, conversationID string) error
	Broadcast(ctx context.Context, req conversation.SpeakRequest) error
}

type clientFactory func() (echoClient, string, error)

func main() {
	if err := newRootCmd(loadClient).Execute(); err != nil {
		os.Exit(1)
	}
}

// loadClient reads .env and the environment the same way the server does.
func loadClient() (echoClient, string, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, "", errors.Wrap(err, "load configuration")
	}
	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		return nil, "", err
	}
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using system environment variables")
	}
	if err := cfg.Tavus.Validate(); err != nil {
		return nil, "", err
	}

	profile := tavus.ProfileFromConfig(cfg.Tavus, cfg.Echo.Text)
	return tavus.NewClientFromConfig(cfg.Tavus, profile), cfg.Echo.Text, nil
}

func newRootCmd(factory clientFactory) *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:          "echotester",
		Short:        "Create, echo into and end avatar conversations from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 45*time.Second, "overall request timeout")

	withClient := func(run func(ctx context.Context, cmd *cobra.Command, client echoClient, defaultText string, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			client, defaultText, err := factory()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return run(ctx, cmd, client, defaultText, args)
		}
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new conversation and print its id and room url",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client echoClient, _ string, _ []string) error {
			sess, err := client.CreateSession(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conversation_id=%s\nconversation_url=%s\n", sess.ID, sess.RoomURL)
			return nil
		}),
	}

	endCmd := &cobra.Command{
		Use:   "end <conversation-id>",
		Short: "End a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client echoClient, _ string, args []string) error {
			if err := client.EndSession(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ended %s\n", args[0])
			return nil
		}),
	}

	echoCmd := &cobra.Command{
		Use:   "echo <conversation-id> [text]",
		Short: "Broadcast an echo into a conversation; uses ECHO_TEXT when text is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client echoClient, defaultText string, args []string) error {
			text := defaultText
			if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
				text = args[1]
			}
			req := conversation.SpeakRequest{SessionID: args[0], Text: text}
			if err := client.Broadcast(ctx, req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "echo sent to %s (%d chars)\n", args[0], len([]rune(text)))
			return nil
		}),
	}

	root.AddCommand(createCmd, endCmd, echoCmd)
	return root
}
