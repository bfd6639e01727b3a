package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-companion/pkg/schema"
	"github.com/celerix-dev/celerix-companion/pkg/sdk"
)

const defaultAddr = "localhost:10000"

type options struct {
	addr      string
	clientKey string
	persona   string
	timeout   time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "celerix-chat",
		Short: "Talk to a running companion gateway",
		Long: `celerix-chat sends messages to a companion gateway and inspects
conversation state.

Environment Variables:
  CELERIX_COMPANION_ADDR   Address of the gateway (default: localhost:10000)
  CELERIX_CLIENT_KEY       Client key used when --client is not given`,
		SilenceUsage: true,
	}

	addr := os.Getenv("CELERIX_COMPANION_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	hostname, _ := os.Hostname()
	clientKey := os.Getenv("CELERIX_CLIENT_KEY")
	if clientKey == "" {
		clientKey = "cli-" + hostname
	}

	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "gateway address")
	root.PersistentFlags().StringVar(&opts.clientKey, "client", clientKey, "client key")
	root.PersistentFlags().StringVarP(&opts.persona, "persona", "p", "", "persona id (gateway default when empty)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(
		newSendCmd(opts),
		newStatusCmd(opts),
		newPersonasCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

func (o *options) connect(cmd *cobra.Command) (*sdk.Client, context.Context, context.CancelFunc, error) {
	client, err := sdk.Connect(o.addr)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	return client, ctx, cancel, nil
}

func newSendCmd(opts *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			resp, err := client.Chat(ctx, schema.ChatRequest{
				Message:   strings.Join(args, " "),
				Character: opts.persona,
				ClientKey: opts.clientKey,
			})
			if err != nil {
				return err
			}
			if raw {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printReply(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw response")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show remaining quota and any pending appointment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			st, err := client.Status(ctx, opts.clientKey, opts.persona)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newPersonasCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the personas the gateway serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			list, err := client.Personas(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the gateway is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			if err := client.Health(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func printReply(w io.Writer, resp schema.ChatResponse) {
	if resp.Silent || resp.Reply == "" {
		fmt.Fprintln(w, "(no reply)")
	} else {
		fmt.Fprintln(w, resp.Reply)
	}
	line := fmt.Sprintf("remaining: %d", resp.Remaining)
	if resp.LockedUntilMs > 0 {
		line += ", locked until " + time.UnixMilli(resp.LockedUntilMs).Format(time.RFC3339)
	}
	fmt.Fprintln(w, line)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
