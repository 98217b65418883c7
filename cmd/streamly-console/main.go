package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/cmd/streamly-console/apiserver"
	"github.com/hoppermq/streamly-console/cmd/streamly-console/housekeeper"
	"github.com/hoppermq/streamly-console/cmd/streamly-console/migrate"
	"github.com/hoppermq/streamly-console/internal/cmdutils"
)

// BuildInfo will be set by the build system
var BuildInfo = "{}"

// options are the persistent flags shared by every subcommand.
type options struct {
	gracefulShutdown time.Duration
	skipShutdown     bool
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.skipShutdown = true

			value, err := utils.ExtractFromComplexValue(BuildInfo)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "streamly-console",
		Short:         "Streamly console",
		Long:          "Streamly console backend: OIDC sign-in with PKCE, session renewal, route guards and user preferences.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.DurationVar(&opts.gracefulShutdown, "graceful-shutdown", time.Second, "time given to running goroutines after the command returns")
	flags.String(cmdutils.ConfigDirFlag, "", "directory searched first for config.yaml")

	cmd.AddCommand(
		newVersionCmd(opts),
		apiserver.Cmd(BuildInfo),
		housekeeper.Cmd(BuildInfo),
		migrate.Cmd(BuildInfo),
	)

	return cmd
}

func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &options{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)

	code := 0
	if err := cmd.ExecuteContext(ctx); err != nil {
		slogctx.Error(ctx, "Failed to run the command", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)
		code = 1
	}

	if !opts.skipShutdown {
		_, _ = fmt.Fprintf(os.Stderr, "Graceful shutdown in %s\n", opts.gracefulShutdown)
		time.Sleep(opts.gracefulShutdown)
	}

	return code
}

func main() {
	os.Exit(execute(os.Args[1:]))
}
