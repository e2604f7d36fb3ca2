// calc is a command-line client for calcserver. Run it with a subcommand
// for a one-shot call, `calc menu` for an interactive session, or
// `calc bench` to measure call latency.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"calcrpc/calc"
	"calcrpc/config"
	"calcrpc/rpc"
)

var (
	serverAddr  string
	callTimeout time.Duration
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	root := &cobra.Command{
		Use:           "calc",
		Short:         "Client for the calcrpc arithmetic and statistics server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(
		&serverAddr, "addr", cfg.ServerAddr, "server address to connect to",
	)
	root.PersistentFlags().DurationVar(
		&callTimeout, "timeout", cfg.CallTimeout, "per-call deadline",
	)

	root.AddCommand(menuCmd(), benchCmd())
	root.AddCommand(opCmds()...)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", explain(err))
		os.Exit(1)
	}
}

func dial() (*calc.Client, error) {
	return calc.Dial(serverAddr)
}

func callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

// explain rewrites common RPC failures into something actionable for a
// terminal user; anything unrecognized passes through unchanged.
func explain(err error) string {
	if rerr := rpc.GetError(err); rerr != nil {
		switch rerr.Status {
		case rpc.StatusUnavailable:
			return fmt.Sprintf("cannot reach server at %s (is calcserver running?)", serverAddr)
		case rpc.StatusDeadlineExceeded:
			return fmt.Sprintf("call did not finish within %s", callTimeout)
		case rpc.StatusInvalidArgument:
			return "invalid argument: " + rerr.Msg
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("call did not finish within %s", callTimeout)
	}
	return err.Error()
}
