package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/procateodor/blockchain-marketplace/internal/devnet"
	"github.com/procateodor/blockchain-marketplace/internal/ledger/wsrpc"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// LedgerPath is where `devnet serve` mounts the websocket endpoint.
const LedgerPath = "/ledger"

const shutdownTimeout = 5 * time.Second

// NewDevnetCommand creates the devnet command group. Its subcommands work
// on the local SQLite ledger named by the ledger.devnet setting.
func NewDevnetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Manage the local development ledger",
		Long: `Manage the local development ledger: a SQLite database that enforces
the marketplace contract rules and can be served to other clients over
websocket.

Examples:
  marketctl devnet init
  marketctl devnet register 0x00000000000000000000000000000000000000a1 --name Mara --role Manager
  marketctl devnet serve --listen 127.0.0.1:8545`,
	}

	cmd.AddCommand(newDevnetInitCommand(rootOpts))
	cmd.AddCommand(newDevnetRegisterCommand(rootOpts))
	cmd.AddCommand(newDevnetAccountsCommand(rootOpts))
	cmd.AddCommand(newDevnetJournalCommand(rootOpts))
	cmd.AddCommand(newDevnetServeCommand(rootOpts))

	return cmd
}

func openDevnet(opts *RootOptions) (*devnet.Ledger, error) {
	l, err := devnet.Open(opts.Config.Ledger.Devnet)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open devnet", err)
	}
	return l, nil
}

// Message is a one-line confirmation.
type Message struct {
	Message string `json:"message"`
}

func (m Message) String() string { return m.Message }

func newDevnetInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "init",
		Short:         "Create the devnet database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openDevnet(opts)
			if err != nil {
				return err
			}
			defer l.Close()
			return opts.formatter(cmd).Success(Message{Message: "devnet ready at " + opts.Config.Ledger.Devnet})
		},
	}
}

// RegisterOptions holds flags for devnet register.
type RegisterOptions struct {
	*RootOptions
	Name    string
	Domain  string
	Role    string
	Balance string
}

func newDevnetRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "register <address>",
		Short:         "Register an account on the devnet",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return registerAccount(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&opts.Domain, "domain", "web", "expertise domain")
	cmd.Flags().StringVar(&opts.Role, "role", "", "Manager, Freelancer, Evaluator, or Financer (required)")
	cmd.Flags().StringVar(&opts.Balance, "balance", "0", "starting token balance")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func registerAccount(opts *RegisterOptions, address string, cmd *cobra.Command) error {
	role, ok := market.ParseRole(opts.Role)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown role %q", opts.Role))
	}
	balance, ok := new(big.Int).SetString(opts.Balance, 10)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid balance %q", opts.Balance))
	}

	l, err := openDevnet(opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	addr := market.NormalizeAddress(address)
	if err := l.Register(ctx, addr, opts.Name, opts.Domain, role, balance); err != nil {
		return WrapExitError(ExitFailure, "failed to register account", err)
	}
	return opts.formatter(cmd).Success(Message{Message: fmt.Sprintf("registered %s as %s (%s)", addr, opts.Name, role)})
}

// AccountList is the devnet accounts result.
type AccountList []devnet.Account

func (l AccountList) String() string {
	if len(l) == 0 {
		return "No accounts."
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tROLE\tBALANCE")
	for _, a := range l {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Address, a.Name, a.Role, a.Balance)
	}
	w.Flush()
	return strings.TrimSuffix(b.String(), "\n")
}

func newDevnetAccountsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "accounts",
		Short:         "List registered devnet accounts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openDevnet(opts)
			if err != nil {
				return err
			}
			defer l.Close()

			ctx, cancel := opts.commandContext(cmd)
			defer cancel()
			accounts, err := l.Accounts(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list accounts", err)
			}
			return opts.formatter(cmd).Success(AccountList(accounts))
		},
	}
}

// Journal is the devnet journal result.
type Journal []devnet.Entry

func (j Journal) String() string {
	if len(j) == 0 {
		return "No transactions."
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tMETHOD\tSENDER\tARGS\tOUTCOME")
	for _, e := range j {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Seq, e.Method, e.Sender, strings.Join(e.Args, " "), e.Outcome)
	}
	w.Flush()
	return strings.TrimSuffix(b.String(), "\n")
}

func newDevnetJournalCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "journal",
		Short:         "Show every write submitted to the devnet",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openDevnet(opts)
			if err != nil {
				return err
			}
			defer l.Close()

			ctx, cancel := opts.commandContext(cmd)
			defer cancel()
			entries, err := l.Journal(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read journal", err)
			}
			return opts.formatter(cmd).Success(Journal(entries))
		},
	}
}

// ServeOptions holds flags for devnet serve.
type ServeOptions struct {
	*RootOptions
	Listen string
}

func newDevnetServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the devnet to websocket clients",
		Long: `Serve the devnet ledger over websocket at ` + LedgerPath + `.

Other clients connect by setting ledger.url (or MARKET_LEDGER_URL) to
ws://<listen>` + LedgerPath + `.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveDevnet(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (defaults to the listen setting)")

	return cmd
}

func serveDevnet(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.Logger
	addr := opts.Listen
	if addr == "" {
		addr = opts.Config.Listen
	}

	l, err := openDevnet(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := l.Close(); closeErr != nil {
			logger.Error("error closing devnet", "error", closeErr)
		}
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	defer ln.Close()

	mux := http.NewServeMux()
	mux.Handle(LedgerPath, wsrpc.NewHandler(l, wsrpc.WithLogger(logger)))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
		case <-ctx.Done():
		}
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("devnet serving", "addr", ln.Addr().String(), "db", opts.Config.Ledger.Devnet)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving devnet on ws://%s%s\n", ln.Addr(), LedgerPath)

	err = srv.Serve(ln)
	cancel()
	<-done
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("devnet stopped gracefully")
	return nil
}
