package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// UserView is the printable session user.
type UserView struct {
	Address    market.Address `json:"address"`
	Name       string         `json:"name"`
	Role       string         `json:"role"`
	Domain     string         `json:"domain"`
	Reputation int64          `json:"reputation"`
	Tokens     string         `json:"tokens"`
}

func newUserView(u market.User) UserView {
	tokens := "0"
	if u.Tokens != nil {
		tokens = u.Tokens.String()
	}
	return UserView{
		Address:    u.Address,
		Name:       u.Name,
		Role:       u.Role.String(),
		Domain:     u.Domain,
		Reputation: u.Reputation,
		Tokens:     tokens,
	}
}

func (u UserView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", u.Name, u.Role)
	fmt.Fprintf(&b, "  address:    %s\n", u.Address)
	fmt.Fprintf(&b, "  domain:     %s\n", u.Domain)
	fmt.Fprintf(&b, "  reputation: %d\n", u.Reputation)
	fmt.Fprintf(&b, "  tokens:     %s", u.Tokens)
	return b.String()
}

// NewUserCommand creates the user command.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "user",
		Short: "Show the session account",
		Long: `Load the session account from the ledger and print its profile,
role, and token balance.

Example:
  marketctl user --account 0x00000000000000000000000000000000000000a1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showUser(rootOpts, cmd)
		},
	}
}

func showUser(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	c, err := openClient(ctx, opts)
	if err != nil {
		return reportLoadError(opts, cmd, err)
	}
	defer c.Close()

	u, _ := c.session.Store().User()
	return opts.formatter(cmd).Success(newUserView(u))
}

// reportLoadError prints failures to load the session account in the
// configured format and passes the error through for the exit code.
func reportLoadError(opts *RootOptions, cmd *cobra.Command, err error) error {
	if GetExitCode(err) == ExitFailure {
		_ = opts.formatter(cmd).Error(CodeLoad, err.Error(), nil)
	}
	return err
}
