package cli

import (
	"github.com/spf13/cobra"

	"reward-farming/internal/farming"
)

var (
	stakePool   string
	stakeCaller string
	stakeOwner  string
	stakeAmount string
	fundSlot    string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage staking positions",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a position for the caller",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseHash("pool", stakePool)
		if err != nil {
			return err
		}
		caller, err := parseAddress("caller", stakeCaller)
		if err != nil {
			return err
		}
		return getApp().UserCreate(cmd.Context(), id, caller)
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display a position with rewards accrued up to now",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseHash("pool", stakePool)
		if err != nil {
			return err
		}
		owner, err := parseAddress("owner", stakeOwner)
		if err != nil {
			return err
		}
		_, err = getApp().ShowUser(cmd.Context(), id, owner)
		return err
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Stake tokens into a position",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := stakeRequest()
		if err != nil {
			return err
		}
		_, err = getApp().Deposit(cmd.Context(), req)
		return err
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw staked tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := stakeRequest()
		if err != nil {
			return err
		}
		_, err = getApp().Withdraw(cmd.Context(), req)
		return err
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Add rewards to a slot and restart its emission period",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseHash("pool", stakePool)
		if err != nil {
			return err
		}
		caller, err := parseAddress("caller", stakeCaller)
		if err != nil {
			return err
		}
		slot, err := farming.ParseSlot(fundSlot)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", stakeAmount, getApp().Config.App.AmountDecimals)
		if err != nil {
			return err
		}
		_, err = getApp().Fund(cmd.Context(), farming.FundRequest{Pool: id, Caller: caller, Slot: slot, Amount: amount})
		return err
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim accrued rewards",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseHash("pool", stakePool)
		if err != nil {
			return err
		}
		caller, err := parseAddress("caller", stakeCaller)
		if err != nil {
			return err
		}
		owner, err := parseOptionalAddress("owner", stakeOwner)
		if err != nil {
			return err
		}
		_, err = getApp().Claim(cmd.Context(), id, caller, owner)
		return err
	},
}

func stakeRequest() (farming.StakeRequest, error) {
	var req farming.StakeRequest
	var err error
	if req.Pool, err = parseHash("pool", stakePool); err != nil {
		return req, err
	}
	if req.Caller, err = parseAddress("caller", stakeCaller); err != nil {
		return req, err
	}
	if req.Owner, err = parseOptionalAddress("owner", stakeOwner); err != nil {
		return req, err
	}
	req.Amount, err = parseAmount("amount", stakeAmount, getApp().Config.App.AmountDecimals)
	return req, err
}

func init() {
	all := []*cobra.Command{userCreateCmd, userShowCmd, depositCmd, withdrawCmd, fundCmd, claimCmd}
	for _, c := range all {
		c.Flags().StringVar(&stakePool, "pool", "", "Pool id (32-byte hex)")
	}
	for _, c := range []*cobra.Command{userCreateCmd, depositCmd, withdrawCmd, fundCmd, claimCmd} {
		c.Flags().StringVar(&stakeCaller, "caller", "", "Address signing the operation")
	}
	for _, c := range []*cobra.Command{userShowCmd, depositCmd, withdrawCmd, claimCmd} {
		c.Flags().StringVar(&stakeOwner, "owner", "", "Position owner (defaults to the caller)")
	}
	for _, c := range []*cobra.Command{depositCmd, withdrawCmd, fundCmd} {
		c.Flags().StringVar(&stakeAmount, "amount", "", "Amount in display units")
	}
	fundCmd.Flags().StringVar(&fundSlot, "slot", "A", "Reward slot (A or B)")

	userCmd.AddCommand(userCreateCmd, userShowCmd)
}
