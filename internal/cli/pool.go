package cli

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"reward-farming/internal/app"
)

var (
	poolID        string
	poolCaller    string
	initAuthority string
	initStaking   string
	initRewardA   string
	initRewardB   string
	initBaseKey   string
	initDuration  uint64
	showEvents    int
	showHistory   int
	funderAddr    string
	sweepTo       string
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Create, inspect and administer pools",
}

var poolInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a pool with one or two reward slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PoolInitOptions{Duration: initDuration}
		var err error
		if opts.Authority, err = parseAddress("authority", initAuthority); err != nil {
			return err
		}
		if opts.StakingAsset, err = parseAddress("staking-asset", initStaking); err != nil {
			return err
		}
		if opts.RewardA, err = parseAddress("reward-a", initRewardA); err != nil {
			return err
		}
		if initRewardB != "" {
			b, err := parseAddress("reward-b", initRewardB)
			if err != nil {
				return err
			}
			opts.RewardB = &b
		}
		if opts.BaseKey, err = parseOptionalAddress("base-key", initBaseKey); err != nil {
			return err
		}
		if opts.BaseKey == (common.Address{}) {
			opts.BaseKey = opts.Authority
		}
		_, err = getApp().PoolInit(cmd.Context(), opts)
		return err
	},
}

var poolShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display a pool, its reward slots and recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseHash("pool", poolID)
		if err != nil {
			return err
		}
		return getApp().ShowPool(cmd.Context(), app.ShowOptions{Pool: id, Events: showEvents, History: showHistory})
	},
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListPools(cmd.Context())
	},
}

var poolPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause a pool whose reward periods have finished",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPoolCaller(func(p poolRef) error {
			return getApp().Pause(cmd.Context(), p.id, p.caller)
		})
	},
}

var poolUnpauseCmd = &cobra.Command{
	Use:   "unpause",
	Short: "Resume a paused pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPoolCaller(func(p poolRef) error {
			return getApp().Unpause(cmd.Context(), p.id, p.caller)
		})
	},
}

var poolAuthorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Authorize an address to fund rewards",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPoolCaller(func(p poolRef) error {
			funder, err := parseAddress("funder", funderAddr)
			if err != nil {
				return err
			}
			return getApp().AuthorizeFunder(cmd.Context(), p.id, p.caller, funder)
		})
	},
}

var poolDeauthorizeCmd = &cobra.Command{
	Use:   "deauthorize",
	Short: "Revoke a funder",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPoolCaller(func(p poolRef) error {
			funder, err := parseAddress("funder", funderAddr)
			if err != nil {
				return err
			}
			return getApp().DeauthorizeFunder(cmd.Context(), p.id, p.caller, funder)
		})
	},
}

var poolSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Send staking tokens not backed by deposits to a recipient",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPoolCaller(func(p poolRef) error {
			to, err := parseOptionalAddress("to", sweepTo)
			if err != nil {
				return err
			}
			_, err = getApp().Sweep(cmd.Context(), p.id, p.caller, to)
			return err
		})
	},
}

type poolRef struct {
	id     common.Hash
	caller common.Address
}

func withPoolCaller(fn func(poolRef) error) error {
	id, err := parseHash("pool", poolID)
	if err != nil {
		return err
	}
	caller, err := parseAddress("caller", poolCaller)
	if err != nil {
		return err
	}
	return fn(poolRef{id: id, caller: caller})
}

func init() {
	poolInitCmd.Flags().StringVar(&initAuthority, "authority", "", "Pool authority address")
	poolInitCmd.Flags().StringVar(&initStaking, "staking-asset", "", "Staking asset address")
	poolInitCmd.Flags().StringVar(&initRewardA, "reward-a", "", "Reward asset for slot A")
	poolInitCmd.Flags().StringVar(&initRewardB, "reward-b", "", "Optional reward asset for slot B")
	poolInitCmd.Flags().StringVar(&initBaseKey, "base-key", "", "Key mixed into the pool id (defaults to the authority)")
	poolInitCmd.Flags().Uint64Var(&initDuration, "duration", 0, "Reward emission duration in seconds")

	for _, c := range []*cobra.Command{poolShowCmd, poolPauseCmd, poolUnpauseCmd, poolAuthorizeCmd, poolDeauthorizeCmd, poolSweepCmd} {
		c.Flags().StringVar(&poolID, "pool", "", "Pool id (32-byte hex)")
	}
	for _, c := range []*cobra.Command{poolPauseCmd, poolUnpauseCmd, poolAuthorizeCmd, poolDeauthorizeCmd, poolSweepCmd} {
		c.Flags().StringVar(&poolCaller, "caller", "", "Address acting as the pool authority")
	}
	poolShowCmd.Flags().IntVar(&showEvents, "events", 20, "Number of recent events to display")
	poolShowCmd.Flags().IntVar(&showHistory, "history", 10, "Number of stored snapshots and period alerts to display (requires a database)")
	poolAuthorizeCmd.Flags().StringVar(&funderAddr, "funder", "", "Funder address")
	poolDeauthorizeCmd.Flags().StringVar(&funderAddr, "funder", "", "Funder address")
	poolSweepCmd.Flags().StringVar(&sweepTo, "to", "", "Recipient (defaults to the caller)")

	poolCmd.AddCommand(poolInitCmd, poolShowCmd, poolListCmd, poolPauseCmd, poolUnpauseCmd, poolAuthorizeCmd, poolDeauthorizeCmd, poolSweepCmd)
}
