package cli

import (
	"github.com/spf13/cobra"
)

var (
	ledgerOwner  string
	ledgerAsset  string
	ledgerAmount string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and credit custody wallets",
}

var ledgerCreditCmd = &cobra.Command{
	Use:   "credit",
	Short: "Credit tokens to a wallet (development backends)",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseAddress("owner", ledgerOwner)
		if err != nil {
			return err
		}
		asset, err := parseAddress("asset", ledgerAsset)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", ledgerAmount, getApp().Config.App.AmountDecimals)
		if err != nil {
			return err
		}
		return getApp().LedgerCredit(cmd.Context(), owner, asset, amount)
	},
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print a wallet balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseAddress("owner", ledgerOwner)
		if err != nil {
			return err
		}
		asset, err := parseAddress("asset", ledgerAsset)
		if err != nil {
			return err
		}
		_, err = getApp().LedgerBalance(cmd.Context(), owner, asset)
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{ledgerCreditCmd, ledgerBalanceCmd} {
		c.Flags().StringVar(&ledgerOwner, "owner", "", "Wallet owner address")
		c.Flags().StringVar(&ledgerAsset, "asset", "", "Asset address")
	}
	ledgerCreditCmd.Flags().StringVar(&ledgerAmount, "amount", "", "Amount in display units")

	ledgerCmd.AddCommand(ledgerCreditCmd, ledgerBalanceCmd)
}
