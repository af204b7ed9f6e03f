package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/michaelpento.lv/flashbridge/utils"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote [amount]",
	Short: "Show flash loan capacity and fee for every reserve",
	Long: `Show how much of each reserve can be flash borrowed and the fee charged
for borrowing amount (in whole tokens, default 1).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount := "1"
		if len(args) == 1 {
			amount = args[0]
		}

		m, err := newMarket(nil)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RESERVE\tLENDER\tCAPACITY\tAMOUNT\tFEE")
		for _, r := range m.Reserves() {
			symbol := r.Token.Symbol()
			units, err := m.ParseAmount(symbol, amount)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			quotes, err := m.Quote(symbol, units)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			decimals := r.Token.Decimals()
			for _, q := range quotes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					symbol,
					q.Lender,
					utils.FormatUnits(q.MaxLoan, decimals),
					amount,
					utils.FormatUnits(q.Fee, decimals))
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}
