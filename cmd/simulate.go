package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/flashbridge/market"
	"github.com/michaelpento.lv/flashbridge/simulator"
	"github.com/michaelpento.lv/flashbridge/utils"
	"github.com/michaelpento.lv/flashbridge/utils/metrics"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate SYMBOL AMOUNT",
	Short: "Dry-run a flash loan without committing any state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMarket(nil)
		if err != nil {
			return err
		}
		symbol := args[0]
		amount, action, err := parseLoan(m, symbol, args[1])
		if err != nil {
			return err
		}
		lender, err := pickLender(m, symbol, amount)
		if err != nil {
			return err
		}
		if fundFee {
			if err := fundBorrower(m, lender, symbol, amount); err != nil {
				return err
			}
		}
		r, err := m.Reserve(symbol)
		if err != nil {
			return err
		}

		limit := cfg.SimulationRateLimit
		sim, err := simulator.NewSimulator(m.VM, cfg.SimulationCacheSize, log,
			metrics.NewSimulationMetrics(cfg.Metrics.Namespace, nil),
			simulator.WithRateLimit(limit.RequestsPerSecond, limit.BurstSize, limit.WaitTimeout))
		if err != nil {
			return err
		}
		result, err := sim.SimulateFlashLoan(cmd.Context(), simulator.FlashLoanRequest{
			From:     market.User,
			Borrower: m.Borrower.Address(),
			Lender:   lender,
			Token:    r.Token.Address(),
			Amount:   amount,
			Action:   action,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if result.Success {
			fmt.Fprintf(out, "would succeed: fee %s %s, %d logs\n",
				utils.FormatUnits(result.Fee, r.Token.Decimals()), symbol, len(result.Logs))
		} else {
			fmt.Fprintf(out, "would revert: %v\n", result.Error)
		}
		fmt.Fprintf(out, "state digest: %#x\n", result.StateDigest)
		return printBalances(out, m, symbol)
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}
