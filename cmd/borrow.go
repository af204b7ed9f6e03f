package cmd

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/borrower"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/market"
	"github.com/michaelpento.lv/flashbridge/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	actionName string
	lenderName string
	fundFee    bool
)

var borrowCmd = &cobra.Command{
	Use:   "borrow SYMBOL AMOUNT",
	Short: "Run a flash loan end to end with the reference borrower",
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

		receipt, err := m.BorrowFrom(lender, symbol, amount, action)
		if err != nil {
			return err
		}
		if err := printReceipt(cmd.OutOrStdout(), receipt); err != nil {
			return err
		}
		if receipt.Succeeded() {
			if err := printLastLoan(cmd.OutOrStdout(), m, symbol); err != nil {
				return err
			}
		}
		return printBalances(cmd.OutOrStdout(), m, symbol)
	},
}

func init() {
	for _, c := range []*cobra.Command{borrowCmd, simulateCmd} {
		c.Flags().StringVar(&actionName, "action", borrower.ActionNormal.String(),
			"borrower behaviour: normal, reject, revert, skip-approval or reenter")
		c.Flags().BoolVar(&fundFee, "fund-fee", true, "mint the fee to the borrower before borrowing")
		c.Flags().StringVar(&lenderName, "lender", market.LenderName,
			"lender to borrow from: "+market.LenderName+", "+market.VaultLenderName+" or best")
	}
	rootCmd.AddCommand(borrowCmd)
}

func parseLoan(m *market.Market, symbol, amount string) (*big.Int, borrower.Action, error) {
	units, err := m.ParseAmount(symbol, amount)
	if err != nil {
		return nil, 0, err
	}
	action, err := borrower.ParseAction(actionName)
	if err != nil {
		return nil, 0, err
	}
	return units, action, nil
}

// pickLender resolves --lender. "best" asks the manager for the cheapest
// lender that covers amount.
func pickLender(m *market.Market, symbol string, amount *big.Int) (common.Address, error) {
	if lenderName != "best" {
		return m.LenderAddress(lenderName)
	}
	quote, err := m.BestLender(symbol, amount)
	if err != nil {
		return common.Address{}, err
	}
	log.Info("Routing flash loan", zap.String("lender", quote.Lender), zap.String("fee", quote.Fee.String()))
	return quote.Address, nil
}

// fundBorrower mints lender's fee for amount, doubled up for the nested loan
// when the borrower re-enters.
func fundBorrower(m *market.Market, lender common.Address, symbol string, amount *big.Int) error {
	fee, err := lenderFee(m, lender, symbol, amount)
	if err != nil {
		return err
	}
	if actionName == borrower.ActionReenter.String() {
		nested, err := lenderFee(m, lender, symbol, new(big.Int).Mul(amount, big.NewInt(2)))
		if err != nil {
			return err
		}
		fee.Add(fee, nested)
	}
	if fee.Sign() == 0 {
		return nil
	}

	log.Debug("Funding borrower", zap.String("reserve", symbol), zap.String("fee", fee.String()))
	return m.Fund(symbol, m.Borrower.Address(), fee)
}

func lenderFee(m *market.Market, lender common.Address, symbol string, amount *big.Int) (*big.Int, error) {
	quotes, err := m.Quote(symbol, amount)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		if q.Address == lender {
			return new(big.Int).Set(q.Fee), nil
		}
	}
	return nil, fmt.Errorf("lender %s does not quote %s", lender.Hex(), symbol)
}

func printReceipt(w io.Writer, receipt *chain.Receipt) error {
	if receipt.Succeeded() {
		fmt.Fprintf(w, "status: success (%d logs)\n", len(receipt.Logs))
	} else {
		fmt.Fprintf(w, "status: reverted: %v\n", receipt.Err)
	}

	decoder, err := utils.NewLogDecoder(log)
	if err != nil {
		return err
	}
	for i, l := range receipt.Logs {
		decoded, err := decoder.Decode(l)
		if err != nil {
			fmt.Fprintf(w, "  log %d: %s topic0=%s\n", i, l.Address.Hex(), topic0(l.Topics))
			continue
		}
		fmt.Fprintf(w, "  log %d: %s %s\n", i, l.Address.Hex(), decoded)
	}
	return nil
}

func printLastLoan(w io.Writer, m *market.Market, symbol string) error {
	r, err := m.Reserve(symbol)
	if err != nil {
		return err
	}
	loan, err := m.LastLoan()
	if err != nil {
		return err
	}
	decimals := r.Token.Decimals()
	fmt.Fprintf(w, "callback: sender=%s amount=%s fee=%s balance=%s\n",
		loan.FlashSender.Hex(),
		utils.FormatUnits(loan.FlashAmount, decimals),
		utils.FormatUnits(loan.FlashFee, decimals),
		utils.FormatUnits(loan.FlashBalance, decimals))
	return nil
}

func printBalances(w io.Writer, m *market.Market, symbol string) error {
	r, err := m.Reserve(symbol)
	if err != nil {
		return err
	}
	holders := []struct {
		name string
		addr common.Address
	}{
		{"borrower", m.Borrower.Address()},
		{"adapter", m.Adapter.Address()},
		{"reserve", r.AToken.Address()},
	}
	for _, h := range holders {
		bal, err := m.Balance(symbol, h.addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-8s %s %s\n", h.name, utils.FormatUnits(bal, r.Token.Decimals()), symbol)
	}
	return nil
}

func topic0(topics []common.Hash) string {
	if len(topics) == 0 {
		return "-"
	}
	return topics[0].Hex()
}
