package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/michaelpento.lv/flashbridge/borrower"
	"github.com/michaelpento.lv/flashbridge/market"
	"github.com/michaelpento.lv/flashbridge/utils/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var listenAddr string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Run a demo loan per reserve and serve the metrics endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Metrics.ListenAddr
		if listenAddr != "" {
			addr = listenAddr
		}
		if addr == "" {
			return fmt.Errorf("no listen address configured")
		}

		reg := metrics.NewRegistry(&metrics.MetricsConfig{
			Namespace:      cfg.Metrics.Namespace,
			IncludeRuntime: cfg.Metrics.IncludeRuntime,
		}, log)
		m, err := newMarket(reg)
		if err != nil {
			return err
		}
		if err := runDemo(m); err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("Serving metrics", zap.String("addr", addr))
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
			log.Info("Shutting down metrics server")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		}
	},
}

func init() {
	metricsCmd.Flags().StringVar(&listenAddr, "listen", "", "override the configured metrics listen address")
	rootCmd.AddCommand(metricsCmd)
}

// runDemo borrows one whole token of every reserve, then tries a loan the
// borrower cannot approve so the error counters move too.
func runDemo(m *market.Market) error {
	for _, r := range m.Reserves() {
		symbol := r.Token.Symbol()
		amount, err := m.ParseAmount(symbol, "1")
		if err != nil {
			return err
		}
		if err := fundBorrower(m, m.Adapter.Address(), symbol, amount); err != nil {
			return err
		}
		for _, action := range []borrower.Action{borrower.ActionNormal, borrower.ActionSkipApproval} {
			receipt, err := m.Borrow(symbol, amount, action)
			if err != nil {
				return err
			}
			log.Info("Demo loan",
				zap.String("reserve", symbol),
				zap.String("action", action.String()),
				zap.Bool("success", receipt.Succeeded()),
				zap.Error(receipt.Err))
		}
	}
	return nil
}
