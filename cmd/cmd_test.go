package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/michaelpento.lv/flashbridge/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// keep log files out of the package directory
	utils.InitLoggerWithOptions(utils.LogOptions{OutputPaths: []string{"stderr"}, Level: "error"})
	os.Exit(m.Run())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--env", filepath.Join(home, ".env")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestQuoteCommand(t *testing.T) {
	out, err := run(t, "quote")
	require.NoError(t, err)
	assert.Contains(t, out, "RESERVE")
	assert.Contains(t, out, "WETH")
	assert.Contains(t, out, "aave")
	// 9 bps of one token
	assert.Contains(t, out, "0.0009")
	assert.Contains(t, out, "2500000")
}

func TestBorrowCommand(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		out, err := run(t, "borrow", "USDC", "1000", "--action", "normal")
		require.NoError(t, err)
		assert.Contains(t, out, "status: success")
		assert.Contains(t, out, "callback:")
		assert.Contains(t, out, "borrower 0 USDC")
		assert.Contains(t, out, "adapter  0 USDC")
		assert.Contains(t, out, "reserve  2500000.9 USDC")
	})

	t.Run("revert", func(t *testing.T) {
		out, err := run(t, "borrow", "USDC", "1000", "--action", "revert")
		require.NoError(t, err)
		assert.Contains(t, out, "status: reverted")
		assert.Contains(t, out, "reserve  2500000 USDC")
	})

	t.Run("bad action", func(t *testing.T) {
		_, err := run(t, "borrow", "USDC", "1", "--action", "explode")
		assert.Error(t, err)
	})

	t.Run("unknown reserve", func(t *testing.T) {
		_, err := run(t, "borrow", "DOGE", "1", "--action", "normal")
		assert.Error(t, err)
	})
}

func TestSimulateCommand(t *testing.T) {
	out, err := run(t, "simulate", "DAI", "10", "--action", "normal")
	require.NoError(t, err)
	assert.Contains(t, out, "would succeed: fee 0.009 DAI")
	// funding is committed, the loan is not
	assert.Contains(t, out, "borrower 0.009 DAI")
	assert.Contains(t, out, "reserve  2500000 DAI")
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flashbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reserves:
  - symbol: WBTC
    decimals: 8
    liquidity: "50"
`), 0o600))

	out, err := run(t, "quote", "2", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "WBTC")
	assert.Contains(t, out, "0.0018")
	assert.NotContains(t, out, "WETH")

	_, err = run(t, "quote", "--config", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestBorrowBestLender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flashbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vault:
  enabled: true
reserves:
  - symbol: DAI
    decimals: 18
    liquidity: "1000"
    vault_liquidity: "10"
`), 0o600))

	t.Run("vault covers", func(t *testing.T) {
		out, err := run(t, "borrow", "DAI", "10", "--config", path, "--lender", "best", "--action", "normal")
		require.NoError(t, err)
		assert.Contains(t, out, "status: success")
		assert.Contains(t, out, "FlashLoan(recipient=")
		assert.Contains(t, out, "reserve  1000 DAI")
	})

	t.Run("falls back to pool", func(t *testing.T) {
		out, err := run(t, "borrow", "DAI", "11", "--config", path, "--lender", "best", "--action", "normal")
		require.NoError(t, err)
		assert.Contains(t, out, "FlashLoan(target=")
		assert.Contains(t, out, "reserve  1000.0099 DAI")
	})

	t.Run("unknown lender", func(t *testing.T) {
		_, err := run(t, "borrow", "DAI", "1", "--config", path, "--lender", "compound", "--action", "normal")
		assert.Error(t, err)
	})
}
