package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/checkout/types"
)

const testConfigYAML = `
btc_address: bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh
evm_address: "0x2525f55Fb0708582E05620BAEB44eDFfB76b779f"
tron_address: TBy5XCn9AkqLToUPWmok7QMSKmdCwqQ2t7
api_keys:
  etherscan: yaml-key
intervals:
  watch: 30s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigLayers(t *testing.T) {
	t.Setenv("CHECKOUT_API_KEY_ETHERSCAN", "env-key")
	t.Setenv("CHECKOUT_RETRY_COUNT", "4")

	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.APIKeys.Etherscan)
	assert.Equal(t, uint(4), cfg.RetryCount)
	assert.Equal(t, 30*time.Second, cfg.Intervals.Watch)
	assert.Equal(t, 60*time.Second, cfg.Intervals.Rates)
	assert.Equal(t, 15*time.Minute, cfg.Intervals.PaymentWindow)
	assert.Equal(t, "https://api.coingecko.com", cfg.Endpoints.Rates)
}

func TestLoadConfigRejectsBadAddress(t *testing.T) {
	body := `
btc_address: bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh
evm_address: "0x1234"
tron_address: TBy5XCn9AkqLToUPWmok7QMSKmdCwqQ2t7
`
	_, err := LoadConfig(writeConfig(t, body))
	require.Error(t, err)

	var cerr *types.CheckoutError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, types.ErrCodeConfig, cerr.Code)
}

func TestValidateConfigUnknownChain(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.BTCAddress = "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"
	cfg.EVMAddress = "0x2525f55Fb0708582E05620BAEB44eDFfB76b779f"
	cfg.TronAddress = "TBy5XCn9AkqLToUPWmok7QMSKmdCwqQ2t7"
	require.NoError(t, ValidateConfig(cfg))

	cfg.SupportedChains = []string{"0x1", "0x999"}
	assert.Error(t, ValidateConfig(cfg))
}
