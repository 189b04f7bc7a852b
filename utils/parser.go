package utils

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vitwit/checkout/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	mustRegister("evmaddr", func(fl validator.FieldLevel) bool {
		return ValidateAddressForNetwork(fl.Field().String(), types.NetworkEthereum) == nil
	})
	mustRegister("btcaddr", func(fl validator.FieldLevel) bool {
		return ValidateAddressForNetwork(fl.Field().String(), types.NetworkBitcoin) == nil
	})
	mustRegister("tronaddr", func(fl validator.FieldLevel) bool {
		return ValidateAddressForNetwork(fl.Field().String(), types.NetworkTRC20) == nil
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Validator returns the shared validator with the address tags registered.
func Validator() *validator.Validate {
	return validate
}

// LoadConfig builds the checkout configuration. Defaults are overlaid by the
// YAML file at path (if non-empty), then by CHECKOUT_* environment variables.
func LoadConfig(path string) (*types.CheckoutConfig, error) {
	cfg := types.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewError(types.ErrCodeConfig, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.NewError(types.ErrCodeConfig, "failed to parse config file", err)
		}
	}

	if err := env.Parse(cfg, env.Options{Prefix: "CHECKOUT_"}); err != nil {
		return nil, types.NewError(types.ErrCodeConfig, "failed to parse environment", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig checks cfg against its struct tags.
func ValidateConfig(cfg *types.CheckoutConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return types.NewError(types.ErrCodeConfig, fmt.Sprintf("validation failed: %v", err), err)
	}
	for _, id := range cfg.SupportedChains {
		if _, ok := types.ChainByID(id); !ok {
			return types.NewError(types.ErrCodeConfig, fmt.Sprintf("unknown supported chain %s", id), nil)
		}
	}
	return nil
}
