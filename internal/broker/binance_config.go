package broker

import (
	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// BinanceConfig contains credentials and endpoint for a Binance-compatible venue.
type BinanceConfig struct {
	APIKey    string `yaml:"apiKey" json:"apiKey" jsonschema:"title=API Key,description=Binance API key" validate:"required"`
	SecretKey string `yaml:"secretKey" json:"secretKey" jsonschema:"title=Secret Key,description=Binance API secret key" validate:"required"`
	// BaseURL overrides the endpoint chosen by the provider type.
	BaseURL string `yaml:"baseURL,omitempty" json:"baseURL,omitempty" jsonschema:"title=Base URL,description=Override for the REST endpoint" validate:"omitempty,url"`
}

// Validate validates the BinanceConfig struct.
func (c *BinanceConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid binance config", err)
	}

	return nil
}
