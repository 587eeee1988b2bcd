package broker

import (
	"sort"

	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

type ProviderType string

const (
	ProviderBinanceUS      ProviderType = "binance-us"
	ProviderBinanceLive    ProviderType = "binance-live"
	ProviderBinanceTestnet ProviderType = "binance-testnet"
)

type ProviderInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	BaseURL        string `json:"baseURL"`
	IsPaperTrading bool   `json:"isPaperTrading"`
}

var providerRegistry = map[ProviderType]ProviderInfo{
	ProviderBinanceUS: {
		Name:           string(ProviderBinanceUS),
		DisplayName:    "Binance.US",
		Description:    "Binance.US spot market with real funds",
		BaseURL:        "https://api.binance.us",
		IsPaperTrading: false,
	},
	ProviderBinanceLive: {
		Name:           string(ProviderBinanceLive),
		DisplayName:    "Binance Live",
		Description:    "Binance global spot market with real funds",
		BaseURL:        "https://api.binance.com",
		IsPaperTrading: false,
	},
	ProviderBinanceTestnet: {
		Name:           string(ProviderBinanceTestnet),
		DisplayName:    "Binance Testnet",
		Description:    "Binance spot testnet for paper trading without real funds",
		BaseURL:        "https://testnet.binance.vision",
		IsPaperTrading: true,
	},
}

// GetSupportedProviders returns the registered provider names, sorted.
func GetSupportedProviders() []string {
	providers := make([]string, 0, len(providerRegistry))
	for providerType := range providerRegistry {
		providers = append(providers, string(providerType))
	}

	sort.Strings(providers)

	return providers
}

// GetProviderInfo returns metadata for a specific provider.
func GetProviderInfo(providerName string) (ProviderInfo, error) {
	info, exists := providerRegistry[ProviderType(providerName)]
	if !exists {
		return ProviderInfo{}, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported broker provider: %s", providerName)
	}

	return info, nil
}

// NewBroker creates the Broker for providerType.
func NewBroker(providerType ProviderType, config BinanceConfig) (Broker, error) {
	info, err := GetProviderInfo(string(providerType))
	if err != nil {
		return nil, err
	}

	return NewBinanceBroker(config, info.BaseURL)
}
