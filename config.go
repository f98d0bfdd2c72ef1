package wyvernsdk

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"gopkg.in/yaml.v3"
)

// Network names a supported Ethereum network
type Network string

const (
	NetworkMainnet Network = "main"
	NetworkRinkeby Network = "rinkeby"
)

// ChainID represents a blockchain chain ID
type ChainID int

const (
	ChainIDMainnet ChainID = 1
	ChainIDRinkeby ChainID = 4
)

// SupportedChainIDs lists all supported chain IDs
var SupportedChainIDs = []ChainID{ChainIDMainnet, ChainIDRinkeby}

// NetworkChainIDs maps network names to their chain IDs
var NetworkChainIDs = map[Network]ChainID{
	NetworkMainnet: ChainIDMainnet,
	NetworkRinkeby: ChainIDRinkeby,
}

// ContractAddresses holds contract addresses for each chain
type ContractAddresses struct {
	ExchangeV22        string
	ExchangeV23        string
	Atomicizer         string
	ProxyRegistry      string
	TokenTransferProxy string
	FeeRecipient       string
	WETH               string
}

// Exchange returns the exchange deployment for a protocol version
func (c ContractAddresses) Exchange(version chain.ProtocolVersion) string {
	if version == chain.ProtocolVersion22 {
		return c.ExchangeV22
	}
	return c.ExchangeV23
}

// DefaultContractAddresses maps chain IDs to their contract addresses
var DefaultContractAddresses = map[ChainID]ContractAddresses{
	ChainIDMainnet: {
		ExchangeV22:        "0x7be8076f4ea4a4ad08075c2508e481d6c946d12b",
		ExchangeV23:        "0x7f268357a8c2552623316e2562d90e642bb538e5",
		Atomicizer:         "0xc99f70bfd82fb7c8f8191fdfbfb735606b15e5c5",
		ProxyRegistry:      "0xa5409ec958c83c3f309868babaca7c86dcb077c1",
		TokenTransferProxy: "0xe5c783ee536cf5e63e792988335c4255169be4e1",
		FeeRecipient:       "0x5b3256965e7c3cf26e11fcaf296dfc8807c01073",
		WETH:               "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
	},
	ChainIDRinkeby: {
		ExchangeV22:        "0x5206e78b21ce315ce284fb24cf05e0585a93b1d9",
		ExchangeV23:        "0xdd54d660178b28f6033a953b0e55073cfa7e3744",
		Atomicizer:         "0x613a12b156ad0b8fa4db6e3c9cb6c8a5c60c2d3c",
		ProxyRegistry:      "0xf57b2c51ded3a29e6891aba85459d600256cf317",
		TokenTransferProxy: "0x82d102457854c985221249f86659c9d6cf12aa72",
		FeeRecipient:       "0x5b3256965e7c3cf26e11fcaf296dfc8807c01073",
		WETH:               "0xc778417e063141139fce010982780140aa0cd5ab",
	},
}

// DefaultTransferFeeContracts lists token contracts whose issuer transfer fee is read live
var DefaultTransferFeeContracts = []string{
	"0xfaafdc07907ff5120a76b34b731b278c38d6043c", // Enjin
}

// Fee and timing constants of the orderbook
const (
	DefaultBuyerFeeBasisPoints     = 0
	DefaultSellerFeeBasisPoints    = 250
	OpenSeaSellerBountyBasisPoints = 100
	DefaultMaxBounty               = DefaultSellerFeeBasisPoints
	InverseBasisPoint              = 10000
	MinExpirationSeconds           = 10
	OrderMatchingLatencySeconds    = 60 * 60 * 24 * 7
	DefaultSecondsToBacktrack      = 30
	listingTimeBackdateSeconds     = 100
	EtherDecimals                  = 18
)

// Default endpoints
const (
	DefaultAPIBaseURL  = "https://api.opensea.io"
	RinkebyAPIBaseURL  = "https://rinkeby-api.opensea.io"
	DefaultStreamURL   = "wss://stream.openseabeta.com/socket/websocket"
	OrderbookPath      = "/wyvern/v1"
	APIPath            = "/api/v1"
	defaultHTTPTimeout = 30 * time.Second
)

// ClientConfig holds configuration for creating a Client
type ClientConfig struct {
	Network              Network               `yaml:"network" toml:"network"`
	ChainID              ChainID               `yaml:"chain_id" toml:"chain_id"`
	ProtocolVersion      chain.ProtocolVersion `yaml:"protocol_version" toml:"protocol_version"`
	APIBaseURL           string                `yaml:"api_base_url" toml:"api_base_url"`
	APIKey               string                `yaml:"api_key" toml:"api_key"`
	StreamURL            string                `yaml:"stream_url" toml:"stream_url"`
	RPCURL               string                `yaml:"rpc_url" toml:"rpc_url"`
	PrivateKey           string                `yaml:"private_key" toml:"private_key"`
	ExchangeAddr         string                `yaml:"exchange_address" toml:"exchange_address"`
	AtomicizerAddr       string                `yaml:"atomicizer_address" toml:"atomicizer_address"`
	FeeRecipientAddr     string                `yaml:"fee_recipient_address" toml:"fee_recipient_address"`
	TokenTransferProxy   string                `yaml:"token_transfer_proxy" toml:"token_transfer_proxy"`
	WETHAddr             string                `yaml:"weth_address" toml:"weth_address"`
	TransferFeeContracts []string              `yaml:"transfer_fee_contracts" toml:"transfer_fee_contracts"`
	PaymentTokenCacheTTL time.Duration         `yaml:"payment_token_cache_ttl" toml:"payment_token_cache_ttl"`
	HTTPTimeout          time.Duration         `yaml:"http_timeout" toml:"http_timeout"`
	HTTPRetryCount       int                   `yaml:"http_retry_count" toml:"http_retry_count"`
	TxTimeout            time.Duration         `yaml:"tx_timeout" toml:"tx_timeout"`
	Log                  LogConfig             `yaml:"log" toml:"log"`
}

// ApplyDefaults fills unset fields from the network tables
func (c *ClientConfig) ApplyDefaults() error {
	if c.Network == "" && c.ChainID == 0 {
		c.Network = NetworkMainnet
	}
	if c.ChainID == 0 {
		id, ok := NetworkChainIDs[c.Network]
		if !ok {
			return &InvalidParamError{Message: fmt.Sprintf("unknown network %q", c.Network)}
		}
		c.ChainID = id
	}
	if !isSupportedChain(c.ChainID) {
		return &InvalidParamError{Message: fmt.Sprintf("chain_id must be one of %v", SupportedChainIDs)}
	}
	if c.Network == "" {
		c.Network = networkFor(c.ChainID)
	}
	if id, ok := NetworkChainIDs[c.Network]; !ok || id != c.ChainID {
		return &InvalidParamError{Message: fmt.Sprintf("network %q does not match chain_id %d", c.Network, c.ChainID)}
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = chain.ProtocolVersion23
	}
	if c.ProtocolVersion != chain.ProtocolVersion22 && c.ProtocolVersion != chain.ProtocolVersion23 {
		return &InvalidParamError{Message: fmt.Sprintf("unsupported protocol version %q", c.ProtocolVersion)}
	}

	contracts := DefaultContractAddresses[c.ChainID]
	setDefault(&c.ExchangeAddr, contracts.Exchange(c.ProtocolVersion))
	setDefault(&c.AtomicizerAddr, contracts.Atomicizer)
	setDefault(&c.FeeRecipientAddr, contracts.FeeRecipient)
	setDefault(&c.TokenTransferProxy, contracts.TokenTransferProxy)
	setDefault(&c.WETHAddr, contracts.WETH)

	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
		if c.ChainID == ChainIDRinkeby {
			c.APIBaseURL = RinkebyAPIBaseURL
		}
	}
	setDefault(&c.StreamURL, DefaultStreamURL)

	if c.TransferFeeContracts == nil {
		c.TransferFeeContracts = append([]string(nil), DefaultTransferFeeContracts...)
	}
	if c.PaymentTokenCacheTTL == 0 {
		c.PaymentTokenCacheTTL = 1 * time.Hour
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.TxTimeout == 0 {
		c.TxTimeout = 2 * time.Minute
	}
	return nil
}

func isSupportedChain(id ChainID) bool {
	for _, supportedID := range SupportedChainIDs {
		if id == supportedID {
			return true
		}
	}
	return false
}

func networkFor(id ChainID) Network {
	for network, networkID := range NetworkChainIDs {
		if networkID == id {
			return network
		}
	}
	return ""
}

func setDefault(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// LoadConfig reads a YAML or TOML file (chosen by extension), loads a .env
// file if present, applies WYVERN_* environment overrides and fills defaults.
// An empty path skips the file and uses the environment alone.
func LoadConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig

	if path != "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse yaml config: %w", err)
			}
		case ".toml":
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("parse toml config: %w", err)
			}
		default:
			return nil, &InvalidParamError{Message: fmt.Sprintf("unsupported config format %q", filepath.Ext(path))}
		}
	}

	// Load .env file if present (silently ignore if missing)
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers WYVERN_* variables over the file. Network and
// chain ID describe the same thing, so overriding one alone drops the file's
// value of the other and lets ApplyDefaults derive it.
func applyEnvOverrides(cfg *ClientConfig) {
	network, chainID := os.Getenv("WYVERN_NETWORK"), os.Getenv("WYVERN_CHAIN_ID")
	if network != "" {
		cfg.Network = Network(network)
		if chainID == "" {
			cfg.ChainID = 0
		}
	}
	if chainID != "" {
		if n, err := strconv.Atoi(chainID); err == nil {
			cfg.ChainID = ChainID(n)
			if network == "" {
				cfg.Network = ""
			}
		}
	}
	if v := os.Getenv("WYVERN_PROTOCOL_VERSION"); v != "" {
		cfg.ProtocolVersion = chain.ProtocolVersion(v)
	}
	setStr(&cfg.APIBaseURL, "WYVERN_API_BASE_URL")
	setStr(&cfg.APIKey, "WYVERN_API_KEY")
	setStr(&cfg.StreamURL, "WYVERN_STREAM_URL")
	setStr(&cfg.RPCURL, "WYVERN_RPC_URL")
	setStr(&cfg.PrivateKey, "WYVERN_PRIVATE_KEY")
	setStr(&cfg.ExchangeAddr, "WYVERN_EXCHANGE_ADDRESS")
	setStr(&cfg.AtomicizerAddr, "WYVERN_ATOMICIZER_ADDRESS")
	setStr(&cfg.FeeRecipientAddr, "WYVERN_FEE_RECIPIENT_ADDRESS")
	setStr(&cfg.TokenTransferProxy, "WYVERN_TOKEN_TRANSFER_PROXY_ADDRESS")
	setStr(&cfg.WETHAddr, "WYVERN_WETH_ADDRESS")
	setInt(&cfg.HTTPRetryCount, "WYVERN_HTTP_RETRY_COUNT")
	setDuration(&cfg.HTTPTimeout, "WYVERN_HTTP_TIMEOUT")
	setDuration(&cfg.TxTimeout, "WYVERN_TX_TIMEOUT")
	setDuration(&cfg.PaymentTokenCacheTTL, "WYVERN_PAYMENT_TOKEN_CACHE_TTL")
	setStr(&cfg.Log.Level, "WYVERN_LOG_LEVEL")
	setStr(&cfg.Log.OutputFile, "WYVERN_LOG_FILE")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
