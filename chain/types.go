package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Side represents the side of an order
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// SaleKind represents the pricing schedule of an order
type SaleKind uint8

const (
	SaleKindFixedPrice SaleKind = iota
	SaleKindDutchAuction
)

// FeeMethod represents how the exchange charges fees for an order
type FeeMethod uint8

const (
	FeeMethodProtocolFee FeeMethod = iota
	FeeMethodSplitFee
)

// HowToCall represents the proxy call convention used on settlement
type HowToCall uint8

const (
	HowToCallCall HowToCall = iota
	HowToCallDelegateCall
)

// ProtocolVersion selects the exchange contract generation an order targets
type ProtocolVersion string

const (
	ProtocolVersion22 ProtocolVersion = "2.2"
	ProtocolVersion23 ProtocolVersion = "2.3"
)

// Order is the canonical, strongly typed order tuple the exchange contract hashes
type Order struct {
	Exchange           common.Address
	Maker              common.Address
	Taker              common.Address
	MakerRelayerFee    *big.Int
	TakerRelayerFee    *big.Int
	MakerProtocolFee   *big.Int
	TakerProtocolFee   *big.Int
	FeeRecipient       common.Address
	FeeMethod          FeeMethod
	Side               Side
	SaleKind           SaleKind
	Target             common.Address
	HowToCall          HowToCall
	Calldata           []byte
	ReplacementPattern []byte
	StaticTarget       common.Address
	StaticExtradata    []byte
	PaymentToken       common.Address
	BasePrice          *big.Int
	Extra              *big.Int
	ListingTime        *big.Int
	ExpirationTime     *big.Int
	Salt               *big.Int
	Nonce              *big.Int
}

// addrs returns the seven address parameters in exchange argument order
func (o *Order) addrs() [7]common.Address {
	return [7]common.Address{o.Exchange, o.Maker, o.Taker, o.FeeRecipient, o.Target, o.StaticTarget, o.PaymentToken}
}

// uints returns the nine uint parameters in exchange argument order
func (o *Order) uints() [9]*big.Int {
	return [9]*big.Int{
		orZero(o.MakerRelayerFee), orZero(o.TakerRelayerFee), orZero(o.MakerProtocolFee), orZero(o.TakerProtocolFee),
		orZero(o.BasePrice), orZero(o.Extra), orZero(o.ListingTime), orZero(o.ExpirationTime), orZero(o.Salt),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// ECSignature holds the components of a recoverable secp256k1 signature
type ECSignature struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// Bytes returns the signature in r||s||v order
func (sig *ECSignature) Bytes() []byte {
	out := make([]byte, 0, 65)
	out = append(out, sig.R.Bytes()...)
	out = append(out, sig.S.Bytes()...)
	return append(out, sig.V)
}

// TransferFeeSettings is the issuer-defined per-transfer fee of an ERC-1155 token
type TransferFeeSettings struct {
	Fee          *big.Int
	FeeTokenAddr *common.Address
}

// Exchange ABI JSON for the read-only helpers mirrored by the client
const exchangeABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "addrs", "type": "address[14]"},
			{"name": "uints", "type": "uint256[18]"},
			{"name": "feeMethodsSidesKindsHowToCalls", "type": "uint8[8]"},
			{"name": "calldataBuy", "type": "bytes"},
			{"name": "calldataSell", "type": "bytes"},
			{"name": "replacementPatternBuy", "type": "bytes"},
			{"name": "replacementPatternSell", "type": "bytes"},
			{"name": "staticExtradataBuy", "type": "bytes"},
			{"name": "staticExtradataSell", "type": "bytes"}
		],
		"name": "ordersCanMatch_",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "addrs", "type": "address[7]"},
			{"name": "uints", "type": "uint256[9]"},
			{"name": "feeMethod", "type": "uint8"},
			{"name": "side", "type": "uint8"},
			{"name": "saleKind", "type": "uint8"},
			{"name": "howToCall", "type": "uint8"},
			{"name": "calldata", "type": "bytes"},
			{"name": "replacementPattern", "type": "bytes"},
			{"name": "staticExtradata", "type": "bytes"}
		],
		"name": "validateOrderParameters_",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "addrs", "type": "address[7]"},
			{"name": "uints", "type": "uint256[9]"},
			{"name": "feeMethod", "type": "uint8"},
			{"name": "side", "type": "uint8"},
			{"name": "saleKind", "type": "uint8"},
			{"name": "howToCall", "type": "uint8"},
			{"name": "calldata", "type": "bytes"},
			{"name": "replacementPattern", "type": "bytes"},
			{"name": "staticExtradata", "type": "bytes"}
		],
		"name": "calculateCurrentPrice_",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "addrs", "type": "address[7]"},
			{"name": "uints", "type": "uint256[9]"},
			{"name": "feeMethod", "type": "uint8"},
			{"name": "side", "type": "uint8"},
			{"name": "saleKind", "type": "uint8"},
			{"name": "howToCall", "type": "uint8"},
			{"name": "calldata", "type": "bytes"},
			{"name": "replacementPattern", "type": "bytes"},
			{"name": "staticExtradata", "type": "bytes"}
		],
		"name": "hashOrder_",
		"outputs": [{"name": "", "type": "bytes32"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "", "type": "address"}],
		"name": "nonces",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	}
]`

// ERC20 ABI JSON for balances, allowances and decimals
const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_from", "type": "address"},
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// ERC721 ABI JSON for ownership and transfers
const erc721ABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "_tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_from", "type": "address"},
			{"name": "_to", "type": "address"},
			{"name": "_tokenId", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [],
		"type": "function"
	}
]`

// ERC1155 ABI JSON, including the issuer transfer-fee settings read
const erc1155ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "_owner", "type": "address"},
			{"name": "_id", "type": "uint256"}
		],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_from", "type": "address"},
			{"name": "_to", "type": "address"},
			{"name": "_id", "type": "uint256"},
			{"name": "_value", "type": "uint256"},
			{"name": "_data", "type": "bytes"}
		],
		"name": "safeTransferFrom",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "_id", "type": "uint256"}],
		"name": "transferSettings",
		"outputs": [
			{"name": "transferable", "type": "uint8"},
			{"name": "transferFeeType", "type": "uint8"},
			{"name": "transferFeeCurrency", "type": "uint256"},
			{"name": "transferFeeValue", "type": "uint256"}
		],
		"type": "function"
	}
]`

// Atomicizer ABI JSON used for bundle settlement
const atomicizerABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{"name": "addrs", "type": "address[]"},
			{"name": "values", "type": "uint256[]"},
			{"name": "calldataLengths", "type": "uint256[]"},
			{"name": "calldatas", "type": "bytes"}
		],
		"name": "atomicize",
		"outputs": [],
		"type": "function"
	}
]`

// WETH ABI JSON for wrapping and unwrapping ether
const wethABIJSON = `[
	{
		"constant": false,
		"inputs": [],
		"name": "deposit",
		"outputs": [],
		"payable": true,
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [{"name": "wad", "type": "uint256"}],
		"name": "withdraw",
		"outputs": [],
		"type": "function"
	}
]`

var (
	exchangeABI   = mustParseABI("Exchange", exchangeABIJSON)
	erc20ABI      = mustParseABI("ERC20", erc20ABIJSON)
	erc721ABI     = mustParseABI("ERC721", erc721ABIJSON)
	erc1155ABI    = mustParseABI("ERC1155", erc1155ABIJSON)
	atomicizerABI = mustParseABI("Atomicizer", atomicizerABIJSON)
	wethABI       = mustParseABI("WETH", wethABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}

// GetExchangeABI returns the parsed exchange ABI
func GetExchangeABI() abi.ABI {
	return exchangeABI
}

// GetERC20ABI returns the parsed ERC20 ABI
func GetERC20ABI() abi.ABI {
	return erc20ABI
}

// GetERC721ABI returns the parsed ERC721 ABI
func GetERC721ABI() abi.ABI {
	return erc721ABI
}

// GetERC1155ABI returns the parsed ERC1155 ABI
func GetERC1155ABI() abi.ABI {
	return erc1155ABI
}

// GetAtomicizerABI returns the parsed atomicizer ABI
func GetAtomicizerABI() abi.ABI {
	return atomicizerABI
}
