package wyvernsdk

import (
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
)

// OrderSide represents the side of an order
type OrderSide = chain.Side

const (
	OrderSideBuy  = chain.SideBuy
	OrderSideSell = chain.SideSell
)

// SaleKind represents the pricing schedule of an order
type SaleKind = chain.SaleKind

const (
	SaleKindFixedPrice   = chain.SaleKindFixedPrice
	SaleKindDutchAuction = chain.SaleKindDutchAuction
)

// FeeMethod represents how the exchange charges fees
type FeeMethod = chain.FeeMethod

const (
	FeeMethodProtocolFee = chain.FeeMethodProtocolFee
	FeeMethodSplitFee    = chain.FeeMethodSplitFee
)

// HowToCall represents the proxy call convention used on settlement
type HowToCall = chain.HowToCall

const (
	HowToCallCall         = chain.HowToCallCall
	HowToCallDelegateCall = chain.HowToCallDelegateCall
)

// WyvernSchemaName names a supported token standard
type WyvernSchemaName = chain.SchemaName

const (
	WyvernSchemaERC20    = chain.SchemaERC20
	WyvernSchemaERC721   = chain.SchemaERC721
	WyvernSchemaERC721v3 = chain.SchemaERC721v3
	WyvernSchemaERC1155  = chain.SchemaERC1155
)

// Asset identifies a tradeable asset. TokenID is nil for fungible ERC20 assets.
type Asset struct {
	TokenID      *string          `json:"tokenId"`
	TokenAddress string           `json:"tokenAddress"`
	SchemaName   WyvernSchemaName `json:"schemaName,omitempty"`
	Decimals     int              `json:"decimals,omitempty"`
}

// WyvernAsset is the schema-specific identity of an asset inside order metadata.
// ERC20 carries address and quantity, ERC721 carries id and address, and
// ERC1155 carries all three.
type WyvernAsset struct {
	ID       string `json:"id,omitempty"`
	Address  string `json:"address"`
	Quantity string `json:"quantity,omitempty"`
}

// WyvernBundle is an ordered set of assets traded atomically
type WyvernBundle struct {
	Assets       []WyvernAsset      `json:"assets"`
	Schemas      []WyvernSchemaName `json:"schemas"`
	Name         string             `json:"name,omitempty"`
	Description  string             `json:"description,omitempty"`
	ExternalLink string             `json:"external_link,omitempty"`
}

// OrderMetadata describes what an order trades. Exactly one of Asset or
// Bundle is set; Schema accompanies Asset.
type OrderMetadata struct {
	Asset           *WyvernAsset     `json:"asset,omitempty"`
	Schema          WyvernSchemaName `json:"schema,omitempty"`
	Bundle          *WyvernBundle    `json:"bundle,omitempty"`
	ReferrerAddress string           `json:"referrerAddress,omitempty"`
}

// UnhashedOrder is an order before it has been hashed and signed. Addresses
// are lower-case hex and byte fields are 0x-prefixed hex strings.
type UnhashedOrder struct {
	Exchange         string
	Maker            string
	Taker            string
	MakerRelayerFee  decimal.Decimal
	TakerRelayerFee  decimal.Decimal
	MakerProtocolFee decimal.Decimal
	TakerProtocolFee decimal.Decimal
	MakerReferrerFee decimal.Decimal
	FeeRecipient     string
	FeeMethod        FeeMethod
	Side             OrderSide
	SaleKind         SaleKind

	Target             string
	HowToCall          HowToCall
	Calldata           string
	ReplacementPattern string
	StaticTarget       string
	StaticExtradata    string

	PaymentToken   string
	BasePrice      decimal.Decimal
	Extra          decimal.Decimal
	ListingTime    decimal.Decimal
	ExpirationTime decimal.Decimal
	Salt           decimal.Decimal
	Nonce          decimal.Decimal

	Quantity                   decimal.Decimal
	WaitingForBestCounterOrder bool
	EnglishAuctionReservePrice *decimal.Decimal
	Metadata                   OrderMetadata
}

// Order is a hashed and, once signed, submittable order
type Order struct {
	UnhashedOrder
	Hash         string
	ECSignature  *chain.ECSignature
	CreatedTime  *decimal.Decimal
	CurrentPrice *decimal.Decimal

	Cancelled     bool
	Finalized     bool
	MarkedInvalid bool
}

// ComputedFees is the fee breakdown for one side of an order
type ComputedFees struct {
	TotalBuyerFeeBasisPoints    int
	TotalSellerFeeBasisPoints   int
	OpenSeaBuyerFeeBasisPoints  int
	OpenSeaSellerFeeBasisPoints int
	DevBuyerFeeBasisPoints      int
	DevSellerFeeBasisPoints     int
	SellerBountyBasisPoints     int
	TransferFee                 decimal.Decimal
	TransferFeeTokenAddress     *string
}

// CollectionFees are the fee schedules a collection charges
type CollectionFees struct {
	OpenSeaBuyerFeeBasisPoints  int
	OpenSeaSellerFeeBasisPoints int
	DevBuyerFeeBasisPoints      int
	DevSellerFeeBasisPoints     int
}

// AssetWithFees is an asset together with its collection fee schedule and
// any transfer fee the orderbook knows about
type AssetWithFees struct {
	Asset
	Collection              CollectionFees
	TransferFee             *decimal.Decimal
	TransferFeeTokenAddress *string
}

// PaymentToken is an ERC20 token the orderbook accepts as payment
type PaymentToken struct {
	Name     string          `json:"name"`
	Symbol   string          `json:"symbol"`
	Address  string          `json:"address"`
	Decimals int             `json:"decimals"`
	ImageURL string          `json:"image_url,omitempty"`
	EthPrice decimal.Decimal `json:"eth_price"`
	UsdPrice decimal.Decimal `json:"usd_price"`
}

// OrderQuery filters an orderbook order listing
type OrderQuery struct {
	Maker         string
	Owner         string
	AssetContract string
	TokenID       string
	TokenIDs      []string
	PaymentToken  string
	Side          *OrderSide
	SaleKind      *SaleKind
	IsEnglish     *bool
	Bundled       *bool
	Limit         int
	Offset        int
}

// OrderPage is one page of an order listing. Next is the query for the
// following page, nil once the listing is exhausted.
type OrderPage struct {
	Orders []*Order
	Count  int
	Next   *OrderQuery
}

// TransactionResult represents the result of a blockchain transaction
type TransactionResult struct {
	TxHash string
	Status uint64
}
