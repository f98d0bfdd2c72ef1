package wyvernsdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
)

// OrderJSON is the camelCase wire form posted to the orderbook. Amounts are
// decimal strings and addresses are lower-case.
type OrderJSON struct {
	Exchange                   string           `json:"exchange"`
	Maker                      string           `json:"maker"`
	Taker                      string           `json:"taker"`
	MakerRelayerFee            decimal.Decimal  `json:"makerRelayerFee"`
	TakerRelayerFee            decimal.Decimal  `json:"takerRelayerFee"`
	MakerProtocolFee           decimal.Decimal  `json:"makerProtocolFee"`
	TakerProtocolFee           decimal.Decimal  `json:"takerProtocolFee"`
	MakerReferrerFee           decimal.Decimal  `json:"makerReferrerFee"`
	FeeMethod                  int              `json:"feeMethod"`
	FeeRecipient               string           `json:"feeRecipient"`
	Side                       int              `json:"side"`
	SaleKind                   int              `json:"saleKind"`
	Target                     string           `json:"target"`
	HowToCall                  int              `json:"howToCall"`
	Calldata                   string           `json:"calldata"`
	ReplacementPattern         string           `json:"replacementPattern"`
	StaticTarget               string           `json:"staticTarget"`
	StaticExtradata            string           `json:"staticExtradata"`
	PaymentToken               string           `json:"paymentToken"`
	Quantity                   decimal.Decimal  `json:"quantity"`
	BasePrice                  decimal.Decimal  `json:"basePrice"`
	EnglishAuctionReservePrice *decimal.Decimal `json:"englishAuctionReservePrice,omitempty"`
	WaitingForBestCounterOrder *bool            `json:"waitingForBestCounterOrder,omitempty"`
	Extra                      decimal.Decimal  `json:"extra"`
	CreatedTime                *decimal.Decimal `json:"createdTime,omitempty"`
	ListingTime                decimal.Decimal  `json:"listingTime"`
	ExpirationTime             decimal.Decimal  `json:"expirationTime"`
	Salt                       decimal.Decimal  `json:"salt"`
	Nonce                      *decimal.Decimal `json:"nonce,omitempty"`
	Metadata                   OrderMetadata    `json:"metadata"`

	Hash string `json:"hash,omitempty"`
	V    *uint8 `json:"v,omitempty"`
	R    string `json:"r,omitempty"`
	S    string `json:"s,omitempty"`
}

// OrderToJSON converts an order to its wire form. Hash and signature are
// only emitted once present.
func OrderToJSON(order *Order) *OrderJSON {
	waiting := order.WaitingForBestCounterOrder
	j := &OrderJSON{
		Exchange:                   strings.ToLower(order.Exchange),
		Maker:                      strings.ToLower(order.Maker),
		Taker:                      strings.ToLower(normalizeOrNull(order.Taker)),
		MakerRelayerFee:            order.MakerRelayerFee,
		TakerRelayerFee:            order.TakerRelayerFee,
		MakerProtocolFee:           order.MakerProtocolFee,
		TakerProtocolFee:           order.TakerProtocolFee,
		MakerReferrerFee:           order.MakerReferrerFee,
		FeeMethod:                  int(order.FeeMethod),
		FeeRecipient:               strings.ToLower(normalizeOrNull(order.FeeRecipient)),
		Side:                       int(order.Side),
		SaleKind:                   int(order.SaleKind),
		Target:                     strings.ToLower(order.Target),
		HowToCall:                  int(order.HowToCall),
		Calldata:                   order.Calldata,
		ReplacementPattern:         order.ReplacementPattern,
		StaticTarget:               strings.ToLower(normalizeOrNull(order.StaticTarget)),
		StaticExtradata:            orEmptyBytes(order.StaticExtradata),
		PaymentToken:               strings.ToLower(normalizeOrNull(order.PaymentToken)),
		Quantity:                   order.Quantity,
		BasePrice:                  order.BasePrice,
		EnglishAuctionReservePrice: order.EnglishAuctionReservePrice,
		WaitingForBestCounterOrder: &waiting,
		Extra:                      order.Extra,
		CreatedTime:                order.CreatedTime,
		ListingTime:                order.ListingTime,
		ExpirationTime:             order.ExpirationTime,
		Salt:                       order.Salt,
		Metadata:                   order.Metadata,
		Hash:                       order.Hash,
	}
	if !order.Nonce.IsZero() {
		nonce := order.Nonce
		j.Nonce = &nonce
	}
	if sig := order.ECSignature; sig != nil {
		v := sig.V
		j.V = &v
		j.R = sig.R.Hex()
		j.S = sig.S.Hex()
	}
	return j
}

// OrderFromJSON validates a wire order and converts it back
func OrderFromJSON(j *OrderJSON) (*Order, error) {
	order := &Order{
		UnhashedOrder: UnhashedOrder{
			Exchange:                   j.Exchange,
			Maker:                      j.Maker,
			Taker:                      j.Taker,
			MakerRelayerFee:            j.MakerRelayerFee,
			TakerRelayerFee:            j.TakerRelayerFee,
			MakerProtocolFee:           j.MakerProtocolFee,
			TakerProtocolFee:           j.TakerProtocolFee,
			MakerReferrerFee:           j.MakerReferrerFee,
			FeeRecipient:               j.FeeRecipient,
			Target:                     j.Target,
			Calldata:                   j.Calldata,
			ReplacementPattern:         j.ReplacementPattern,
			StaticTarget:               j.StaticTarget,
			StaticExtradata:            j.StaticExtradata,
			PaymentToken:               j.PaymentToken,
			Quantity:                   j.Quantity,
			BasePrice:                  j.BasePrice,
			EnglishAuctionReservePrice: j.EnglishAuctionReservePrice,
			Extra:                      j.Extra,
			ListingTime:                j.ListingTime,
			ExpirationTime:             j.ExpirationTime,
			Salt:                       j.Salt,
			Metadata:                   j.Metadata,
		},
		Hash:        j.Hash,
		CreatedTime: j.CreatedTime,
	}
	if j.Nonce != nil {
		order.Nonce = *j.Nonce
	}
	if err := order.setEnums(j.FeeMethod, j.Side, j.SaleKind, j.HowToCall); err != nil {
		return nil, err
	}
	if j.V != nil {
		order.ECSignature = &chain.ECSignature{
			V: *j.V,
			R: common.HexToHash(j.R),
			S: common.HexToHash(j.S),
		}
	}
	if err := order.normalize(); err != nil {
		return nil, err
	}
	if j.WaitingForBestCounterOrder != nil {
		order.WaitingForBestCounterOrder = *j.WaitingForBestCounterOrder
	} else {
		order.inferEnglishAuction()
	}
	return order, nil
}

// setEnums range-checks the numeric enum codes
func (o *Order) setEnums(feeMethod, side, saleKind, howToCall int) error {
	if feeMethod < 0 || feeMethod > int(FeeMethodSplitFee) {
		return &InvalidParamError{Message: fmt.Sprintf("invalid feeMethod %d", feeMethod)}
	}
	if side < 0 || side > int(OrderSideSell) {
		return &InvalidParamError{Message: fmt.Sprintf("invalid side %d", side)}
	}
	if saleKind < 0 || saleKind > int(SaleKindDutchAuction) {
		return &InvalidParamError{Message: fmt.Sprintf("invalid saleKind %d", saleKind)}
	}
	if howToCall < 0 || howToCall > int(HowToCallDelegateCall) {
		return &InvalidParamError{Message: fmt.Sprintf("invalid howToCall %d", howToCall)}
	}
	o.FeeMethod = FeeMethod(feeMethod)
	o.Side = OrderSide(side)
	o.SaleKind = SaleKind(saleKind)
	o.HowToCall = HowToCall(howToCall)
	return nil
}

// normalize lower-cases addresses, checks every field converts to the
// exchange tuple and validates the metadata shape
func (o *Order) normalize() error {
	for _, addr := range []*string{&o.Exchange, &o.Maker, &o.Taker, &o.FeeRecipient, &o.Target, &o.StaticTarget, &o.PaymentToken} {
		*addr = strings.ToLower(normalizeOrNull(*addr))
	}
	o.StaticExtradata = orEmptyBytes(o.StaticExtradata)
	if _, err := toChainOrder(&o.UnhashedOrder); err != nil {
		return err
	}
	if o.Quantity.IsZero() {
		o.Quantity = decimal.NewFromInt(1)
	}
	return ValidateMetadata(o.Metadata)
}

// inferEnglishAuction derives WaitingForBestCounterOrder for orders that do
// not carry it. The orderbook marks English auction sells by leaving the fee
// recipient empty.
func (o *Order) inferEnglishAuction() {
	o.WaitingForBestCounterOrder = o.Side == OrderSideSell && isNullAddress(o.FeeRecipient)
}

// ValidateMetadata checks that exactly one of asset or bundle is present and
// that every asset has the fields its schema requires
func ValidateMetadata(meta OrderMetadata) error {
	switch {
	case meta.Asset != nil && meta.Bundle != nil:
		return &InvalidParamError{Message: "order metadata must describe an asset or a bundle, not both"}
	case meta.Asset != nil:
		return validateWyvernAsset(meta.Schema, meta.Asset)
	case meta.Bundle != nil:
		if len(meta.Bundle.Schemas) == 0 {
			for i := range meta.Bundle.Assets {
				if err := validateWyvernAsset(meta.Schema, &meta.Bundle.Assets[i]); err != nil {
					return err
				}
			}
			return nil
		}
		if len(meta.Bundle.Schemas) != len(meta.Bundle.Assets) {
			return &InvalidParamError{Message: "Bundle must have a schema for every asset"}
		}
		for i := range meta.Bundle.Assets {
			if err := validateWyvernAsset(meta.Bundle.Schemas[i], &meta.Bundle.Assets[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return &InvalidParamError{Message: "Invalid order metadata"}
}

func validateWyvernAsset(schema WyvernSchemaName, asset *WyvernAsset) error {
	if !schema.Valid() {
		return &InvalidParamError{Message: fmt.Sprintf("Unsupported schema %q", schema)}
	}
	if !common.IsHexAddress(asset.Address) {
		return &InvalidParamError{Message: fmt.Sprintf("invalid asset address %q", asset.Address)}
	}
	switch schema {
	case WyvernSchemaERC20:
		if asset.ID != "" || asset.Quantity == "" {
			return &InvalidParamError{Message: "ERC20 assets need a quantity and no token ID"}
		}
	case WyvernSchemaERC721, WyvernSchemaERC721v3:
		if asset.ID == "" || (asset.Quantity != "" && asset.Quantity != "1") {
			return &InvalidParamError{Message: fmt.Sprintf("%s assets need a token ID and no quantity", schema)}
		}
	case WyvernSchemaERC1155:
		if asset.ID == "" || asset.Quantity == "" {
			return &InvalidParamError{Message: "ERC1155 assets need a token ID and a quantity"}
		}
	}
	_, err := toAssetRef(schema, *asset)
	return err
}

func orEmptyBytes(s string) string {
	if s == "" {
		return "0x"
	}
	return s
}

// APIAccount is an account reference in orderbook responses
type APIAccount struct {
	Address string `json:"address"`
}

// APIOrder is an order as the orderbook returns it
type APIOrder struct {
	ID                 int64            `json:"id,omitempty"`
	OrderHash          string           `json:"order_hash,omitempty"`
	Hash               string           `json:"hash,omitempty"`
	Metadata           OrderMetadata    `json:"metadata"`
	Exchange           string           `json:"exchange"`
	Maker              APIAccount       `json:"maker"`
	Taker              APIAccount       `json:"taker"`
	FeeRecipient       APIAccount       `json:"fee_recipient"`
	CurrentPrice       *decimal.Decimal `json:"current_price,omitempty"`
	Quantity           decimal.Decimal  `json:"quantity"`
	CreatedDate        string           `json:"created_date"`
	ListingTime        decimal.Decimal  `json:"listing_time"`
	ExpirationTime     decimal.Decimal  `json:"expiration_time"`
	Salt               decimal.Decimal  `json:"salt"`
	Nonce              *decimal.Decimal `json:"nonce,omitempty"`
	MakerRelayerFee    decimal.Decimal  `json:"maker_relayer_fee"`
	TakerRelayerFee    decimal.Decimal  `json:"taker_relayer_fee"`
	MakerProtocolFee   decimal.Decimal  `json:"maker_protocol_fee"`
	TakerProtocolFee   decimal.Decimal  `json:"taker_protocol_fee"`
	MakerReferrerFee   decimal.Decimal  `json:"maker_referrer_fee"`
	FeeMethod          int              `json:"fee_method"`
	Side               int              `json:"side"`
	SaleKind           int              `json:"sale_kind"`
	Target             string           `json:"target"`
	HowToCall          int              `json:"how_to_call"`
	Calldata           string           `json:"calldata"`
	ReplacementPattern string           `json:"replacement_pattern"`
	StaticTarget       string           `json:"static_target"`
	StaticExtradata    string           `json:"static_extradata"`
	PaymentToken       string           `json:"payment_token"`
	BasePrice          decimal.Decimal  `json:"base_price"`
	Extra              decimal.Decimal  `json:"extra"`
	V                  *uint8           `json:"v,omitempty"`
	R                  string           `json:"r,omitempty"`
	S                  string           `json:"s,omitempty"`
	Cancelled          bool             `json:"cancelled"`
	Finalized          bool             `json:"finalized"`
	MarkedInvalid      bool             `json:"marked_invalid"`
}

var createdDateLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05.999999Z07:00",
	time.RFC3339Nano,
}

// ToOrder validates an orderbook record and converts it to an Order
func (a *APIOrder) ToOrder() (*Order, error) {
	hash := a.OrderHash
	if hash == "" {
		hash = a.Hash
	}
	order := &Order{
		UnhashedOrder: UnhashedOrder{
			Exchange:           a.Exchange,
			Maker:              a.Maker.Address,
			Taker:              a.Taker.Address,
			MakerRelayerFee:    a.MakerRelayerFee,
			TakerRelayerFee:    a.TakerRelayerFee,
			MakerProtocolFee:   a.MakerProtocolFee,
			TakerProtocolFee:   a.TakerProtocolFee,
			MakerReferrerFee:   a.MakerReferrerFee,
			FeeRecipient:       a.FeeRecipient.Address,
			Target:             a.Target,
			Calldata:           a.Calldata,
			ReplacementPattern: a.ReplacementPattern,
			StaticTarget:       a.StaticTarget,
			StaticExtradata:    a.StaticExtradata,
			PaymentToken:       a.PaymentToken,
			Quantity:           a.Quantity,
			BasePrice:          a.BasePrice,
			Extra:              a.Extra,
			ListingTime:        a.ListingTime,
			ExpirationTime:     a.ExpirationTime,
			Salt:               a.Salt,
			Metadata:           a.Metadata,
		},
		Hash:          hash,
		CurrentPrice:  a.CurrentPrice,
		Cancelled:     a.Cancelled,
		Finalized:     a.Finalized,
		MarkedInvalid: a.MarkedInvalid,
	}
	if a.Nonce != nil {
		order.Nonce = *a.Nonce
	}
	if err := order.setEnums(a.FeeMethod, a.Side, a.SaleKind, a.HowToCall); err != nil {
		return nil, err
	}
	if a.V != nil {
		order.ECSignature = &chain.ECSignature{V: *a.V, R: common.HexToHash(a.R), S: common.HexToHash(a.S)}
	}
	for _, layout := range createdDateLayouts {
		if t, err := time.Parse(layout, a.CreatedDate); err == nil {
			created := decimal.NewFromInt(t.Unix())
			order.CreatedTime = &created
			break
		}
	}
	if err := order.normalize(); err != nil {
		return nil, err
	}
	order.inferEnglishAuction()
	return order, nil
}

// SignatureHex returns the order signature as a 0x-prefixed r||s||v string
func (o *Order) SignatureHex() string {
	if o.ECSignature == nil {
		return ""
	}
	return hexutil.Encode(o.ECSignature.Bytes())
}
