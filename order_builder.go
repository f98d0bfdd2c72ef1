package wyvernsdk

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
)

// PaymentTokenLookup resolves an ERC20 payment token by address. A nil token
// with a nil error means the orderbook does not accept it.
type PaymentTokenLookup interface {
	GetPaymentToken(ctx context.Context, address string) (*PaymentToken, error)
}

// OrderBuilderConfig holds the deployment addresses orders are built against
type OrderBuilderConfig struct {
	Exchange     string
	Atomicizer   string
	FeeRecipient string
}

// OrderBuilder builds unsigned orders
type OrderBuilder struct {
	exchange     string
	atomicizer   string
	feeRecipient string
	fees         *FeeCalculator
	tokens       PaymentTokenLookup
	now          func() time.Time
	salt         func() (*big.Int, error)
}

// NewOrderBuilder creates a new OrderBuilder
func NewOrderBuilder(config OrderBuilderConfig, fees *FeeCalculator, tokens PaymentTokenLookup) *OrderBuilder {
	return &OrderBuilder{
		exchange:     strings.ToLower(config.Exchange),
		atomicizer:   strings.ToLower(config.Atomicizer),
		feeRecipient: strings.ToLower(config.FeeRecipient),
		fees:         fees,
		tokens:       tokens,
		now:          time.Now,
		salt:         chain.GenerateSalt,
	}
}

// WithClock replaces the builder's clock
func (b *OrderBuilder) WithClock(now func() time.Time) *OrderBuilder {
	b.now = now
	return b
}

// SellOrderParams describes a single-asset sell order
type SellOrderParams struct {
	Asset                      AssetWithFees
	AccountAddress             string
	StartAmount                decimal.Decimal
	EndAmount                  *decimal.Decimal
	Quantity                   decimal.Decimal
	ListingTime                int64
	ExpirationTime             int64
	WaitForHighestBid          bool
	EnglishAuctionReservePrice *decimal.Decimal
	PaymentTokenAddress        string
	ExtraBountyBasisPoints     int
	BuyerAddress               string
}

// BuyOrderParams describes a single-asset offer
type BuyOrderParams struct {
	Asset                  AssetWithFees
	AccountAddress         string
	StartAmount            decimal.Decimal
	Quantity               decimal.Decimal
	ExpirationTime         int64
	PaymentTokenAddress    string
	ExtraBountyBasisPoints int
	SellOrder              *UnhashedOrder
	ReferrerAddress        string
}

// BundleSellOrderParams describes a bundle sell order
type BundleSellOrderParams struct {
	BundleName                 string
	BundleDescription          string
	BundleExternalLink         string
	Assets                     []Asset
	Schemas                    []WyvernSchemaName
	Quantities                 []decimal.Decimal
	FeeAsset                   *AssetWithFees
	AccountAddress             string
	StartAmount                decimal.Decimal
	EndAmount                  *decimal.Decimal
	ListingTime                int64
	ExpirationTime             int64
	WaitForHighestBid          bool
	EnglishAuctionReservePrice *decimal.Decimal
	PaymentTokenAddress        string
	ExtraBountyBasisPoints     int
	BuyerAddress               string
}

// BundleBuyOrderParams describes an offer on a bundle
type BundleBuyOrderParams struct {
	Assets                 []Asset
	Schemas                []WyvernSchemaName
	Quantities             []decimal.Decimal
	FeeAsset               *AssetWithFees
	AccountAddress         string
	StartAmount            decimal.Decimal
	ExpirationTime         int64
	PaymentTokenAddress    string
	ExtraBountyBasisPoints int
	SellOrder              *UnhashedOrder
	ReferrerAddress        string
}

// MatchingOrderParams describes the counter-order to an existing order
type MatchingOrderParams struct {
	Order            *Order
	AccountAddress   string
	RecipientAddress string
}

// MakeSellOrder builds a sell order for one asset
func (b *OrderBuilder) MakeSellOrder(ctx context.Context, p SellOrderParams) (*UnhashedOrder, error) {
	if err := b.ValidateSellOrder(p); err != nil {
		return nil, err
	}
	account, err := validateAddress("account", p.AccountAddress)
	if err != nil {
		return nil, err
	}
	schema := schemaOf(p.Asset.Asset)
	quantity, err := ToBaseUnitAmount(defaultQuantity(p.Quantity), p.Asset.Decimals)
	if err != nil {
		return nil, err
	}
	wyAsset, err := GetWyvernAsset(schema, p.Asset.Asset, quantity)
	if err != nil {
		return nil, err
	}
	ref, err := toAssetRef(schema, *wyAsset)
	if err != nil {
		return nil, err
	}

	fees, err := b.fees.ComputeFees(ctx, FeeRequest{
		Asset:                  &p.Asset,
		Side:                   OrderSideSell,
		ExtraBountyBasisPoints: p.ExtraBountyBasisPoints,
		AccountAddress:         account,
	})
	if err != nil {
		return nil, err
	}

	enc, err := chain.EncodeSell(schema, ref, common.HexToAddress(account))
	if err != nil {
		return nil, &InvalidParamError{Message: err.Error()}
	}

	prices, err := b.priceParameters(ctx, p.PaymentTokenAddress, p.StartAmount, p.EndAmount, p.EnglishAuctionReservePrice)
	if err != nil {
		return nil, err
	}
	times, err := b.timeParameters(p.ExpirationTime, p.ListingTime, p.WaitForHighestBid)
	if err != nil {
		return nil, err
	}
	feeParams, err := SellFeeParameters(fees, p.WaitForHighestBid, b.feeRecipient)
	if err != nil {
		return nil, err
	}

	order, err := b.newOrder(account, p.BuyerAddress, OrderSideSell, saleKindFor(p.StartAmount, p.EndAmount), feeParams, prices, times)
	if err != nil {
		return nil, err
	}
	order.Quantity = quantity
	order.WaitingForBestCounterOrder = p.WaitForHighestBid
	order.EnglishAuctionReservePrice = prices.reservePrice
	setCall(order, enc, chain.HowToCallCall)
	order.Metadata = OrderMetadata{Asset: wyAsset, Schema: schema}
	return order, nil
}

// MakeBuyOrder builds an offer on one asset
func (b *OrderBuilder) MakeBuyOrder(ctx context.Context, p BuyOrderParams) (*UnhashedOrder, error) {
	if err := b.ValidateBuyOrder(p); err != nil {
		return nil, err
	}
	account, err := validateAddress("account", p.AccountAddress)
	if err != nil {
		return nil, err
	}
	schema := schemaOf(p.Asset.Asset)
	quantity, err := ToBaseUnitAmount(defaultQuantity(p.Quantity), p.Asset.Decimals)
	if err != nil {
		return nil, err
	}
	wyAsset, err := GetWyvernAsset(schema, p.Asset.Asset, quantity)
	if err != nil {
		return nil, err
	}
	ref, err := toAssetRef(schema, *wyAsset)
	if err != nil {
		return nil, err
	}

	fees, err := b.fees.ComputeFees(ctx, FeeRequest{
		Asset:                  &p.Asset,
		Side:                   OrderSideBuy,
		ExtraBountyBasisPoints: p.ExtraBountyBasisPoints,
		AccountAddress:         account,
	})
	if err != nil {
		return nil, err
	}
	feeParams, err := BuyFeeParameters(fees, p.SellOrder, b.feeRecipient)
	if err != nil {
		return nil, err
	}

	enc, err := chain.EncodeBuy(schema, ref, common.HexToAddress(account))
	if err != nil {
		return nil, &InvalidParamError{Message: err.Error()}
	}

	prices, err := b.priceParameters(ctx, p.PaymentTokenAddress, p.StartAmount, nil, nil)
	if err != nil {
		return nil, err
	}
	times, err := b.timeParameters(p.ExpirationTime, 0, false)
	if err != nil {
		return nil, err
	}

	taker := ""
	if p.SellOrder != nil {
		taker = p.SellOrder.Maker
	}
	order, err := b.newOrder(account, taker, OrderSideBuy, SaleKindFixedPrice, feeParams, prices, times)
	if err != nil {
		return nil, err
	}
	order.Quantity = quantity
	order.Extra = decimal.Zero
	setCall(order, enc, chain.HowToCallCall)
	order.Metadata = OrderMetadata{Asset: wyAsset, Schema: schema, ReferrerAddress: strings.ToLower(p.ReferrerAddress)}
	return order, nil
}

// MakeBundleSellOrder builds a sell order for a bundle of assets settled through the atomicizer
func (b *OrderBuilder) MakeBundleSellOrder(ctx context.Context, p BundleSellOrderParams) (*UnhashedOrder, error) {
	if err := b.ValidateBundleSellOrder(p); err != nil {
		return nil, err
	}
	account, err := validateAddress("account", p.AccountAddress)
	if err != nil {
		return nil, err
	}
	bundle, err := buildBundle(p.Assets, p.Schemas, p.Quantities)
	if err != nil {
		return nil, err
	}
	bundle.Name = p.BundleName
	bundle.Description = p.BundleDescription
	bundle.ExternalLink = p.BundleExternalLink

	fees, err := b.fees.ComputeFees(ctx, FeeRequest{
		Asset:                  p.FeeAsset,
		Side:                   OrderSideSell,
		ExtraBountyBasisPoints: p.ExtraBountyBasisPoints,
		AccountAddress:         account,
	})
	if err != nil {
		return nil, err
	}

	schemas, refs, err := bundleAssetRefs(bundle)
	if err != nil {
		return nil, err
	}
	enc, err := chain.EncodeAtomicizedSell(schemas, refs, common.HexToAddress(account), common.HexToAddress(b.atomicizer))
	if err != nil {
		return nil, &InvalidParamError{Message: err.Error()}
	}

	prices, err := b.priceParameters(ctx, p.PaymentTokenAddress, p.StartAmount, p.EndAmount, p.EnglishAuctionReservePrice)
	if err != nil {
		return nil, err
	}
	times, err := b.timeParameters(p.ExpirationTime, p.ListingTime, p.WaitForHighestBid)
	if err != nil {
		return nil, err
	}
	feeParams, err := SellFeeParameters(fees, p.WaitForHighestBid, b.feeRecipient)
	if err != nil {
		return nil, err
	}

	order, err := b.newOrder(account, p.BuyerAddress, OrderSideSell, saleKindFor(p.StartAmount, p.EndAmount), feeParams, prices, times)
	if err != nil {
		return nil, err
	}
	order.Quantity = decimal.NewFromInt(1)
	order.WaitingForBestCounterOrder = p.WaitForHighestBid
	order.EnglishAuctionReservePrice = prices.reservePrice
	setCall(order, enc, chain.HowToCallDelegateCall)
	order.Metadata = OrderMetadata{Bundle: bundle}
	return order, nil
}

// MakeBundleBuyOrder builds an offer on a bundle of assets
func (b *OrderBuilder) MakeBundleBuyOrder(ctx context.Context, p BundleBuyOrderParams) (*UnhashedOrder, error) {
	if err := b.ValidateBundleBuyOrder(p); err != nil {
		return nil, err
	}
	account, err := validateAddress("account", p.AccountAddress)
	if err != nil {
		return nil, err
	}
	bundle, err := buildBundle(p.Assets, p.Schemas, p.Quantities)
	if err != nil {
		return nil, err
	}

	fees, err := b.fees.ComputeFees(ctx, FeeRequest{
		Asset:                  p.FeeAsset,
		Side:                   OrderSideBuy,
		ExtraBountyBasisPoints: p.ExtraBountyBasisPoints,
		AccountAddress:         account,
	})
	if err != nil {
		return nil, err
	}
	feeParams, err := BuyFeeParameters(fees, p.SellOrder, b.feeRecipient)
	if err != nil {
		return nil, err
	}

	schemas, refs, err := bundleAssetRefs(bundle)
	if err != nil {
		return nil, err
	}
	enc, err := chain.EncodeAtomicizedBuy(schemas, refs, common.HexToAddress(account), common.HexToAddress(b.atomicizer))
	if err != nil {
		return nil, &InvalidParamError{Message: err.Error()}
	}

	prices, err := b.priceParameters(ctx, p.PaymentTokenAddress, p.StartAmount, nil, nil)
	if err != nil {
		return nil, err
	}
	times, err := b.timeParameters(p.ExpirationTime, 0, false)
	if err != nil {
		return nil, err
	}

	taker := ""
	if p.SellOrder != nil {
		taker = p.SellOrder.Maker
	}
	order, err := b.newOrder(account, taker, OrderSideBuy, SaleKindFixedPrice, feeParams, prices, times)
	if err != nil {
		return nil, err
	}
	order.Quantity = decimal.NewFromInt(1)
	order.Extra = decimal.Zero
	setCall(order, enc, chain.HowToCallDelegateCall)
	order.Metadata = OrderMetadata{Bundle: bundle, ReferrerAddress: strings.ToLower(p.ReferrerAddress)}
	return order, nil
}

// MakeMatchingOrder builds the counter-order that atomically matches an
// existing order: the opposite side at the same price and fees, with the
// transfer calldata pointed at the recipient
func (b *OrderBuilder) MakeMatchingOrder(p MatchingOrderParams) (*UnhashedOrder, error) {
	if p.Order == nil {
		return nil, &InvalidParamError{Message: "order is required"}
	}
	account, err := validateAddress("account", p.AccountAddress)
	if err != nil {
		return nil, err
	}
	recipient := account
	if p.RecipientAddress != "" {
		if recipient, err = validateAddress("recipient", p.RecipientAddress); err != nil {
			return nil, err
		}
	}

	order := p.Order
	enc, howToCall, err := b.matchingCall(order, common.HexToAddress(recipient))
	if err != nil {
		return nil, err
	}

	times, err := b.timeParameters(0, 0, false)
	if err != nil {
		return nil, err
	}
	salt, err := b.salt()
	if err != nil {
		return nil, err
	}

	// Buy orders from older clients still carry a fee recipient, so the
	// counter-order takes whichever side is empty
	feeRecipient := ZeroAddress
	if isNullAddress(order.FeeRecipient) {
		feeRecipient = b.feeRecipient
	}

	side := OrderSideBuy
	if order.Side == OrderSideBuy {
		side = OrderSideSell
	}

	matching := &UnhashedOrder{
		Exchange:                   order.Exchange,
		Maker:                      account,
		Taker:                      order.Maker,
		Quantity:                   order.Quantity,
		MakerRelayerFee:            order.MakerRelayerFee,
		TakerRelayerFee:            order.TakerRelayerFee,
		MakerProtocolFee:           order.MakerProtocolFee,
		TakerProtocolFee:           order.TakerProtocolFee,
		MakerReferrerFee:           order.MakerReferrerFee,
		WaitingForBestCounterOrder: false,
		FeeMethod:                  order.FeeMethod,
		FeeRecipient:               feeRecipient,
		Side:                       side,
		SaleKind:                   SaleKindFixedPrice,
		StaticTarget:               ZeroAddress,
		StaticExtradata:            "0x",
		PaymentToken:               order.PaymentToken,
		BasePrice:                  order.BasePrice,
		Extra:                      decimal.Zero,
		ListingTime:                times.listingTime,
		ExpirationTime:             times.expirationTime,
		Salt:                       decimal.NewFromBigInt(salt, 0),
		Nonce:                      decimal.Zero,
		Metadata:                   order.Metadata,
	}
	setCall(matching, enc, howToCall)
	return matching, nil
}

func (b *OrderBuilder) matchingCall(order *Order, recipient common.Address) (*chain.EncodedCall, HowToCall, error) {
	meta := order.Metadata
	switch {
	case meta.Asset != nil:
		ref, err := toAssetRef(meta.Schema, *meta.Asset)
		if err != nil {
			return nil, 0, err
		}
		var enc *chain.EncodedCall
		if order.Side == OrderSideBuy {
			enc, err = chain.EncodeSell(meta.Schema, ref, recipient)
		} else {
			enc, err = chain.EncodeBuy(meta.Schema, ref, recipient)
		}
		if err != nil {
			return nil, 0, &InvalidParamError{Message: err.Error()}
		}
		return enc, order.HowToCall, nil

	case meta.Bundle != nil:
		bundle := *meta.Bundle
		if len(bundle.Schemas) == 0 {
			bundle.Schemas = make([]WyvernSchemaName, len(bundle.Assets))
			for i := range bundle.Schemas {
				bundle.Schemas[i] = meta.Schema
			}
		}
		schemas, refs, err := bundleAssetRefs(&bundle)
		if err != nil {
			return nil, 0, err
		}
		var enc *chain.EncodedCall
		if order.Side == OrderSideBuy {
			enc, err = chain.EncodeAtomicizedSell(schemas, refs, recipient, common.HexToAddress(b.atomicizer))
		} else {
			enc, err = chain.EncodeAtomicizedBuy(schemas, refs, recipient, common.HexToAddress(b.atomicizer))
		}
		if err != nil {
			return nil, 0, &InvalidParamError{Message: err.Error()}
		}
		return enc, order.HowToCall, nil
	}
	return nil, 0, &InvalidParamError{Message: "Invalid order metadata"}
}

type priceParameters struct {
	basePrice    decimal.Decimal
	extra        decimal.Decimal
	paymentToken string
	reservePrice *decimal.Decimal
}

// orderInputs are the caller-supplied fields that can be checked without
// touching the orderbook or the chain
type orderInputs struct {
	side                       OrderSide
	account                    string
	paymentToken               string
	startAmount                decimal.Decimal
	endAmount                  *decimal.Decimal
	listingTime                int64
	expirationTime             int64
	waitingForBestCounterOrder bool
	reservePrice               *decimal.Decimal
}

// ValidateSellOrder checks a sell order's account, price and listing window.
// It performs no I/O, so invalid requests fail before any fee or token lookup.
func (b *OrderBuilder) ValidateSellOrder(p SellOrderParams) error {
	return b.validateInputs(orderInputs{
		side:                       OrderSideSell,
		account:                    p.AccountAddress,
		paymentToken:               p.PaymentTokenAddress,
		startAmount:                p.StartAmount,
		endAmount:                  p.EndAmount,
		listingTime:                p.ListingTime,
		expirationTime:             p.ExpirationTime,
		waitingForBestCounterOrder: p.WaitForHighestBid,
		reservePrice:               p.EnglishAuctionReservePrice,
	})
}

// ValidateBuyOrder is ValidateSellOrder for offers
func (b *OrderBuilder) ValidateBuyOrder(p BuyOrderParams) error {
	return b.validateInputs(orderInputs{
		side:           OrderSideBuy,
		account:        p.AccountAddress,
		paymentToken:   p.PaymentTokenAddress,
		startAmount:    p.StartAmount,
		expirationTime: p.ExpirationTime,
	})
}

// ValidateBundleSellOrder checks a bundle sell order without I/O
func (b *OrderBuilder) ValidateBundleSellOrder(p BundleSellOrderParams) error {
	return b.validateInputs(orderInputs{
		side:                       OrderSideSell,
		account:                    p.AccountAddress,
		paymentToken:               p.PaymentTokenAddress,
		startAmount:                p.StartAmount,
		endAmount:                  p.EndAmount,
		listingTime:                p.ListingTime,
		expirationTime:             p.ExpirationTime,
		waitingForBestCounterOrder: p.WaitForHighestBid,
		reservePrice:               p.EnglishAuctionReservePrice,
	})
}

// ValidateBundleBuyOrder checks a bundle offer without I/O
func (b *OrderBuilder) ValidateBundleBuyOrder(p BundleBuyOrderParams) error {
	return b.validateInputs(orderInputs{
		side:           OrderSideBuy,
		account:        p.AccountAddress,
		paymentToken:   p.PaymentTokenAddress,
		startAmount:    p.StartAmount,
		expirationTime: p.ExpirationTime,
	})
}

func (b *OrderBuilder) validateInputs(in orderInputs) error {
	if _, err := validateAddress("account", in.account); err != nil {
		return err
	}
	if err := checkPrices(in.side, paymentTokenAddress(in.paymentToken), in.expirationTime, in.startAmount, in.endAmount, in.waitingForBestCounterOrder, in.reservePrice); err != nil {
		return err
	}
	_, err := b.timeParameters(in.expirationTime, in.listingTime, in.waitingForBestCounterOrder)
	return err
}

func paymentTokenAddress(tokenAddress string) string {
	if tokenAddress == "" {
		return ZeroAddress
	}
	return strings.ToLower(tokenAddress)
}

// checkPrices applies every pricing rule that does not need the payment
// token's metadata
func checkPrices(side OrderSide, paymentToken string, expirationTime int64, startAmount decimal.Decimal, endAmount *decimal.Decimal, waitingForBestCounterOrder bool, reservePrice *decimal.Decimal) error {
	priceDiff := decimal.Zero
	if endAmount != nil {
		priceDiff = startAmount.Sub(*endAmount)
	}
	isEther := paymentToken == ZeroAddress

	switch {
	case startAmount.IsNegative():
		return &InvalidParamError{Message: "Starting price must be a number >= 0"}
	case isEther && waitingForBestCounterOrder:
		return &InvalidParamError{Message: "English auctions must use wrapped ETH or an ERC-20 token."}
	case isEther && side == OrderSideBuy:
		return &InvalidParamError{Message: "Offers must use wrapped ETH or an ERC-20 token."}
	case priceDiff.IsNegative():
		return &InvalidParamError{Message: "End price must be less than or equal to the start price."}
	case priceDiff.IsPositive() && expirationTime == 0:
		return &InvalidParamError{Message: "Expiration time must be set if order will change in price."}
	case reservePrice != nil && !waitingForBestCounterOrder:
		return &InvalidParamError{Message: "Reserve prices may only be set on English auctions."}
	case reservePrice != nil && reservePrice.LessThan(startAmount):
		return &InvalidParamError{Message: "Reserve price must be greater than or equal to the start amount."}
	}
	return nil
}

// priceParameters resolves the payment token and converts already-checked
// amounts to its base units
func (b *OrderBuilder) priceParameters(ctx context.Context, tokenAddress string, startAmount decimal.Decimal, endAmount *decimal.Decimal, reservePrice *decimal.Decimal) (*priceParameters, error) {
	priceDiff := decimal.Zero
	if endAmount != nil {
		priceDiff = startAmount.Sub(*endAmount)
	}
	paymentToken := paymentTokenAddress(tokenAddress)
	isEther := paymentToken == ZeroAddress

	var token *PaymentToken
	if !isEther {
		if b.tokens == nil {
			return nil, fmt.Errorf("no payment token lookup configured for %s", paymentToken)
		}
		var err error
		token, err = b.tokens.GetPaymentToken(ctx, paymentToken)
		if err != nil {
			return nil, fmt.Errorf("lookup payment token %s: %w", paymentToken, err)
		}
		if token == nil {
			return nil, &InvalidParamError{Message: fmt.Sprintf("No ERC-20 token found for '%s'", paymentToken)}
		}
	}

	toBase := func(amount decimal.Decimal) (decimal.Decimal, error) {
		if isEther {
			return ToEtherBaseUnits(amount), nil
		}
		return ToBaseUnitAmount(amount, token.Decimals)
	}

	params := &priceParameters{paymentToken: paymentToken}
	var err error
	if params.basePrice, err = toBase(startAmount); err != nil {
		return nil, err
	}
	if params.extra, err = toBase(priceDiff); err != nil {
		return nil, err
	}
	if reservePrice != nil {
		reserve, err := toBase(*reservePrice)
		if err != nil {
			return nil, err
		}
		params.reservePrice = &reserve
	}
	return params, nil
}

type timeParameters struct {
	listingTime    decimal.Decimal
	expirationTime decimal.Decimal
}

// timeParameters validates the listing window. English auctions list at
// their end time and stay matchable for a further week.
func (b *OrderBuilder) timeParameters(expirationTime, listingTime int64, waitingForBestCounterOrder bool) (*timeParameters, error) {
	now := b.now().Unix()
	minExpiration := now + MinExpirationSeconds

	switch {
	case expirationTime != 0 && expirationTime < minExpiration:
		return nil, &InvalidParamError{Message: fmt.Sprintf("Expiration time must be at least %d seconds from now, or zero (non-expiring).", MinExpirationSeconds)}
	case listingTime != 0 && listingTime < now:
		return nil, &InvalidParamError{Message: "Listing time cannot be in the past."}
	case listingTime != 0 && expirationTime != 0 && listingTime >= expirationTime:
		return nil, &InvalidParamError{Message: "Listing time must be before the expiration time."}
	case waitingForBestCounterOrder && expirationTime == 0:
		return nil, &InvalidParamError{Message: "English auctions must have an expiration time."}
	case waitingForBestCounterOrder && listingTime != 0:
		return nil, &InvalidParamError{Message: "Cannot schedule an English auction for the future."}
	}

	if waitingForBestCounterOrder {
		listingTime = expirationTime
		expirationTime += OrderMatchingLatencySeconds
	} else if listingTime == 0 {
		listingTime = now - listingTimeBackdateSeconds
	}

	return &timeParameters{
		listingTime:    decimal.NewFromInt(listingTime),
		expirationTime: decimal.NewFromInt(expirationTime),
	}, nil
}

// newOrder fills the fields every built order shares
func (b *OrderBuilder) newOrder(maker, taker string, side OrderSide, saleKind SaleKind, fees *FeeParameters, prices *priceParameters, times *timeParameters) (*UnhashedOrder, error) {
	salt, err := b.salt()
	if err != nil {
		return nil, err
	}
	if taker == "" {
		taker = ZeroAddress
	}
	return &UnhashedOrder{
		Exchange:         b.exchange,
		Maker:            maker,
		Taker:            strings.ToLower(taker),
		MakerRelayerFee:  fees.MakerRelayerFee,
		TakerRelayerFee:  fees.TakerRelayerFee,
		MakerProtocolFee: fees.MakerProtocolFee,
		TakerProtocolFee: fees.TakerProtocolFee,
		MakerReferrerFee: fees.MakerReferrerFee,
		FeeRecipient:     fees.FeeRecipient,
		FeeMethod:        fees.FeeMethod,
		Side:             side,
		SaleKind:         saleKind,
		StaticTarget:     ZeroAddress,
		StaticExtradata:  "0x",
		PaymentToken:     prices.paymentToken,
		BasePrice:        prices.basePrice,
		Extra:            prices.extra,
		ListingTime:      times.listingTime,
		ExpirationTime:   times.expirationTime,
		Salt:             decimal.NewFromBigInt(salt, 0),
		Nonce:            decimal.Zero,
	}, nil
}

func setCall(order *UnhashedOrder, enc *chain.EncodedCall, howToCall HowToCall) {
	order.Target = lowerAddress(enc.Target)
	order.HowToCall = howToCall
	order.Calldata = hexutil.Encode(enc.Calldata)
	order.ReplacementPattern = hexutil.Encode(enc.ReplacementPattern)
}

func buildBundle(assets []Asset, schemas []WyvernSchemaName, quantities []decimal.Decimal) (*WyvernBundle, error) {
	if len(assets) != len(quantities) {
		return nil, &InvalidParamError{Message: "Bundle must have a quantity for every asset"}
	}
	base := make([]decimal.Decimal, len(quantities))
	for i, q := range quantities {
		scaled, err := ToBaseUnitAmount(defaultQuantity(q), assets[i].Decimals)
		if err != nil {
			return nil, err
		}
		base[i] = scaled
	}
	return GetWyvernBundle(assets, schemas, base)
}

func saleKindFor(startAmount decimal.Decimal, endAmount *decimal.Decimal) SaleKind {
	if endAmount != nil && !endAmount.Equal(startAmount) {
		return SaleKindDutchAuction
	}
	return SaleKindFixedPrice
}

func schemaOf(asset Asset) WyvernSchemaName {
	if asset.SchemaName == "" {
		return WyvernSchemaERC721
	}
	return asset.SchemaName
}

func defaultQuantity(q decimal.Decimal) decimal.Decimal {
	if q.IsZero() {
		return decimal.NewFromInt(1)
	}
	return q
}

func validateAddress(field, addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", &InvalidParamError{Message: fmt.Sprintf("invalid %s address %q", field, addr)}
	}
	return chain.NormalizeAddress(addr), nil
}
