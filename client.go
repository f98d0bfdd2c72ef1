package wyvernsdk

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Client is the main SDK client
type Client struct {
	config   ClientConfig
	api      *APIClient
	chain    *chain.ContractCaller
	hasher   *OrderHasher
	signer   *chain.OrderSigner
	fees     *FeeCalculator
	builder  *OrderBuilder
	matcher  *MatchValidator
	tokens   *paymentTokenCache
	logger   *logrus.Logger
	log      *logrus.Entry
	maxFetch int
}

// ClientOption customizes a Client
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger *logrus.Logger
	wallet chain.Wallet
	caller *chain.ContractCaller
}

// WithLogger makes the client log through logger instead of one built from
// the config
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// WithWallet makes the client sign through wallet instead of the configured
// private key
func WithWallet(wallet chain.Wallet) ClientOption {
	return func(o *clientOptions) { o.wallet = wallet }
}

// WithContractCaller makes the client read chain state through caller
// instead of dialing the configured RPC URL
func WithContractCaller(caller *chain.ContractCaller) ClientOption {
	return func(o *clientOptions) { o.caller = caller }
}

// NewClient creates a new SDK client. Chain reads are enabled when an RPC URL
// or contract caller is given, and signing when a private key or wallet is.
func NewClient(config ClientConfig, opts ...ClientOption) (*Client, error) {
	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}
	var options clientOptions
	for _, opt := range opts {
		opt(&options)
	}

	logger := options.logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(config.Log); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	hasher, err := NewOrderHasher(config.ProtocolVersion, config.ChainID)
	if err != nil {
		return nil, err
	}

	caller := options.caller
	if caller == nil && config.RPCURL != "" {
		if caller, err = chain.DialContractCaller(config.RPCURL, config.PrivateKey); err != nil {
			return nil, fmt.Errorf("failed to create contract caller: %w", err)
		}
	}

	wallet := options.wallet
	if wallet == nil && config.PrivateKey != "" {
		if wallet, err = chain.NewPrivateKeySigner(config.PrivateKey); err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
	}

	c := &Client{
		config:   config,
		hasher:   hasher,
		chain:    caller,
		logger:   logger,
		log:      componentLogger(logger, "client"),
		maxFetch: 4,
	}
	c.api = NewAPIClient(config.APIBaseURL, config.APIKey, config.HTTPTimeout, config.HTTPRetryCount, hasher, logger)
	c.tokens = newPaymentTokenCache(c.api, config.PaymentTokenCacheTTL)

	var transferFees TransferFeeReader
	var reader ChainReader
	if caller != nil {
		transferFees = caller
		reader = caller
	}
	c.fees = NewFeeCalculator(transferFees, config.TransferFeeContracts, logger)
	c.matcher = NewMatchValidator(reader, logger)
	c.builder = NewOrderBuilder(OrderBuilderConfig{
		Exchange:     config.ExchangeAddr,
		Atomicizer:   config.AtomicizerAddr,
		FeeRecipient: config.FeeRecipientAddr,
	}, c.fees, c.tokens)

	if wallet != nil {
		chainID := big.NewInt(int64(config.ChainID))
		signHasher, err := chain.NewOrderHasher(config.ProtocolVersion, common.HexToAddress(config.ExchangeAddr), chainID)
		if err != nil {
			return nil, err
		}
		if c.signer, err = chain.NewOrderSigner(signHasher, wallet); err != nil {
			return nil, err
		}
	}

	c.log.WithFields(logrus.Fields{
		"chain_id": config.ChainID,
		"protocol": config.ProtocolVersion,
		"exchange": config.ExchangeAddr,
		"chain":    caller != nil,
		"signing":  wallet != nil,
	}).Debug("client ready")
	return c, nil
}

// Close closes the client and cleans up resources
func (c *Client) Close() {
	if c.chain != nil {
		c.chain.Close()
	}
}

// API returns the orderbook API client
func (c *Client) API() *APIClient { return c.api }

// Builder returns the order builder
func (c *Client) Builder() *OrderBuilder { return c.builder }

// Hasher returns the order hasher
func (c *Client) Hasher() *OrderHasher { return c.hasher }

// Validator returns the matching validator
func (c *Client) Validator() *MatchValidator { return c.matcher }

// Stream creates an event stream client for the configured stream endpoint
func (c *Client) Stream(config StreamConfig) *StreamClient {
	if config.Endpoint == "" {
		config.Endpoint = c.config.StreamURL
	}
	if config.APIKey == "" {
		config.APIKey = c.config.APIKey
	}
	return NewStreamClient(config, c.logger)
}

// CreateSellOrder builds, signs and posts a sell order. The asset's fee
// schedule is fetched from the orderbook once the parameters pass validation.
func (c *Client) CreateSellOrder(ctx context.Context, params SellOrderParams) (*Order, error) {
	if err := c.builder.ValidateSellOrder(params); err != nil {
		return nil, err
	}

	asset, err := c.resolveAsset(ctx, params.Asset.Asset)
	if err != nil {
		return nil, err
	}
	params.Asset = *asset

	unhashed, err := c.builder.MakeSellOrder(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := c.requireOwnership(ctx, unhashed, params.AccountAddress); err != nil {
		return nil, err
	}
	return c.signAndPost(ctx, unhashed)
}

// CreateBuyOrder builds, signs and posts an offer on an asset
func (c *Client) CreateBuyOrder(ctx context.Context, params BuyOrderParams) (*Order, error) {
	if err := c.builder.ValidateBuyOrder(params); err != nil {
		return nil, err
	}

	asset, err := c.resolveAsset(ctx, params.Asset.Asset)
	if err != nil {
		return nil, err
	}
	params.Asset = *asset

	unhashed, err := c.builder.MakeBuyOrder(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := c.requireFunds(ctx, unhashed); err != nil {
		return nil, err
	}
	return c.signAndPost(ctx, unhashed)
}

// CreateBundleSellOrder builds, signs and posts a bundle sell order. When
// every asset comes from one contract its fee schedule applies.
func (c *Client) CreateBundleSellOrder(ctx context.Context, params BundleSellOrderParams) (*Order, error) {
	if err := c.builder.ValidateBundleSellOrder(params); err != nil {
		return nil, err
	}

	assets, feeAsset, err := c.resolveBundle(ctx, params.Assets, params.FeeAsset)
	if err != nil {
		return nil, err
	}
	params.Assets, params.FeeAsset = assets, feeAsset

	unhashed, err := c.builder.MakeBundleSellOrder(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := c.requireOwnership(ctx, unhashed, params.AccountAddress); err != nil {
		return nil, err
	}
	return c.signAndPost(ctx, unhashed)
}

// CreateBundleBuyOrder builds, signs and posts an offer on a bundle
func (c *Client) CreateBundleBuyOrder(ctx context.Context, params BundleBuyOrderParams) (*Order, error) {
	if err := c.builder.ValidateBundleBuyOrder(params); err != nil {
		return nil, err
	}

	assets, feeAsset, err := c.resolveBundle(ctx, params.Assets, params.FeeAsset)
	if err != nil {
		return nil, err
	}
	params.Assets, params.FeeAsset = assets, feeAsset

	unhashed, err := c.builder.MakeBundleBuyOrder(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := c.requireFunds(ctx, unhashed); err != nil {
		return nil, err
	}
	return c.signAndPost(ctx, unhashed)
}

// SignOrder hashes and signs an order without posting it
func (c *Client) SignOrder(ctx context.Context, unhashed *UnhashedOrder) (*Order, error) {
	if c.signer == nil {
		return nil, ErrNoWallet
	}
	if err := c.setNonce(ctx, unhashed); err != nil {
		return nil, err
	}

	hash, err := c.hasher.GetOrderHash(unhashed)
	if err != nil {
		return nil, err
	}
	chainOrder, err := toChainOrder(unhashed)
	if err != nil {
		return nil, err
	}
	signed, err := c.signer.SignOrder(ctx, chainOrder)
	if err != nil {
		return nil, err
	}

	order := &Order{UnhashedOrder: *unhashed, Hash: hash, ECSignature: signed.Signature}
	if err := c.hasher.VerifySignature(order); err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Client) signAndPost(ctx context.Context, unhashed *UnhashedOrder) (*Order, error) {
	order, err := c.SignOrder(ctx, unhashed)
	if err != nil {
		return nil, err
	}
	posted, err := c.api.PostOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{
		"hash": posted.Hash,
		"side": posted.Side,
	}).Info("order posted")
	return posted, nil
}

// setNonce reads the maker's exchange nonce for 2.3 orders
func (c *Client) setNonce(ctx context.Context, order *UnhashedOrder) error {
	if c.hasher.Version() != chain.ProtocolVersion23 || c.chain == nil {
		return nil
	}
	nonce, err := c.chain.Nonce(ctx, common.HexToAddress(order.Exchange), common.HexToAddress(order.Maker))
	if err != nil {
		return fmt.Errorf("failed to read maker nonce: %w", err)
	}
	order.Nonce = decimalFromBig(nonce)
	return nil
}

// resolveAsset fetches the fee schedule for asset. Fields the caller set
// take precedence over the orderbook's.
func (c *Client) resolveAsset(ctx context.Context, asset Asset) (*AssetWithFees, error) {
	tokenID := ""
	if asset.TokenID != nil {
		tokenID = *asset.TokenID
	}
	resolved, err := c.api.GetAsset(ctx, asset.TokenAddress, tokenID)
	if err != nil {
		return nil, err
	}
	if asset.TokenID != nil {
		resolved.TokenID = asset.TokenID
	}
	if asset.SchemaName != "" {
		resolved.SchemaName = asset.SchemaName
	}
	if asset.Decimals != 0 {
		resolved.Decimals = asset.Decimals
	}
	return resolved, nil
}

// resolveBundle fetches every bundle asset concurrently. The first asset's
// schedule is used for fees when all assets share a contract.
func (c *Client) resolveBundle(ctx context.Context, assets []Asset, feeAsset *AssetWithFees) ([]Asset, *AssetWithFees, error) {
	resolved := make([]*AssetWithFees, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxFetch)
	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			r, err := c.resolveAsset(gctx, asset)
			if err != nil {
				return err
			}
			resolved[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make([]Asset, len(resolved))
	sameContract := len(resolved) > 0
	for i, r := range resolved {
		out[i] = r.Asset
		if !sameAddress(r.TokenAddress, resolved[0].TokenAddress) {
			sameContract = false
		}
	}
	if feeAsset == nil && sameContract {
		feeAsset = resolved[0]
	}
	return out, feeAsset, nil
}

// BuildMatchingOrder builds and hashes the unsigned counter-order that
// fills order for accountAddress
func (c *Client) BuildMatchingOrder(order *Order, accountAddress, recipientAddress string) (*Order, error) {
	unhashed, err := c.builder.MakeMatchingOrder(MatchingOrderParams{
		Order:            order,
		AccountAddress:   accountAddress,
		RecipientAddress: recipientAddress,
	})
	if err != nil {
		return nil, err
	}
	hash, err := c.hasher.GetOrderHash(unhashed)
	if err != nil {
		return nil, err
	}
	return &Order{UnhashedOrder: *unhashed, Hash: hash}, nil
}

// Fulfillment is a matched buy/sell pair ready for atomicMatch_
type Fulfillment struct {
	Buy  *Order
	Sell *Order
}

// FulfillOrder runs the pre-flight checks for filling order: it builds the
// counter-order, checks that the pair can match and that the taker holds
// what it is giving up
func (c *Client) FulfillOrder(ctx context.Context, order *Order, accountAddress, recipientAddress string) (*Fulfillment, error) {
	if order.Hash != "" {
		if err := c.hasher.VerifyOrderHash(order); err != nil {
			return nil, err
		}
	}
	matching, err := c.BuildMatchingOrder(order, accountAddress, recipientAddress)
	if err != nil {
		return nil, err
	}

	pair := &Fulfillment{Buy: matching, Sell: order}
	if order.Side == OrderSideBuy {
		pair = &Fulfillment{Buy: order, Sell: matching}
	}
	if err := c.matcher.RequireOrdersCanMatch(ctx, pair.Buy, pair.Sell); err != nil {
		return nil, err
	}

	if order.Side == OrderSideBuy {
		err = c.requireOwnership(ctx, &pair.Sell.UnhashedOrder, accountAddress)
	} else {
		buy := pair.Buy.UnhashedOrder
		buy.BasePrice = EstimateCurrentPrice(order, 0, true)
		err = c.requireFunds(ctx, &buy)
	}
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// requireOwnership checks every asset of a sell order against the seller's
// holdings. It is skipped without a chain connection.
func (c *Client) requireOwnership(ctx context.Context, order *UnhashedOrder, account string) error {
	if c.chain == nil {
		return nil
	}
	meta := order.Metadata
	if meta.Asset != nil {
		quantity := order.Quantity
		if meta.Asset.Quantity != "" {
			q, err := decimal.NewFromString(meta.Asset.Quantity)
			if err != nil {
				return &InvalidParamError{Message: fmt.Sprintf("invalid quantity %q", meta.Asset.Quantity)}
			}
			quantity = q
		}
		return c.matcher.RequireOwnsAsset(ctx, account, meta.Schema, *meta.Asset, quantity)
	}
	if meta.Bundle != nil {
		for i, asset := range meta.Bundle.Assets {
			quantity := decimal.NewFromInt(1)
			if asset.Quantity != "" {
				q, err := decimal.NewFromString(asset.Quantity)
				if err != nil {
					return &InvalidParamError{Message: fmt.Sprintf("invalid quantity %q", asset.Quantity)}
				}
				quantity = q
			}
			if err := c.matcher.RequireOwnsAsset(ctx, account, meta.Bundle.Schemas[i], asset, quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

// requireFunds checks an offer against the buyer's ERC20 balance and
// allowance. It is skipped without a chain connection.
func (c *Client) requireFunds(ctx context.Context, order *UnhashedOrder) error {
	if c.chain == nil {
		return nil
	}
	return c.matcher.RequireFundsForBuy(ctx, order, c.config.TokenTransferProxy, c.config.WETHAddr)
}

// GetOrder returns the first orderbook order matching query
func (c *Client) GetOrder(ctx context.Context, query OrderQuery) (*Order, error) {
	return c.api.GetOrder(ctx, query)
}

// GetOrders lists one page of orderbook orders matching query
func (c *Client) GetOrders(ctx context.Context, query OrderQuery) (*OrderPage, error) {
	return c.api.GetOrders(ctx, query)
}

// GetPaymentToken returns an accepted payment token, cached for the
// configured TTL
func (c *Client) GetPaymentToken(ctx context.Context, address string) (*PaymentToken, error) {
	return c.tokens.GetPaymentToken(ctx, address)
}

// GetCurrentPrice returns the price the exchange would settle order at now
func (c *Client) GetCurrentPrice(ctx context.Context, order *Order) (decimal.Decimal, error) {
	if c.chain == nil {
		return decimal.Zero, ErrNoChainReader
	}
	chainOrder, err := toChainOrder(&order.UnhashedOrder)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := c.chain.CalculateCurrentPrice(ctx, chainOrder.Exchange, chainOrder)
	if err != nil {
		return decimal.Zero, fmt.Errorf("calculateCurrentPrice: %w", err)
	}
	return decimalFromBig(price), nil
}

// WrapEth converts amount ether into WETH and waits for the transaction
func (c *Client) WrapEth(ctx context.Context, amount decimal.Decimal) (*TransactionResult, error) {
	if c.chain == nil {
		return nil, ErrNoChainReader
	}
	tx, err := c.chain.WrapEth(ctx, common.HexToAddress(c.config.WETHAddr), ToEtherBaseUnits(amount).BigInt())
	if err != nil {
		return nil, err
	}
	return c.WaitForTransaction(ctx, tx.Hash().Hex())
}

// UnwrapEth converts amount WETH back into ether and waits for the transaction
func (c *Client) UnwrapEth(ctx context.Context, amount decimal.Decimal) (*TransactionResult, error) {
	if c.chain == nil {
		return nil, ErrNoChainReader
	}
	tx, err := c.chain.UnwrapEth(ctx, common.HexToAddress(c.config.WETHAddr), ToEtherBaseUnits(amount).BigInt())
	if err != nil {
		return nil, err
	}
	return c.WaitForTransaction(ctx, tx.Hash().Hex())
}

// WaitForTransaction polls for a receipt until the configured transaction
// timeout. A still-pending transaction yields ErrTransactionPending and a
// reverted one ErrTransactionFailed.
func (c *Client) WaitForTransaction(ctx context.Context, txHash string) (*TransactionResult, error) {
	if c.chain == nil {
		return nil, ErrNoChainReader
	}
	c.log.WithField("tx", txHash).Info("waiting for transaction")
	receipt, err := c.chain.WaitForReceipt(ctx, common.HexToHash(txHash), c.config.TxTimeout)
	if receipt != nil {
		return &TransactionResult{TxHash: txHash, Status: receipt.Status}, err
	}
	return nil, err
}

type cacheEntry struct {
	token     *PaymentToken
	timestamp time.Time
}

// paymentTokenCache keeps accepted payment tokens for a TTL. Only accepted
// tokens are cached. It is the one state the client keeps across calls and
// holds token metadata that does not change, such as decimals. Fee
// schedules, balances and approvals are always read fresh.
type paymentTokenCache struct {
	lookup PaymentTokenLookup
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func newPaymentTokenCache(lookup PaymentTokenLookup, ttl time.Duration) *paymentTokenCache {
	return &paymentTokenCache{
		lookup:  lookup,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *paymentTokenCache) GetPaymentToken(ctx context.Context, address string) (*PaymentToken, error) {
	key := strings.ToLower(address)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.timestamp) < c.ttl {
		return entry.token, nil
	}

	token, err := c.lookup.GetPaymentToken(ctx, address)
	if err != nil || token == nil {
		return token, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{token: token, timestamp: c.now()}
	c.mu.Unlock()
	return token, nil
}
