package wyvernsdk

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ChainReader is the read-only view of the chain the validator and client need
type ChainReader interface {
	OrdersCanMatch(ctx context.Context, exchange common.Address, buy, sell *chain.Order) (bool, error)
	ValidateOrderParameters(ctx context.Context, exchange common.Address, order *chain.Order) (bool, error)
	CalculateCurrentPrice(ctx context.Context, exchange common.Address, order *chain.Order) (*big.Int, error)
	OwnerOf(ctx context.Context, token common.Address, tokenID *big.Int) (common.Address, error)
	ERC1155BalanceOf(ctx context.Context, token, account common.Address, tokenID *big.Int) (*big.Int, error)
	ERC20BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

const clockSkewMessage = "Error creating your order. Check that your system clock is set to the current date and time before you try again."

// MatchValidator decides whether orders can be settled together
type MatchValidator struct {
	reader ChainReader
	now    func() time.Time
	log    *logrus.Entry
}

// NewMatchValidator creates a MatchValidator. Without a reader only the
// local checklist runs.
func NewMatchValidator(reader ChainReader, logger *logrus.Logger) *MatchValidator {
	return &MatchValidator{
		reader: reader,
		now:    time.Now,
		log:    componentLogger(logger, "match"),
	}
}

// WithClock replaces the validator's clock
func (v *MatchValidator) WithClock(now func() time.Time) *MatchValidator {
	v.now = now
	return v
}

// RequireOrdersCanMatch asks the exchange first and, when it refuses,
// reports the first local rule the pair breaks. If no local rule explains
// the refusal the local clock is the likely culprit.
func (v *MatchValidator) RequireOrdersCanMatch(ctx context.Context, buy, sell *Order) error {
	if v.reader == nil {
		return DiagnoseMatch(&buy.UnhashedOrder, &sell.UnhashedOrder, v.now())
	}

	buyOrder, err := toChainOrder(&buy.UnhashedOrder)
	if err != nil {
		return err
	}
	sellOrder, err := toChainOrder(&sell.UnhashedOrder)
	if err != nil {
		return err
	}

	ok, err := v.reader.OrdersCanMatch(ctx, buyOrder.Exchange, buyOrder, sellOrder)
	if err != nil {
		return fmt.Errorf("ordersCanMatch: %w", err)
	}
	if ok {
		return nil
	}

	if err := DiagnoseMatch(&buy.UnhashedOrder, &sell.UnhashedOrder, v.now()); err != nil {
		return err
	}
	v.log.WithFields(logrus.Fields{"buy": buy.Hash, "sell": sell.Hash}).Warn("exchange refused a match the local checklist accepts")
	return &OrderMatchError{Message: clockSkewMessage}
}

// DiagnoseMatch runs the local matching checklist in order and returns the
// first violation, or nil when every rule holds
func DiagnoseMatch(buy, sell *UnhashedOrder, now time.Time) error {
	t := unixNow(now)
	switch {
	case !(buy.Side == OrderSideBuy && sell.Side == OrderSideSell):
		return &OrderMatchError{Message: "Must be opposite-side"}
	case buy.FeeMethod != sell.FeeMethod:
		return &OrderMatchError{Message: "Must use same fee method"}
	case !sameAddress(buy.PaymentToken, sell.PaymentToken):
		return &OrderMatchError{Message: "Must use same payment token"}
	case !(isNullAddress(sell.Taker) || sameAddress(sell.Taker, buy.Maker)):
		return &OrderMatchError{Message: "Sell taker must be null or matching buy maker"}
	case !(isNullAddress(buy.Taker) || sameAddress(buy.Taker, sell.Maker)):
		return &OrderMatchError{Message: "Buy taker must be null or matching sell maker"}
	case isNullAddress(sell.FeeRecipient) == isNullAddress(buy.FeeRecipient):
		return &OrderMatchError{Message: "One order must be maker and the other must be taker"}
	case !sameAddress(buy.Target, sell.Target):
		return &OrderMatchError{Message: "Must match target"}
	case buy.HowToCall != sell.HowToCall:
		return &OrderMatchError{Message: "Must match howToCall"}
	case !canSettleOrder(buy.ListingTime, buy.ExpirationTime, t):
		return &OrderMatchError{Message: "Buy-side order is set in the future or expired"}
	case !canSettleOrder(sell.ListingTime, sell.ExpirationTime, t):
		return &OrderMatchError{Message: "Sell-side order is set in the future or expired"}
	}
	return nil
}

// RequireOrderValid checks the order's parameters against the exchange
func (v *MatchValidator) RequireOrderValid(ctx context.Context, order *Order) error {
	if v.reader == nil {
		return ErrNoChainReader
	}
	chainOrder, err := toChainOrder(&order.UnhashedOrder)
	if err != nil {
		return err
	}
	ok, err := v.reader.ValidateOrderParameters(ctx, chainOrder.Exchange, chainOrder)
	if err != nil {
		return fmt.Errorf("validateOrderParameters: %w", err)
	}
	if !ok {
		return &InvalidParamError{Message: fmt.Sprintf("Failed to validate %s order parameters. Make sure you're on the right network!", order.Side)}
	}
	return nil
}

// RequireOwnsAsset checks that account holds at least quantity base units of asset
func (v *MatchValidator) RequireOwnsAsset(ctx context.Context, accountAddress string, schema WyvernSchemaName, asset WyvernAsset, quantity decimal.Decimal) error {
	if v.reader == nil {
		return ErrNoChainReader
	}
	ref, err := toAssetRef(schema, asset)
	if err != nil {
		return err
	}
	account := common.HexToAddress(accountAddress)
	required := quantity.BigInt()

	var owned bool
	switch schema {
	case WyvernSchemaERC721, WyvernSchemaERC721v3:
		owner, err := v.reader.OwnerOf(ctx, ref.Address, ref.ID)
		if err != nil {
			return fmt.Errorf("ownerOf: %w", err)
		}
		owned = owner == account
	case WyvernSchemaERC1155:
		balance, err := v.reader.ERC1155BalanceOf(ctx, ref.Address, account, ref.ID)
		if err != nil {
			return fmt.Errorf("balanceOf: %w", err)
		}
		owned = balance.Cmp(required) >= 0
	case WyvernSchemaERC20:
		balance, err := v.reader.ERC20BalanceOf(ctx, ref.Address, account)
		if err != nil {
			return fmt.Errorf("balanceOf: %w", err)
		}
		owned = balance.Cmp(required) >= 0
	default:
		return &InvalidParamError{Message: fmt.Sprintf("Unsupported schema %q", schema)}
	}

	if !owned {
		desc := fmt.Sprintf("%s base units of %s", quantity.String(), asset.Address)
		if asset.ID != "" {
			desc += " token " + asset.ID
		}
		return &InvalidParamError{Message: fmt.Sprintf("You don't own enough to do that (%s)", desc)}
	}
	return nil
}

// RequireFundsForBuy checks that a buyer holds and has approved enough of
// the payment token to cover the order's base price
func (v *MatchValidator) RequireFundsForBuy(ctx context.Context, order *UnhashedOrder, spender, wrappedEther string) error {
	if isNullAddress(order.PaymentToken) {
		return nil
	}
	if v.reader == nil {
		return ErrNoChainReader
	}
	token := common.HexToAddress(order.PaymentToken)
	buyer := common.HexToAddress(order.Maker)
	required := order.BasePrice.BigInt()

	balance, err := v.reader.ERC20BalanceOf(ctx, token, buyer)
	if err != nil {
		return fmt.Errorf("balanceOf: %w", err)
	}
	if balance.Cmp(required) < 0 {
		if strings.EqualFold(order.PaymentToken, wrappedEther) {
			return &InvalidParamError{Message: "Insufficient balance. You may need to wrap Ether."}
		}
		return &InvalidParamError{Message: "Insufficient balance."}
	}

	allowance, err := v.reader.ERC20Allowance(ctx, token, buyer, common.HexToAddress(spender))
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	if allowance.Cmp(required) < 0 {
		return &InvalidParamError{Message: fmt.Sprintf("Insufficient allowance. Approve %s to spend %s before placing this offer.", strings.ToLower(spender), order.PaymentToken)}
	}
	return nil
}
