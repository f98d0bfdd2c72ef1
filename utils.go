package wyvernsdk

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
)

const (
	MaxDecimals = 18
	ZeroAddress = "0x0000000000000000000000000000000000000000"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ToBaseUnitAmount scales a human-readable amount by 10^decimals. Amounts
// with more precision than the token supports are rejected.
func ToBaseUnitAmount(amount decimal.Decimal, decimals int) (decimal.Decimal, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return decimal.Decimal{}, &InvalidParamError{Message: fmt.Sprintf("decimals must be between 0 and %d, got: %d", MaxDecimals, decimals)}
	}
	base := amount.Shift(int32(decimals))
	if !base.Equal(base.Truncate(0)) {
		return decimal.Decimal{}, &InvalidParamError{Message: fmt.Sprintf("Invalid unit amount: %s - Too many decimal places", amount.String())}
	}
	if base.BigInt().Cmp(maxUint256) > 0 {
		return decimal.Decimal{}, &InvalidParamError{Message: fmt.Sprintf("amount too large for uint256: %s", base.String())}
	}
	return base, nil
}

// ToEtherBaseUnits converts an ether amount to wei, rounding sub-wei precision
func ToEtherBaseUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(EtherDecimals).Round(0)
}

// FormatUnits converts a base-unit amount back to a human-readable one
func FormatUnits(amount decimal.Decimal, decimals int) string {
	return amount.Shift(int32(-decimals)).String()
}

// isNullAddress reports whether addr is empty or the zero address
func isNullAddress(addr string) bool {
	return addr == "" || strings.EqualFold(addr, ZeroAddress)
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(normalizeOrNull(a), normalizeOrNull(b))
}

func normalizeOrNull(addr string) string {
	if addr == "" {
		return ZeroAddress
	}
	return addr
}

func unixNow(now time.Time) decimal.Decimal {
	return decimal.NewFromInt(now.Unix())
}

// canSettleOrder reports whether an order is inside its listing window at now
func canSettleOrder(listingTime, expirationTime, now decimal.Decimal) bool {
	return listingTime.LessThan(now) && (expirationTime.IsZero() || now.LessThan(expirationTime))
}

// toChainOrder converts the string/decimal order into the typed tuple the
// hasher and exchange consume
func toChainOrder(o *UnhashedOrder) (*chain.Order, error) {
	p := &orderParser{}
	order := &chain.Order{
		Exchange:           p.address("exchange", o.Exchange),
		Maker:              p.address("maker", o.Maker),
		Taker:              p.address("taker", o.Taker),
		MakerRelayerFee:    p.uint("makerRelayerFee", o.MakerRelayerFee),
		TakerRelayerFee:    p.uint("takerRelayerFee", o.TakerRelayerFee),
		MakerProtocolFee:   p.uint("makerProtocolFee", o.MakerProtocolFee),
		TakerProtocolFee:   p.uint("takerProtocolFee", o.TakerProtocolFee),
		FeeRecipient:       p.address("feeRecipient", o.FeeRecipient),
		FeeMethod:          o.FeeMethod,
		Side:               o.Side,
		SaleKind:           o.SaleKind,
		Target:             p.address("target", o.Target),
		HowToCall:          o.HowToCall,
		Calldata:           p.bytes("calldata", o.Calldata),
		ReplacementPattern: p.bytes("replacementPattern", o.ReplacementPattern),
		StaticTarget:       p.address("staticTarget", o.StaticTarget),
		StaticExtradata:    p.bytes("staticExtradata", o.StaticExtradata),
		PaymentToken:       p.address("paymentToken", o.PaymentToken),
		BasePrice:          p.uint("basePrice", o.BasePrice),
		Extra:              p.uint("extra", o.Extra),
		ListingTime:        p.uint("listingTime", o.ListingTime),
		ExpirationTime:     p.uint("expirationTime", o.ExpirationTime),
		Salt:               p.uint("salt", o.Salt),
		Nonce:              p.uint("nonce", o.Nonce),
	}
	if p.err != nil {
		return nil, p.err
	}
	return order, nil
}

// orderParser records the first conversion failure so a whole order can be
// converted without checking every field
type orderParser struct {
	err error
}

func (p *orderParser) fail(field, msg string) {
	if p.err == nil {
		p.err = &InvalidParamError{Message: fmt.Sprintf("invalid %s: %s", field, msg)}
	}
}

func (p *orderParser) address(field, value string) common.Address {
	if value == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(value) {
		p.fail(field, value)
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func (p *orderParser) bytes(field, value string) []byte {
	if value == "" || value == "0x" {
		return []byte{}
	}
	b, err := hexutil.Decode(value)
	if err != nil {
		p.fail(field, err.Error())
		return nil
	}
	return b
}

func (p *orderParser) uint(field string, value decimal.Decimal) *big.Int {
	if value.IsNegative() {
		p.fail(field, "must not be negative")
		return new(big.Int)
	}
	if !value.Equal(value.Truncate(0)) {
		p.fail(field, "must be an integer")
		return new(big.Int)
	}
	n := value.BigInt()
	if n.Cmp(maxUint256) > 0 {
		p.fail(field, "exceeds uint256")
		return new(big.Int)
	}
	return n
}

func decimalFromBig(n *big.Int) decimal.Decimal {
	if n == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, 0)
}

func lowerAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
