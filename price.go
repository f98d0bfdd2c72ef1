package wyvernsdk

import (
	"time"

	"github.com/shopspring/decimal"
)

var inverseBasisPoint = decimal.NewFromInt(InverseBasisPoint)

// EstimateCurrentPrice estimates an order's price now, backdated by
// secondsToBacktrack to absorb chain clock lag
func EstimateCurrentPrice(order *Order, secondsToBacktrack int64, shouldRoundUp bool) decimal.Decimal {
	return EstimateCurrentPriceAt(&order.UnhashedOrder, time.Now(), secondsToBacktrack, shouldRoundUp)
}

// EstimateCurrentPriceAt estimates the price of an order at the given time.
//
// Dutch auctions move linearly by extra across the listing window: sell
// orders fall from basePrice, buy orders rise. Elapsed time is clamped to
// the window, and a window that is empty or inverted prices as fixed. Public
// sell orders also include the taker relayer fee the buyer pays on top. The
// result is exact and then rounded up or truncated.
func EstimateCurrentPriceAt(order *UnhashedOrder, now time.Time, secondsToBacktrack int64, shouldRoundUp bool) decimal.Decimal {
	num := order.BasePrice
	den := decimal.NewFromInt(1)

	if order.SaleKind == SaleKindDutchAuction {
		duration := order.ExpirationTime.Sub(order.ListingTime)
		if duration.IsPositive() {
			t := decimal.NewFromInt(now.Unix() - secondsToBacktrack)
			elapsed := t.Sub(order.ListingTime)
			if elapsed.IsNegative() {
				elapsed = decimal.Zero
			}
			if elapsed.GreaterThan(duration) {
				elapsed = duration
			}

			diff := order.Extra.Mul(elapsed)
			num = order.BasePrice.Mul(duration)
			if order.Side == OrderSideSell {
				num = num.Sub(diff)
			} else {
				num = num.Add(diff)
			}
			den = duration
		}
	}

	if order.Side == OrderSideSell && !order.WaitingForBestCounterOrder {
		num = num.Mul(inverseBasisPoint.Add(order.TakerRelayerFee))
		den = den.Mul(inverseBasisPoint)
	}

	q, r := num.QuoRem(den, 0)
	if shouldRoundUp && r.IsPositive() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q
}
