package wyvernsdk

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TransferFeeReader reads issuer-defined transfer fees from chain
type TransferFeeReader interface {
	TransferFeeSettings(ctx context.Context, token common.Address, tokenID *big.Int) (*chain.TransferFeeSettings, error)
}

// FeeRequest describes the order a fee computation is for
type FeeRequest struct {
	Asset                  *AssetWithFees
	Side                   OrderSide
	ExtraBountyBasisPoints int
	AccountAddress         string
}

// FeeCalculator computes the fee breakdown of an order
type FeeCalculator struct {
	transferFees         TransferFeeReader
	transferFeeContracts map[string]struct{}
	log                  *logrus.Entry
}

// NewFeeCalculator creates a FeeCalculator. reader may be nil, in which case
// only the transfer fees the orderbook reports are used.
func NewFeeCalculator(reader TransferFeeReader, transferFeeContracts []string, logger *logrus.Logger) *FeeCalculator {
	contracts := make(map[string]struct{}, len(transferFeeContracts))
	for _, addr := range transferFeeContracts {
		contracts[strings.ToLower(addr)] = struct{}{}
	}
	return &FeeCalculator{
		transferFees:         reader,
		transferFeeContracts: contracts,
		log:                  componentLogger(logger, "fees"),
	}
}

// ComputeFees computes the fees for one side of an order. Without an asset
// the default schedule applies.
func (fc *FeeCalculator) ComputeFees(ctx context.Context, req FeeRequest) (*ComputedFees, error) {
	fees := &ComputedFees{
		OpenSeaBuyerFeeBasisPoints:  DefaultBuyerFeeBasisPoints,
		OpenSeaSellerFeeBasisPoints: DefaultSellerFeeBasisPoints,
		TransferFee:                 decimal.Zero,
	}

	maxTotalBountyBPS := DefaultMaxBounty
	if req.Asset != nil {
		fees.OpenSeaBuyerFeeBasisPoints = req.Asset.Collection.OpenSeaBuyerFeeBasisPoints
		fees.OpenSeaSellerFeeBasisPoints = req.Asset.Collection.OpenSeaSellerFeeBasisPoints
		fees.DevBuyerFeeBasisPoints = req.Asset.Collection.DevBuyerFeeBasisPoints
		fees.DevSellerFeeBasisPoints = req.Asset.Collection.DevSellerFeeBasisPoints
		if fees.OpenSeaSellerFeeBasisPoints > maxTotalBountyBPS {
			maxTotalBountyBPS = fees.OpenSeaSellerFeeBasisPoints
		}
	}

	if req.Side == OrderSideSell && req.Asset != nil {
		fc.applyTransferFee(ctx, req.Asset, fees)
	}

	if req.Side == OrderSideSell {
		fees.SellerBountyBasisPoints = req.ExtraBountyBasisPoints
	}

	bountyTooLarge := fees.SellerBountyBasisPoints+OpenSeaSellerBountyBasisPoints > maxTotalBountyBPS
	if fees.SellerBountyBasisPoints > 0 && bountyTooLarge {
		msg := fmt.Sprintf("Total bounty exceeds the maximum for this asset type (%s%%).", percent(maxTotalBountyBPS))
		if maxTotalBountyBPS >= OpenSeaSellerBountyBasisPoints {
			msg += fmt.Sprintf(" Remember that OpenSea will add %s%% for referrers with OpenSea accounts!", percent(OpenSeaSellerBountyBasisPoints))
		}
		return nil, &FeePolicyError{Message: msg}
	}

	fees.TotalBuyerFeeBasisPoints = fees.OpenSeaBuyerFeeBasisPoints + fees.DevBuyerFeeBasisPoints
	fees.TotalSellerFeeBasisPoints = fees.OpenSeaSellerFeeBasisPoints + fees.DevSellerFeeBasisPoints
	return fees, nil
}

// applyTransferFee starts from what the orderbook reports and refines it
// with a live read for whitelisted contracts. Read failures keep the
// orderbook's values.
func (fc *FeeCalculator) applyTransferFee(ctx context.Context, asset *AssetWithFees, fees *ComputedFees) {
	if asset.TransferFee != nil {
		fees.TransferFee = *asset.TransferFee
	}
	fees.TransferFeeTokenAddress = asset.TransferFeeTokenAddress

	if fc.transferFees == nil || asset.TokenID == nil {
		return
	}
	if _, ok := fc.transferFeeContracts[strings.ToLower(asset.TokenAddress)]; !ok {
		return
	}
	tokenID, ok := new(big.Int).SetString(*asset.TokenID, 10)
	if !ok {
		return
	}

	settings, err := fc.transferFees.TransferFeeSettings(ctx, common.HexToAddress(asset.TokenAddress), tokenID)
	if err != nil {
		fc.log.WithError(err).WithField("token", asset.TokenAddress).Warn("transfer fee read failed, using orderbook value")
		return
	}
	if settings.Fee != nil {
		fees.TransferFee = decimalFromBig(settings.Fee)
	}
	if settings.FeeTokenAddr != nil {
		addr := lowerAddress(*settings.FeeTokenAddr)
		fees.TransferFeeTokenAddress = &addr
	}
}

func percent(basisPoints int) string {
	return decimal.NewFromInt(int64(basisPoints)).Div(decimal.NewFromInt(100)).String()
}

// ValidateFees rejects fee totals outside [0, 100%]
func ValidateFees(totalBuyerFeeBasisPoints, totalSellerFeeBasisPoints int) error {
	if totalBuyerFeeBasisPoints > InverseBasisPoint || totalSellerFeeBasisPoints > InverseBasisPoint {
		return &InvalidParamError{Message: fmt.Sprintf("Invalid buyer/seller fees: must be less than %d%%", InverseBasisPoint/100)}
	}
	if totalBuyerFeeBasisPoints < 0 || totalSellerFeeBasisPoints < 0 {
		return &InvalidParamError{Message: "Invalid buyer/seller fees: must be at least 0%"}
	}
	return nil
}

// FeeParameters are the fee fields written onto an order
type FeeParameters struct {
	MakerRelayerFee  decimal.Decimal
	TakerRelayerFee  decimal.Decimal
	MakerProtocolFee decimal.Decimal
	TakerProtocolFee decimal.Decimal
	MakerReferrerFee decimal.Decimal
	FeeRecipient     string
	FeeMethod        FeeMethod
}

// BuyFeeParameters maps fees onto a buy order. A buy built against a sell
// order copies its relayer fees so only that sell can match it.
func BuyFeeParameters(fees *ComputedFees, sellOrder *UnhashedOrder, feeRecipient string) (*FeeParameters, error) {
	if err := ValidateFees(fees.TotalBuyerFeeBasisPoints, fees.TotalSellerFeeBasisPoints); err != nil {
		return nil, err
	}

	makerRelayerFee := decimal.NewFromInt(int64(fees.TotalBuyerFeeBasisPoints))
	takerRelayerFee := decimal.NewFromInt(int64(fees.TotalSellerFeeBasisPoints))
	if sellOrder != nil {
		if sellOrder.WaitingForBestCounterOrder {
			makerRelayerFee, takerRelayerFee = sellOrder.MakerRelayerFee, sellOrder.TakerRelayerFee
		} else {
			makerRelayerFee, takerRelayerFee = sellOrder.TakerRelayerFee, sellOrder.MakerRelayerFee
		}
	}

	return &FeeParameters{
		MakerRelayerFee:  makerRelayerFee,
		TakerRelayerFee:  takerRelayerFee,
		MakerProtocolFee: decimal.Zero,
		TakerProtocolFee: decimal.Zero,
		MakerReferrerFee: decimal.Zero,
		FeeRecipient:     feeRecipient,
		FeeMethod:        FeeMethodSplitFee,
	}, nil
}

// SellFeeParameters maps fees onto a sell order. English auction sells are
// takers of the winning bid, so their relayer fees swap and they carry
// neither a fee recipient nor a referrer bounty.
func SellFeeParameters(fees *ComputedFees, waitForHighestBid bool, feeRecipient string) (*FeeParameters, error) {
	if err := ValidateFees(fees.TotalBuyerFeeBasisPoints, fees.TotalSellerFeeBasisPoints); err != nil {
		return nil, err
	}

	params := &FeeParameters{
		MakerRelayerFee:  decimal.NewFromInt(int64(fees.TotalSellerFeeBasisPoints)),
		TakerRelayerFee:  decimal.NewFromInt(int64(fees.TotalBuyerFeeBasisPoints)),
		MakerProtocolFee: decimal.Zero,
		TakerProtocolFee: decimal.Zero,
		MakerReferrerFee: decimal.NewFromInt(int64(fees.SellerBountyBasisPoints)),
		FeeRecipient:     feeRecipient,
		FeeMethod:        FeeMethodSplitFee,
	}
	if waitForHighestBid {
		params.MakerRelayerFee, params.TakerRelayerFee = params.TakerRelayerFee, params.MakerRelayerFee
		params.MakerReferrerFee = decimal.Zero
		params.FeeRecipient = ZeroAddress
	}
	return params, nil
}
