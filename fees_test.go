package wyvernsdk

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const (
	feeTestContract  = "0x8562c38485b1e8ccd82e44f89823da76c98eb0ab"
	testFeeRecipient = "0x5b3256965e7c3cf26e11fcaf296dfc8807c01073"
)

type stubTransferFees struct {
	settings *chain.TransferFeeSettings
	err      error
	calls    int
}

func (s *stubTransferFees) TransferFeeSettings(context.Context, common.Address, *big.Int) (*chain.TransferFeeSettings, error) {
	s.calls++
	return s.settings, s.err
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func assetWithFees(openSeaSeller, devSeller int) *AssetWithFees {
	id := "42"
	return &AssetWithFees{
		Asset: Asset{TokenID: &id, TokenAddress: feeTestContract, SchemaName: WyvernSchemaERC1155},
		Collection: CollectionFees{
			OpenSeaBuyerFeeBasisPoints:  0,
			OpenSeaSellerFeeBasisPoints: openSeaSeller,
			DevBuyerFeeBasisPoints:      0,
			DevSellerFeeBasisPoints:     devSeller,
		},
	}
}

func TestComputeFeesDefaults(t *testing.T) {
	fc := NewFeeCalculator(nil, nil, quietLogger())
	fees, err := fc.ComputeFees(context.Background(), FeeRequest{Side: OrderSideBuy})
	require.NoError(t, err)
	require.Equal(t, DefaultSellerFeeBasisPoints, fees.TotalSellerFeeBasisPoints)
	require.Equal(t, DefaultBuyerFeeBasisPoints, fees.TotalBuyerFeeBasisPoints)
	require.True(t, fees.TransferFee.IsZero())
}

func TestComputeFeesFromCollection(t *testing.T) {
	fc := NewFeeCalculator(nil, nil, quietLogger())
	fees, err := fc.ComputeFees(context.Background(), FeeRequest{
		Asset:                  assetWithFees(250, 500),
		Side:                   OrderSideSell,
		ExtraBountyBasisPoints: 100,
	})
	require.NoError(t, err)
	require.Equal(t, 750, fees.TotalSellerFeeBasisPoints)
	require.Equal(t, 100, fees.SellerBountyBasisPoints)

	// Bounties only apply to sells
	fees, err = fc.ComputeFees(context.Background(), FeeRequest{
		Asset:                  assetWithFees(250, 500),
		Side:                   OrderSideBuy,
		ExtraBountyBasisPoints: 5000,
	})
	require.NoError(t, err)
	require.Zero(t, fees.SellerBountyBasisPoints)
}

func TestComputeFeesRejectsLargeBounty(t *testing.T) {
	fc := NewFeeCalculator(nil, nil, quietLogger())
	_, err := fc.ComputeFees(context.Background(), FeeRequest{
		Asset:                  assetWithFees(250, 0),
		Side:                   OrderSideSell,
		ExtraBountyBasisPoints: 200,
	})
	require.Error(t, err)

	var policyErr *FeePolicyError
	require.True(t, errors.As(err, &policyErr))
	require.Contains(t, err.Error(), "Total bounty exceeds the maximum for this asset type (2.5%).")
	require.Contains(t, err.Error(), "OpenSea will add 1%")

	// A collection with a higher seller fee raises the ceiling
	_, err = fc.ComputeFees(context.Background(), FeeRequest{
		Asset:                  assetWithFees(1000, 0),
		Side:                   OrderSideSell,
		ExtraBountyBasisPoints: 200,
	})
	require.NoError(t, err)
}

func TestComputeFeesTransferFee(t *testing.T) {
	orderbookFee := dec("7")
	asset := assetWithFees(250, 0)
	asset.TransferFee = &orderbookFee

	t.Run("orderbook value without reader", func(t *testing.T) {
		fc := NewFeeCalculator(nil, []string{feeTestContract}, quietLogger())
		fees, err := fc.ComputeFees(context.Background(), FeeRequest{Asset: asset, Side: OrderSideSell})
		require.NoError(t, err)
		require.True(t, dec("7").Equal(fees.TransferFee))
	})

	t.Run("live read for listed contracts", func(t *testing.T) {
		enj := common.HexToAddress(chain.EnjinCoinAddress)
		reader := &stubTransferFees{settings: &chain.TransferFeeSettings{Fee: big.NewInt(30), FeeTokenAddr: &enj}}
		fc := NewFeeCalculator(reader, []string{feeTestContract}, quietLogger())
		fees, err := fc.ComputeFees(context.Background(), FeeRequest{Asset: asset, Side: OrderSideSell})
		require.NoError(t, err)
		require.True(t, dec("30").Equal(fees.TransferFee))
		require.Equal(t, chain.EnjinCoinAddress, *fees.TransferFeeTokenAddress)
	})

	t.Run("unlisted contract is not read", func(t *testing.T) {
		reader := &stubTransferFees{settings: &chain.TransferFeeSettings{Fee: big.NewInt(30)}}
		fc := NewFeeCalculator(reader, nil, quietLogger())
		fees, err := fc.ComputeFees(context.Background(), FeeRequest{Asset: asset, Side: OrderSideSell})
		require.NoError(t, err)
		require.Zero(t, reader.calls)
		require.True(t, dec("7").Equal(fees.TransferFee))
	})

	t.Run("read failure keeps orderbook value", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reader := &stubTransferFees{err: errors.New("execution reverted")}
		fc := NewFeeCalculator(reader, []string{feeTestContract}, logger)
		fees, err := fc.ComputeFees(context.Background(), FeeRequest{Asset: asset, Side: OrderSideSell})
		require.NoError(t, err)
		require.True(t, dec("7").Equal(fees.TransferFee))
		require.Equal(t, 1, reader.calls)
		require.NotNil(t, hook.LastEntry())
		require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	})
}

func TestValidateFees(t *testing.T) {
	require.NoError(t, ValidateFees(0, 10000))
	require.ErrorIs(t, ValidateFees(10001, 0), ErrInvalidParam)
	require.ErrorIs(t, ValidateFees(0, -1), ErrInvalidParam)
}

func TestSellFeeParameters(t *testing.T) {
	fees := &ComputedFees{TotalBuyerFeeBasisPoints: 0, TotalSellerFeeBasisPoints: 750, SellerBountyBasisPoints: 100}

	params, err := SellFeeParameters(fees, false, testFeeRecipient)
	require.NoError(t, err)
	require.True(t, dec("750").Equal(params.MakerRelayerFee))
	require.True(t, params.TakerRelayerFee.IsZero())
	require.True(t, dec("100").Equal(params.MakerReferrerFee))
	require.Equal(t, testFeeRecipient, params.FeeRecipient)
	require.Equal(t, FeeMethodSplitFee, params.FeeMethod)

	english, err := SellFeeParameters(fees, true, testFeeRecipient)
	require.NoError(t, err)
	require.True(t, english.MakerRelayerFee.IsZero())
	require.True(t, dec("750").Equal(english.TakerRelayerFee))
	require.Equal(t, ZeroAddress, english.FeeRecipient)
	require.True(t, english.MakerReferrerFee.IsZero())

	_, err = SellFeeParameters(&ComputedFees{TotalSellerFeeBasisPoints: 20000}, false, testFeeRecipient)
	require.ErrorIs(t, err, ErrInvalidParam)
}

func TestBuyFeeParameters(t *testing.T) {
	fees := &ComputedFees{TotalBuyerFeeBasisPoints: 0, TotalSellerFeeBasisPoints: 250}

	params, err := BuyFeeParameters(fees, nil, testFeeRecipient)
	require.NoError(t, err)
	require.True(t, params.MakerRelayerFee.IsZero())
	require.True(t, dec("250").Equal(params.TakerRelayerFee))

	sell := &UnhashedOrder{MakerRelayerFee: dec("500"), TakerRelayerFee: dec("10")}
	params, err = BuyFeeParameters(fees, sell, testFeeRecipient)
	require.NoError(t, err)
	require.True(t, dec("10").Equal(params.MakerRelayerFee))
	require.True(t, dec("500").Equal(params.TakerRelayerFee))

	sell.WaitingForBestCounterOrder = true
	params, err = BuyFeeParameters(fees, sell, testFeeRecipient)
	require.NoError(t, err)
	require.True(t, dec("500").Equal(params.MakerRelayerFee))
	require.True(t, dec("10").Equal(params.TakerRelayerFee))
}
