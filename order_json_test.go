package wyvernsdk

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func kittyMetadata(id string) OrderMetadata {
	return OrderMetadata{Asset: &WyvernAsset{ID: id, Address: testKitties}, Schema: WyvernSchemaERC721}
}

// toAPIOrder renders an order the way the orderbook returns it
func toAPIOrder(order *Order) APIOrder {
	a := APIOrder{
		OrderHash:          order.Hash,
		Metadata:           order.Metadata,
		Exchange:           order.Exchange,
		Maker:              APIAccount{Address: order.Maker},
		Taker:              APIAccount{Address: order.Taker},
		FeeRecipient:       APIAccount{Address: order.FeeRecipient},
		Quantity:           order.Quantity,
		CreatedDate:        "2023-11-14T22:13:20.123456",
		ListingTime:        order.ListingTime,
		ExpirationTime:     order.ExpirationTime,
		Salt:               order.Salt,
		MakerRelayerFee:    order.MakerRelayerFee,
		TakerRelayerFee:    order.TakerRelayerFee,
		MakerProtocolFee:   order.MakerProtocolFee,
		TakerProtocolFee:   order.TakerProtocolFee,
		MakerReferrerFee:   order.MakerReferrerFee,
		FeeMethod:          int(order.FeeMethod),
		Side:               int(order.Side),
		SaleKind:           int(order.SaleKind),
		Target:             order.Target,
		HowToCall:          int(order.HowToCall),
		Calldata:           order.Calldata,
		ReplacementPattern: order.ReplacementPattern,
		StaticTarget:       order.StaticTarget,
		StaticExtradata:    order.StaticExtradata,
		PaymentToken:       order.PaymentToken,
		BasePrice:          order.BasePrice,
		Extra:              order.Extra,
	}
	if !order.Nonce.IsZero() {
		nonce := order.Nonce
		a.Nonce = &nonce
	}
	if sig := order.ECSignature; sig != nil {
		v := sig.V
		a.V = &v
		a.R = sig.R.Hex()
		a.S = sig.S.Hex()
	}
	return a
}

func TestOrderJSONRoundTrip(t *testing.T) {
	hasher, err := NewOrderHasher(chain.ProtocolVersion23, ChainIDMainnet)
	require.NoError(t, err)
	order := signedTestOrder(t, hasher)
	order.Metadata = kittyMetadata("1")
	order.Quantity = decimal.NewFromInt(1)

	wire := OrderToJSON(order)
	require.Nil(t, wire.Nonce)
	require.NotNil(t, wire.V)
	require.Equal(t, order.ECSignature.R.Hex(), wire.R)

	raw, err := json.Marshal(wire)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.NotContains(t, fields, "nonce")
	require.Equal(t, "0x", fields["staticExtradata"])
	require.Equal(t, "1000", fields["basePrice"])

	var decoded OrderJSON
	require.NoError(t, json.Unmarshal(raw, &decoded))
	back, err := OrderFromJSON(&decoded)
	require.NoError(t, err)
	require.Equal(t, order.Hash, back.Hash)
	require.Equal(t, order.ECSignature, back.ECSignature)
	require.NoError(t, hasher.VerifyOrderHash(back))
	require.NoError(t, hasher.VerifySignature(back))
}

func TestOrderJSONRoundTripKeepsCounterOrderFlag(t *testing.T) {
	b := newTestBuilder()
	_, offer := matchingPair()
	offer.Side = OrderSideBuy
	offer.FeeRecipient = testFeeRecipient
	offer.Metadata = kittyMetadata("1")

	// Filling an offer yields a fixed-price sell with a null fee recipient
	fill, err := b.MakeMatchingOrder(MatchingOrderParams{Order: offer, AccountAddress: testSellerAddr})
	require.NoError(t, err)
	require.Equal(t, OrderSideSell, fill.Side)
	require.Equal(t, ZeroAddress, fill.FeeRecipient)
	require.False(t, fill.WaitingForBestCounterOrder)

	order := &Order{UnhashedOrder: *fill}
	raw, err := json.Marshal(OrderToJSON(order))
	require.NoError(t, err)
	var decoded OrderJSON
	require.NoError(t, json.Unmarshal(raw, &decoded))
	back, err := OrderFromJSON(&decoded)
	require.NoError(t, err)
	require.False(t, back.WaitingForBestCounterOrder)
	require.Equal(t, fill.FeeRecipient, back.FeeRecipient)
	require.Equal(t, fill.Calldata, back.Calldata)
	require.True(t, fill.Salt.Equal(back.Salt))

	order.WaitingForBestCounterOrder = true
	back, err = OrderFromJSON(OrderToJSON(order))
	require.NoError(t, err)
	require.True(t, back.WaitingForBestCounterOrder)

	// Wire orders without the flag fall back to the fee recipient rule
	legacy := OrderToJSON(&Order{UnhashedOrder: *fill})
	legacy.WaitingForBestCounterOrder = nil
	back, err = OrderFromJSON(legacy)
	require.NoError(t, err)
	require.True(t, back.WaitingForBestCounterOrder)
}

func TestOrderToJSONCarriesNonce(t *testing.T) {
	_, sell := matchingPair()
	sell.Nonce = dec("3")
	wire := OrderToJSON(sell)
	require.NotNil(t, wire.Nonce)
	require.True(t, dec("3").Equal(*wire.Nonce))
	require.Empty(t, wire.R)
}

func TestOrderFromJSONRejectsBadOrders(t *testing.T) {
	_, sell := matchingPair()
	sell.Metadata = kittyMetadata("1")

	badSide := OrderToJSON(sell)
	badSide.Side = 2
	_, err := OrderFromJSON(badSide)
	require.ErrorIs(t, err, ErrInvalidParam)

	badHowToCall := OrderToJSON(sell)
	badHowToCall.HowToCall = -1
	_, err = OrderFromJSON(badHowToCall)
	require.ErrorIs(t, err, ErrInvalidParam)

	badSchema := OrderToJSON(sell)
	badSchema.Metadata = OrderMetadata{Asset: &WyvernAsset{ID: "1", Address: testKitties}, Schema: "ERC998"}
	_, err = OrderFromJSON(badSchema)
	require.ErrorIs(t, err, ErrInvalidParam)

	badMaker := OrderToJSON(sell)
	badMaker.Maker = "0x1234"
	_, err = OrderFromJSON(badMaker)
	require.ErrorIs(t, err, ErrInvalidParam)
}

func TestValidateMetadata(t *testing.T) {
	require.NoError(t, ValidateMetadata(kittyMetadata("1")))

	both := kittyMetadata("1")
	both.Bundle = &WyvernBundle{}
	require.ErrorIs(t, ValidateMetadata(both), ErrInvalidParam)
	require.EqualError(t, ValidateMetadata(OrderMetadata{}), "Invalid order metadata")

	require.ErrorIs(t, ValidateMetadata(OrderMetadata{
		Asset:  &WyvernAsset{Address: testKitties, Quantity: "2"},
		Schema: WyvernSchemaERC1155,
	}), ErrInvalidParam)
	require.ErrorIs(t, ValidateMetadata(OrderMetadata{
		Asset:  &WyvernAsset{ID: "1", Address: testWETH, Quantity: "5"},
		Schema: WyvernSchemaERC20,
	}), ErrInvalidParam)

	bundle := &WyvernBundle{
		Assets:  []WyvernAsset{{ID: "1", Address: testKitties}, {ID: "2", Address: testKitties, Quantity: "3"}},
		Schemas: []WyvernSchemaName{WyvernSchemaERC721, WyvernSchemaERC1155},
	}
	require.NoError(t, ValidateMetadata(OrderMetadata{Bundle: bundle}))

	bundle.Schemas = bundle.Schemas[:1]
	require.ErrorIs(t, ValidateMetadata(OrderMetadata{Bundle: bundle}), ErrInvalidParam)
}

func TestAPIOrderToOrder(t *testing.T) {
	hasher, err := NewOrderHasher(chain.ProtocolVersion23, ChainIDMainnet)
	require.NoError(t, err)
	signed := signedTestOrder(t, hasher)
	signed.Metadata = kittyMetadata("1")

	api := toAPIOrder(signed)
	api.Maker.Address = common.HexToAddress(signed.Maker).Hex()
	current := dec("1025")
	api.CurrentPrice = &current

	order, err := api.ToOrder()
	require.NoError(t, err)
	require.Equal(t, signed.Maker, order.Maker)
	require.Equal(t, signed.Hash, order.Hash)
	require.True(t, current.Equal(*order.CurrentPrice))
	require.True(t, dec("1").Equal(order.Quantity))
	require.NotNil(t, order.CreatedTime)
	require.Equal(t, int64(1_700_000_000), order.CreatedTime.IntPart())
	require.False(t, order.WaitingForBestCounterOrder)
	require.NoError(t, hasher.VerifySignature(order))

	api.FeeRecipient.Address = ""
	english, err := api.ToOrder()
	require.NoError(t, err)
	require.True(t, english.WaitingForBestCounterOrder)
	require.Equal(t, ZeroAddress, english.FeeRecipient)

	api.Metadata = OrderMetadata{}
	_, err = api.ToOrder()
	require.ErrorIs(t, err, ErrInvalidParam)
}
