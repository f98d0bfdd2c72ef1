package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
)

var (
	testExchange = common.HexToAddress("0x7f268357a8c2552623316e2562d90e642bb538e5")
	testMaker    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTarget   = common.HexToAddress("0x06012c8cf97bead5deae237070f9587f8e7a266d")
	testFeeTo    = common.HexToAddress("0x5b3256965e7c3cf26e11fcaf296dfc8807c01073")
)

func sampleOrder() *Order {
	return &Order{
		Exchange:           testExchange,
		Maker:              testMaker,
		MakerRelayerFee:    big.NewInt(250),
		TakerRelayerFee:    big.NewInt(0),
		MakerProtocolFee:   big.NewInt(0),
		TakerProtocolFee:   big.NewInt(0),
		FeeRecipient:       testFeeTo,
		FeeMethod:          FeeMethodSplitFee,
		Side:               SideSell,
		SaleKind:           SaleKindFixedPrice,
		Target:             testTarget,
		HowToCall:          HowToCallCall,
		Calldata:           common.FromHex("0x23b872dd0000000000000000000000001111111111111111111111111111111111111111"),
		ReplacementPattern: common.FromHex("0x00000000ffffffffffffffffffffffffffffffffffffffff"),
		StaticExtradata:    []byte{},
		BasePrice:          new(big.Int).Mul(big.NewInt(5), big.NewInt(1e17)),
		Extra:              big.NewInt(0),
		ListingTime:        big.NewInt(1_600_000_000),
		ExpirationTime:     big.NewInt(1_600_086_400),
		Salt:               big.NewInt(424242),
		Nonce:              big.NewInt(0),
	}
}

func orderTypedData(order *Order, chainID int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "exchange", Type: "address"},
				{Name: "maker", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "makerRelayerFee", Type: "uint256"},
				{Name: "takerRelayerFee", Type: "uint256"},
				{Name: "makerProtocolFee", Type: "uint256"},
				{Name: "takerProtocolFee", Type: "uint256"},
				{Name: "feeRecipient", Type: "address"},
				{Name: "feeMethod", Type: "uint8"},
				{Name: "side", Type: "uint8"},
				{Name: "saleKind", Type: "uint8"},
				{Name: "target", Type: "address"},
				{Name: "howToCall", Type: "uint8"},
				{Name: "calldata", Type: "bytes"},
				{Name: "replacementPattern", Type: "bytes"},
				{Name: "staticTarget", Type: "address"},
				{Name: "staticExtradata", Type: "bytes"},
				{Name: "paymentToken", Type: "address"},
				{Name: "basePrice", Type: "uint256"},
				{Name: "extra", Type: "uint256"},
				{Name: "listingTime", Type: "uint256"},
				{Name: "expirationTime", Type: "uint256"},
				{Name: "salt", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              EIP712DomainName,
			Version:           EIP712DomainVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: order.Exchange.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"exchange":           order.Exchange.Hex(),
			"maker":              order.Maker.Hex(),
			"taker":              order.Taker.Hex(),
			"makerRelayerFee":    order.MakerRelayerFee.String(),
			"takerRelayerFee":    order.TakerRelayerFee.String(),
			"makerProtocolFee":   order.MakerProtocolFee.String(),
			"takerProtocolFee":   order.TakerProtocolFee.String(),
			"feeRecipient":       order.FeeRecipient.Hex(),
			"feeMethod":          big.NewInt(int64(order.FeeMethod)).String(),
			"side":               big.NewInt(int64(order.Side)).String(),
			"saleKind":           big.NewInt(int64(order.SaleKind)).String(),
			"target":             order.Target.Hex(),
			"howToCall":          big.NewInt(int64(order.HowToCall)).String(),
			"calldata":           hexutil.Encode(order.Calldata),
			"replacementPattern": hexutil.Encode(order.ReplacementPattern),
			"staticTarget":       order.StaticTarget.Hex(),
			"staticExtradata":    hexutil.Encode(order.StaticExtradata),
			"paymentToken":       order.PaymentToken.Hex(),
			"basePrice":          order.BasePrice.String(),
			"extra":              order.Extra.String(),
			"listingTime":        order.ListingTime.String(),
			"expirationTime":     order.ExpirationTime.String(),
			"salt":               order.Salt.String(),
			"nonce":              order.Nonce.String(),
		},
	}
}

func TestOrderTypeHashMatchesTypedData(t *testing.T) {
	typed := orderTypedData(sampleOrder(), 1)
	require.Equal(t, OrderTypeHash.Bytes(), []byte(typed.TypeHash("Order")))
	require.Equal(t, EIP712DomainTypeHash.Bytes(), []byte(typed.TypeHash("EIP712Domain")))
}

func TestCreateOrderSignHashMatchesTypedData(t *testing.T) {
	order := sampleOrder()
	typed := orderTypedData(order, 1)

	expected, _, err := apitypes.TypedDataAndHash(typed)
	require.NoError(t, err)

	got := CreateOrderSignHash(NewEIP712Domain(big.NewInt(1), order.Exchange), order)
	require.Equal(t, common.BytesToHash(expected), got)
}

func TestHashIsDeterministicAndFieldSensitive(t *testing.T) {
	hasher, err := NewOrderHasher(ProtocolVersion23, testExchange, big.NewInt(1))
	require.NoError(t, err)

	a, b := sampleOrder(), sampleOrder()
	require.Equal(t, hasher.Hash(a), hasher.Hash(b))

	b.Salt = big.NewInt(424243)
	require.NotEqual(t, hasher.Hash(a), hasher.Hash(b))

	c := sampleOrder()
	c.Nonce = big.NewInt(1)
	require.NotEqual(t, hasher.Hash(a), hasher.Hash(c))

	legacy, err := NewOrderHasher(ProtocolVersion22, testExchange, nil)
	require.NoError(t, err)
	// The legacy hash ignores the nonce
	require.Equal(t, legacy.Hash(a), legacy.Hash(c))
	require.NotEqual(t, legacy.Hash(a), hasher.Hash(a))
}

func TestHashDependsOnDomain(t *testing.T) {
	order := sampleOrder()
	mainnet, err := NewOrderHasher(ProtocolVersion23, testExchange, big.NewInt(1))
	require.NoError(t, err)
	rinkeby, err := NewOrderHasher(ProtocolVersion23, testExchange, big.NewInt(4))
	require.NoError(t, err)
	other, err := NewOrderHasher(ProtocolVersion23, testTarget, big.NewInt(1))
	require.NoError(t, err)

	require.NotEqual(t, mainnet.Hash(order), rinkeby.Hash(order))
	require.NotEqual(t, mainnet.Hash(order), other.Hash(order))
}

func TestSignatureDigest(t *testing.T) {
	order := sampleOrder()

	legacy, err := NewOrderHasher(ProtocolVersion22, testExchange, nil)
	require.NoError(t, err)
	require.Equal(t, HashToSign(order.LegacyHash()), legacy.SignatureDigest(order))

	v23, err := NewOrderHasher(ProtocolVersion23, testExchange, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, v23.Hash(order), v23.SignatureDigest(order))
}

func TestNewOrderHasherValidation(t *testing.T) {
	_, err := NewOrderHasher(ProtocolVersion23, testExchange, nil)
	require.ErrorIs(t, err, ErrMissingChainID)

	_, err = NewOrderHasher(ProtocolVersion23, testExchange, big.NewInt(0))
	require.ErrorIs(t, err, ErrMissingChainID)

	_, err = NewOrderHasher("3.0", testExchange, big.NewInt(1))
	require.ErrorIs(t, err, ErrUnknownProtocolVersion)
}

func TestLegacyHashLayout(t *testing.T) {
	order := sampleOrder()
	order.Calldata = nil
	order.ReplacementPattern = nil
	order.StaticExtradata = nil

	// 7 addresses, 9 words and 4 enum bytes, no dynamic data
	expected := make([]byte, 0, 20*7+32*9+4)
	expected = append(expected, order.Exchange.Bytes()...)
	expected = append(expected, order.Maker.Bytes()...)
	expected = append(expected, order.Taker.Bytes()...)
	expected = append(expected, word(order.MakerRelayerFee)...)
	expected = append(expected, word(order.TakerRelayerFee)...)
	expected = append(expected, word(order.MakerProtocolFee)...)
	expected = append(expected, word(order.TakerProtocolFee)...)
	expected = append(expected, order.FeeRecipient.Bytes()...)
	expected = append(expected, 1, 1, 0)
	expected = append(expected, order.Target.Bytes()...)
	expected = append(expected, 0)
	expected = append(expected, order.StaticTarget.Bytes()...)
	expected = append(expected, order.PaymentToken.Bytes()...)
	expected = append(expected, word(order.BasePrice)...)
	expected = append(expected, word(order.Extra)...)
	expected = append(expected, word(order.ListingTime)...)
	expected = append(expected, word(order.ExpirationTime)...)
	expected = append(expected, word(order.Salt)...)

	require.Len(t, expected, 20*7+32*9+4)
	require.Equal(t, crypto.Keccak256Hash(expected), order.LegacyHash())
}
