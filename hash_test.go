package wyvernsdk

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testSigner(t *testing.T) *chain.PrivateKeySigner {
	t.Helper()
	signer, err := chain.NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)
	return signer
}

func signedTestOrder(t *testing.T, hasher *OrderHasher) *Order {
	t.Helper()
	signer := testSigner(t)
	_, sell := matchingPair()
	sell.Maker = chain.NormalizeAddress(signer.Address().Hex())

	hash, err := hasher.GetOrderHash(&sell.UnhashedOrder)
	require.NoError(t, err)
	sell.Hash = hash

	var raw string
	if hasher.Version() == chain.ProtocolVersion22 {
		// 2.2 wallets personal-sign the packed order hash
		raw, err = signer.PersonalSign(context.Background(), common.HexToHash(hash).Bytes(), "")
	} else {
		digest, digestErr := hasher.SignatureDigest(&sell.UnhashedOrder)
		require.NoError(t, digestErr)
		raw, err = signer.SignHash(context.Background(), digest.Bytes(), "")
	}
	require.NoError(t, err)
	sell.ECSignature, err = chain.ParseSignatureHex(raw)
	require.NoError(t, err)
	return sell
}

func TestOrderHasherVersions(t *testing.T) {
	_, sell := matchingPair()

	v23, err := NewOrderHasher(chain.ProtocolVersion23, ChainIDMainnet)
	require.NoError(t, err)
	v22, err := NewOrderHasher(chain.ProtocolVersion22, ChainIDMainnet)
	require.NoError(t, err)
	rinkeby, err := NewOrderHasher(chain.ProtocolVersion23, ChainIDRinkeby)
	require.NoError(t, err)

	h23, err := v23.GetOrderHash(&sell.UnhashedOrder)
	require.NoError(t, err)
	h22, err := v22.GetOrderHash(&sell.UnhashedOrder)
	require.NoError(t, err)
	hRinkeby, err := rinkeby.GetOrderHash(&sell.UnhashedOrder)
	require.NoError(t, err)

	require.Len(t, h23, 66)
	require.NotEqual(t, h23, h22)
	require.NotEqual(t, h23, hRinkeby)

	again, err := v23.GetOrderHash(&sell.UnhashedOrder)
	require.NoError(t, err)
	require.Equal(t, h23, again)

	_, err = NewOrderHasher("1.0", ChainIDMainnet)
	require.Error(t, err)
}

func TestGetOrderHashRejectsMalformedOrders(t *testing.T) {
	hasher, err := NewOrderHasher(chain.ProtocolVersion23, ChainIDMainnet)
	require.NoError(t, err)

	_, sell := matchingPair()
	sell.Maker = "0xnot-an-address"
	_, err = hasher.GetOrderHash(&sell.UnhashedOrder)
	require.ErrorIs(t, err, ErrInvalidParam)

	_, sell = matchingPair()
	sell.BasePrice = dec("-1")
	_, err = hasher.GetOrderHash(&sell.UnhashedOrder)
	require.ErrorIs(t, err, ErrInvalidParam)

	_, sell = matchingPair()
	sell.Calldata = "0xzz"
	_, err = hasher.GetOrderHash(&sell.UnhashedOrder)
	require.ErrorIs(t, err, ErrInvalidParam)
}

func TestVerifyOrderHash(t *testing.T) {
	hasher, err := NewOrderHasher(chain.ProtocolVersion23, ChainIDMainnet)
	require.NoError(t, err)
	order := signedTestOrder(t, hasher)

	require.NoError(t, hasher.VerifyOrderHash(order))

	order.BasePrice = order.BasePrice.Add(dec("1"))
	require.ErrorIs(t, hasher.VerifyOrderHash(order), ErrCorruptOrder)
}

func TestVerifySignature(t *testing.T) {
	for _, version := range []chain.ProtocolVersion{chain.ProtocolVersion22, chain.ProtocolVersion23} {
		t.Run(string(version), func(t *testing.T) {
			hasher, err := NewOrderHasher(version, ChainIDMainnet)
			require.NoError(t, err)
			order := signedTestOrder(t, hasher)
			require.NoError(t, hasher.VerifySignature(order))

			// A signature over different contents no longer recovers to the maker
			tampered := *order
			tampered.Salt = tampered.Salt.Add(dec("1"))
			err = hasher.VerifySignature(&tampered)
			require.ErrorIs(t, err, ErrInvalidSignature)

			unsigned := *order
			unsigned.ECSignature = nil
			var sigErr *chain.SignatureError
			require.True(t, errors.As(hasher.VerifySignature(&unsigned), &sigErr))
		})
	}
}
