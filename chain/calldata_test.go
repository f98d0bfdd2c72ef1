package chain

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	testSeller     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testBuyer      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testAtomicizer = common.HexToAddress("0xc99f70bfd82fb7c8f8191fdfbfb735606b15e5c5")
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func maskedWords(mask []byte) []int {
	var words []int
	for i := 4; i+32 <= len(mask); i += 32 {
		if mask[i] == 0xff {
			words = append(words, (i-4)/32)
		}
	}
	return words
}

func TestEncodeSellERC721(t *testing.T) {
	asset := AssetRef{Address: testTarget, ID: big.NewInt(77)}
	enc, err := EncodeSell(SchemaERC721, asset, testSeller)
	require.NoError(t, err)

	require.Equal(t, testTarget, enc.Target)
	require.Equal(t, selector("transferFrom(address,address,uint256)"), enc.Calldata[:4])
	require.Len(t, enc.Calldata, 4+32*3)
	require.Len(t, enc.ReplacementPattern, len(enc.Calldata))

	require.Equal(t, common.LeftPadBytes(testSeller.Bytes(), 32), enc.Calldata[4:36])
	require.Equal(t, make([]byte, 32), enc.Calldata[36:68])
	require.Equal(t, common.LeftPadBytes(big.NewInt(77).Bytes(), 32), enc.Calldata[68:100])

	// Only the recipient may be replaced
	require.Equal(t, []int{1}, maskedWords(enc.ReplacementPattern))
	require.Equal(t, bytes.Repeat([]byte{0xff}, 32), enc.ReplacementPattern[36:68])
}

func TestEncodeBuyERC721(t *testing.T) {
	asset := AssetRef{Address: testTarget, ID: big.NewInt(77)}
	enc, err := EncodeBuy(SchemaERC721v3, asset, testBuyer)
	require.NoError(t, err)

	require.Equal(t, make([]byte, 32), enc.Calldata[4:36])
	require.Equal(t, common.LeftPadBytes(testBuyer.Bytes(), 32), enc.Calldata[36:68])
	// Only the owner may be replaced
	require.Equal(t, []int{0}, maskedWords(enc.ReplacementPattern))
}

func TestEncodeERC1155AndERC20(t *testing.T) {
	multi := AssetRef{Address: testTarget, ID: big.NewInt(5), Quantity: big.NewInt(3)}
	enc, err := EncodeSell(SchemaERC1155, multi, testSeller)
	require.NoError(t, err)
	require.Equal(t, selector("safeTransferFrom(address,address,uint256,uint256,bytes)"), enc.Calldata[:4])
	require.Equal(t, common.LeftPadBytes(big.NewInt(3).Bytes(), 32), enc.Calldata[100:132])
	require.Equal(t, []int{1}, maskedWords(enc.ReplacementPattern))

	fungible := AssetRef{Address: testTarget, Quantity: big.NewInt(1000)}
	enc, err = EncodeBuy(SchemaERC20, fungible, testBuyer)
	require.NoError(t, err)
	require.Equal(t, selector("transferFrom(address,address,uint256)"), enc.Calldata[:4])
	require.Equal(t, common.LeftPadBytes(big.NewInt(1000).Bytes(), 32), enc.Calldata[68:100])
}

func TestEncodeRejectsIncompleteAssets(t *testing.T) {
	_, err := EncodeSell(SchemaERC721, AssetRef{Address: testTarget}, testSeller)
	require.ErrorIs(t, err, ErrMissingTokenID)

	_, err = EncodeSell(SchemaERC20, AssetRef{Address: testTarget}, testSeller)
	require.ErrorIs(t, err, ErrMissingQuantity)

	_, err = EncodeSell(SchemaERC1155, AssetRef{Address: testTarget, ID: big.NewInt(1)}, testSeller)
	require.ErrorIs(t, err, ErrMissingQuantity)

	_, err = EncodeBuy("CryptoPunks", AssetRef{Address: testTarget, ID: big.NewInt(1)}, testBuyer)
	require.ErrorIs(t, err, ErrUnsupportedSchema)
}

// matches mirrors the exchange's calldata check: each side's calldata,
// after taking the counterparty's bytes where its mask allows, must agree
func matches(t *testing.T, buy, sell *EncodedCall) bool {
	t.Helper()
	buyData, err := ApplyReplacementPattern(buy.Calldata, sell.Calldata, buy.ReplacementPattern)
	require.NoError(t, err)
	sellData, err := ApplyReplacementPattern(sell.Calldata, buy.Calldata, sell.ReplacementPattern)
	require.NoError(t, err)
	return bytes.Equal(buyData, sellData)
}

func TestSellAndBuyCalldataMatch(t *testing.T) {
	for _, schema := range []SchemaName{SchemaERC721, SchemaERC721v3, SchemaERC1155} {
		t.Run(string(schema), func(t *testing.T) {
			asset := AssetRef{Address: testTarget, ID: big.NewInt(9), Quantity: big.NewInt(1)}
			sell, err := EncodeSell(schema, asset, testSeller)
			require.NoError(t, err)
			buy, err := EncodeBuy(schema, asset, testBuyer)
			require.NoError(t, err)
			require.True(t, matches(t, buy, sell))

			merged, err := ApplyReplacementPattern(sell.Calldata, buy.Calldata, sell.ReplacementPattern)
			require.NoError(t, err)
			require.Equal(t, common.LeftPadBytes(testSeller.Bytes(), 32), merged[4:36])
			require.Equal(t, common.LeftPadBytes(testBuyer.Bytes(), 32), merged[36:68])

			other, err := EncodeBuy(schema, AssetRef{Address: testTarget, ID: big.NewInt(10), Quantity: big.NewInt(1)}, testBuyer)
			require.NoError(t, err)
			require.False(t, matches(t, other, sell))
		})
	}
}

func TestAtomicizedBundleMatches(t *testing.T) {
	schemas := []SchemaName{SchemaERC721, SchemaERC1155}
	assets := []AssetRef{
		{Address: testTarget, ID: big.NewInt(1)},
		{Address: testExchange, ID: big.NewInt(2), Quantity: big.NewInt(4)},
	}

	sell, err := EncodeAtomicizedSell(schemas, assets, testSeller, testAtomicizer)
	require.NoError(t, err)
	buy, err := EncodeAtomicizedBuy(schemas, assets, testBuyer, testAtomicizer)
	require.NoError(t, err)

	require.Equal(t, testAtomicizer, sell.Target)
	require.Equal(t, selector("atomicize(address[],uint256[],uint256[],bytes)"), sell.Calldata[:4])
	require.Len(t, sell.ReplacementPattern, len(sell.Calldata))
	require.True(t, matches(t, buy, sell))

	// One masked word per asset, all inside the trailing calldata blob
	set := 0
	for _, b := range sell.ReplacementPattern {
		if b == 0xff {
			set++
		}
	}
	require.Equal(t, 32*len(assets), set)

	first := bytes.IndexByte(sell.ReplacementPattern, 0xff)
	blob := (4 + 32*3) + (4 + 32*6)
	require.Greater(t, first, len(sell.Calldata)-paddedLen(blob)-1)
}

func TestAtomicizedRejectsSchemaMismatch(t *testing.T) {
	_, err := EncodeAtomicizedSell([]SchemaName{SchemaERC721}, nil, testSeller, testAtomicizer)
	require.ErrorIs(t, err, ErrSchemaCount)
}

func TestApplyReplacementPattern(t *testing.T) {
	out, err := ApplyReplacementPattern(
		[]byte{0x11, 0x22, 0x33},
		[]byte{0xaa, 0xbb, 0xcc},
		[]byte{0x00, 0xff, 0x0f},
	)
	require.NoError(t, err)
	require.Equal(t, []byte{0x11, 0xbb, 0x3c}, out)

	_, err = ApplyReplacementPattern([]byte{1}, []byte{1, 2}, []byte{0})
	require.Error(t, err)
}

func TestSchemaName(t *testing.T) {
	require.True(t, SchemaERC721v3.Valid())
	require.False(t, SchemaName("ENSShortNameAuction").Valid())
	require.True(t, SchemaERC1155.Fungible())
	require.False(t, SchemaERC721.Fungible())
}
