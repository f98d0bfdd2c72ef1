package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SchemaName identifies the token standard an asset transfer is encoded for
type SchemaName string

const (
	SchemaERC20    SchemaName = "ERC20"
	SchemaERC721   SchemaName = "ERC721"
	SchemaERC721v3 SchemaName = "ERC721v3"
	SchemaERC1155  SchemaName = "ERC1155"
)

// Valid reports whether the schema is one the encoder supports
func (s SchemaName) Valid() bool {
	switch s {
	case SchemaERC20, SchemaERC721, SchemaERC721v3, SchemaERC1155:
		return true
	}
	return false
}

// Fungible reports whether assets of this schema carry a quantity
func (s SchemaName) Fungible() bool {
	return s == SchemaERC20 || s == SchemaERC1155
}

// Calldata encoding errors
var (
	ErrUnsupportedSchema = errors.New("unsupported asset schema")
	ErrMissingTokenID    = errors.New("asset token ID is required for this schema")
	ErrMissingQuantity   = errors.New("asset quantity is required for this schema")
	ErrSchemaCount       = errors.New("bundle must have a schema for every asset")
)

// AssetRef is the on-chain identity of an asset as the transfer call sees it
type AssetRef struct {
	Address  common.Address
	ID       *big.Int
	Quantity *big.Int
}

// EncodedCall is the target, calldata and replacement mask of an order's proxy call
type EncodedCall struct {
	Target             common.Address
	Calldata           []byte
	ReplacementPattern []byte
}

// transferCall describes one schema's transfer method and which of its
// arguments hold the sender and the recipient
type transferCall struct {
	method       abi.Method
	ownerIdx     int
	recipientIdx int
	args         func(from, to common.Address) []interface{}
}

func transferFor(schema SchemaName, asset AssetRef) (*transferCall, error) {
	switch schema {
	case SchemaERC20:
		if asset.Quantity == nil {
			return nil, ErrMissingQuantity
		}
		return &transferCall{
			method:       erc20ABI.Methods["transferFrom"],
			ownerIdx:     0,
			recipientIdx: 1,
			args: func(from, to common.Address) []interface{} {
				return []interface{}{from, to, asset.Quantity}
			},
		}, nil
	case SchemaERC721, SchemaERC721v3:
		if asset.ID == nil {
			return nil, ErrMissingTokenID
		}
		return &transferCall{
			method:       erc721ABI.Methods["transferFrom"],
			ownerIdx:     0,
			recipientIdx: 1,
			args: func(from, to common.Address) []interface{} {
				return []interface{}{from, to, asset.ID}
			},
		}, nil
	case SchemaERC1155:
		if asset.ID == nil {
			return nil, ErrMissingTokenID
		}
		if asset.Quantity == nil {
			return nil, ErrMissingQuantity
		}
		return &transferCall{
			method:       erc1155ABI.Methods["safeTransferFrom"],
			ownerIdx:     0,
			recipientIdx: 1,
			args: func(from, to common.Address) []interface{} {
				return []interface{}{from, to, asset.ID, asset.Quantity, []byte{}}
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSchema, schema)
}

func (t *transferCall) encode(from, to common.Address, maskIdx int) (*EncodedCall, error) {
	packed, err := t.method.Inputs.Pack(t.args(from, to)...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", t.method.Name, err)
	}
	calldata := make([]byte, 0, 4+len(packed))
	calldata = append(calldata, t.method.ID...)
	calldata = append(calldata, packed...)

	// Only the static head word of the masked argument may be replaced
	mask := make([]byte, len(calldata))
	start := 4 + 32*maskIdx
	for i := start; i < start+32; i++ {
		mask[i] = 0xff
	}

	return &EncodedCall{Calldata: calldata, ReplacementPattern: mask}, nil
}

// EncodeSell encodes a sell-side transfer from seller to a recipient the
// buyer fills in at match time
func EncodeSell(schema SchemaName, asset AssetRef, seller common.Address) (*EncodedCall, error) {
	call, err := transferFor(schema, asset)
	if err != nil {
		return nil, err
	}
	enc, err := call.encode(seller, common.Address{}, call.recipientIdx)
	if err != nil {
		return nil, err
	}
	enc.Target = asset.Address
	return enc, nil
}

// EncodeBuy encodes a buy-side transfer to buyer from an owner the seller
// fills in at match time
func EncodeBuy(schema SchemaName, asset AssetRef, buyer common.Address) (*EncodedCall, error) {
	call, err := transferFor(schema, asset)
	if err != nil {
		return nil, err
	}
	enc, err := call.encode(common.Address{}, buyer, call.ownerIdx)
	if err != nil {
		return nil, err
	}
	enc.Target = asset.Address
	return enc, nil
}

// EncodeAtomicizedSell encodes a bundle sell as one atomicizer call
func EncodeAtomicizedSell(schemas []SchemaName, assets []AssetRef, seller, atomicizer common.Address) (*EncodedCall, error) {
	return encodeAtomicized(schemas, assets, seller, atomicizer, EncodeSell)
}

// EncodeAtomicizedBuy encodes a bundle buy as one atomicizer call
func EncodeAtomicizedBuy(schemas []SchemaName, assets []AssetRef, buyer, atomicizer common.Address) (*EncodedCall, error) {
	return encodeAtomicized(schemas, assets, buyer, atomicizer, EncodeBuy)
}

type encoderFunc func(SchemaName, AssetRef, common.Address) (*EncodedCall, error)

func encodeAtomicized(schemas []SchemaName, assets []AssetRef, account, atomicizer common.Address, encode encoderFunc) (*EncodedCall, error) {
	if len(schemas) != len(assets) {
		return nil, ErrSchemaCount
	}

	addrs := make([]common.Address, 0, len(assets))
	values := make([]*big.Int, 0, len(assets))
	lengths := make([]*big.Int, 0, len(assets))
	var calldatas, masks []byte

	for i, asset := range assets {
		enc, err := encode(schemas[i], asset, account)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		addrs = append(addrs, enc.Target)
		values = append(values, new(big.Int))
		lengths = append(lengths, big.NewInt(int64(len(enc.Calldata))))
		calldatas = append(calldatas, enc.Calldata...)
		masks = append(masks, enc.ReplacementPattern...)
	}

	packed, err := atomicizerABI.Pack("atomicize", addrs, values, lengths, calldatas)
	if err != nil {
		return nil, fmt.Errorf("failed to pack atomicize: %w", err)
	}

	// The concatenated calldatas are the trailing dynamic argument, so their
	// masks line up with the end of the encoding
	mask := make([]byte, len(packed))
	start := len(packed) - paddedLen(len(calldatas))
	copy(mask[start:], masks)

	return &EncodedCall{Target: atomicizer, Calldata: packed, ReplacementPattern: mask}, nil
}

func paddedLen(n int) int {
	return (n + 31) / 32 * 32
}

// ApplyReplacementPattern overlays desired onto array wherever mask is set,
// the way the exchange merges a counter-order's calldata before comparing
func ApplyReplacementPattern(array, desired, mask []byte) ([]byte, error) {
	if len(array) != len(desired) || len(array) != len(mask) {
		return nil, fmt.Errorf("replacement length mismatch: array %d, desired %d, mask %d", len(array), len(desired), len(mask))
	}
	out := make([]byte, len(array))
	for i := range array {
		out[i] = (array[i] &^ mask[i]) | (desired[i] & mask[i])
	}
	return out, nil
}
