package wyvernsdk

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/wyvern-sdk-go/chain"
)

// OrderHasher hashes orders for one protocol version on one chain. The
// EIP712 verifying contract is taken from each order's exchange field.
type OrderHasher struct {
	version chain.ProtocolVersion
	chainID *big.Int
}

// NewOrderHasher creates an OrderHasher
func NewOrderHasher(version chain.ProtocolVersion, chainID ChainID) (*OrderHasher, error) {
	id := big.NewInt(int64(chainID))
	// Validate the combination up front
	if _, err := chain.NewOrderHasher(version, common.Address{}, id); err != nil {
		return nil, err
	}
	return &OrderHasher{version: version, chainID: id}, nil
}

// Version returns the protocol version orders are hashed for
func (h *OrderHasher) Version() chain.ProtocolVersion {
	return h.version
}

func (h *OrderHasher) forOrder(order *UnhashedOrder) (*chain.OrderHasher, *chain.Order, error) {
	chainOrder, err := toChainOrder(order)
	if err != nil {
		return nil, nil, err
	}
	hasher, err := chain.NewOrderHasher(h.version, chainOrder.Exchange, h.chainID)
	if err != nil {
		return nil, nil, err
	}
	return hasher, chainOrder, nil
}

// GetOrderHash returns the 0x-prefixed hash identifying the order
func (h *OrderHasher) GetOrderHash(order *UnhashedOrder) (string, error) {
	hasher, chainOrder, err := h.forOrder(order)
	if err != nil {
		return "", err
	}
	return hasher.Hash(chainOrder).Hex(), nil
}

// SignatureDigest returns the digest the maker's signature must recover against
func (h *OrderHasher) SignatureDigest(order *UnhashedOrder) (common.Hash, error) {
	hasher, chainOrder, err := h.forOrder(order)
	if err != nil {
		return common.Hash{}, err
	}
	return hasher.SignatureDigest(chainOrder), nil
}

// VerifyOrderHash checks the order's stored hash against its contents
func (h *OrderHasher) VerifyOrderHash(order *Order) error {
	hash, err := h.GetOrderHash(&order.UnhashedOrder)
	if err != nil {
		return err
	}
	if !sameHash(hash, order.Hash) {
		return fmt.Errorf("%w: stored %s, computed %s", ErrCorruptOrder, order.Hash, hash)
	}
	return nil
}

// VerifySignature checks that the order's signature recovers to its maker
func (h *OrderHasher) VerifySignature(order *Order) error {
	if order.ECSignature == nil {
		return &chain.SignatureError{Reason: "order is not signed"}
	}
	digest, err := h.SignatureDigest(&order.UnhashedOrder)
	if err != nil {
		return err
	}
	if !chain.IsValidSignature(digest, order.ECSignature, order.Maker) {
		return &chain.SignatureError{Reason: fmt.Sprintf("does not recover to maker %s", order.Maker)}
	}
	return nil
}

func sameHash(a, b string) bool {
	return common.HexToHash(a) == common.HexToHash(b)
}
