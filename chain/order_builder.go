package chain

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet produces signatures on behalf of an account. Both methods return a
// 0x-prefixed 65-byte signature in whatever byte order the wallet prefers.
type Wallet interface {
	PersonalSign(ctx context.Context, message []byte, address string) (string, error)
	SignHash(ctx context.Context, digest []byte, address string) (string, error)
}

// ErrSignerMismatch is returned when a wallet signature does not recover to the order maker
var ErrSignerMismatch = errors.New("signature does not recover to the order maker")

// SignedOrder is an order together with its hash and parsed signature
type SignedOrder struct {
	Order     *Order
	Hash      common.Hash
	Signature *ECSignature
}

// OrderSigner hashes orders for one exchange deployment and collects wallet signatures
type OrderSigner struct {
	hasher *OrderHasher
	wallet Wallet
}

// NewOrderSigner creates a new OrderSigner
func NewOrderSigner(hasher *OrderHasher, wallet Wallet) (*OrderSigner, error) {
	if hasher == nil {
		return nil, errors.New("order hasher is required")
	}
	if wallet == nil {
		return nil, errors.New("wallet is required")
	}
	return &OrderSigner{hasher: hasher, wallet: wallet}, nil
}

// Hasher returns the hasher the signer was built with
func (s *OrderSigner) Hasher() *OrderHasher {
	return s.hasher
}

// SignOrder hashes the order, asks the wallet for a signature and checks it
// recovers to the maker before returning
func (s *OrderSigner) SignOrder(ctx context.Context, order *Order) (*SignedOrder, error) {
	hash := s.hasher.Hash(order)
	maker := order.Maker.Hex()

	var (
		raw string
		err error
	)
	if s.hasher.Version() == ProtocolVersion22 {
		// Legacy exchanges verify a personal-sign over the order hash
		raw, err = s.wallet.PersonalSign(ctx, hash.Bytes(), maker)
	} else {
		raw, err = s.wallet.SignHash(ctx, hash.Bytes(), maker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}

	sig, err := ParseSignatureFor(raw, s.hasher.SignatureDigest(order), maker)
	if err != nil {
		return nil, err
	}

	return &SignedOrder{Order: order, Hash: hash, Signature: sig}, nil
}

var maxSalt = new(big.Int).Lsh(big.NewInt(1), 256)

// GenerateSalt returns a uniformly random 256-bit salt
func GenerateSalt() (*big.Int, error) {
	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// NormalizeAddress returns the lower-case 0x form the orderbook stores
func NormalizeAddress(addr string) string {
	return strings.ToLower(common.HexToAddress(addr).Hex())
}
