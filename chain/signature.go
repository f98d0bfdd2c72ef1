package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when no known byte ordering yields v in {27, 28}
var ErrInvalidSignature = errors.New("Invalid signature")

// SignatureError carries the rejected signature alongside ErrInvalidSignature
type SignatureError struct {
	Signature string
	Reason    string
}

func (e *SignatureError) Error() string {
	if e.Reason == "" {
		return ErrInvalidSignature.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidSignature.Error(), e.Reason)
}

func (e *SignatureError) Unwrap() error {
	return ErrInvalidSignature
}

// ParseSignatureHex parses a 65-byte signature. Wallets disagree on whether
// v leads or trails, so r||s||v (what eth_sign returns today) is tried
// first, then v||r||s for older clients.
func ParseSignatureHex(signature string) (*ECSignature, error) {
	raw, err := decodeSignature(signature)
	if err != nil {
		return nil, err
	}
	for _, parse := range signatureLayouts {
		if sig := parse(raw); validV(sig.V) {
			return sig, nil
		}
	}
	return nil, &SignatureError{Signature: signature}
}

// ParseSignatureFor parses a signature known to be signer's over digest.
// Some v||r||s signatures also read as a valid r||s||v one, so every layout
// with a valid v is tried and the one that recovers to signer is returned.
func ParseSignatureFor(signature string, digest common.Hash, signer string) (*ECSignature, error) {
	raw, err := decodeSignature(signature)
	if err != nil {
		return nil, err
	}
	parsed := false
	for _, parse := range signatureLayouts {
		sig := parse(raw)
		if !validV(sig.V) {
			continue
		}
		parsed = true
		if IsValidSignature(digest, sig, signer) {
			return sig, nil
		}
	}
	if !parsed {
		return nil, &SignatureError{Signature: signature}
	}
	return nil, ErrSignerMismatch
}

var signatureLayouts = []func([]byte) *ECSignature{parseRSV, parseVRS}

func decodeSignature(signature string) ([]byte, error) {
	raw, err := hexutil.Decode(ensureHexPrefix(strings.TrimSpace(signature)))
	if err != nil {
		return nil, &SignatureError{Signature: signature, Reason: err.Error()}
	}
	if len(raw) != 65 {
		return nil, &SignatureError{Signature: signature, Reason: fmt.Sprintf("expected 65 bytes, got %d", len(raw))}
	}
	return raw, nil
}

func parseRSV(raw []byte) *ECSignature {
	return &ECSignature{
		R: common.BytesToHash(raw[0:32]),
		S: common.BytesToHash(raw[32:64]),
		V: normalizeV(raw[64]),
	}
}

func parseVRS(raw []byte) *ECSignature {
	return &ECSignature{
		V: normalizeV(raw[0]),
		R: common.BytesToHash(raw[1:33]),
		S: common.BytesToHash(raw[33:65]),
	}
}

func normalizeV(v byte) uint8 {
	if v < 27 {
		return v + 27
	}
	return v
}

func validV(v uint8) bool {
	return v == 27 || v == 28
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// RecoverSigner recovers the address that produced sig over the 32-byte hash
func RecoverSigner(hash common.Hash, sig *ECSignature) (common.Address, error) {
	if sig == nil {
		return common.Address{}, ErrInvalidSignature
	}
	if !validV(sig.V) {
		return common.Address{}, &SignatureError{Reason: fmt.Sprintf("v must be 27 or 28, got %d", sig.V)}
	}
	raw := sig.Bytes()
	raw[64] -= 27

	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return common.Address{}, &SignatureError{Reason: err.Error()}
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// IsValidSignature reports whether sig over the already-hashed payload
// recovers to signer. Addresses compare case-insensitively.
func IsValidSignature(hash common.Hash, sig *ECSignature, signer string) bool {
	recovered, err := RecoverSigner(hash, sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered.Hex(), signer)
}

// PrivateKeySigner signs payloads using an ECDSA private key
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewPrivateKeySigner constructs a signer from a hex-encoded private key string
func NewPrivateKeySigner(privateKeyHex string) (*PrivateKeySigner, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if keyHex == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewPrivateKeySignerFromKey(key), nil
}

// NewPrivateKeySignerFromKey wraps an already-parsed private key
func NewPrivateKeySignerFromKey(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the signer's address
func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

// PrivateKey returns the underlying key, used for transaction signing
func (s *PrivateKeySigner) PrivateKey() *ecdsa.PrivateKey {
	return s.privateKey
}

// PersonalSign signs message with the "\x19Ethereum Signed Message" prefix
// and returns a 0x-prefixed r||s||v signature
func (s *PrivateKeySigner) PersonalSign(_ context.Context, message []byte, address string) (string, error) {
	if err := s.checkAddress(address); err != nil {
		return "", err
	}
	return s.signDigest(accounts.TextHash(message))
}

// SignHash signs a raw 32-byte digest and returns a 0x-prefixed r||s||v signature
func (s *PrivateKeySigner) SignHash(_ context.Context, digest []byte, address string) (string, error) {
	if err := s.checkAddress(address); err != nil {
		return "", err
	}
	if len(digest) != 32 {
		return "", fmt.Errorf("expected 32-byte digest, got %d bytes", len(digest))
	}
	return s.signDigest(digest)
}

func (s *PrivateKeySigner) checkAddress(address string) error {
	if address != "" && !strings.EqualFold(address, s.address.Hex()) {
		return fmt.Errorf("signer %s cannot sign for %s", s.address.Hex(), address)
	}
	return nil
}

func (s *PrivateKeySigner) signDigest(digest []byte) (string, error) {
	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	// Add recovery ID
	signature[64] += 27

	return hexutil.Encode(signature), nil
}
