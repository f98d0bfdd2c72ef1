package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Hashing errors
var (
	ErrUnknownProtocolVersion = errors.New("unknown protocol version")
	ErrMissingChainID         = errors.New("chain ID is required for EIP712 hashing")
)

// EIP712 domain constants of the Wyvern 2.3 exchange
const (
	EIP712DomainName    = "Wyvern Exchange Contract"
	EIP712DomainVersion = "2.3"
)

// Pre-computed type hashes using keccak256
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	// OrderTypeString is the Wyvern 2.3 Order struct definition
	OrderTypeString = "Order(address exchange,address maker,address taker,uint256 makerRelayerFee,uint256 takerRelayerFee," +
		"uint256 makerProtocolFee,uint256 takerProtocolFee,address feeRecipient,uint8 feeMethod,uint8 side,uint8 saleKind," +
		"address target,uint8 howToCall,bytes calldata,bytes replacementPattern,address staticTarget,bytes staticExtradata," +
		"address paymentToken,uint256 basePrice,uint256 extra,uint256 listingTime,uint256 expirationTime,uint256 salt,uint256 nonce)"

	OrderTypeHash = crypto.Keccak256Hash([]byte(OrderTypeString))
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	uint8Type, _   = abi.NewType("uint8", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
)

// EIP712Domain represents the EIP712 domain separator data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewEIP712Domain creates a new EIP712Domain with the Wyvern 2.3 values
func NewEIP712Domain(chainID *big.Int, verifyingContract common.Address) *EIP712Domain {
	return &EIP712Domain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// Hash computes the EIP712 domain separator hash
func (d *EIP712Domain) Hash() common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // nameHash
		{Type: bytes32Type}, // versionHash
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}

	encoded, err := arguments.Pack(
		EIP712DomainTypeHash,
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		d.ChainID,
		d.VerifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// StructHash computes the Wyvern 2.3 EIP712 struct hash of the order.
// Dynamic bytes members are hashed in place, as EIP712 requires.
func (o *Order) StructHash() common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: addressType}, // exchange
		{Type: addressType}, // maker
		{Type: addressType}, // taker
		{Type: uint256Type}, // makerRelayerFee
		{Type: uint256Type}, // takerRelayerFee
		{Type: uint256Type}, // makerProtocolFee
		{Type: uint256Type}, // takerProtocolFee
		{Type: addressType}, // feeRecipient
		{Type: uint8Type},   // feeMethod
		{Type: uint8Type},   // side
		{Type: uint8Type},   // saleKind
		{Type: addressType}, // target
		{Type: uint8Type},   // howToCall
		{Type: bytes32Type}, // keccak256(calldata)
		{Type: bytes32Type}, // keccak256(replacementPattern)
		{Type: addressType}, // staticTarget
		{Type: bytes32Type}, // keccak256(staticExtradata)
		{Type: addressType}, // paymentToken
		{Type: uint256Type}, // basePrice
		{Type: uint256Type}, // extra
		{Type: uint256Type}, // listingTime
		{Type: uint256Type}, // expirationTime
		{Type: uint256Type}, // salt
		{Type: uint256Type}, // nonce
	}

	encoded, err := arguments.Pack(
		OrderTypeHash,
		o.Exchange,
		o.Maker,
		o.Taker,
		orZero(o.MakerRelayerFee),
		orZero(o.TakerRelayerFee),
		orZero(o.MakerProtocolFee),
		orZero(o.TakerProtocolFee),
		o.FeeRecipient,
		uint8(o.FeeMethod),
		uint8(o.Side),
		uint8(o.SaleKind),
		o.Target,
		uint8(o.HowToCall),
		crypto.Keccak256Hash(o.Calldata),
		crypto.Keccak256Hash(o.ReplacementPattern),
		o.StaticTarget,
		crypto.Keccak256Hash(o.StaticExtradata),
		o.PaymentToken,
		orZero(o.BasePrice),
		orZero(o.Extra),
		orZero(o.ListingTime),
		orZero(o.ExpirationTime),
		orZero(o.Salt),
		orZero(o.Nonce),
	)
	if err != nil {
		panic("failed to encode order struct: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// LegacyHash computes the Wyvern 2.2 order hash: keccak256 over the tightly
// packed field tuple, in the order the exchange writes it
func (o *Order) LegacyHash() common.Hash {
	size := 20*7 + 32*9 + 4 + len(o.Calldata) + len(o.ReplacementPattern) + len(o.StaticExtradata)
	buf := make([]byte, 0, size)

	buf = append(buf, o.Exchange.Bytes()...)
	buf = append(buf, o.Maker.Bytes()...)
	buf = append(buf, o.Taker.Bytes()...)
	buf = append(buf, word(o.MakerRelayerFee)...)
	buf = append(buf, word(o.TakerRelayerFee)...)
	buf = append(buf, word(o.MakerProtocolFee)...)
	buf = append(buf, word(o.TakerProtocolFee)...)
	buf = append(buf, o.FeeRecipient.Bytes()...)
	buf = append(buf, byte(o.FeeMethod), byte(o.Side), byte(o.SaleKind))
	buf = append(buf, o.Target.Bytes()...)
	buf = append(buf, byte(o.HowToCall))
	buf = append(buf, o.Calldata...)
	buf = append(buf, o.ReplacementPattern...)
	buf = append(buf, o.StaticTarget.Bytes()...)
	buf = append(buf, o.StaticExtradata...)
	buf = append(buf, o.PaymentToken.Bytes()...)
	buf = append(buf, word(o.BasePrice)...)
	buf = append(buf, word(o.Extra)...)
	buf = append(buf, word(o.ListingTime)...)
	buf = append(buf, word(o.ExpirationTime)...)
	buf = append(buf, word(o.Salt)...)

	return crypto.Keccak256Hash(buf)
}

// word returns the 32-byte big-endian representation of n
func word(n *big.Int) []byte {
	return common.LeftPadBytes(orZero(n).Bytes(), 32)
}

// CreateOrderSignHash creates the final EIP712 hash to be signed
// as defined by EIP712: keccak256("\x19\x01" ++ domainSeparator ++ structHash)
func CreateOrderSignHash(domain *EIP712Domain, order *Order) common.Hash {
	domainSeparator := domain.Hash()
	structHash := order.StructHash()

	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, domainSeparator.Bytes()...)
	data = append(data, structHash.Bytes()...)

	return crypto.Keccak256Hash(data)
}

// HashToSign returns the personal-sign digest of a legacy order hash:
// keccak256("\x19Ethereum Signed Message:\n32" ++ hash)
func HashToSign(orderHash common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(orderHash.Bytes()))
}

// OrderHasher computes order hashes for one exchange deployment
type OrderHasher struct {
	version  ProtocolVersion
	exchange common.Address
	chainID  *big.Int
}

// NewOrderHasher creates an OrderHasher for the given protocol version
func NewOrderHasher(version ProtocolVersion, exchange common.Address, chainID *big.Int) (*OrderHasher, error) {
	switch version {
	case ProtocolVersion22:
	case ProtocolVersion23:
		if chainID == nil || chainID.Sign() <= 0 {
			return nil, ErrMissingChainID
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocolVersion, version)
	}
	return &OrderHasher{version: version, exchange: exchange, chainID: chainID}, nil
}

// Version returns the protocol version this hasher targets
func (h *OrderHasher) Version() ProtocolVersion {
	return h.version
}

// Hash returns the order's content hash. For 2.2 this is the packed hash the
// exchange stores; for 2.3 it is the EIP712 digest, which is what 2.3
// exchanges use as the order identifier.
func (h *OrderHasher) Hash(order *Order) common.Hash {
	if h.version == ProtocolVersion22 {
		return order.LegacyHash()
	}
	return CreateOrderSignHash(NewEIP712Domain(h.chainID, h.exchange), order)
}

// SignatureDigest returns the 32-byte digest a wallet signature must recover against
func (h *OrderHasher) SignatureDigest(order *Order) common.Hash {
	if h.version == ProtocolVersion22 {
		return HashToSign(order.LegacyHash())
	}
	return h.Hash(order)
}
