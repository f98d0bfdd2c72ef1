package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// EnjinCoinAddress is the fee token of issuer transfer fees quoted in currency 0
const EnjinCoinAddress = "0xf629cbd94d3791c9250152bd8dfbdf380e2a3b9c"

// Transaction lifecycle errors
var (
	ErrTransactionPending = errors.New("transaction still pending")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrNoTransactor       = errors.New("contract caller has no transaction backend or key")
)

// TransactionBackend is the subset of an RPC client needed to send and track transactions
type TransactionBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ContractCaller handles blockchain contract interactions
type ContractCaller struct {
	reader       ethereum.ContractCaller
	backend      TransactionBackend
	privateKey   *ecdsa.PrivateKey
	closer       func()
	pollInterval time.Duration

	mu            sync.Mutex
	decimalsCache map[common.Address]uint8
}

// NewContractCaller creates a read-only ContractCaller over any contract reader
func NewContractCaller(reader ethereum.ContractCaller) *ContractCaller {
	return &ContractCaller{
		reader:        reader,
		pollInterval:  2 * time.Second,
		decimalsCache: make(map[common.Address]uint8),
	}
}

// DialContractCaller connects to an RPC endpoint. The private key is optional;
// without it only reads are available.
func DialContractCaller(rpcURL, privateKeyHex string) (*ContractCaller, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RPC")
	}

	cc := NewContractCaller(client)
	cc.closer = client.Close

	if privateKeyHex != "" {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			client.Close()
			return nil, errors.Wrap(err, "invalid private key")
		}
		cc.WithTransactor(client, privateKey)
	}
	return cc, nil
}

// WithTransactor enables WETH wrapping and receipt tracking
func (cc *ContractCaller) WithTransactor(backend TransactionBackend, privateKey *ecdsa.PrivateKey) *ContractCaller {
	cc.backend = backend
	cc.privateKey = privateKey
	return cc
}

// SetPollInterval sets how often WaitForReceipt polls for a receipt
func (cc *ContractCaller) SetPollInterval(d time.Duration) {
	if d > 0 {
		cc.pollInterval = d
	}
}

// GetSignerAddress returns the address of the transaction signer
func (cc *ContractCaller) GetSignerAddress() common.Address {
	if cc.privateKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(cc.privateKey.PublicKey)
}

// call packs method args, runs an eth_call against to and unpacks the outputs
func (cc *ContractCaller) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	result, err := cc.reader.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s on %s", method, to.Hex())
	}

	out, err := contract.Unpack(method, result)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("%s returned no values", method)
	}
	return out, nil
}

func orderArgs(order *Order) []interface{} {
	return []interface{}{
		order.addrs(),
		order.uints(),
		uint8(order.FeeMethod),
		uint8(order.Side),
		uint8(order.SaleKind),
		uint8(order.HowToCall),
		nonNil(order.Calldata),
		nonNil(order.ReplacementPattern),
		nonNil(order.StaticExtradata),
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// OrdersCanMatch asks the exchange whether buy and sell can be atomically matched
func (cc *ContractCaller) OrdersCanMatch(ctx context.Context, exchange common.Address, buy, sell *Order) (bool, error) {
	var addrs [14]common.Address
	ba, sa := buy.addrs(), sell.addrs()
	copy(addrs[:7], ba[:])
	copy(addrs[7:], sa[:])

	var uints [18]*big.Int
	bu, su := buy.uints(), sell.uints()
	copy(uints[:9], bu[:])
	copy(uints[9:], su[:])

	kinds := [8]uint8{
		uint8(buy.FeeMethod), uint8(buy.Side), uint8(buy.SaleKind), uint8(buy.HowToCall),
		uint8(sell.FeeMethod), uint8(sell.Side), uint8(sell.SaleKind), uint8(sell.HowToCall),
	}

	out, err := cc.call(ctx, exchangeABI, exchange, "ordersCanMatch_",
		addrs, uints, kinds,
		nonNil(buy.Calldata), nonNil(sell.Calldata),
		nonNil(buy.ReplacementPattern), nonNil(sell.ReplacementPattern),
		nonNil(buy.StaticExtradata), nonNil(sell.StaticExtradata),
	)
	if err != nil {
		return false, err
	}
	ok, _ := out[0].(bool)
	return ok, nil
}

// ValidateOrderParameters asks the exchange whether the order's parameters are well formed
func (cc *ContractCaller) ValidateOrderParameters(ctx context.Context, exchange common.Address, order *Order) (bool, error) {
	out, err := cc.call(ctx, exchangeABI, exchange, "validateOrderParameters_", orderArgs(order)...)
	if err != nil {
		return false, err
	}
	ok, _ := out[0].(bool)
	return ok, nil
}

// CalculateCurrentPrice returns the exchange's price for the order at the latest block
func (cc *ContractCaller) CalculateCurrentPrice(ctx context.Context, exchange common.Address, order *Order) (*big.Int, error) {
	out, err := cc.call(ctx, exchangeABI, exchange, "calculateCurrentPrice_", orderArgs(order)...)
	if err != nil {
		return nil, err
	}
	price, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected calculateCurrentPrice_ result %T", out[0])
	}
	return price, nil
}

// HashOrder returns the hash the exchange computes for the order
func (cc *ContractCaller) HashOrder(ctx context.Context, exchange common.Address, order *Order) (common.Hash, error) {
	out, err := cc.call(ctx, exchangeABI, exchange, "hashOrder_", orderArgs(order)...)
	if err != nil {
		return common.Hash{}, err
	}
	hash, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, errors.Errorf("unexpected hashOrder_ result %T", out[0])
	}
	return common.Hash(hash), nil
}

// Nonce returns the maker's current order nonce on a 2.3 exchange
func (cc *ContractCaller) Nonce(ctx context.Context, exchange, maker common.Address) (*big.Int, error) {
	return cc.bigResult(cc.call(ctx, exchangeABI, exchange, "nonces", maker))
}

// TransferFeeSettings reads the issuer transfer fee of an ERC-1155 token.
// A fee quoted in currency 0 is paid in Enjin Coin.
func (cc *ContractCaller) TransferFeeSettings(ctx context.Context, token common.Address, tokenID *big.Int) (*TransferFeeSettings, error) {
	out, err := cc.call(ctx, erc1155ABI, token, "transferSettings", orZero(tokenID))
	if err != nil {
		return nil, err
	}
	if len(out) < 4 {
		return nil, errors.Errorf("transferSettings returned %d values", len(out))
	}

	settings := &TransferFeeSettings{Fee: new(big.Int)}
	if value, ok := out[3].(*big.Int); ok && value != nil {
		settings.Fee = value
	}
	if currency, ok := out[2].(*big.Int); ok && currency != nil && currency.Sign() == 0 {
		feeToken := common.HexToAddress(EnjinCoinAddress)
		settings.FeeTokenAddr = &feeToken
	}
	return settings, nil
}

// GetTokenDecimals returns an ERC20 token's decimals. Decimals never change
// so results are cached for the caller's lifetime.
func (cc *ContractCaller) GetTokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	cc.mu.Lock()
	decimals, ok := cc.decimalsCache[token]
	cc.mu.Unlock()
	if ok {
		return decimals, nil
	}

	out, err := cc.call(ctx, erc20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok = out[0].(uint8)
	if !ok {
		return 0, errors.Errorf("unexpected decimals result %T", out[0])
	}

	cc.mu.Lock()
	cc.decimalsCache[token] = decimals
	cc.mu.Unlock()
	return decimals, nil
}

// OwnerOf returns the owner of an ERC721 token
func (cc *ContractCaller) OwnerOf(ctx context.Context, token common.Address, tokenID *big.Int) (common.Address, error) {
	out, err := cc.call(ctx, erc721ABI, token, "ownerOf", orZero(tokenID))
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("unexpected ownerOf result %T", out[0])
	}
	return owner, nil
}

// ERC1155BalanceOf returns account's balance of one ERC1155 token id
func (cc *ContractCaller) ERC1155BalanceOf(ctx context.Context, token, account common.Address, tokenID *big.Int) (*big.Int, error) {
	return cc.bigResult(cc.call(ctx, erc1155ABI, token, "balanceOf", account, orZero(tokenID)))
}

// ERC20BalanceOf returns the ERC20 balance for an account
func (cc *ContractCaller) ERC20BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return cc.bigResult(cc.call(ctx, erc20ABI, token, "balanceOf", account))
}

// ERC20Allowance returns the ERC20 allowance for owner to spender
func (cc *ContractCaller) ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return cc.bigResult(cc.call(ctx, erc20ABI, token, "allowance", owner, spender))
}

func (cc *ContractCaller) bigResult(out []interface{}, err error) (*big.Int, error) {
	if err != nil {
		return nil, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected result %T", out[0])
	}
	return n, nil
}

// CheckGasBalance checks if signer has enough ether for gasLimit at the current gas price
func (cc *ContractCaller) CheckGasBalance(ctx context.Context, gasLimit uint64, value *big.Int) error {
	if cc.backend == nil || cc.privateKey == nil {
		return ErrNoTransactor
	}
	signerAddr := cc.GetSignerAddress()
	balance, err := cc.backend.BalanceAt(ctx, signerAddr, nil)
	if err != nil {
		return errors.Wrap(err, "failed to get balance")
	}

	gasPrice, err := cc.backend.SuggestGasPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get gas price")
	}

	// Add 20% safety margin
	required := new(big.Int).SetUint64(gasLimit)
	required.Mul(required, big.NewInt(120))
	required.Div(required, big.NewInt(100))
	required.Mul(required, gasPrice)
	required.Add(required, orZero(value))

	if balance.Cmp(required) < 0 {
		return errors.Errorf("insufficient balance: signer %s has %s wei, but needs approximately %s wei",
			signerAddr.Hex(),
			balance.String(),
			required.String(),
		)
	}
	return nil
}

// WrapEth deposits amount wei into the WETH contract
func (cc *ContractCaller) WrapEth(ctx context.Context, weth common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := wethABI.Pack("deposit")
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack deposit")
	}
	return cc.sendTransaction(ctx, weth, amount, data)
}

// UnwrapEth withdraws amount wei of WETH back to ether
func (cc *ContractCaller) UnwrapEth(ctx context.Context, weth common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := wethABI.Pack("withdraw", amount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack withdraw")
	}
	return cc.sendTransaction(ctx, weth, nil, data)
}

// sendTransaction builds, signs and broadcasts a legacy transaction
func (cc *ContractCaller) sendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	if cc.backend == nil || cc.privateKey == nil {
		return nil, ErrNoTransactor
	}
	value = orZero(value)
	from := cc.GetSignerAddress()

	gasLimit, err := cc.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return nil, errors.Wrap(err, "failed to estimate gas")
	}
	if err := cc.CheckGasBalance(ctx, gasLimit, value); err != nil {
		return nil, err
	}

	chainID, err := cc.backend.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chain ID")
	}

	nonce, err := cc.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get nonce")
	}

	gasPrice, err := cc.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), cc.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	if err := cc.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, errors.Wrap(err, "failed to send transaction")
	}

	return signedTx, nil
}

// WaitForReceipt polls for a transaction receipt until it is mined, timeout
// elapses or ctx is cancelled. A timeout yields ErrTransactionPending; a
// mined but reverted transaction yields ErrTransactionFailed.
func (cc *ContractCaller) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	if cc.backend == nil {
		return nil, ErrNoTransactor
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(cc.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := cc.backend.TransactionReceipt(timeoutCtx, txHash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, errors.Wrapf(ErrTransactionFailed, "tx %s", txHash.Hex())
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound), errors.Is(err, context.DeadlineExceeded):
		default:
			return nil, errors.Wrapf(err, "failed to get receipt for %s", txHash.Hex())
		}

		select {
		case <-timeoutCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrapf(ErrTransactionPending, "tx %s", txHash.Hex())
		case <-ticker.C:
		}
	}
}

// Close closes the Ethereum client connection
func (cc *ContractCaller) Close() {
	if cc.closer != nil {
		cc.closer()
	}
}
