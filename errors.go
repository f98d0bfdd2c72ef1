package wyvernsdk

import (
	"errors"

	"github.com/kaifufi/wyvern-sdk-go/chain"
)

var (
	// ErrInvalidParam represents an invalid parameter error
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrOpenAPI represents an orderbook API error
	ErrOpenAPI = errors.New("openapi error")

	// ErrCorruptOrder is returned when an order's stored hash disagrees with its contents
	ErrCorruptOrder = errors.New("order hash does not match order contents")

	// ErrOrderNotFound is returned when the orderbook has no order for a query
	ErrOrderNotFound = errors.New("order not found")

	// ErrNoChainReader is returned by operations that need a chain reader when none was configured
	ErrNoChainReader = errors.New("no chain reader configured")

	// ErrNoWallet is returned by operations that sign when no wallet was configured
	ErrNoWallet = errors.New("no wallet configured")

	// ErrInvalidSignature is returned when a signature cannot be parsed or does not recover
	ErrInvalidSignature = chain.ErrInvalidSignature

	// ErrTransactionPending is returned when a transaction is still unmined at timeout
	ErrTransactionPending = chain.ErrTransactionPending

	// ErrTransactionFailed is returned when a transaction was mined but reverted
	ErrTransactionFailed = chain.ErrTransactionFailed
)

// InvalidParamError represents an invalid parameter error with context
type InvalidParamError struct {
	Message string
}

func (e *InvalidParamError) Error() string {
	return e.Message
}

func (e *InvalidParamError) Is(target error) bool {
	return target == ErrInvalidParam
}

// OpenAPIError represents an orderbook API error with context
type OpenAPIError struct {
	StatusCode int
	Message    string
}

func (e *OpenAPIError) Error() string {
	return e.Message
}

func (e *OpenAPIError) Is(target error) bool {
	return target == ErrOpenAPI
}

// FeePolicyError is returned when requested bounties exceed what an asset allows
type FeePolicyError struct {
	Message string
}

func (e *FeePolicyError) Error() string {
	return e.Message
}

// OrderMatchError describes the first reason two orders cannot be matched
type OrderMatchError struct {
	Message string
}

func (e *OrderMatchError) Error() string {
	return e.Message
}
