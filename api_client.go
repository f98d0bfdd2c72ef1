package wyvernsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultOrderLimit = 20
	maxErrorBody      = 200
)

// APIClient talks to the orderbook HTTP API
type APIClient struct {
	client *resty.Client
	hasher *OrderHasher
	log    *logrus.Entry
}

// NewAPIClient creates an API client. When hasher is non-nil every order
// read from the orderbook has its hash verified.
func NewAPIClient(baseURL, apiKey string, timeout time.Duration, retryCount int, hasher *OrderHasher, logger *logrus.Logger) *APIClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil {
				return false
			}
			return resp.Request.Method == http.MethodGet && resp.StatusCode() == http.StatusTooManyRequests
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := strconv.Atoi(retryAfter); err == nil {
						return time.Duration(seconds) * time.Second, nil
					}
				}
			}
			return 0, nil
		})
	if apiKey != "" {
		client.SetHeader("X-API-KEY", apiKey)
	}

	return &APIClient{
		client: client,
		hasher: hasher,
		log:    componentLogger(logger, "api"),
	}
}

func (c *APIClient) newRequest(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
}

// checkResponse turns transport failures and non-2xx replies into errors
func (c *APIClient) checkResponse(resp *resty.Response, err error, what string) error {
	if err != nil {
		return errors.Wrap(err, what)
	}
	if resp.IsSuccess() {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))
	var payload map[string]any
	if json.Unmarshal(resp.Body(), &payload) == nil {
		for _, key := range []string{"detail", "error", "message"} {
			if msg, ok := payload[key].(string); ok && msg != "" {
				body = msg
				break
			}
		}
	}
	if body == "" {
		body = resp.Status()
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	c.log.WithFields(logrus.Fields{
		"status":     resp.StatusCode(),
		"request_id": resp.Request.Header.Get("X-Request-ID"),
	}).Debugf("%s failed", what)

	return &OpenAPIError{
		StatusCode: resp.StatusCode(),
		Message:    fmt.Sprintf("API Error %d: %s", resp.StatusCode(), body),
	}
}

// PostOrder submits a signed order and returns the orderbook's copy of it
func (c *APIClient) PostOrder(ctx context.Context, order *Order) (*Order, error) {
	if order.ECSignature == nil {
		return nil, &InvalidParamError{Message: "order must be signed before it is posted"}
	}

	var result APIOrder
	resp, err := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(OrderToJSON(order)).
		SetResult(&result).
		Post(OrderbookPath + "/orders/post/")
	if err := c.checkResponse(resp, err, "post order"); err != nil {
		return nil, err
	}
	return c.ingest(&result)
}

type ordersResponse struct {
	Count  int        `json:"count"`
	Orders []APIOrder `json:"orders"`
}

// GetOrders lists one page of orders matching query
func (c *APIClient) GetOrders(ctx context.Context, query OrderQuery) (*OrderPage, error) {
	var result ordersResponse
	resp, err := c.newRequest(ctx).
		SetQueryParamsFromValues(query.values()).
		SetResult(&result).
		Get(OrderbookPath + "/orders")
	if err := c.checkResponse(resp, err, "get orders"); err != nil {
		return nil, err
	}

	orders := make([]*Order, 0, len(result.Orders))
	for i := range result.Orders {
		order, err := c.ingest(&result.Orders[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return &OrderPage{
		Orders: orders,
		Count:  result.Count,
		Next:   query.next(len(orders), result.Count),
	}, nil
}

// GetOrder returns the first order matching query or ErrOrderNotFound
func (c *APIClient) GetOrder(ctx context.Context, query OrderQuery) (*Order, error) {
	query.Limit = 1
	page, err := c.GetOrders(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(page.Orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return page.Orders[0], nil
}

// ingest converts an orderbook record and checks its hash
func (c *APIClient) ingest(record *APIOrder) (*Order, error) {
	order, err := record.ToOrder()
	if err != nil {
		return nil, errors.Wrapf(err, "decode order %s", record.OrderHash)
	}
	if c.hasher != nil {
		if err := c.hasher.VerifyOrderHash(order); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// GetPaymentTokens lists accepted payment tokens, optionally filtered by
// symbol or address
func (c *APIClient) GetPaymentTokens(ctx context.Context, symbol, address string) ([]PaymentToken, error) {
	req := c.newRequest(ctx)
	if symbol != "" {
		req.SetQueryParam("symbol", symbol)
	}
	if address != "" {
		req.SetQueryParam("address", strings.ToLower(address))
	}

	var tokens []PaymentToken
	resp, err := req.SetResult(&tokens).Get(APIPath + "/tokens/")
	if err := c.checkResponse(resp, err, "get payment tokens"); err != nil {
		return nil, err
	}
	for i := range tokens {
		tokens[i].Address = strings.ToLower(tokens[i].Address)
	}
	return tokens, nil
}

// GetPaymentToken returns the accepted token at address, or nil when the
// orderbook does not accept it
func (c *APIClient) GetPaymentToken(ctx context.Context, address string) (*PaymentToken, error) {
	tokens, err := c.GetPaymentTokens(ctx, "", address)
	if err != nil {
		return nil, err
	}
	for i := range tokens {
		if sameAddress(tokens[i].Address, address) {
			return &tokens[i], nil
		}
	}
	return nil, nil
}

type apiCollection struct {
	OpenSeaBuyerFeeBasisPoints  decimal.Decimal `json:"opensea_buyer_fee_basis_points"`
	OpenSeaSellerFeeBasisPoints decimal.Decimal `json:"opensea_seller_fee_basis_points"`
	DevBuyerFeeBasisPoints      decimal.Decimal `json:"dev_buyer_fee_basis_points"`
	DevSellerFeeBasisPoints     decimal.Decimal `json:"dev_seller_fee_basis_points"`
}

type apiAsset struct {
	TokenID       *string `json:"token_id"`
	AssetContract struct {
		Address    string           `json:"address"`
		SchemaName WyvernSchemaName `json:"schema_name"`
	} `json:"asset_contract"`
	Collection              apiCollection    `json:"collection"`
	Decimals                *int             `json:"decimals"`
	TransferFee             *decimal.Decimal `json:"transfer_fee"`
	TransferFeePaymentToken *struct {
		Address string `json:"address"`
	} `json:"transfer_fee_payment_token"`
}

// GetAsset fetches an asset with its collection fee schedule. tokenID is
// empty for fungible assets.
func (c *APIClient) GetAsset(ctx context.Context, tokenAddress, tokenID string) (*AssetWithFees, error) {
	if tokenID == "" {
		tokenID = "0"
	}
	var result apiAsset
	resp, err := c.newRequest(ctx).
		SetPathParams(map[string]string{
			"address": strings.ToLower(tokenAddress),
			"id":      tokenID,
		}).
		SetResult(&result).
		Get(APIPath + "/asset/{address}/{id}/")
	if resp != nil && resp.StatusCode() == http.StatusNotFound {
		return nil, &InvalidParamError{Message: fmt.Sprintf("Asset %s %s not found", tokenAddress, tokenID)}
	}
	if err := c.checkResponse(resp, err, "get asset"); err != nil {
		return nil, err
	}
	return result.toAssetWithFees(tokenAddress), nil
}

func (a *apiAsset) toAssetWithFees(fallbackAddress string) *AssetWithFees {
	address := a.AssetContract.Address
	if address == "" {
		address = fallbackAddress
	}
	asset := &AssetWithFees{
		Asset: Asset{
			TokenID:      a.TokenID,
			TokenAddress: strings.ToLower(address),
			SchemaName:   a.AssetContract.SchemaName,
		},
		Collection: CollectionFees{
			OpenSeaBuyerFeeBasisPoints:  int(a.Collection.OpenSeaBuyerFeeBasisPoints.IntPart()),
			OpenSeaSellerFeeBasisPoints: int(a.Collection.OpenSeaSellerFeeBasisPoints.IntPart()),
			DevBuyerFeeBasisPoints:      int(a.Collection.DevBuyerFeeBasisPoints.IntPart()),
			DevSellerFeeBasisPoints:     int(a.Collection.DevSellerFeeBasisPoints.IntPart()),
		},
		TransferFee: a.TransferFee,
	}
	if a.Decimals != nil {
		asset.Decimals = *a.Decimals
	}
	if a.TransferFeePaymentToken != nil && a.TransferFeePaymentToken.Address != "" {
		addr := strings.ToLower(a.TransferFeePaymentToken.Address)
		asset.TransferFeeTokenAddress = &addr
	}
	return asset
}

// next returns the query for the page after one that returned n of total
// orders. A zero total means the orderbook did not report one, so a full
// page is taken to mean more may follow.
func (q OrderQuery) next(n, total int) *OrderQuery {
	if n == 0 {
		return nil
	}
	offset := q.Offset + n
	if total > 0 && offset >= total {
		return nil
	}
	if total == 0 && n < q.limit() {
		return nil
	}
	next := q
	next.Offset = offset
	return &next
}

func (q OrderQuery) limit() int {
	if q.Limit <= 0 {
		return defaultOrderLimit
	}
	return q.Limit
}

// values renders the query in the orderbook's parameter names
func (q OrderQuery) values() map[string][]string {
	v := make(map[string][]string)
	set := func(key, value string) {
		if value != "" {
			v[key] = []string{value}
		}
	}
	set("maker", strings.ToLower(q.Maker))
	set("owner", strings.ToLower(q.Owner))
	set("asset_contract_address", strings.ToLower(q.AssetContract))
	set("token_id", q.TokenID)
	set("payment_token_address", strings.ToLower(q.PaymentToken))
	if len(q.TokenIDs) > 0 {
		v["token_ids"] = append([]string(nil), q.TokenIDs...)
	}
	if q.Side != nil {
		set("side", strconv.Itoa(int(*q.Side)))
	}
	if q.SaleKind != nil {
		set("sale_kind", strconv.Itoa(int(*q.SaleKind)))
	}
	if q.IsEnglish != nil {
		set("is_english", strconv.FormatBool(*q.IsEnglish))
	}
	if q.Bundled != nil {
		set("bundled", strconv.FormatBool(*q.Bundled))
	}

	set("limit", strconv.Itoa(q.limit()))
	set("offset", strconv.Itoa(q.Offset))
	return v
}
