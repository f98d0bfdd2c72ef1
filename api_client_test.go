package wyvernsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestAPI(t *testing.T, retries int, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	hasher, err := NewOrderHasher(chain.ProtocolVersion23, ChainIDMainnet)
	require.NoError(t, err)
	return NewAPIClient(srv.URL+"/", "test-key", 5*time.Second, retries, hasher, quietLogger())
}

func listedOrder(t *testing.T) *Order {
	t.Helper()
	hasher, err := NewOrderHasher(chain.ProtocolVersion23, ChainIDMainnet)
	require.NoError(t, err)
	order := signedTestOrder(t, hasher)
	order.Metadata = kittyMetadata("1")
	return order
}

func TestGetOrders(t *testing.T) {
	order := listedOrder(t)
	side := OrderSideSell

	api := newTestAPI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wyvern/v1/orders", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))

		q := r.URL.Query()
		require.Equal(t, testSellerAddr, q.Get("maker"))
		require.Equal(t, "1", q.Get("side"))
		require.Equal(t, "20", q.Get("limit"))
		require.Equal(t, "0", q.Get("offset"))
		require.Equal(t, []string{"1", "2"}, q["token_ids"])

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":  7,
			"orders": []APIOrder{toAPIOrder(order)},
		})
	})

	page, err := api.GetOrders(context.Background(), OrderQuery{
		Maker:    "0x1111111111111111111111111111111111111111",
		Side:     &side,
		TokenIDs: []string{"1", "2"},
	})
	require.NoError(t, err)
	require.Equal(t, 7, page.Count)
	require.Len(t, page.Orders, 1)
	require.Equal(t, order.Hash, page.Orders[0].Hash)
	require.Equal(t, order.Maker, page.Orders[0].Maker)
	require.NotNil(t, page.Next)
	require.Equal(t, 1, page.Next.Offset)
	require.Equal(t, testSellerAddr, page.Next.Maker)
}

func TestGetOrdersWalksPages(t *testing.T) {
	order := listedOrder(t)
	var offsets []string

	api := newTestAPI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "2", q.Get("limit"))
		offsets = append(offsets, q.Get("offset"))
		orders := []APIOrder{toAPIOrder(order), toAPIOrder(order)}
		if q.Get("offset") == "4" {
			orders = orders[:1]
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"count": 5, "orders": orders})
	})

	query := &OrderQuery{Limit: 2}
	total := 0
	for query != nil {
		page, err := api.GetOrders(context.Background(), *query)
		require.NoError(t, err)
		total += len(page.Orders)
		query = page.Next
	}
	require.Equal(t, 5, total)
	require.Equal(t, []string{"0", "2", "4"}, offsets)
}

func TestOrderQueryNext(t *testing.T) {
	q := OrderQuery{Limit: 10, Offset: 20}
	require.Nil(t, q.next(0, 50))
	require.Nil(t, q.next(10, 30))
	require.Equal(t, 30, q.next(10, 31).Offset)

	// Without a reported total only a full page implies another
	require.Equal(t, 30, q.next(10, 0).Offset)
	require.Nil(t, q.next(9, 0))
}

func TestGetOrderNotFound(t *testing.T) {
	api := newTestAPI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"count": 0, "orders": []APIOrder{}})
	})
	_, err := api.GetOrder(context.Background(), OrderQuery{})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestGetOrdersRejectsCorruptHash(t *testing.T) {
	record := toAPIOrder(listedOrder(t))
	record.BasePrice = dec("1")

	api := newTestAPI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"count": 1, "orders": []APIOrder{record}})
	})
	_, err := api.GetOrders(context.Background(), OrderQuery{})
	require.ErrorIs(t, err, ErrCorruptOrder)
}

func TestAPIErrors(t *testing.T) {
	api := newTestAPI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad side"})
	})
	_, err := api.GetOrders(context.Background(), OrderQuery{})
	require.ErrorIs(t, err, ErrOpenAPI)
	require.EqualError(t, err, "API Error 400: bad side")

	var apiErr *OpenAPIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestGetRetriesWhenRateLimited(t *testing.T) {
	var calls int32
	api := newTestAPI(t, 1, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "slow down"})
			return
		}
		writeJSON(w, http.StatusOK, []PaymentToken{{Symbol: "WETH", Address: testWETH, Decimals: 18}})
	})

	tokens, err := api.GetPaymentTokens(context.Background(), "WETH", "")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestPostIsNotRetried(t *testing.T) {
	var calls int32
	api := newTestAPI(t, 2, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "slow down"})
	})
	_, err := api.PostOrder(context.Background(), listedOrder(t))
	require.ErrorIs(t, err, ErrOpenAPI)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestPostOrder(t *testing.T) {
	order := listedOrder(t)

	api := newTestAPI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/wyvern/v1/orders/post/", r.URL.Path)

		var posted OrderJSON
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		require.Equal(t, order.Hash, posted.Hash)
		require.NotNil(t, posted.V)

		back, err := OrderFromJSON(&posted)
		require.NoError(t, err)
		writeJSON(w, http.StatusOK, toAPIOrder(back))
	})

	stored, err := api.PostOrder(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, order.Hash, stored.Hash)
	require.Equal(t, order.ECSignature, stored.ECSignature)

	unsigned := *order
	unsigned.ECSignature = nil
	_, err = api.PostOrder(context.Background(), &unsigned)
	require.ErrorIs(t, err, ErrInvalidParam)
}

func TestGetPaymentToken(t *testing.T) {
	api := newTestAPI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/tokens/", r.URL.Path)
		if r.URL.Query().Get("address") == testWETH {
			writeJSON(w, http.StatusOK, []PaymentToken{{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18}})
			return
		}
		writeJSON(w, http.StatusOK, []PaymentToken{})
	})

	token, err := api.GetPaymentToken(context.Background(), "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	require.NoError(t, err)
	require.NotNil(t, token)
	require.Equal(t, testWETH, token.Address)
	require.Equal(t, 18, token.Decimals)

	unknown, err := api.GetPaymentToken(context.Background(), "0x6b175474e89094c44da98b954eedeac495271d0f")
	require.NoError(t, err)
	require.Nil(t, unknown)
}

const kittyAssetJSON = `{
	"token_id": "7",
	"asset_contract": {"address": "0x06012C8cf97BEaD5deAe237070F9587f8E7A266d", "schema_name": "ERC721"},
	"collection": {
		"opensea_buyer_fee_basis_points": "0",
		"opensea_seller_fee_basis_points": "250",
		"dev_buyer_fee_basis_points": "0",
		"dev_seller_fee_basis_points": "375"
	},
	"decimals": null,
	"transfer_fee": null,
	"transfer_fee_payment_token": null
}`

func TestGetAsset(t *testing.T) {
	api := newTestAPI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/asset/"+testKitties+"/7/" {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(kittyAssetJSON))
	})

	asset, err := api.GetAsset(context.Background(), "0x06012C8cf97BEaD5deAe237070F9587f8E7A266d", "7")
	require.NoError(t, err)
	require.Equal(t, testKitties, asset.TokenAddress)
	require.Equal(t, "7", *asset.TokenID)
	require.Equal(t, WyvernSchemaERC721, asset.SchemaName)
	require.Equal(t, 250, asset.Collection.OpenSeaSellerFeeBasisPoints)
	require.Equal(t, 375, asset.Collection.DevSellerFeeBasisPoints)
	require.Nil(t, asset.TransferFee)

	_, err = api.GetAsset(context.Background(), testKitties, "8")
	require.ErrorIs(t, err, ErrInvalidParam)
}
