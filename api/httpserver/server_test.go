package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/book"
	"matchbook/infra/sequence"
	"matchbook/service"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestServer(open bool) (*httptest.Server, *service.OrderService) {
	svc := service.NewOrderService(book.New(), sequence.New(0), nil, nil)
	if open {
		svc.OpenSession()
	}
	return httptest.NewServer(NewServer(svc).Handler()), svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestPlaceOrderEndpoint(t *testing.T) {
	ts, _ := newTestServer(true)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "alice", Security: "AAPL", Side: "buy", Quantity: 5, Price: dec("10"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[placeOrderResponse](t, resp)
	assert.NotZero(t, body.OrderID)
	assert.True(t, body.Rested)
	assert.Equal(t, int64(5), body.Remaining)
	assert.Empty(t, body.Fills)
}

func TestPlaceOrderMatchReturnsFills(t *testing.T) {
	ts, _ := newTestServer(true)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "s1", Security: "AAPL", Side: "sell", Quantity: 2, Price: dec("9.00"),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "b1", Security: "AAPL", Side: "buy", Quantity: 1, Price: dec("10.00"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[placeOrderResponse](t, resp)
	require.Len(t, body.Fills, 1)
	assert.True(t, body.Fills[0].Price.Equal(dec("9.00")))
	assert.True(t, body.Notional.Equal(dec("9.00")))
	assert.False(t, body.Rested)
}

func TestPlaceOrderValidation(t *testing.T) {
	ts, _ := newTestServer(true)
	defer ts.Close()

	cases := []placeOrderRequest{
		{Security: "AAPL", Side: "buy", Quantity: 1, Price: dec("10")},      // no owner
		{Owner: "a", Side: "buy", Quantity: 1, Price: dec("10")},            // no security
		{Owner: "a", Security: "AAPL", Side: "up", Quantity: 1, Price: dec("10")}, // bad side
		{Owner: "a", Security: "AAPL", Side: "buy", Quantity: 0, Price: dec("10")}, // bad qty
	}
	for i, c := range cases {
		resp := postJSON(t, ts.URL+"/api/v1/orders", c)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "case %d", i)
	}
}

func TestPlaceOrderStatusMapping(t *testing.T) {
	ts, _ := newTestServer(true)
	defer ts.Close()

	// Self trade -> 409.
	resp := postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "alice", Security: "AAPL", Side: "sell", Quantity: 1, Price: dec("10"),
	})
	resp.Body.Close()
	resp = postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "alice", Security: "AAPL", Side: "buy", Quantity: 1, Price: dec("10"),
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPlaceOrderSessionClosed(t *testing.T) {
	ts, _ := newTestServer(false)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "alice", Security: "AAPL", Side: "buy", Quantity: 1, Price: dec("10"),
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUpdateOrderEndpoint(t *testing.T) {
	ts, svc := newTestServer(true)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "alice", Security: "AAPL", Side: "sell", Quantity: 5, Price: dec("10"),
	})
	id := decode[placeOrderResponse](t, resp).OrderID

	raw, _ := json.Marshal(updateOrderRequest{Owner: "alice", Security: "AAPL", Quantity: 3, Price: dec("10")})
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/v1/orders/%d", ts.URL, id), bytes.NewReader(raw))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, int64(3), svc.Snapshot()[0].Remaining)

	// Unknown id -> 404.
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/v1/orders/9999", bytes.NewReader(raw))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Non-numeric id -> 400.
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/v1/orders/abc", bytes.NewReader(raw))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOwnerExitEndpoint(t *testing.T) {
	ts, svc := newTestServer(true)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "alice", Security: "AAPL", Side: "buy", Quantity: 1, Price: dec("10"),
	})
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/owners/alice/orders", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Empty(t, svc.Snapshot())
}

func TestSnapshotEndpoint(t *testing.T) {
	ts, _ := newTestServer(true)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/orders", placeOrderRequest{
		Owner: "alice", Security: "AAPL", Side: "buy", Quantity: 1, Price: dec("10"),
	})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/v1/book")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Orders []book.OrderView `json:"orders"`
		Count  int              `json:"count"`
	}](t, resp)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "alice", body.Orders[0].Owner)
	assert.Equal(t, "BUY", body.Orders[0].SideName)
}

func TestHealthEndpoint(t *testing.T) {
	ts, svc := newTestServer(false)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "closed", body["session"])

	svc.OpenSession()
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body = decode[map[string]string](t, resp)
	assert.Equal(t, "open", body["session"])
}
