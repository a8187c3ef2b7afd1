package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyquoter/internal/crypto"
	"github.com/alanyoungcy/polyquoter/internal/domain"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testCreds = crypto.APICreds{Key: "api-key", Secret: "c2VjcmV0", Passphrase: "pp"}

func newTestClient(t *testing.T, h http.Handler, creds crypto.APICreds) *ClobClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	signer, err := crypto.NewSigner(testKey, crypto.PolygonChainID, "")
	require.NoError(t, err)

	c := NewClobClient(srv.URL, signer, creds, testLogger())
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestClobClient_PostOrder(t *testing.T) {
	var gotBody PostOrderRequest
	var gotHeaders http.Header
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		gotHeaders = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = io.WriteString(w, `{"success":true,"orderID":"0xorder","status":"live"}`)
	}), testCreds)

	res, err := c.PostOrder(context.Background(), domain.SignedOrder{
		Salt:          42,
		Maker:         "0x1",
		Signer:        "0x2",
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "123",
		MakerAmount:   big.NewInt(2375000),
		TakerAmount:   big.NewInt(5000000),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          domain.OrderSideBuy,
		SignatureType: 1,
		Signature:     "0xsig",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xorder", res.OrderID)
	assert.Equal(t, domain.OrderStatusOpen, res.Status)

	assert.Equal(t, "GTC", gotBody.OrderType)
	assert.Equal(t, "api-key", gotBody.Owner)
	assert.Equal(t, int64(42), gotBody.Order.Salt)
	assert.Equal(t, "2375000", gotBody.Order.MakerAmount)
	assert.Equal(t, "5000000", gotBody.Order.TakerAmount)
	assert.Equal(t, "BUY", gotBody.Order.Side)
	assert.Equal(t, 1, gotBody.Order.SignatureType)

	assert.Equal(t, "api-key", gotHeaders.Get("POLY_API_KEY"))
	assert.Equal(t, "1700000000", gotHeaders.Get("POLY_TIMESTAMP"))
	assert.NotEmpty(t, gotHeaders.Get("POLY_SIGNATURE"))
}

func TestClobClient_PostOrderRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"errorMsg":"not enough balance"}`)
	}), testCreds)

	res, err := c.PostOrder(context.Background(), domain.SignedOrder{TokenID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance")
	assert.Equal(t, domain.OrderStatusFailed, res.Status)
}

func TestClobClient_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusNotFound, domain.ErrNotFound},
	}
	for _, tc := range cases {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}), testCreds)
		_, err := c.CancelAll(context.Background())
		assert.ErrorIs(t, err, tc.want)
	}
}

func TestClobClient_CancelAll(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/cancel-all", r.URL.Path)
		_, _ = io.WriteString(w, `{"canceled":["a","b"],"not_canceled":{}}`)
	}), testCreds)

	ids, err := c.CancelAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestClobClient_CancelAll_NotCanceledIsNotAnError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"canceled":["a"],"not_canceled":{"0xb":"order already matched"}}`)
	}), testCreds)

	ids, err := c.CancelAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestClobClient_CancelAll_DecodeErrorIsFatal(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}), testCreds)

	_, err := c.CancelAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode cancel-all response")
}

func TestClobClient_RequiresCredentials(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}), crypto.APICreds{})

	_, err := c.CancelAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClobClient_CreateOrDeriveAPIKey(t *testing.T) {
	var calls []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
		assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", r.Header.Get("POLY_ADDRESS"))

		switch r.URL.Path {
		case "/auth/api-key":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"key exists"}`)
		case "/auth/derive-api-key":
			_, _ = io.WriteString(w, `{"apiKey":"k","secret":"s","passphrase":"p"}`)
		}
	}), crypto.APICreds{})

	creds, err := c.CreateOrDeriveAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crypto.APICreds{Key: "k", Secret: "s", Passphrase: "p"}, creds)
	assert.Equal(t, creds, c.Credentials())
	assert.Equal(t, []string{"POST /auth/api-key", "GET /auth/derive-api-key"}, calls)
}
