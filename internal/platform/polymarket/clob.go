package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/alanyoungcy/polyquoter/internal/crypto"
	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// DefaultClobURL is the CLOB REST API root.
const DefaultClobURL = "https://clob.polymarket.com"

// ClobClient is the REST client for the order endpoints of the CLOB.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	logger     *slog.Logger

	mu    sync.RWMutex
	creds crypto.APICreds

	now func() time.Time
}

// NewClobClient creates a CLOB client. creds may be empty, in which case
// CreateOrDeriveAPIKey must succeed before any authenticated call.
func NewClobClient(baseURL string, signer *crypto.Signer, creds crypto.APICreds, logger *slog.Logger) *ClobClient {
	if baseURL == "" {
		baseURL = DefaultClobURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
		logger: logger.With(slog.String("component", "polymarket_clob")),
		creds:  creds,
		now:    time.Now,
	}
}

// Credentials returns the L2 credentials in use.
func (c *ClobClient) Credentials() crypto.APICreds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// PostOrder submits a signed GTC/FOK order.
func (c *ClobClient) PostOrder(ctx context.Context, order domain.SignedOrder) (domain.OrderResult, error) {
	orderType := order.Type
	if orderType == "" {
		orderType = domain.OrderTypeGTC
	}
	body := PostOrderRequest{
		Order:     OrderToAPI(order),
		Owner:     c.Credentials().Key,
		OrderType: string(orderType),
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := apiResult.ToDomainOrderResult()
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: order rejected: %s", result.Message)
	}
	return result, nil
}

// CancelAll cancels every resting order of the authenticated wallet and
// returns the ids the exchange reports as canceled. Orders the exchange
// refuses to cancel (typically already matched) are logged, not returned
// as an error.
func (c *ClobClient) CancelAll(ctx context.Context) ([]string, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/cancel-all", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}

	var result APICancelResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode cancel-all response: %w", err)
	}
	for id, reason := range result.NotCanceled {
		c.logger.WarnContext(ctx, "order not canceled",
			slog.String("order_id", id),
			slog.String("reason", reason),
		)
	}
	return result.Canceled, nil
}

// CreateOrDeriveAPIKey obtains L2 credentials with an L1 (wallet signed)
// request. It first asks for a new key and falls back to deriving the
// existing one, which is what the exchange expects for wallets that already
// have a key.
func (c *ClobClient) CreateOrDeriveAPIKey(ctx context.Context) (crypto.APICreds, error) {
	creds, err := c.l1KeyRequest(ctx, http.MethodPost, "/auth/api-key")
	if err != nil {
		derived, derr := c.l1KeyRequest(ctx, http.MethodGet, "/auth/derive-api-key")
		if derr != nil {
			return crypto.APICreds{}, fmt.Errorf("polymarket/clob: api key: %w", errors.Join(err, derr))
		}
		creds = derived
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	return creds, nil
}

func (c *ClobClient) l1KeyRequest(ctx context.Context, method, path string) (crypto.APICreds, error) {
	ts := c.now().Unix()
	const nonce = 0

	sig, err := c.signer.SignClobAuth(ts, nonce)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range crypto.L1Headers(c.signer.Address().Hex(), sig, ts, nonce) {
		req.Header.Set(k, v)
	}

	respBody, err := c.do(req)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("%s %s: %w", method, path, err)
	}

	var keyResp APIKeyResponse
	if err := json.Unmarshal(respBody, &keyResp); err != nil {
		return crypto.APICreds{}, fmt.Errorf("decode api key: %w", err)
	}
	creds := crypto.APICreds{Key: keyResp.APIKey, Secret: keyResp.Secret, Passphrase: keyResp.Passphrase}
	if !creds.Valid() {
		return crypto.APICreds{}, fmt.Errorf("%s %s: incomplete credentials", method, path)
	}
	return creds, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthenticatedRequest sends an L2 signed request and returns the body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	creds := c.Credentials()
	if !creds.Valid() {
		return nil, fmt.Errorf("%w: no api credentials", domain.ErrUnauthorized)
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	headers := creds.L2HeadersAt(c.signer.Address().Hex(), method, path, bodyStr, c.now().Unix())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

func (c *ClobClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
