package custody

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orrange/orrange-api/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Client implements Gateway and SigningAuthority against the custody
// provider's REST API and a public chain RPC node. Balance reads go straight
// to the node (eth_call on the token contract); transfers and signer
// registration go through the provider, which holds the wallet keys.
type Client struct {
	cfg    config.CustodyConfig
	client *http.Client
}

func NewClient(cfg config.CustodyConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// BalanceOf reads the wallet's USDC balance via eth_call.
func (c *Client) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	data, err := encodeBalanceOf(address)
	if err != nil {
		return decimal.Zero, err
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params: []interface{}{
			map[string]string{"to": c.cfg.USDCContract, "data": data},
			"latest",
		},
	}

	var resp rpcResponse
	if err := c.postJSON(ctx, c.cfg.ChainRPCURL, nil, req, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("balance query: %w", err)
	}
	if resp.Error != nil {
		return decimal.Zero, fmt.Errorf("balance query: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var word string
	if err := json.Unmarshal(resp.Result, &word); err != nil {
		return decimal.Zero, fmt.Errorf("balance query: %w", err)
	}
	raw, err := parseHexWord(word)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance query: %w", err)
	}
	return fromBaseUnits(raw, USDCDecimals), nil
}

type walletRPCBody struct {
	Method string              `json:"method"`
	Params []map[string]string `json:"params"`
}

type walletRPCResult struct {
	Result string `json:"result"`
	Data   *struct {
		TransactionHash string `json:"transaction_hash"`
	} `json:"data"`
}

// Transfer asks the provider to sign and broadcast a USDC transfer from the
// custodial wallet. Single attempt; the caller decides whether and when to
// retry.
func (c *Client) Transfer(ctx context.Context, walletID, toAddress string, amount decimal.Decimal) (string, error) {
	baseUnits, err := toBaseUnits(amount, USDCDecimals)
	if err != nil {
		return "", err
	}
	data, err := encodeTransfer(toAddress, baseUnits)
	if err != nil {
		return "", err
	}

	body := walletRPCBody{
		Method: "eth_sendTransaction",
		Params: []map[string]string{{
			"to":      c.cfg.USDCContract,
			"data":    data,
			"chainId": fmt.Sprintf("0x%x", c.cfg.ChainID),
		}},
	}

	endpoint := fmt.Sprintf("%s/api/v1/wallets/%s/rpc", strings.TrimRight(c.cfg.ProviderURL, "/"), walletID)
	headers := c.providerHeaders()
	headers["X-Authorization-Key-Id"] = c.cfg.AuthorizationKeyID
	headers["X-Authorization-Private-Key"] = c.cfg.AuthorizationPrivateKey

	var result walletRPCResult
	if err := c.postJSON(ctx, endpoint, headers, body, &result); err != nil {
		return "", fmt.Errorf("wallet rpc: %w", err)
	}

	txHash := result.Result
	if txHash == "" && result.Data != nil {
		txHash = result.Data.TransactionHash
	}
	if txHash == "" {
		return "", fmt.Errorf("wallet rpc: no transaction hash in provider response")
	}

	log.Debug().
		Str("wallet_id", walletID).
		Str("tx_hash", txHash).
		Str("amount", amount.String()).
		Msg("provider accepted transfer")

	return txHash, nil
}

// RegisterSigner adds the backend's authorization key to the wallet.
func (c *Client) RegisterSigner(ctx context.Context, walletID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/wallets/%s", strings.TrimRight(c.cfg.ProviderURL, "/"), walletID)
	body := map[string][]string{
		"authorization_keys": {c.cfg.AuthorizationKeyID},
	}

	req, err := c.newJSONRequest(ctx, http.MethodPatch, endpoint, c.providerHeaders(), body)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("register signer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("register signer: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func (c *Client) providerHeaders() map[string]string {
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.AppID + ":" + c.cfg.AppSecret))
	return map[string]string{
		"X-App-Id":      c.cfg.AppID,
		"Authorization": "Basic " + basic,
	}
}

func (c *Client) newJSONRequest(ctx context.Context, method, endpoint string, headers map[string]string, body interface{}) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, headers map[string]string, body, out interface{}) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, endpoint, headers, body)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}
