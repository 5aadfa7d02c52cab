package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/ratelimit"
	"moff.io/wallet-shell/internal/account"
	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/internal/chains"
	"moff.io/wallet-shell/internal/network"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

// Client 网关与API的读写客户端：网络配置、账户状态、交易提交、区块哈希
type Client interface {
	GetNetworkConfig(ctx context.Context) (*network.Config, error)
	GetAccount(ctx context.Context, addr address.Address) (*account.State, error)
	SendTransaction(ctx context.Context, tx *transaction.Transaction) (string, error)
	SendTransactions(ctx context.Context, txs []*transaction.Transaction) ([]string, error)
	GetLatestBlockHash(ctx context.Context, shard *uint32) (string, error)
	GetBlockTimestamp(ctx context.Context, hash string) (int64, error)
}

type client struct {
	gatewayURL string
	apiURL     string
	httpClient *http.Client
	limiter    ratelimit.Limiter
}

const (
	defaultTimeout           = time.Second * 10
	defaultRequestsPerSecond = 20
	successfulCode           = "successful"
)

// NewClient requestsPerSecond <= 0 disables throttling.
func NewClient(n *chains.Network, requestsPerSecond int, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := ratelimit.NewUnlimited()
	if requestsPerSecond > 0 {
		limiter = ratelimit.New(requestsPerSecond)
	}
	return &client{
		gatewayURL: n.GatewayURL,
		apiURL:     n.APIURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

func (c *client) GetNetworkConfig(ctx context.Context) (*network.Config, error) {
	data, err := c.gateway(ctx, http.MethodGet, "/network/config", nil)
	if err != nil {
		return nil, err
	}
	cfg := data.Get("config")
	if !cfg.Exists() {
		return nil, errors.ErrorfAndReport("network config missing from gateway response")
	}
	var out network.Config
	if err := json.Unmarshal([]byte(cfg.Raw), &out); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal network config")
	}
	return &out, nil
}

func (c *client) GetAccount(ctx context.Context, addr address.Address) (*account.State, error) {
	data, err := c.gateway(ctx, http.MethodGet, "/address/"+url.PathEscape(addr.Bech32()), nil)
	if err != nil {
		return nil, err
	}
	acc := data.Get("account")
	if !acc.Exists() {
		return nil, errors.ErrorfAndReport("account %s missing from gateway response", addr)
	}
	balance, err := transaction.FromDenominated(acc.Get("balance").String())
	if err != nil {
		return nil, errors.Wrapf(err, "account %s balance", addr)
	}
	return &account.State{
		Nonce:   acc.Get("nonce").Uint(),
		Balance: balance,
	}, nil
}

func (c *client) SendTransaction(ctx context.Context, tx *transaction.Transaction) (string, error) {
	if !tx.Signed() {
		return "", errors.New("transaction is not signed")
	}
	data, err := c.gateway(ctx, http.MethodPost, "/transaction/send", tx)
	if err != nil {
		return "", err
	}
	hash := data.Get("txHash").String()
	if hash == "" {
		return "", &APIError{Endpoint: "/transaction/send", Status: http.StatusOK, Message: "empty transaction hash"}
	}
	log.Debugf("provider - sent transaction %v hash %v", tx, hash)
	return hash, nil
}

// SendTransactions submits a batch. Fewer accepted transactions than sent fails the whole batch.
func (c *client) SendTransactions(ctx context.Context, txs []*transaction.Transaction) ([]string, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	for i, tx := range txs {
		if !tx.Signed() {
			return nil, errors.Errorf("transaction %d is not signed", i)
		}
	}
	const endpoint = "/transaction/send-multiple"
	data, err := c.gateway(ctx, http.MethodPost, endpoint, txs)
	if err != nil {
		return nil, err
	}
	sent := int(data.Get("numOfSentTxs").Int())
	hashes := data.Get("txsHashes")
	if sent != len(txs) || len(hashes.Map()) != len(txs) {
		return nil, &APIError{
			Endpoint: endpoint,
			Status:   http.StatusOK,
			Message:  fmt.Sprintf("%d of %d transactions accepted", sent, len(txs)),
		}
	}
	type indexed struct {
		idx  int
		hash string
	}
	ordered := make([]indexed, 0, len(txs))
	for k, v := range hashes.Map() {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, errors.WrapAndReport(err, "parse transaction hash index")
		}
		ordered = append(ordered, indexed{idx: idx, hash: v.String()})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].idx < ordered[j].idx })
	out := make([]string, 0, len(ordered))
	for _, o := range ordered {
		out = append(out, o.hash)
	}
	return out, nil
}

func (c *client) GetLatestBlockHash(ctx context.Context, shard *uint32) (string, error) {
	q := url.Values{}
	q.Set("size", "1")
	q.Set("fields", "hash")
	if shard != nil {
		q.Set("shard", strconv.FormatUint(uint64(*shard), 10))
	}
	body, err := c.api(ctx, "/blocks?"+q.Encode())
	if err != nil {
		return "", err
	}
	hash := gjson.GetBytes(body, "0.hash").String()
	if hash == "" {
		return "", &APIError{Endpoint: "/blocks", Status: http.StatusOK, Message: "no blocks returned"}
	}
	return hash, nil
}

func (c *client) GetBlockTimestamp(ctx context.Context, hash string) (int64, error) {
	body, err := c.api(ctx, "/blocks/"+url.PathEscape(hash)+"?fields=timestamp")
	if err != nil {
		return 0, err
	}
	ts := gjson.GetBytes(body, "timestamp")
	if !ts.Exists() {
		return 0, &APIError{Endpoint: "/blocks/" + hash, Status: http.StatusOK, Message: "block timestamp missing"}
	}
	return ts.Int(), nil
}

// gateway 调用网关接口，返回响应中的 data 字段
func (c *client) gateway(ctx context.Context, method, path string, in interface{}) (gjson.Result, error) {
	body, status, err := c.do(ctx, method, c.gatewayURL+path, in)
	if err != nil {
		return gjson.Result{}, err
	}
	res := gjson.ParseBytes(body)
	code := res.Get("code").String()
	if status != http.StatusOK || code != successfulCode {
		msg := res.Get("error").String()
		if msg == "" {
			msg = string(body)
		}
		return gjson.Result{}, &APIError{Endpoint: path, Status: status, Code: code, Message: msg}
	}
	return res.Get("data"), nil
}

func (c *client) api(ctx context.Context, path string) ([]byte, error) {
	body, status, err := c.do(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = string(body)
		}
		return nil, &APIError{Endpoint: path, Status: status, Message: msg}
	}
	return body, nil
}

func (c *client) do(ctx context.Context, method, rawURL string, in interface{}) ([]byte, int, error) {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, 0, errors.WrapAndReport(err, "marshal request body")
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, errors.WrapAndReport(err, "create new http request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.limiter.Take()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &APIError{Endpoint: req.URL.Path, Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &APIError{Endpoint: req.URL.Path, Status: resp.StatusCode, Message: err.Error(), cause: err}
	}
	return b, resp.StatusCode, nil
}
