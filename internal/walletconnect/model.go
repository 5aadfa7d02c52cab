package walletconnect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

// Metadata dapp 信息，展示在钱包的确认页
type Metadata struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

// Session 持久化的会话，用于进程重启后恢复连接
type Session struct {
	BridgeURL string    `json:"bridgeUrl"`
	ClientID  string    `json:"clientId"`
	PeerID    string    `json:"peerId"`
	Key       string    `json:"key"`
	Address   string    `json:"address"`
	ChainID   string    `json:"chainId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

type wcMessagePayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

func newWCMessagePayloadFromBytes(data []byte) (*wcMessagePayload, error) {
	var payload wcMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet connect message payload")
	}
	return &payload, nil
}

func (e *wcMessagePayload) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

type peer struct {
	PeerID   string      `json:"peerId"`
	PeerMeta Metadata    `json:"peerMeta"`
	ChainID  interface{} `json:"chainId"`
}

// sessionResult wc_sessionRequest 的响应，也是 wc_sessionUpdate 的参数
type sessionResult struct {
	Approved bool        `json:"approved"`
	ChainID  interface{} `json:"chainId"`
	Accounts []string    `json:"accounts"`
	PeerID   string      `json:"peerId"`
	PeerMeta *Metadata   `json:"peerMeta,omitempty"`
}

func (r *sessionResult) chainID() string {
	if r.ChainID == nil {
		return ""
	}
	return fmt.Sprint(r.ChainID)
}

type wcMessage struct {
	Topic string `json:"topic"`
	// pub sub ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newWCMessageFromBytes(data []byte) (*wcMessage, error) {
	var msg wcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet connect message")
	}
	return &msg, nil
}

func (msg *wcMessage) Marshal() []byte {
	bytes, _ := json.Marshal(msg)
	return bytes
}

type jsonRpcRequest struct {
	Id      int64         `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func newJSONRpcRequest(id int64, method string, params ...interface{}) *jsonRpcRequest {
	r := &jsonRpcRequest{
		Id:      id,
		JSONRpc: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

func (e *jsonRpcRequest) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

// IsSilentPayload wc_ 开头的内部方法不需要钱包推送通知
func (e *jsonRpcRequest) IsSilentPayload() bool {
	return strings.HasPrefix(e.Method, "wc_")
}

type jsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRpcResponse struct {
	Id     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *jsonRpcError   `json:"error,omitempty"`
}

// txMessage erd_sign / erd_batch_sign 的交易参数
type txMessage struct {
	Nonce    uint64 `json:"nonce"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	GasPrice string `json:"gasPrice"`
	GasLimit string `json:"gasLimit"`
	Data     string `json:"data"`
	ChainID  string `json:"chainId"`
	Version  uint32 `json:"version"`
}

func newTxMessage(tx *transaction.Transaction) txMessage {
	return txMessage{
		Nonce:    tx.Nonce,
		From:     tx.Sender,
		To:       tx.Receiver,
		Amount:   tx.Value,
		GasPrice: fmt.Sprint(tx.GasPrice),
		GasLimit: fmt.Sprint(tx.GasLimit),
		Data:     string(tx.Data),
		ChainID:  tx.ChainID,
		Version:  tx.Version,
	}
}

type signatureResult struct {
	Signature string `json:"signature"`
}

type loginParams struct {
	Token string `json:"token"`
}

type loginResult struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}
