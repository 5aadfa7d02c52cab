package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
	"moff.io/wallet-shell/pkg/wallectconnect"
)

const (
	defaultApprovalTimeout = 5 * time.Minute
	defaultSessionTTL      = 24 * time.Hour
	defaultSessionName     = "default"
	eventBufferSize        = 16
	// 钱包端按js number解析id，需保证不超过 2^53
	maxPayloadID = 1 << 53
)

type Options struct {
	BridgeURL       string
	ChainID         string
	SessionName     string
	Metadata        Metadata
	ApprovalTimeout time.Duration
	SessionTTL      time.Duration
	Store           SessionStore
}

type client struct {
	opts  Options
	ids   *snowflake.Node
	store SessionStore
	now   func() time.Time

	// 同一时间只允许一个 Connect / Resume
	connecting atomic.Bool

	mu             sync.Mutex
	link           *link
	handshakeTopic string
	clientID       string
	key            []byte
	uri            string
	peerID         string
	address        string
	chainID        string
	connected      bool
	expiresAt      time.Time
	expiry         *time.Timer

	pendingMu sync.Mutex
	pending   map[int64]chan *jsonRpcResponse

	events chan Event
}

func NewClient(opts Options) (Client, error) {
	if opts.BridgeURL == "" {
		opts.BridgeURL = wallectconnect.RandomBridgeURL()
	}
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = defaultApprovalTimeout
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.SessionName == "" {
		opts.SessionName = defaultSessionName
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, errors.Wrap(err, "create payload id generator")
	}
	return &client{
		opts:    opts,
		ids:     node,
		store:   store,
		now:     time.Now,
		pending: make(map[int64]chan *jsonRpcResponse),
		events:  make(chan Event, eventBufferSize),
	}, nil
}

func (c *client) Events() <-chan Event {
	return c.events
}

// PairingURI 每次调用都会生成新的握手topic、clientID与密钥
func (c *client) PairingURI() (string, error) {
	key, err := wallectconnect.GenerateRandomBytes(wallectconnect.KeySize)
	if err != nil {
		return "", errors.WrapAndReport(err, "generate wallet connect key")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return "", errors.New("wallet already connected")
	}
	c.key = key
	c.handshakeTopic = uuid.NewString()
	c.clientID = uuid.NewString()
	c.uri = wallectconnect.PairingURI(c.handshakeTopic, c.opts.BridgeURL, key)
	log.Debugf("wallet connect - generated uri:%v", c.uri)
	return c.uri, nil
}

// QRCode 返回用户钱包连接的二维码.
func (c *client) QRCode() ([]byte, error) {
	c.mu.Lock()
	uri := c.uri
	c.mu.Unlock()
	if uri == "" {
		return nil, errors.New("call PairingURI first to display")
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return nil, errors.WrapAndReport(err, "encode wallet connect qr code")
	}
	return png, nil
}

func (c *client) Connect(ctx context.Context, authToken string) (*Login, error) {
	if !c.connecting.CAS(false, true) {
		return nil, ErrBusy
	}
	defer c.connecting.Store(false)

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil, errors.New("wallet already connected")
	}
	if c.handshakeTopic == "" {
		c.mu.Unlock()
		return nil, errors.New("call PairingURI first to display")
	}
	topic, clientID, key := c.handshakeTopic, c.clientID, c.key
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.ApprovalTimeout)
	defer cancel()

	l, err := dial(ctx, c.opts.BridgeURL, key)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.link = l
	c.mu.Unlock()
	go c.readLoop(l)

	login, err := c.handshake(ctx, l, topic, clientID, authToken)
	if err != nil {
		c.abort(l)
		return nil, approvalError(err)
	}

	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return nil, errors.Wrap(ErrRejected, "session closed during approval")
	}
	c.connected = true
	c.chainID = login.ChainID
	c.startExpiryLocked(l, c.now().Add(c.opts.SessionTTL))
	session := c.sessionLocked()
	c.mu.Unlock()

	c.saveSession(ctx, session)
	log.Infof("wallet connect - session approved by %v", login.Address)
	c.emit(Event{Type: EventConnected, Address: login.Address})
	return login, nil
}

func (c *client) handshake(ctx context.Context, l *link, topic, clientID, authToken string) (*Login, error) {
	if err := l.write(&wcMessage{Topic: clientID, Type: "sub", Silent: true}); err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, l, topic, "wc_sessionRequest", peer{
		PeerID:   clientID,
		PeerMeta: c.opts.Metadata,
		ChainID:  c.opts.ChainID,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Wrap(ErrRejected, resp.Error.Message)
	}
	var result sessionResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal wallet info")
	}
	if !result.Approved {
		return nil, ErrRejected
	}
	if len(result.Accounts) == 0 {
		return nil, errors.NewWithReport("no wallet accounts acquired")
	}
	if _, err := address.FromBech32(result.Accounts[0]); err != nil {
		return nil, errors.Wrapf(err, "wallet account %q", result.Accounts[0])
	}
	if chainID := result.chainID(); chainID != "" && c.opts.ChainID != "" && chainID != c.opts.ChainID {
		log.Warnf("wallet connect - wallet chain %v differs from %v", chainID, c.opts.ChainID)
	}

	login := &Login{Address: result.Accounts[0], ChainID: c.opts.ChainID}
	c.mu.Lock()
	c.peerID = result.PeerID
	c.address = login.Address
	c.mu.Unlock()

	if authToken == "" {
		return login, nil
	}
	resp, err = c.call(ctx, l, result.PeerID, "erd_login", loginParams{Token: authToken})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Wrap(ErrRejected, resp.Error.Message)
	}
	var lr loginResult
	if err := json.Unmarshal(resp.Result, &lr); err != nil {
		return nil, errors.Wrap(err, "unmarshal login result")
	}
	if lr.Signature == "" {
		return nil, errors.Wrap(ErrRejected, "wallet returned no login signature")
	}
	if lr.Address != "" && lr.Address != login.Address {
		return nil, errors.Errorf("login signed by %v, session account is %v", lr.Address, login.Address)
	}
	login.Signature = lr.Signature
	return login, nil
}

func approvalError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(ErrTimeout, err.Error())
	case errors.Is(err, errSessionClosed):
		return errors.Wrap(ErrRejected, "session closed by wallet")
	}
	return err
}

// Resume 重连持久化的会话，不需要重新扫码
func (c *client) Resume(ctx context.Context) (*Login, bool, error) {
	if !c.connecting.CAS(false, true) {
		return nil, false, ErrBusy
	}
	defer c.connecting.Store(false)

	c.mu.Lock()
	if c.connected {
		login := &Login{Address: c.address, ChainID: c.chainID}
		c.mu.Unlock()
		return login, true, nil
	}
	c.mu.Unlock()

	s, err := c.store.Load(ctx, c.opts.SessionName)
	if err != nil {
		return nil, false, errors.Wrap(err, "load wallet connect session")
	}
	if s == nil {
		return nil, false, nil
	}
	if s.Expired(c.now()) {
		log.Infof("wallet connect - stored session of %v expired at %v", s.Address, s.ExpiresAt)
		c.deleteSession(ctx)
		return nil, false, nil
	}
	key, err := hex.DecodeString(s.Key)
	if err != nil || len(key) != wallectconnect.KeySize {
		c.deleteSession(ctx)
		return nil, false, errors.New("stored session key is corrupted")
	}
	l, err := dial(ctx, s.BridgeURL, key)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.link = l
	c.key = key
	c.clientID = s.ClientID
	c.handshakeTopic = ""
	c.uri = ""
	c.peerID = s.PeerID
	c.address = s.Address
	c.chainID = s.ChainID
	c.connected = true
	c.startExpiryLocked(l, s.ExpiresAt)
	c.mu.Unlock()

	go c.readLoop(l)
	if err := l.write(&wcMessage{Topic: s.ClientID, Type: "sub", Silent: true}); err != nil {
		c.abort(l)
		return nil, false, err
	}
	log.Infof("wallet connect - resumed session of %v", s.Address)
	c.emit(Event{Type: EventConnected, Address: s.Address})
	return &Login{Address: s.Address, ChainID: s.ChainID}, true, nil
}

func (c *client) Sign(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	l, peerID, err := c.session()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.ApprovalTimeout)
	defer cancel()
	resp, err := c.call(ctx, l, peerID, "erd_sign", newTxMessage(tx))
	if err != nil {
		return nil, signError(err)
	}
	if resp.Error != nil {
		return nil, errors.Wrap(ErrRejected, resp.Error.Message)
	}
	var result signatureResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errors.Wrap(err, "unmarshal sign result")
	}
	return withSignature(tx, result.Signature)
}

func (c *client) SignBatch(ctx context.Context, txs []*transaction.Transaction) ([]*transaction.Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	l, peerID, err := c.session()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.ApprovalTimeout)
	defer cancel()
	params := make([]interface{}, 0, len(txs))
	for _, tx := range txs {
		params = append(params, newTxMessage(tx))
	}
	resp, err := c.call(ctx, l, peerID, "erd_batch_sign", params...)
	if err != nil {
		return nil, signError(err)
	}
	if resp.Error != nil {
		return nil, errors.Wrap(ErrRejected, resp.Error.Message)
	}
	var results []signatureResult
	if err := json.Unmarshal(resp.Result, &results); err != nil {
		return nil, errors.Wrap(err, "unmarshal batch sign result")
	}
	if len(results) != len(txs) {
		return nil, errors.Errorf("wallet signed %d of %d transactions", len(results), len(txs))
	}
	signed := make([]*transaction.Transaction, 0, len(txs))
	for i, tx := range txs {
		s, err := withSignature(tx, results[i].Signature)
		if err != nil {
			return nil, errors.Wrapf(err, "transaction %d", i+1)
		}
		signed = append(signed, s)
	}
	return signed, nil
}

func withSignature(tx *transaction.Transaction, signature string) (*transaction.Transaction, error) {
	if signature == "" {
		return nil, errors.Wrap(ErrRejected, "wallet returned no signature")
	}
	if sig, err := hex.DecodeString(signature); err != nil || len(sig) != 64 {
		return nil, errors.Errorf("malformed signature %q", signature)
	}
	signed := *tx
	signed.Signature = signature
	return &signed, nil
}

func signError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(ErrTimeout, err.Error())
	case errors.Is(err, errSessionClosed):
		return errors.Wrap(ErrNotConnected, "session closed while waiting for signature")
	}
	return err
}

func (c *client) session() (*link, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.link == nil {
		return nil, "", ErrNotConnected
	}
	return c.link, c.peerID, nil
}

func (c *client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		c.deleteSession(ctx)
		return nil
	}
	c.endSession(l, EventDisconnected, false)
	return nil
}

// endSession 关闭会话，只有当前连接生效，重复调用为空操作
func (c *client) endSession(l *link, typ EventType, remote bool) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	wasConnected := c.connected
	addr, peerID := c.address, c.peerID
	c.resetLocked()
	c.mu.Unlock()

	if !remote && peerID != "" {
		c.killSession(l, peerID)
	}
	l.close()
	if !wasConnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.deleteSession(ctx)
	log.Infof("wallet connect - session of %v %v (remote=%v)", addr, typ, remote)
	c.emit(Event{Type: typ, Address: addr, Remote: remote})
}

// abort 丢弃未完成握手的连接
func (c *client) abort(l *link) {
	c.mu.Lock()
	if c.link == l {
		c.resetLocked()
	}
	c.mu.Unlock()
	l.close()
}

func (c *client) killSession(l *link, peerID string) {
	req := newJSONRpcRequest(c.nextPayloadID(), "wc_sessionUpdate", sessionResult{Approved: false})
	payload, err := encryptJSONRpc(l.key, req.Marshal())
	if err != nil {
		log.Warnf("wallet connect - encrypt session update:%v", err)
		return
	}
	if err := l.write(&wcMessage{Topic: peerID, Type: "pub", Payload: payload.Marshal(), Silent: true}); err != nil {
		log.Warnf("wallet connect - send session update:%v", err)
	}
}

func (c *client) resetLocked() {
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	c.link = nil
	c.connected = false
	c.handshakeTopic = ""
	c.clientID = ""
	c.key = nil
	c.uri = ""
	c.peerID = ""
	c.address = ""
	c.chainID = ""
	c.expiresAt = time.Time{}
}

func (c *client) startExpiryLocked(l *link, at time.Time) {
	c.expiresAt = at
	c.expiry = time.AfterFunc(at.Sub(c.now()), func() {
		c.endSession(l, EventExpired, false)
	})
}

func (c *client) sessionLocked() *Session {
	return &Session{
		BridgeURL: c.opts.BridgeURL,
		ClientID:  c.clientID,
		PeerID:    c.peerID,
		Key:       hex.EncodeToString(c.key),
		Address:   c.address,
		ChainID:   c.chainID,
		ExpiresAt: c.expiresAt,
	}
}

func (c *client) saveSession(ctx context.Context, s *Session) {
	if err := c.store.Save(ctx, c.opts.SessionName, s, s.ExpiresAt.Sub(c.now())); err != nil {
		log.Warnf("wallet connect - persist session:%v", err)
	}
}

func (c *client) deleteSession(ctx context.Context) {
	if err := c.store.Delete(ctx, c.opts.SessionName); err != nil {
		log.Warnf("wallet connect - delete session:%v", err)
	}
}

// emit 事件缓冲区满时丢弃，避免阻塞读循环
func (c *client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		log.Warnf("wallet connect - event buffer full, dropped %v", e.Type)
	}
}

func (c *client) nextPayloadID() int64 {
	return c.ids.Generate().Int64() % maxPayloadID
}

// call 发布一个jsonrpc请求并等待同id的响应
func (c *client) call(ctx context.Context, l *link, topic, method string, params ...interface{}) (*jsonRpcResponse, error) {
	req := newJSONRpcRequest(c.nextPayloadID(), method, params...)
	ch := make(chan *jsonRpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[req.Id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.Id)
		c.pendingMu.Unlock()
	}()

	payload, err := encryptJSONRpc(l.key, req.Marshal())
	if err != nil {
		return nil, err
	}
	msg := &wcMessage{Topic: topic, Type: "pub", Payload: payload.Marshal(), Silent: req.IsSilentPayload()}
	log.Debugf("wallet connect - %v request id:%v", method, req.Id)
	if err := l.write(msg); err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-l.done:
		return nil, errSessionClosed
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "wait for %v response", method)
	}
}

func (c *client) readLoop(l *link) {
	defer close(l.done)
	for {
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			if !l.closed.Load() {
				log.Warnf("wallet connect - bridge connection lost:%v", err)
			}
			c.endSession(l, EventDisconnected, true)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		log.Debugf("wallet connect - receive:%v", string(data))
		msg, err := newWCMessageFromBytes(data)
		if err != nil {
			log.Warnf("wallet connect - %v", err)
			continue
		}
		if msg.Type != "pub" {
			continue
		}
		if err := l.write(&wcMessage{Topic: msg.Topic, Type: "ack", Silent: true}); err != nil {
			log.Warnf("wallet connect - ack:%v", err)
		}
		payload, err := decryptJSONRpc(l.key, msg)
		if err != nil {
			log.Warnf("wallet connect - drop message:%v", err)
			continue
		}
		c.dispatch(l, payload)
	}
}

func (c *client) dispatch(l *link, jsonRpc string) {
	if method := gjson.Get(jsonRpc, "method"); method.Exists() {
		switch method.String() {
		case "wc_sessionUpdate":
			if sessionClosed(jsonRpc) {
				log.Warnf("wallet connect - session closed from request %v", jsonRpc)
				c.endSession(l, EventDisconnected, true)
				return
			}
			log.Debugf("wallet connect - session updated:%v", jsonRpc)
		default:
			log.Debugf("wallet connect - ignored wallet request %v", method.String())
		}
		return
	}
	var resp jsonRpcResponse
	if err := json.Unmarshal([]byte(jsonRpc), &resp); err != nil {
		log.Warnf("wallet connect - unmarshal response:%v", err)
		return
	}
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.Id]
	c.pendingMu.Unlock()
	if !ok {
		log.Debugf("wallet connect - no request waiting for id %v", resp.Id)
		return
	}
	select {
	case ch <- &resp:
	default:
	}
}

func sessionClosed(jsonRpc string) bool {
	params := gjson.Get(jsonRpc, "params").Array()
	if len(params) == 0 {
		// 不应该发生
		return false
	}
	approved := params[0].Get("approved")
	return approved.Exists() && !approved.Bool()
}
