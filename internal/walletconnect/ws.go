package walletconnect

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
	"moff.io/wallet-shell/pkg/wallectconnect"
)

// link 与bridge之间的一条websocket连接，及其会话密钥
type link struct {
	conn    *websocket.Conn
	key     []byte
	done    chan struct{}
	writeMu sync.Mutex
	closed  atomic.Bool
}

func dial(ctx context.Context, bridgeURL string, key []byte) (*link, error) {
	wsURL := wallectconnect.GetWebSocketUrl(bridgeURL, "wc", "1")
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.WithStackAndReport(&BridgeError{Op: "dial", Err: err})
	}
	return &link{conn: conn, key: key, done: make(chan struct{})}, nil
}

func (l *link) write(msg *wcMessage) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.closed.Load() {
		return errSessionClosed
	}
	if err := l.conn.WriteMessage(websocket.TextMessage, msg.Marshal()); err != nil {
		return errors.WithStack(&BridgeError{Op: "write", Err: err})
	}
	return nil
}

func (l *link) close() {
	if !l.closed.CAS(false, true) {
		return
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err := l.conn.Close(); err != nil {
		log.Debugf("wallet connect - close bridge connection:%v", err)
	}
}

func encryptJSONRpc(key []byte, jsonRpc string) (*wcMessagePayload, error) {
	iv, err := wallectconnect.GenerateRandomBytes(wallectconnect.IVSize)
	if err != nil {
		return nil, errors.WrapAndReport(err, "generate random bytes")
	}
	data, err := wallectconnect.Aes256Encrypt([]byte(jsonRpc), key, iv)
	if err != nil {
		return nil, err
	}
	unsigned := append(append([]byte{}, data...), iv...)
	hmac := wallectconnect.HmacSha256(unsigned, key)
	return &wcMessagePayload{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(hmac),
	}, nil
}

func decryptJSONRpc(key []byte, msg *wcMessage) (string, error) {
	mp, err := newWCMessagePayloadFromBytes([]byte(msg.Payload))
	if err != nil {
		return "", err
	}
	iv, err := hex.DecodeString(mp.IV)
	if err != nil {
		return "", errors.Wrap(err, "decode iv hex")
	}
	cipher, err := hex.DecodeString(mp.Data)
	if err != nil {
		return "", errors.Wrap(err, "decode cipher hex")
	}
	mac, err := hex.DecodeString(mp.Hmac)
	if err != nil {
		return "", errors.Wrap(err, "decode hmac hex")
	}
	// 校验hmac一致性
	unsigned := append(append([]byte{}, cipher...), iv...)
	if !wallectconnect.VerifyHmacSha256(unsigned, key, mac) {
		return "", errors.New("inconsistent session message hmac")
	}
	// 解密数据
	data, err := wallectconnect.Aes256Decrypt(cipher, key, iv)
	if err != nil {
		return "", errors.Wrap(err, "aes256 decrypt")
	}
	return string(data), nil
}
