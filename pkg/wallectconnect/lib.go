package wallectconnect

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

// 第一步：建立链接，订阅自身clientID的消息
// 第二步：构建 wc_sessionRequest 的 jsonrpc 请求，加密后发布至握手topic
//		加密规则: https://github.com/WalletConnect/walletconnect-monorepo/blob/6d440e7990ecfab3b1dca10a8ff45f72af0e1541/legacy/client/src/crypto.ts#L39
// 第三步：等待钱包响应，之后通过peerID收发签名请求与 wc_sessionUpdate 事件

const (
	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%v.bridge.walletconnect.org"
)

var random = rand.New(rand.NewSource(time.Now().UnixNano()))

// RandomBridgeURL picks one of the public v1 bridges.
func RandomBridgeURL() string {
	c := alphanumerical[random.Intn(len(alphanumerical))]
	return fmt.Sprintf(bridgeURLFormat, string(c))
}

// GetWebSocketUrl turns a bridge http(s) URL into its websocket endpoint.
func GetWebSocketUrl(bridgeURL, protocol, version string) string {
	switch {
	case strings.HasPrefix(bridgeURL, "https"):
		bridgeURL = strings.Replace(bridgeURL, "https", "wss", 1)
	case strings.HasPrefix(bridgeURL, "http"):
		bridgeURL = strings.Replace(bridgeURL, "http", "ws", 1)
	}
	return bridgeURL + "?protocol=" + protocol + "&version=" + version + "&env=wallet-shell"
}

// PairingURI formats the v1 uri scanned by the wallet.
func PairingURI(handshakeTopic, bridgeURL string, key []byte) string {
	return fmt.Sprintf("wc:%s@1?bridge=%s&key=%x", handshakeTopic, url.QueryEscape(bridgeURL), key)
}
