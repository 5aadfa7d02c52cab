package nativeauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"moff.io/wallet-shell/pkg/errors"
)

const defaultExpirySeconds = 60 * 60 * 4

// BlockHashProvider supplies the block hash the token is anchored to.
type BlockHashProvider interface {
	GetLatestBlockHash(ctx context.Context, shard *uint32) (string, error)
}

type ClientConfig struct {
	Origin         string
	ExpirySeconds  int64
	BlockHashShard *uint32
	ExtraInfo      map[string]string
}

// Client 生成native auth登录token，并在钱包签名后组装access token
type Client struct {
	conf   ClientConfig
	blocks BlockHashProvider
}

func NewClient(conf ClientConfig, blocks BlockHashProvider) *Client {
	if conf.ExpirySeconds <= 0 {
		conf.ExpirySeconds = defaultExpirySeconds
	}
	return &Client{conf: conf, blocks: blocks}
}

// GenerateToken returns origin.blockHash.ttl.extraInfo, origin and extraInfo base64url encoded.
func (c *Client) GenerateToken(ctx context.Context) (string, error) {
	if c.conf.Origin == "" {
		return "", errors.New("native auth origin not configured")
	}
	hash, err := c.blocks.GetLatestBlockHash(ctx, c.conf.BlockHashShard)
	if err != nil {
		return "", errors.Wrap(err, "fetch latest block hash")
	}
	extra := c.conf.ExtraInfo
	if extra == nil {
		extra = map[string]string{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return "", errors.Wrap(err, "marshal native auth extra info")
	}
	return strings.Join([]string{
		encodeValue(c.conf.Origin),
		hash,
		fmt.Sprint(c.conf.ExpirySeconds),
		encodeValue(string(extraJSON)),
	}, "."), nil
}

// GetAccessToken binds the signed token to the address that signed it.
func (c *Client) GetAccessToken(address, token, signature string) string {
	return strings.Join([]string{encodeValue(address), encodeValue(token), signature}, ".")
}
