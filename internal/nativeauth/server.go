package nativeauth

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/fatih/set.v0"
	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/pkg/errors"
)

// BlockTimestampProvider resolves the timestamp (seconds) of the block a token points at.
type BlockTimestampProvider interface {
	GetBlockTimestamp(ctx context.Context, hash string) (int64, error)
}

type ServerConfig struct {
	AcceptedOrigins  []string
	MaxExpirySeconds int64
	// SkipLegacyValidation rejects signatures made over "address+token{}".
	SkipLegacyValidation bool
}

// ValidationError 校验失败的原因
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid native auth token: " + e.Reason
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a rejected token, as opposed to a lookup failure.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Result is a decoded and verified access token.
type Result struct {
	Address        string            `json:"address"`
	Origin         string            `json:"origin"`
	BlockHash      string            `json:"blockHash"`
	BlockTimestamp int64             `json:"blockTimestamp"`
	TTL            int64             `json:"ttl"`
	Issued         int64             `json:"issued"`
	Expires        int64             `json:"expires"`
	ExtraInfo      map[string]string `json:"extraInfo,omitempty"`
}

type Server struct {
	conf    ServerConfig
	origins set.Interface
	blocks  BlockTimestampProvider
	now     func() time.Time
}

func NewServer(conf ServerConfig, blocks BlockTimestampProvider) *Server {
	origins := set.New(set.ThreadSafe)
	for _, o := range conf.AcceptedOrigins {
		origins.Add(o)
	}
	return &Server{conf: conf, origins: origins, blocks: blocks, now: time.Now}
}

// Validate decodes address.token.signature and checks origin, expiry and signature.
func (s *Server) Validate(ctx context.Context, accessToken string) (*Result, error) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return nil, invalid("expected 3 parts, got %d", len(parts))
	}
	addrStr, err := decodeValue(parts[0])
	if err != nil {
		return nil, invalid("address encoding")
	}
	token, err := decodeValue(parts[1])
	if err != nil {
		return nil, invalid("token encoding")
	}
	sig, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, invalid("signature encoding")
	}
	addr, err := address.FromBech32(addrStr)
	if err != nil {
		return nil, invalid("address %q", addrStr)
	}

	tokenParts := strings.Split(token, ".")
	if len(tokenParts) != 4 {
		return nil, invalid("expected 4 token parts, got %d", len(tokenParts))
	}
	origin, err := decodeValue(tokenParts[0])
	if err != nil {
		return nil, invalid("origin encoding")
	}
	if !s.origins.Has(origin) {
		return nil, invalid("origin %q not accepted", origin)
	}
	blockHash := tokenParts[1]
	ttl, err := strconv.ParseInt(tokenParts[2], 10, 64)
	if err != nil || ttl <= 0 {
		return nil, invalid("ttl %q", tokenParts[2])
	}
	if s.conf.MaxExpirySeconds > 0 && ttl > s.conf.MaxExpirySeconds {
		return nil, invalid("ttl %d exceeds %d", ttl, s.conf.MaxExpirySeconds)
	}
	extraJSON, err := decodeValue(tokenParts[3])
	if err != nil {
		return nil, invalid("extra info encoding")
	}
	var extra map[string]string
	if extraJSON != "" {
		if err := json.Unmarshal([]byte(extraJSON), &extra); err != nil {
			return nil, invalid("extra info json")
		}
	}

	issued, err := s.blocks.GetBlockTimestamp(ctx, blockHash)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve block %s", blockHash)
	}
	expires := issued + ttl
	if s.now().Unix() > expires {
		return nil, invalid("token expired at %d", expires)
	}

	msg := []byte(addrStr + token)
	if !verifyMessage(addr.PublicKey(), msg, sig) {
		legacy := !s.conf.SkipLegacyValidation && verifyMessage(addr.PublicKey(), append(msg, "{}"...), sig)
		if !legacy {
			return nil, invalid("signature mismatch")
		}
	}
	return &Result{
		Address:        addrStr,
		Origin:         origin,
		BlockHash:      blockHash,
		BlockTimestamp: issued,
		TTL:            ttl,
		Issued:         issued,
		Expires:        expires,
		ExtraInfo:      extra,
	}, nil
}
