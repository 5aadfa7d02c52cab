package nativeauth

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// messagePrefix is prepended by wallets before hashing a signed message.
const messagePrefix = "\x17Elrond Signed Message:\n"

// SignableMessage returns keccak256(prefix + len(msg) + msg), the bytes a wallet signs.
func SignableMessage(msg []byte) []byte {
	buf := make([]byte, 0, len(messagePrefix)+len(msg)+8)
	buf = append(buf, messagePrefix...)
	buf = append(buf, strconv.Itoa(len(msg))...)
	buf = append(buf, msg...)
	return crypto.Keccak256(buf)
}

// SignMessage signs msg the way a wallet does. Used by local signers and tests.
func SignMessage(key ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(key, SignableMessage(msg))
}

func verifyMessage(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, SignableMessage(msg), sig)
}

func encodeValue(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// decodeValue accepts url safe base64 with or without padding, plus the standard alphabet.
func decodeValue(s string) (string, error) {
	s = strings.TrimRight(s, "=")
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return string(b), nil
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
