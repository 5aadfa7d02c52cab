package address

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"moff.io/wallet-shell/pkg/errors"
)

// DefaultHRP MultiversX 地址前缀
const DefaultHRP = "erd"

// Size public key length carried by an address.
const Size = ed25519.PublicKeySize

var ErrInvalidAddress = errors.New("invalid address")

// Address is an ed25519 public key rendered as bech32.
type Address struct {
	hrp    string
	pubKey []byte
}

// FromBech32 decodes "erd1..." addresses. Any hrp is accepted, callers compare Hrp() when they care.
func FromBech32(s string) (Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: %v", s, err)
	}
	pub, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: %v", s, err)
	}
	if len(pub) != Size {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: %d byte public key", s, len(pub))
	}
	return Address{hrp: hrp, pubKey: pub}, nil
}

// FromPublicKey wraps a raw public key.
func FromPublicKey(hrp string, pub []byte) (Address, error) {
	if len(pub) != Size {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%d byte public key", len(pub))
	}
	return Address{hrp: hrp, pubKey: append([]byte{}, pub...)}, nil
}

func (a Address) Hrp() string {
	return a.hrp
}

func (a Address) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a.pubKey)
}

func (a Address) Hex() string {
	return hex.EncodeToString(a.pubKey)
}

func (a Address) IsZero() bool {
	return len(a.pubKey) == 0
}

// Bech32 encodes the address, an empty string for the zero value.
func (a Address) Bech32() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a.pubKey, 8, 5, true)
	if err != nil {
		return ""
	}
	s, err := bech32.Encode(a.hrp, conv)
	if err != nil {
		return ""
	}
	return s
}

func (a Address) String() string {
	return a.Bech32()
}
