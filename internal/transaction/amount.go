package transaction

import (
	"math/big"
	"strings"

	"moff.io/wallet-shell/pkg/errors"
)

// EGLDDecimals 1 EGLD = 10^18 最小单位
const EGLDDecimals = 18

var ErrInvalidAmount = errors.New("invalid amount")

var denomination = new(big.Int).Exp(big.NewInt(10), big.NewInt(EGLDDecimals), nil)

// Amount is a non negative value in the smallest unit.
type Amount struct {
	value *big.Int
}

// EGLD parses a human decimal such as "0.5" or "12".
func EGLD(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, errors.Wrap(ErrInvalidAmount, "empty")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return Amount{}, errors.Wrapf(ErrInvalidAmount, "%q", s)
	}
	if len(frac) > EGLDDecimals {
		return Amount{}, errors.Wrapf(ErrInvalidAmount, "%q has more than %d decimals", s, EGLDDecimals)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return Amount{}, errors.Wrapf(ErrInvalidAmount, "%q", s)
	}
	digits := whole + frac + strings.Repeat("0", EGLDDecimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, errors.Wrapf(ErrInvalidAmount, "%q", s)
	}
	return Amount{value: v}, nil
}

// FromDenominated parses the integer string used on the wire.
func FromDenominated(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return Amount{}, errors.Wrapf(ErrInvalidAmount, "%q", s)
	}
	return Amount{value: v}, nil
}

func Zero() Amount {
	return Amount{value: new(big.Int)}
}

func (a Amount) Int() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.value)
}

// String is the denominated integer.
func (a Amount) String() string {
	return a.Int().String()
}

// EGLDString formats with trailing zeros trimmed, e.g. "1.5".
func (a Amount) EGLDString() string {
	q, r := new(big.Int).QuoRem(a.Int(), denomination, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := r.String()
	frac = strings.Repeat("0", EGLDDecimals-len(frac)) + frac
	return q.String() + "." + strings.TrimRight(frac, "0")
}

func digitsOnly(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
