package asn

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Max is the largest accepted AS number. It is 2^32, one above the real
// 32-bit AS ceiling; existing callers rely on the inclusive bound.
const Max Number = 4294967296

// ErrInvalid is returned for strings that are not a valid AS number
var ErrInvalid = errors.New("invalid AS number")

// Number is an autonomous system number
type Number uint64

// String returns the plain decimal form, e.g. "174"
func (n Number) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// Handle returns the registry form, e.g. "AS174"
func (n Number) Handle() string {
	return "AS" + n.String()
}

// UnmarshalJSON accepts both 174 and "174", RIPEstat uses either depending on the endpoint.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	s = strings.TrimPrefix(strings.ToUpper(s), "AS")
	v, err := Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(b))
	}
	*n = v
	return nil
}

// MarshalJSON encodes the number as a JSON number
func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(n))
}

// Parse validates s as a decimal AS number in (0, Max]
func Parse(s string) (Number, error) {
	if !isDigits(s) {
		return 0, ErrInvalid
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	n := Number(v)
	if n == 0 || n > Max {
		return 0, ErrInvalid
	}
	return n, nil
}

// Valid reports whether s is an acceptable AS number
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// IsIPv4 reports whether s is a dotted quad with every octet in [0,255].
// Leading zeros are accepted.
func IsIPv4(s string) bool {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return false
	}
	for _, o := range octets {
		if !isDigits(o) {
			return false
		}
		v, err := strconv.Atoi(o)
		if err != nil || v > 255 {
			return false
		}
	}
	return true
}

// Kind is the classification of a user query
type Kind int

const (
	KindInvalid Kind = iota
	KindIPv4
	KindASN
)

func (k Kind) String() string {
	switch k {
	case KindIPv4:
		return "ipv4"
	case KindASN:
		return "asn"
	default:
		return "invalid"
	}
}

// Classify tells an IPv4 address apart from an AS number. IP wins, so
// "1.2.3.4" is never considered as an AS.
func Classify(s string) Kind {
	switch {
	case IsIPv4(s):
		return KindIPv4
	case Valid(s):
		return KindASN
	default:
		return KindInvalid
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
