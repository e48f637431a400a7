package mandate

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-go-golems/concierge/pkg/parse"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FallbackAddress is substituted for missing or malformed merchant addresses
// unless the policy is fail-closed.
const FallbackAddress = "0xFe5e03799Fe833D93e950d22406F9aD901Ff3Bb9"

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	return common.IsHexAddress(s)
}

// AddressPolicy decides what happens to an address that does not validate.
type AddressPolicy struct {
	Validate   func(string) bool
	Fallback   string
	FailClosed bool
}

func DefaultAddressPolicy() AddressPolicy {
	return AddressPolicy{
		Validate: IsAddress,
		Fallback: FallbackAddress,
	}
}

func FailClosedAddressPolicy() AddressPolicy {
	return AddressPolicy{
		Validate:   IsAddress,
		FailClosed: true,
	}
}

func (p AddressPolicy) Resolve(raw string) (string, error) {
	validate := p.Validate
	if validate == nil {
		validate = IsAddress
	}
	addr := strings.TrimSpace(raw)
	if validate(addr) {
		return addr, nil
	}
	if p.FailClosed || p.Fallback == "" {
		return "", errors.Wrapf(ErrNoMandate, "invalid merchant address %q", raw)
	}
	log.Warn().Str("merchant_address", raw).Str("fallback", p.Fallback).Msg("invalid merchant address, using fallback")
	return p.Fallback, nil
}

type AddressField struct {
	Keys   []string
	Policy AddressPolicy
}

func (f AddressField) Resolve(record parse.Object) (any, error) {
	raw, _ := record.String(f.Keys...)
	return f.Policy.Resolve(raw)
}

// AmountField resolves a non-negative integer amount.
type AmountField struct {
	Keys []string
}

func (f AmountField) Resolve(record parse.Object) (any, error) {
	v, _, ok := record.Lookup(f.Keys...)
	if !ok {
		return uint64(0), nil
	}
	return CoerceAmount(v), nil
}

// CoerceAmount turns an upstream amount into a non-negative integer.
//
// Strings keep only their digits ("$1,234" is 1234). Negative, non-finite or
// out of range numbers are 0; positive fractions are truncated.
func CoerceAmount(v any) uint64 {
	switch tv := v.(type) {
	case string:
		return digitsOnly(tv)
	case json.Number:
		if u, err := strconv.ParseUint(tv.String(), 10, 64); err == nil {
			return u
		}
		f, err := tv.Float64()
		if err != nil {
			return 0
		}
		return floatAmount(f)
	case float64:
		return floatAmount(tv)
	case float32:
		return floatAmount(float64(tv))
	case int:
		return intAmount(int64(tv))
	case int32:
		return intAmount(int64(tv))
	case int64:
		return intAmount(tv)
	case uint:
		return uint64(tv)
	case uint32:
		return uint64(tv)
	case uint64:
		return tv
	default:
		return 0
	}
}

func digitsOnly(s string) uint64 {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return 0
	}
	u, err := strconv.ParseUint(sb.String(), 10, 64)
	if err != nil {
		return 0
	}
	return u
}

func floatAmount(f float64) uint64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f >= math.MaxUint64 {
		return 0
	}
	return uint64(f)
}

func intAmount(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

type StringField struct {
	Keys    []string
	Default string
}

func (f StringField) Resolve(record parse.Object) (any, error) {
	if s, ok := record.String(f.Keys...); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}
	return f.Default, nil
}
