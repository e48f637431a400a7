package mandate

import (
	"math/big"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-go-golems/concierge/pkg/parse"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoMandate is wrapped by every canonicalization rejection.
var ErrNoMandate = errors.New("no mandate")

// Candidate is an untrusted, loosely typed mandate payload found in text.
type Candidate struct {
	Value  parse.Object
	Span   parse.Span
	Source parse.Source
}

// CandidateFromValue wraps a decoded JSON value. Anything but an object is rejected.
func CandidateFromValue(v any) (*Candidate, error) {
	obj, ok := parse.AsObject(v)
	if !ok || obj == nil {
		return nil, errors.Wrapf(ErrNoMandate, "candidate is a %T, not an object", v)
	}
	return &Candidate{Value: obj}, nil
}

var DefaultMarkerKeys = []string{"merchant_address", "merchant", "cart_mandate"}

const DefaultWrapperKey = "cart_mandate"

type Extractor struct {
	MarkerKeys []string
	WrapperKey string
}

func NewExtractor() *Extractor {
	return &Extractor{
		MarkerKeys: DefaultMarkerKeys,
		WrapperKey: DefaultWrapperKey,
	}
}

// Extract returns the first mandate-looking JSON object in text, or nil.
func (e *Extractor) Extract(text string) *Candidate {
	m, ok := parse.FindJSONObject(text, parse.FindOptions{MarkerKeys: e.MarkerKeys})
	if !ok {
		return nil
	}
	obj := m.Object
	if e.WrapperKey != "" {
		if inner, ok := obj.Object(e.WrapperKey); ok {
			obj = inner
		}
	}
	return &Candidate{Value: obj, Span: m.Span, Source: m.Source}
}

// CanonicalMandate is the typed data a signature is computed over. Treat it
// as read-only once created.
type CanonicalMandate struct {
	Domain      Domain             `json:"domain" yaml:"domain"`
	Types       map[string][]Field `json:"types" yaml:"types"`
	PrimaryType string             `json:"primaryType" yaml:"primaryType"`
	Message     map[string]any     `json:"message" yaml:"message"`
}

func (m *CanonicalMandate) MerchantAddress() string {
	s, _ := m.Message["merchant_address"].(string)
	return s
}

func (m *CanonicalMandate) Amount() uint64 {
	return CoerceAmount(m.Message["amount"])
}

func (m *CanonicalMandate) Currency() string {
	s, _ := m.Message["currency"].(string)
	return s
}

// AsCandidate renders the mandate back into candidate form.
func (m *CanonicalMandate) AsCandidate() *Candidate {
	types := map[string]any{}
	for name, fields := range m.Types {
		fs := make([]any, 0, len(fields))
		for _, f := range fields {
			fs = append(fs, map[string]any{"name": f.Name, "type": f.Type})
		}
		types[name] = fs
	}
	message := make(map[string]any, len(m.Message))
	for k, v := range m.Message {
		message[k] = v
	}
	return &Candidate{
		Value: parse.Object{
			"domain": map[string]any{
				"name":    m.Domain.Name,
				"version": m.Domain.Version,
				"chainId": m.Domain.ChainID,
			},
			"types":       types,
			"primaryType": m.PrimaryType,
			"message":     message,
		},
	}
}

// TypedData converts the mandate to go-ethereum's EIP-712 representation.
func (m *CanonicalMandate) TypedData() apitypes.TypedData {
	types := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
	}
	for name, fields := range m.Types {
		ts := make([]apitypes.Type, 0, len(fields))
		for _, f := range fields {
			ts = append(ts, apitypes.Type{Name: f.Name, Type: f.Type})
		}
		types[name] = ts
	}

	message := apitypes.TypedDataMessage{}
	for k, v := range m.Message {
		switch tv := v.(type) {
		case uint64:
			// apitypes parses integers from decimal strings
			message[k] = strconv.FormatUint(tv, 10)
		default:
			message[k] = v
		}
	}

	return apitypes.TypedData{
		Types:       types,
		PrimaryType: m.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    m.Domain.Name,
			Version: m.Domain.Version,
			ChainId: (*math.HexOrDecimal256)(new(big.Int).SetUint64(m.Domain.ChainID)),
		},
		Message: message,
	}
}

// Hash returns the EIP-712 digest of the mandate.
func (m *CanonicalMandate) Hash() ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(m.TypedData())
	if err != nil {
		return nil, errors.Wrap(err, "hashing typed data")
	}
	return hash, nil
}

// Digest is the hex encoded Hash, or "" if the mandate cannot be hashed.
func (m *CanonicalMandate) Digest() string {
	h, err := m.Hash()
	if err != nil {
		return ""
	}
	return hexutil.Encode(h)
}

type Canonicalizer struct {
	registry *Registry
}

func NewCanonicalizer(registry *Registry) *Canonicalizer {
	return &Canonicalizer{registry: registry}
}

// Canonicalize maps an untrusted candidate onto a registered schema.
//
// The schema is picked by the candidate's primaryType when that names a
// registered schema, else the registry default. Domain and types of the
// candidate are never read. The record is the candidate's "message" object if
// it has one, else the candidate itself.
func (c *Canonicalizer) Canonicalize(cand *Candidate) (*CanonicalMandate, error) {
	if cand == nil || cand.Value == nil {
		return nil, errors.Wrap(ErrNoMandate, "empty candidate")
	}

	schema, ok := c.schemaFor(cand.Value)
	if !ok {
		return nil, errors.Wrap(ErrNoMandate, "no schema registered")
	}

	record := cand.Value
	if msg, ok := cand.Value.Object("message"); ok {
		record = msg
	}

	message := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		v, err := schema.Resolvers[f.Name].Resolve(record)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving %s.%s", schema.PrimaryType, f.Name)
		}
		message[f.Name] = v
	}

	fields := make([]Field, len(schema.Fields))
	copy(fields, schema.Fields)

	ret := &CanonicalMandate{
		Domain:      schema.Domain,
		Types:       map[string][]Field{schema.PrimaryType: fields},
		PrimaryType: schema.PrimaryType,
		Message:     message,
	}
	log.Debug().
		Str("primary_type", ret.PrimaryType).
		Str("merchant_address", ret.MerchantAddress()).
		Msg("canonicalized mandate")
	return ret, nil
}

func (c *Canonicalizer) schemaFor(v parse.Object) (*Schema, bool) {
	if c.registry == nil {
		return nil, false
	}
	if pt, ok := v.String("primaryType"); ok {
		if s, ok := c.registry.Lookup(pt); ok {
			return s, true
		}
	}
	return c.registry.Default()
}

// SortedFieldNames lists the message fields of m in schema order.
func (m *CanonicalMandate) SortedFieldNames() []string {
	if fields, ok := m.Types[m.PrimaryType]; ok {
		ret := make([]string, 0, len(fields))
		for _, f := range fields {
			ret = append(ret, f.Name)
		}
		return ret
	}
	ret := make([]string, 0, len(m.Message))
	for k := range m.Message {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
