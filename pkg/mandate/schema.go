package mandate

import (
	"sort"
	"sync"

	"github.com/go-go-golems/concierge/pkg/parse"
	"github.com/pkg/errors"
)

const (
	CartMandateType = "CartMandate"

	DefaultDomainName    = "CartBlanche"
	DefaultDomainVersion = "1"
	DefaultChainID       = uint64(324705682)
	DefaultCurrency      = "USDC"
)

// Field is one entry of an EIP-712 struct type.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

type Domain struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	ChainID uint64 `json:"chainId" yaml:"chainId"`
}

// FieldResolver computes the value of one message field from an untrusted record.
type FieldResolver interface {
	Resolve(record parse.Object) (any, error)
}

// Schema is a trusted typed-data definition. Mandates are always emitted with
// the Domain and Fields of their Schema, whatever the upstream payload claims.
type Schema struct {
	PrimaryType string
	Domain      Domain
	Fields      []Field
	Resolvers   map[string]FieldResolver
}

func (s *Schema) validate() error {
	if s.PrimaryType == "" {
		return errors.New("schema has no primary type")
	}
	if len(s.Fields) == 0 {
		return errors.Errorf("schema %s has no fields", s.PrimaryType)
	}
	for _, f := range s.Fields {
		if _, ok := s.Resolvers[f.Name]; !ok {
			return errors.Errorf("schema %s: no resolver for field %s", s.PrimaryType, f.Name)
		}
	}
	return nil
}

// Registry holds the trusted schemas, keyed by primary type.
type Registry struct {
	mu          sync.RWMutex
	schemas     map[string]*Schema
	defaultType string
}

func NewRegistry() *Registry {
	return &Registry{
		schemas: map[string]*Schema{},
	}
}

// Register adds s. The first registered schema becomes the default.
func (r *Registry) Register(s *Schema) error {
	if s == nil {
		return errors.New("schema is nil")
	}
	if err := s.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[s.PrimaryType]; ok {
		return errors.Errorf("schema %s already registered", s.PrimaryType)
	}
	r.schemas[s.PrimaryType] = s
	if r.defaultType == "" {
		r.defaultType = s.PrimaryType
	}
	return nil
}

func (r *Registry) Lookup(primaryType string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[primaryType]
	return s, ok
}

func (r *Registry) Default() (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[r.defaultType]
	return s, ok
}

func (r *Registry) PrimaryTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// CartMandateOptions configures the CartMandate schema.
type CartMandateOptions struct {
	Domain          Domain
	Policy          AddressPolicy
	DefaultCurrency string
}

func DefaultCartMandateOptions() CartMandateOptions {
	return CartMandateOptions{
		Domain: Domain{
			Name:    DefaultDomainName,
			Version: DefaultDomainVersion,
			ChainID: DefaultChainID,
		},
		Policy:          DefaultAddressPolicy(),
		DefaultCurrency: DefaultCurrency,
	}
}

var (
	AddressKeys  = []string{"merchant_address", "merchant", "merchantAddress", "recipient", "pay_to"}
	AmountKeys   = []string{"amount", "total_usd", "total", "total_price", "price"}
	CurrencyKeys = []string{"currency", "currency_code", "token"}
)

func CartMandateSchema(opts CartMandateOptions) *Schema {
	currency := opts.DefaultCurrency
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Schema{
		PrimaryType: CartMandateType,
		Domain:      opts.Domain,
		Fields: []Field{
			{Name: "merchant_address", Type: "address"},
			{Name: "amount", Type: "uint256"},
			{Name: "currency", Type: "string"},
		},
		Resolvers: map[string]FieldResolver{
			"merchant_address": AddressField{Keys: AddressKeys, Policy: opts.Policy},
			"amount":           AmountField{Keys: AmountKeys},
			"currency":         StringField{Keys: CurrencyKeys, Default: currency},
		},
	}
}

// NewCartMandateRegistry returns a registry holding only the CartMandate schema.
func NewCartMandateRegistry(opts CartMandateOptions) (*Registry, error) {
	r := NewRegistry()
	if err := r.Register(CartMandateSchema(opts)); err != nil {
		return nil, err
	}
	return r, nil
}
