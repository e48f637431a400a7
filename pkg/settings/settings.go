package settings

import (
	"io"
	"strings"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/security"
	"github.com/go-go-golems/concierge/pkg/signing"
	"github.com/go-go-golems/concierge/pkg/transport"
)

const (
	SignerKindNone     = "none"
	SignerKindLocal    = "local"
	SignerKindApproval = "approval"
)

type AgentSettings struct {
	BaseURL   string        `yaml:"base-url" mapstructure:"base-url"`
	AppName   string        `yaml:"app-name" mapstructure:"app-name"`
	UserID    string        `yaml:"user-id" mapstructure:"user-id"`
	SessionID string        `yaml:"session-id,omitempty" mapstructure:"session-id"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// AllowHTTP and AllowLocalNetwork default to true for an agent on the
	// local machine. Turn both off when the agent is remote.
	AllowHTTP         bool `yaml:"allow-http" mapstructure:"allow-http"`
	AllowLocalNetwork bool `yaml:"allow-local-network" mapstructure:"allow-local-network"`
}

type MandateSettings struct {
	DomainName      string `yaml:"domain-name" mapstructure:"domain-name"`
	DomainVersion   string `yaml:"domain-version" mapstructure:"domain-version"`
	ChainID         uint64 `yaml:"chain-id" mapstructure:"chain-id"`
	FallbackAddress string `yaml:"fallback-address" mapstructure:"fallback-address"`
	// FailClosed drops mandates with an invalid merchant address instead of
	// substituting FallbackAddress.
	FailClosed      bool   `yaml:"fail-closed" mapstructure:"fail-closed"`
	DefaultCurrency string `yaml:"default-currency" mapstructure:"default-currency"`
}

type SignerSettings struct {
	Kind       string `yaml:"kind" mapstructure:"kind"`
	PrivateKey string `yaml:"private-key,omitempty" mapstructure:"private-key"`
	// ChainID is the network the key signs for. Zero means the mandate chain.
	ChainID uint64 `yaml:"chain-id,omitempty" mapstructure:"chain-id"`
}

type Settings struct {
	Agent   AgentSettings   `yaml:"agent" mapstructure:"agent"`
	Mandate MandateSettings `yaml:"mandate" mapstructure:"mandate"`
	Signer  SignerSettings  `yaml:"signer" mapstructure:"signer"`
}

func NewSettings() *Settings {
	return &Settings{
		Agent: AgentSettings{
			BaseURL: transport.DefaultBaseURL,
			AppName: transport.DefaultAppName,
			UserID:  transport.DefaultUserID,
			Timeout: 30 * time.Second,

			AllowHTTP:         true,
			AllowLocalNetwork: true,
		},
		Mandate: MandateSettings{
			DomainName:      mandate.DefaultDomainName,
			DomainVersion:   mandate.DefaultDomainVersion,
			ChainID:         mandate.DefaultChainID,
			FallbackAddress: mandate.FallbackAddress,
			DefaultCurrency: mandate.DefaultCurrency,
		},
		Signer: SignerSettings{
			Kind: SignerKindApproval,
		},
	}
}

// Load overlays the values set in v over the defaults.
func Load(v *viper.Viper) (*Settings, error) {
	s := NewSettings()
	if v == nil {
		return s, nil
	}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "decoding settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	switch strings.ToLower(s.Signer.Kind) {
	case SignerKindNone, SignerKindLocal, SignerKindApproval:
	default:
		return errors.Errorf("unknown signer kind %q", s.Signer.Kind)
	}
	if s.Mandate.FallbackAddress != "" && !mandate.IsAddress(s.Mandate.FallbackAddress) {
		return errors.Errorf("mandate fallback address %q is not a hex address", s.Mandate.FallbackAddress)
	}
	err := security.ValidateAgentURL(s.Agent.BaseURL, security.URLPolicy{
		AllowHTTP:          s.Agent.AllowHTTP,
		AllowLocalNetworks: s.Agent.AllowLocalNetwork,
	})
	if err != nil {
		return err
	}
	if s.Agent.Timeout < 0 {
		return errors.New("agent timeout must not be negative")
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) CartMandateOptions() mandate.CartMandateOptions {
	policy := mandate.DefaultAddressPolicy()
	policy.Fallback = s.Mandate.FallbackAddress
	if s.Mandate.FailClosed {
		policy = mandate.FailClosedAddressPolicy()
	}
	return mandate.CartMandateOptions{
		Domain: mandate.Domain{
			Name:    s.Mandate.DomainName,
			Version: s.Mandate.DomainVersion,
			ChainID: s.Mandate.ChainID,
		},
		Policy:          policy,
		DefaultCurrency: s.Mandate.DefaultCurrency,
	}
}

func (s *Settings) Registry() (*mandate.Registry, error) {
	return mandate.NewCartMandateRegistry(s.CartMandateOptions())
}

func (s *Settings) TransportConfig() transport.Config {
	return transport.Config{
		BaseURL:   s.Agent.BaseURL,
		AppName:   s.Agent.AppName,
		UserID:    s.Agent.UserID,
		SessionID: s.Agent.SessionID,
		Timeout:   s.Agent.Timeout,
	}
}

func (s *Settings) SignerChainID() uint64 {
	if s.Signer.ChainID != 0 {
		return s.Signer.ChainID
	}
	return s.Mandate.ChainID
}

// NewSigner builds the configured signer. The approval signer prompts on in
// and out before every signature. Kind none returns a nil signer.
func (s *Settings) NewSigner(in io.Reader, out io.Writer) (signing.Signer, error) {
	kind := strings.ToLower(s.Signer.Kind)
	if kind == SignerKindNone {
		return nil, nil
	}

	local, err := signing.NewLocalKeySigner(s.Signer.PrivateKey, s.SignerChainID())
	if err != nil {
		return nil, errors.Wrap(err, "creating local key signer")
	}
	if kind == SignerKindApproval {
		return signing.NewApprovalSigner(local, in, out), nil
	}
	return local, nil
}
