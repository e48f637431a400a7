package cmds

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/concierge/pkg/settings"
)

type settingsFlag struct {
	flag string
	key  string
}

// AddSettingsFlags registers the persistent flags that override settings
// keys. Config file and CONCIERGE_* environment values take precedence over
// flag defaults.
func AddSettingsFlags(cmd *cobra.Command) {
	defaults := settings.NewSettings()
	flags := cmd.PersistentFlags()

	flags.String("agent-url", defaults.Agent.BaseURL, "agent base URL")
	flags.String("app-name", defaults.Agent.AppName, "agent application name")
	flags.String("user-id", defaults.Agent.UserID, "agent user id")
	flags.String("session-id", "", "agent session id (default: generated)")
	flags.Duration("agent-timeout", defaults.Agent.Timeout, "timeout for agent session creation")
	flags.Bool("allow-http", defaults.Agent.AllowHTTP, "allow a plain http agent URL")
	flags.Bool("allow-local-network", defaults.Agent.AllowLocalNetwork, "allow an agent on localhost or a private network")
	flags.String("domain-name", defaults.Mandate.DomainName, "EIP-712 domain name of signed mandates")
	flags.String("domain-version", defaults.Mandate.DomainVersion, "EIP-712 domain version of signed mandates")
	flags.Uint64("chain-id", defaults.Mandate.ChainID, "chain id of signed mandates")
	flags.String("fallback-address", defaults.Mandate.FallbackAddress, "merchant address used when the proposed one is invalid")
	flags.Bool("fail-closed", defaults.Mandate.FailClosed, "drop mandates with an invalid merchant address")
	flags.String("default-currency", defaults.Mandate.DefaultCurrency, "currency of mandates that name none")
	flags.String("signer", defaults.Signer.Kind, "signer kind (none, local, approval)")
	flags.String("private-key", "", "hex private key of the local signer")
	flags.Uint64("signer-chain-id", 0, "chain the signer is connected to (default: --chain-id)")

	for _, f := range []settingsFlag{
		{flag: "agent-url", key: "agent.base-url"},
		{flag: "app-name", key: "agent.app-name"},
		{flag: "user-id", key: "agent.user-id"},
		{flag: "session-id", key: "agent.session-id"},
		{flag: "agent-timeout", key: "agent.timeout"},
		{flag: "allow-http", key: "agent.allow-http"},
		{flag: "allow-local-network", key: "agent.allow-local-network"},
		{flag: "domain-name", key: "mandate.domain-name"},
		{flag: "domain-version", key: "mandate.domain-version"},
		{flag: "chain-id", key: "mandate.chain-id"},
		{flag: "fallback-address", key: "mandate.fallback-address"},
		{flag: "fail-closed", key: "mandate.fail-closed"},
		{flag: "default-currency", key: "mandate.default-currency"},
		{flag: "signer", key: "signer.kind"},
		{flag: "private-key", key: "signer.private-key"},
		{flag: "signer-chain-id", key: "signer.chain-id"},
	} {
		cobra.CheckErr(viper.BindPFlag(f.key, flags.Lookup(f.flag)))
	}
}

func loadSettings() (*settings.Settings, error) {
	return settings.Load(viper.GetViper())
}
