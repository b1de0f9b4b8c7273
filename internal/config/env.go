package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HOROMATCH_CLIENT_AUTH_TOKEN.
const EnvPrefix = "HOROMATCH"

type envBinding struct {
	key   string
	apply func(v *viper.Viper, cfg *Config)
}

var envBindings = []envBinding{
	{"debug", func(v *viper.Viper, c *Config) { c.Debug = v.GetBool("debug") }},
	{"server.host", func(v *viper.Viper, c *Config) { c.Server.Host = v.GetString("server.host") }},
	{"server.port", func(v *viper.Viper, c *Config) { c.Server.Port = v.GetInt("server.port") }},
	{"relay.host", func(v *viper.Viper, c *Config) { c.Relay.Host = v.GetString("relay.host") }},
	{"relay.port", func(v *viper.Viper, c *Config) { c.Relay.Port = v.GetInt("relay.port") }},
	{"relay.base_path", func(v *viper.Viper, c *Config) { c.Relay.BasePath = v.GetString("relay.base_path") }},
	{"relay.auth_token", func(v *viper.Viper, c *Config) { c.Relay.AuthToken = v.GetString("relay.auth_token") }},
	{"relay.timeout", func(v *viper.Viper, c *Config) { c.Relay.Timeout = v.GetDuration("relay.timeout") }},
	{"client.relay_url", func(v *viper.Viper, c *Config) { c.Client.RelayURL = v.GetString("client.relay_url") }},
	{"client.auth_token", func(v *viper.Viper, c *Config) { c.Client.AuthToken = v.GetString("client.auth_token") }},
	{"client.timeout", func(v *viper.Viper, c *Config) { c.Client.Timeout = v.GetDuration("client.timeout") }},
	{"storage.driver", func(v *viper.Viper, c *Config) { c.Storage.Driver = v.GetString("storage.driver") }},
	{"storage.database_path", func(v *viper.Viper, c *Config) { c.Storage.DatabasePath = v.GetString("storage.database_path") }},
	{"storage.redis_url", func(v *viper.Viper, c *Config) { c.Storage.RedisURL = v.GetString("storage.redis_url") }},
	{"storage.key_prefix", func(v *viper.Viper, c *Config) { c.Storage.KeyPrefix = v.GetString("storage.key_prefix") }},
	{"search.candidates_per_round", func(v *viper.Viper, c *Config) {
		c.Search.CandidatesPerRound = v.GetInt("search.candidates_per_round")
	}},
	{"search.concurrency", func(v *viper.Viper, c *Config) { c.Search.Concurrency = v.GetInt("search.concurrency") }},
}

// ApplyEnv overrides cfg with any HOROMATCH_* variables that are set.
// Nested keys map dots to underscores: storage.driver is HOROMATCH_STORAGE_DRIVER.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, b := range envBindings {
		if err := v.BindEnv(b.key); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", b.key, err)
		}
		if v.IsSet(b.key) {
			b.apply(v, cfg)
		}
	}
	return nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// EnvKeys lists the config keys that can be overridden from the environment.
func EnvKeys() []string {
	keys := make([]string, len(envBindings))
	for i, b := range envBindings {
		keys[i] = b.key
	}
	return keys
}
