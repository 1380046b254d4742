package config

import "github.com/kelseyhightower/envconfig"

// envPrefix namespaces every environment variable, e.g. VAULT_DATABASE_DSN.
const envPrefix = "VAULT"

// parseEnv overlays values from the environment. Unset variables leave
// the corresponding fields untouched.
func parseEnv(config *Config) {
	if err := envconfig.Process(envPrefix, config); err != nil {
		panic(err)
	}
}
