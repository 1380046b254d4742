package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// duration accepts both string values such as "15m" and integer
// nanoseconds when unmarshalling JSON.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
}

// jsonConfig is the intermediate DTO used only for reading JSON
// configuration files; its fields are copied into the runtime Config.
// Pointer fields distinguish "absent" from zero so the JSON layer only
// overlays what the file actually sets.
type jsonConfig struct {
	EndpointAddr                 *string   `json:"endpoint_addr"`
	DatabaseDSN                  *string   `json:"database_dsn"`
	RedisAddr                    *string   `json:"redis_addr"`
	RedisPassword                *string   `json:"redis_password"`
	RedisDB                      *int      `json:"redis_db"`
	MasterKeyBase64              *string   `json:"master_key"`
	SecretKey                    *string   `json:"secret_key"`
	AccessTokenValidityDuration  *duration `json:"access_token_validity"`
	TwoStepTokenValidityDuration *duration `json:"two_step_token_validity"`
	TOTPIssuer                   *string   `json:"totp_issuer"`
	TOTPPendingTTL               *duration `json:"totp_pending_ttl"`
	ListCacheTTL                 *duration `json:"list_cache_ttl"`
	OutboxPollInterval           *duration `json:"outbox_poll_interval"`
	OutboxBatchSize              *int      `json:"outbox_batch_size"`
}

// parseJson loads configuration values from the JSON file given via the
// -c/-config flags into the provided Config. If neither flag is set,
// no file is loaded. An unreadable or invalid file panics: the server
// must not start on a half-applied configuration.
func parseJson(config *Config) {
	jsonConfigFile := jsonConfigFlag()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &jsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddr != nil {
		config.EndpointAddr = *c.EndpointAddr
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.RedisAddr != nil {
		config.RedisAddr = *c.RedisAddr
	}
	if c.RedisPassword != nil {
		config.RedisPassword = *c.RedisPassword
	}
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.MasterKeyBase64 != nil {
		config.MasterKeyBase64 = *c.MasterKeyBase64
	}
	if c.SecretKey != nil {
		config.SecretKey = *c.SecretKey
	}
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.TwoStepTokenValidityDuration != nil {
		config.TwoStepTokenValidityDuration = c.TwoStepTokenValidityDuration.Duration
	}
	if c.TOTPIssuer != nil {
		config.TOTPIssuer = *c.TOTPIssuer
	}
	if c.TOTPPendingTTL != nil {
		config.TOTPPendingTTL = c.TOTPPendingTTL.Duration
	}
	if c.ListCacheTTL != nil {
		config.ListCacheTTL = c.ListCacheTTL.Duration
	}
	if c.OutboxPollInterval != nil {
		config.OutboxPollInterval = c.OutboxPollInterval.Duration
	}
	if c.OutboxBatchSize != nil {
		config.OutboxBatchSize = *c.OutboxBatchSize
	}
}
