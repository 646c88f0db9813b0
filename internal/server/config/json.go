package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/skillchain/credvault/internal/flagx"
	"github.com/skillchain/credvault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "10s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN      string         `json:"database_dsn"`
	IdentitySecret   string         `json:"identity_secret"`
	MasterPassphrase string         `json:"master_passphrase"`
	MasterKeySalt    string         `json:"master_key_salt"`
	LedgerEndpoint   string         `json:"ledger_endpoint"`
	LedgerNetworkID  string         `json:"ledger_network_id"`
	LedgerTimeout    timex.Duration `json:"ledger_timeout"`
	S3RootUser       string         `json:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.IdentitySecret = c.IdentitySecret
	config.MasterPassphrase = c.MasterPassphrase
	config.MasterKeySalt = c.MasterKeySalt
	config.LedgerEndpoint = c.LedgerEndpoint
	config.LedgerNetworkID = c.LedgerNetworkID
	config.LedgerTimeout = time.Duration(c.LedgerTimeout.Duration)
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
