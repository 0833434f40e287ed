package config

import (
	"encoding/json"
	"os"

	"github.com/droplocker/droplocker/internal/flagx"
	"github.com/droplocker/droplocker/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "720h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP string         `json:"endpoint_addr_http"`
	DataDir          string         `json:"data_dir"`
	RecordBackend    string         `json:"record_backend"`
	DatabaseDSN      string         `json:"database_dsn"`
	BlobBackend      string         `json:"blob_backend"`
	MasterKeyHex     string         `json:"master_key_hex"`
	MasterPassphrase string         `json:"master_passphrase"`
	LinkSecret       string         `json:"link_secret"`
	MaxExpiry        timex.Duration `json:"max_expiry"`
	SweepInterval    timex.Duration `json:"sweep_interval"`
	S3RootUser       string         `json:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics: a server started with a
// broken config file should not come up at all.
//
// Only fields present in the file override the current values; the caller
// merges the result with defaults and command-line flags.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DataDir != "" {
		config.DataDir = c.DataDir
	}
	if c.RecordBackend != "" {
		config.RecordBackend = c.RecordBackend
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.BlobBackend != "" {
		config.BlobBackend = c.BlobBackend
	}
	if c.MasterKeyHex != "" {
		config.MasterKeyHex = c.MasterKeyHex
	}
	if c.MasterPassphrase != "" {
		config.MasterPassphrase = c.MasterPassphrase
	}
	if c.LinkSecret != "" {
		config.LinkSecret = c.LinkSecret
	}
	if c.MaxExpiry.Duration != 0 {
		config.MaxExpiry = c.MaxExpiry.Duration
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
}
