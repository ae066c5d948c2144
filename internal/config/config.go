package config

import "time"

type Config interface {
	EnvConfig
	SyncConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetAPIBaseURL() string
	GetTenantID() string
	GetCredentialFile() string
	GetEnv() string
}

type SyncConfig interface {
	GetPollInterval() time.Duration
	GetTimeZone() string
	GetReadOnly() bool
}

type mainConfig struct {
	EnvVars
	Sync
}

func New() Config {
	return mainConfig{}
}
