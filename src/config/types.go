package config

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type EduverseConfig struct {
	Env       Environment
	LogLevel  zerolog.Level
	LogFormat string // "pretty" or "json"

	Chain    ChainConfig
	Storage  StorageConfig
	Viewing  ViewingConfig
	Throttle ThrottleConfig
	Postgres PostgresConfig
	DevPin   DevPinConfig
}

type ChainConfig struct {
	EngineURL       string
	AccessToken     string
	ChainID         int64
	AllowedChainIDs []int64
	ContractAddress string
	WalletAddress   string

	// Contract writes wait this long for the transaction to be mined.
	WriteTimeout time.Duration
	PollMin      time.Duration
	PollMax      time.Duration
}

type StorageConfig struct {
	Endpoint         string
	Region           string
	AccessKey        string
	SecretKey        string
	Bucket           string
	DedicatedGateway string
}

type ViewingConfig struct {
	Gateways            []string
	ProbeTimeout        time.Duration
	SampleVideoURL      string
	LicenseRecheckDelay time.Duration
	LicenseRechecks     int
	VideoCacheSize      int
}

type ThrottleConfig struct {
	UploadDelay  time.Duration
	SectionDelay time.Duration
}

type PostgresConfig struct {
	User     string
	Password string
	Hostname string
	Port     int
	DbName   string
	LogLevel tracelog.LogLevel
	MinConn  int32
	MaxConn  int32
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

// Enabled reports whether a journal database has been configured at all.
func (info PostgresConfig) Enabled() bool {
	return info.Hostname != "" && info.DbName != ""
}

type DevPinConfig struct {
	Addr   string
	Folder string
}
