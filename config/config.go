package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultAppMode = "dev"

	defaultTransceiveTimeout = 5 * time.Second

	defaultFloorLimit       = 0
	defaultContactlessLimit = 25000
	defaultCVMLimit         = 5000
	defaultOnlineThreshold  = 99

	defaultRetryInterval       = 30 * time.Second
	defaultBackoffBase         = 5 * time.Second
	defaultMaxBackoff          = 5 * time.Minute
	defaultMaxAttempts         = 100
	defaultEscalationThreshold = 1 * time.Hour
	defaultCompletedRetention  = 24 * time.Hour

	defaultTornCapacity      = 5
	defaultTornMaxRecovery   = 10
	defaultTornSweepEvery    = 5 * time.Minute
	defaultMonitorPort       = "8091"
	defaultEscalationSubject = "terminal.reversals.escalation"
)

type (
	Configs struct {
		APP      AppConfig
		KERNEL   KernelConfig
		REVERSAL ReversalConfig
		TORN     TornConfig
		REDIS    StoreConfig
		POSTGRES StoreConfig
		ACQUIRER ClientConfig
		NATS     BrokerConfig
		MONITOR  MonitorConfig
	}

	AppConfig struct {
		Mode string `required:"true"`
	}

	// KernelConfig carries the terminal-resident data elements and risk
	// management limits shared by all scheme kernels. Amounts are in the
	// minor unit of the terminal currency.
	KernelConfig struct {
		CountryCode       string        `split_words:"true" default:"0840"`
		CurrencyCode      string        `split_words:"true" default:"0840"`
		TerminalType      string        `split_words:"true" default:"22"`
		Capabilities      string        `split_words:"true" default:"E0F8C8"`
		MerchantID        string        `split_words:"true" default:"TAPKERNEL MERCHANT"`
		TerminalID        string        `split_words:"true" default:"TERM0001"`
		FloorLimit        int64         `split_words:"true"`
		ContactlessLimit  int64         `split_words:"true"`
		CVMRequiredLimit  int64         `split_words:"true"`
		OnlinePercent     int           `split_words:"true"`
		TransceiveTimeout time.Duration `split_words:"true"`
	}

	ReversalConfig struct {
		RetryInterval       time.Duration `split_words:"true"`
		BackoffBase         time.Duration `split_words:"true"`
		MaxBackoff          time.Duration `split_words:"true"`
		MaxAttempts         int           `split_words:"true"`
		EscalationThreshold time.Duration `split_words:"true"`
		CompletedRetention  time.Duration `split_words:"true"`
	}

	TornConfig struct {
		Capacity            int           `split_words:"true"`
		MaxRecoveryAttempts int           `split_words:"true"`
		SweepInterval       time.Duration `split_words:"true"`
	}

	ClientConfig struct {
		URL     string
		APIKey  string `split_words:"true"`
		Timeout time.Duration
	}

	StoreConfig struct {
		DSN string
	}

	BrokerConfig struct {
		URL     string
		Subject string
	}

	MonitorConfig struct {
		Port string
	}
)

// New populates Configs struct with default values overridden by
// environment variables and an optional .env file.
func New() (cfg Configs, err error) {
	root, err := os.Getwd()
	if err != nil {
		return
	}
	godotenv.Load(filepath.Join(root, ".env"))

	cfg.APP = AppConfig{
		Mode: defaultAppMode,
	}

	cfg.KERNEL = KernelConfig{
		FloorLimit:        defaultFloorLimit,
		ContactlessLimit:  defaultContactlessLimit,
		CVMRequiredLimit:  defaultCVMLimit,
		OnlinePercent:     defaultOnlineThreshold,
		TransceiveTimeout: defaultTransceiveTimeout,
	}

	cfg.REVERSAL = ReversalConfig{
		RetryInterval:       defaultRetryInterval,
		BackoffBase:         defaultBackoffBase,
		MaxBackoff:          defaultMaxBackoff,
		MaxAttempts:         defaultMaxAttempts,
		EscalationThreshold: defaultEscalationThreshold,
		CompletedRetention:  defaultCompletedRetention,
	}

	cfg.TORN = TornConfig{
		Capacity:            defaultTornCapacity,
		MaxRecoveryAttempts: defaultTornMaxRecovery,
		SweepInterval:       defaultTornSweepEvery,
	}

	cfg.NATS = BrokerConfig{
		Subject: defaultEscalationSubject,
	}

	cfg.MONITOR = MonitorConfig{
		Port: defaultMonitorPort,
	}

	if err = envconfig.Process("APP", &cfg.APP); err != nil {
		return
	}

	if err = envconfig.Process("KERNEL", &cfg.KERNEL); err != nil {
		return
	}

	if err = envconfig.Process("REVERSAL", &cfg.REVERSAL); err != nil {
		return
	}

	if err = envconfig.Process("TORN", &cfg.TORN); err != nil {
		return
	}

	if err = envconfig.Process("REDIS", &cfg.REDIS); err != nil {
		return
	}

	if err = envconfig.Process("POSTGRES", &cfg.POSTGRES); err != nil {
		return
	}

	if err = envconfig.Process("ACQUIRER", &cfg.ACQUIRER); err != nil {
		return
	}

	if err = envconfig.Process("NATS", &cfg.NATS); err != nil {
		return
	}

	err = envconfig.Process("MONITOR", &cfg.MONITOR)

	return
}
