package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Agent       AgentConfig
	Consensus   ConsensusConfig
	Alerts      AlertsConfig
	RemoteWrite RemoteWriteConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port        string
	Mode        string
	IngestRate  float64
	IngestBurst int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
	MigrationsPath string
}

type AuthConfig struct {
	AgentSecret string
	TokenTTL    time.Duration
}

type AgentConfig struct {
	WorkerID          string
	Region            string
	GatewayURL        string
	CheckTimeout      time.Duration
	HeartbeatInterval time.Duration
	SiteRefresh       time.Duration
	ReportRetries     int
	ReportBackoff     time.Duration
	DomainCheckTTL    time.Duration
}

type ConsensusConfig struct {
	PollInterval    time.Duration
	SweepInterval   time.Duration
	StalenessFactor int
	HeartbeatGrace  time.Duration
}

type AlertsConfig struct {
	WebhookURL   string
	PollInterval time.Duration
	MaxRetries   int
	Backoff      time.Duration
	BatchSize    int
}

type RemoteWriteConfig struct {
	URL           string
	AuthToken     string
	BatchSize     int
	FlushInterval time.Duration
}

type LoggingConfig struct {
	Dir string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("PULSEMESH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults. Keys without a meaningful default still get an empty one
	// so PULSEMESH_* env vars bind to them.
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.ingestrate", 50.0)
	viper.SetDefault("server.ingestburst", 100)
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("database.migrationspath", "migrations")
	viper.SetDefault("auth.agentsecret", "")
	viper.SetDefault("auth.tokenttl", "1h")
	viper.SetDefault("agent.workerid", "")
	viper.SetDefault("agent.region", "")
	viper.SetDefault("agent.gatewayurl", "")
	viper.SetDefault("agent.checktimeout", "30s")
	viper.SetDefault("agent.heartbeatinterval", "30s")
	viper.SetDefault("agent.siterefresh", "30s")
	viper.SetDefault("agent.reportretries", 3)
	viper.SetDefault("agent.reportbackoff", "2s")
	viper.SetDefault("agent.domaincheckttl", "12h")
	viper.SetDefault("consensus.pollinterval", "1s")
	viper.SetDefault("consensus.sweepinterval", "30s")
	viper.SetDefault("consensus.stalenessfactor", 3)
	viper.SetDefault("consensus.heartbeatgrace", "90s")
	viper.SetDefault("alerts.webhookurl", "")
	viper.SetDefault("alerts.pollinterval", "2s")
	viper.SetDefault("alerts.maxretries", 3)
	viper.SetDefault("alerts.backoff", "5s")
	viper.SetDefault("alerts.batchsize", 50)
	viper.SetDefault("remotewrite.url", "")
	viper.SetDefault("remotewrite.authtoken", "")
	viper.SetDefault("remotewrite.batchsize", 1000)
	viper.SetDefault("remotewrite.flushinterval", "10s")
	viper.SetDefault("logging.dir", "")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if secret := os.Getenv("AGENT_SECRET"); secret != "" {
		cfg.Auth.AgentSecret = secret
	}
	if url := os.Getenv("GATEWAY_URL"); url != "" {
		cfg.Agent.GatewayURL = url
	}
	if region := os.Getenv("REGION"); region != "" {
		cfg.Agent.Region = region
	}
	if id := os.Getenv("WORKER_ID"); id != "" {
		cfg.Agent.WorkerID = id
	}
	if timeout := os.Getenv("CHECK_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Agent.CheckTimeout = d
		}
	}
	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		cfg.Alerts.WebhookURL = url
	}
	if url := os.Getenv("REMOTE_WRITE_URL"); url != "" {
		cfg.RemoteWrite.URL = url
	}
	if token := os.Getenv("REMOTE_WRITE_TOKEN"); token != "" {
		cfg.RemoteWrite.AuthToken = token
	}

	// A worker needs a stable identity; derive one from region + hostname
	// when not configured so restarts keep the same ID.
	if cfg.Agent.WorkerID == "" && cfg.Agent.Region != "" {
		host, err := os.Hostname()
		if err != nil {
			host = "local"
		}
		cfg.Agent.WorkerID = cfg.Agent.Region + "-" + host
	}

	return &cfg, nil
}
