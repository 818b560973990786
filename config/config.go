package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/webitel/im-presence-service/internal/adapter/validation"
)

const EnvPrefix = "IM_PRESENCE"

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	WS        WSConfig        `mapstructure:"ws"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Auth      AuthConfig      `mapstructure:"auth"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// source is kept for Watch; nil when the config was built by hand.
	source *viper.Viper
}

type ServiceConfig struct {
	ID string `mapstructure:"id" validate:"required"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	// File enables rotation through lumberjack; empty means stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	Otel       bool   `mapstructure:"otel"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

type WSConfig struct {
	SendBuffer      int           `mapstructure:"send_buffer" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	PongWait        time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	PingPeriod      time.Duration `mapstructure:"ping_period" validate:"gt=0,ltfield=PongWait"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" validate:"gt=0"`
	JoinTimeout     time.Duration `mapstructure:"join_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type RegistryConfig struct {
	SessionPolicy       string        `mapstructure:"session_policy" validate:"oneof=last_connect_wins multi_session"`
	SendTimeout         time.Duration `mapstructure:"send_timeout" validate:"gt=0"`
	AnnounceParallelism int           `mapstructure:"announce_parallelism" validate:"gt=0"`
}

type QueueConfig struct {
	MaxPerRecipient int           `mapstructure:"max_per_recipient" validate:"gt=0"`
	MaxRecipients   int           `mapstructure:"max_recipients" validate:"gt=0"`
	Retention       time.Duration `mapstructure:"retention" validate:"gte=0"`
	Overflow        string        `mapstructure:"overflow" validate:"oneof=drop_oldest reject_new"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

type RelayConfig struct {
	// QueueOnSendFailure lands a failed live send in the offline queue. The recipient may then see it twice.
	QueueOnSendFailure bool `mapstructure:"queue_on_send_failure"`
	MaxContentBytes    int  `mapstructure:"max_content_bytes" validate:"gt=0"`
}

type AuthConfig struct {
	// JWTSecret enables HS256 bearer tokens; empty means the join identity is trusted as given.
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type PubSubConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=gochannel amqp"`
	AMQPURI     string `mapstructure:"amqp_uri" validate:"required_if=Driver amqp"`
	QueueSuffix string `mapstructure:"queue_suffix"`
	Consume     bool   `mapstructure:"consume"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is an OTLP/gRPC collector; empty keeps spans and metrics in process.
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.id", "im-presence-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.otel", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.write_timeout", 10*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.ping_period", 54*time.Second)
	v.SetDefault("ws.max_message_bytes", 64*1024)
	v.SetDefault("ws.join_timeout", 30*time.Second)
	v.SetDefault("ws.allowed_origins", []string{})

	v.SetDefault("registry.session_policy", "last_connect_wins")
	v.SetDefault("registry.send_timeout", 500*time.Millisecond)
	v.SetDefault("registry.announce_parallelism", 32)

	v.SetDefault("queue.max_per_recipient", 100)
	v.SetDefault("queue.max_recipients", 10000)
	v.SetDefault("queue.retention", 24*time.Hour)
	v.SetDefault("queue.overflow", "drop_oldest")
	v.SetDefault("queue.sweep_interval", time.Minute)

	v.SetDefault("relay.queue_on_send_failure", false)
	v.SetDefault("relay.max_content_bytes", 16*1024)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("pubsub.driver", "gochannel")
	v.SetDefault("pubsub.amqp_uri", "")
	v.SetDefault("pubsub.queue_suffix", "im-presence")
	v.SetDefault("pubsub.consume", true)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// overrideFlags are the command-line overrides accepted after the config file.
func overrideFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("overrides", pflag.ContinueOnError)
	fs.String("http.addr", "", "HTTP listen address")
	fs.String("grpc.addr", "", "gRPC listen address")
	fs.String("log.level", "", "log level (debug, info, warn, error)")
	fs.String("registry.session_policy", "", "last_connect_wins or multi_session")
	fs.Int("queue.max_per_recipient", 0, "offline queue length per recipient")
	fs.Duration("queue.retention", 0, "offline message retention")
	fs.String("queue.overflow", "", "drop_oldest or reject_new")
	fs.String("pubsub.driver", "", "gochannel or amqp")
	return fs
}

// LoadConfig resolves defaults, the optional file, IM_PRESENCE_* env vars and
// finally command-line overrides, in that order of precedence (last wins).
func LoadConfig(path string, args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	fs := overrideFlags()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse overrides: %w", err)
	}
	// Only flags that were actually set take precedence over the file.
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind overrides: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.source = v
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and returns one error listing every violation.
func (c *Config) Validate() error {
	if err := validation.Default().Struct(c); err != nil {
		return errors.Join(errors.New("config: invalid"), validation.Flatten(err))
	}
	return nil
}

// Default returns the built-in configuration without touching the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err) // built-in defaults always validate
	}
	return cfg
}
