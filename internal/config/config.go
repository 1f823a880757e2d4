// Package config defines the pipeline daemon's configuration. It is loaded
// once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format aborts startup.
package config

import (
	"time"

	"eventpipe/internal/types"
)

// SecretString is an alias for types.SecretString so callers can build a
// Config without importing types.
type SecretString = types.SecretString

// Config is the top-level configuration. Components receive only the
// sub-struct they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig
	Transport     TransportConfig
	Pipeline      PipelineConfig
	Server        ServerConfig
	Forwarding    ForwardingConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// DatabaseConfig holds the durable store DSN and pool sizing. The same DSN
// is used for the dedicated LISTEN connection.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// TransportConfig holds the notification channels and reconnect policy.
type TransportConfig struct {
	EventChannel string `envconfig:"EVENT_CHANNEL" default:"events_channel" validate:"required,max=63"`
	// AlertChannel enables the dedicated alert channel when non-empty.
	AlertChannel       string        `envconfig:"ALERT_CHANNEL" validate:"omitempty,max=63,nefield=EventChannel"`
	ReconnectBackoff   time.Duration `envconfig:"RECONNECT_BACKOFF" default:"2s" validate:"gt=0"`
	ConnectMaxAttempts int           `envconfig:"CONNECT_MAX_ATTEMPTS" default:"0" validate:"min=0"`
}

// PipelineConfig sizes the queues and worker pools and bounds every wait.
type PipelineConfig struct {
	EventQueueCapacity  int           `envconfig:"EVENT_QUEUE_CAPACITY" default:"1000" validate:"min=1"`
	AlertQueueCapacity  int           `envconfig:"ALERT_QUEUE_CAPACITY" default:"500" validate:"min=1"`
	EventWorkers        int           `envconfig:"EVENT_WORKERS" default:"4" validate:"min=1"`
	AlertWorkers        int           `envconfig:"ALERT_WORKERS" default:"2" validate:"min=1"`
	PollInterval        time.Duration `envconfig:"DEQUEUE_POLL_INTERVAL" default:"1s" validate:"gt=0"`
	AlertEnqueueTimeout time.Duration `envconfig:"ALERT_ENQUEUE_TIMEOUT" default:"1s" validate:"gt=0"`
	PersistTimeout      time.Duration `envconfig:"PERSIST_TIMEOUT" default:"5s" validate:"gt=0"`
	GracePeriod         time.Duration `envconfig:"SHUTDOWN_GRACE_PERIOD" default:"15s" validate:"gt=0"`
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Port string `envconfig:"OPS_PORT" default:"9090" validate:"required,numeric"`
}

// ForwardingConfig holds the optional real-time forwarding targets.
type ForwardingConfig struct {
	WebhookURL     string        `envconfig:"WEBHOOK_FORWARD_URL" validate:"omitempty,url"`
	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s" validate:"gt=0"`
}

// AWSConfig holds AWS regional configuration and resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// DeadLetterQueueURL enables SQS parking of failed persists when set.
	DeadLetterQueueURL string `envconfig:"DEADLETTER_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack support; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig holds metrics settings. Prometheus is always on; the
// CloudWatch recorder is opt-in.
type ObservabilityConfig struct {
	MetricNamespace  string        `envconfig:"METRIC_NAMESPACE" default:"EventPipe"`
	EnableCloudWatch bool          `envconfig:"ENABLE_CLOUDWATCH" default:"false"`
	FlushInterval    time.Duration `envconfig:"METRIC_FLUSH_INTERVAL" default:"60s" validate:"gt=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
