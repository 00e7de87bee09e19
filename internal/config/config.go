// Package config defines the global configuration for the shopmail services.
// Configuration is loaded once at process initialization and is immutable
// thereafter, strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails the process immediately
// on startup.
package config

import (
	"time"

	"shopmail/internal/types"
)

// SecretString aliases types.SecretString, the redacted secret type used for
// credentials so they never leak into logs or serialized output.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Components receive only the
// config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"shopmail"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Brevo         BrevoConfig
	Email         EmailConfig
	Jobs          JobsConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds the ops API server settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds the storefront read-model connection and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`
	DlqURL            string `envconfig:"SQS_DLQ"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BrevoConfig holds the email provider credentials and contact-list settings.
type BrevoConfig struct {
	APIKey  SecretString `envconfig:"BREVO_API_KEY" validate:"required"`
	BaseURL string       `envconfig:"BREVO_BASE_URL" default:"https://api.brevo.com"`

	// ContactListID is the provider list new customers are subscribed to on
	// their first order. Zero disables the sync.
	ContactListID int64 `envconfig:"BREVO_CONTACT_LIST_ID" default:"0"`
}

// EmailConfig holds sender identity and per-event template configuration.
type EmailConfig struct {
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" validate:"required,email"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"Shop"`
	Bcc         string `envconfig:"EMAIL_BCC"`

	// Templates is a JSON mapping "group" -> "action" -> template ref, where
	// a ref is either a bare template id or a locale/country -> id map.
	// Example: {"order": {"placed": 11, "shipment_created": {"de": 21, "default": 20}}}
	Templates string `envconfig:"EMAIL_TEMPLATES_JSON" validate:"required,json"`

	// DefaultData is a JSON object merged into every template's params.
	DefaultData string `envconfig:"EMAIL_DEFAULT_DATA_JSON" default:"{}" validate:"json"`

	// EnableInvoices attaches a generated invoice PDF to order confirmations.
	EnableInvoices bool `envconfig:"EMAIL_ENABLE_INVOICES" default:"false"`
}

// JobsConfig holds the scheduled follow-up email settings.
type JobsConfig struct {
	AbandonedCart AbandonedCartConfig
	Upsell        UpsellConfig
}

// AbandonedCartConfig configures the three-stage cart reminder job. Stage
// templates use the same JSON ref format as EmailConfig.Templates values.
type AbandonedCartConfig struct {
	Enabled bool `envconfig:"ABANDONED_CART_ENABLED" default:"false"`

	FirstDelay  time.Duration `envconfig:"ABANDONED_CART_FIRST_DELAY" default:"4h"`
	SecondDelay time.Duration `envconfig:"ABANDONED_CART_SECOND_DELAY" default:"24h"`
	ThirdDelay  time.Duration `envconfig:"ABANDONED_CART_THIRD_DELAY" default:"72h"`

	FirstTemplate  string `envconfig:"ABANDONED_CART_FIRST_TEMPLATE" validate:"omitempty,json"`
	SecondTemplate string `envconfig:"ABANDONED_CART_SECOND_TEMPLATE" validate:"omitempty,json"`
	ThirdTemplate  string `envconfig:"ABANDONED_CART_THIRD_TEMPLATE" validate:"omitempty,json"`
}

// UpsellConfig configures the post-purchase upsell job.
type UpsellConfig struct {
	Enabled bool `envconfig:"UPSELL_ENABLED" default:"false"`

	// CollectionID gates eligibility: every item on the order must belong to
	// this product collection.
	CollectionID string        `envconfig:"UPSELL_COLLECTION_ID"`
	Delay        time.Duration `envconfig:"UPSELL_DELAY" default:"168h"`
	Lookback     time.Duration `envconfig:"UPSELL_LOOKBACK" default:"24h"`
	Valid        time.Duration `envconfig:"UPSELL_VALID" default:"336h"`

	// TemplateIDs is a comma-separated pool; each send picks one at random.
	TemplateIDs []string `envconfig:"UPSELL_TEMPLATE_IDS"`
}

// SecurityConfig holds access control for the ops API.
type SecurityConfig struct {
	AdminAPIKey SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ShopMail"`
}

// BuildInfo holds build-time metadata injected via ldflags. These values are
// NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment variable values into
	// their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
