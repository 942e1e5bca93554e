// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment ("development" or "production").
	Env string `mapstructure:"APP_ENV"`
	// Port is the HTTP listen port.
	Port string `mapstructure:"PORT"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OpenAIAPIKey authorizes realtime session creation and summarization. Required.
	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	// ModelID is the realtime model used when a session does not name one.
	ModelID string `mapstructure:"MODEL_ID"`
	// PromptID is an optional stored-prompt id attached to realtime sessions.
	PromptID string `mapstructure:"PROMPT_ID"`
	// PromptVersion selects the stored-prompt version when PromptID is set.
	PromptVersion string `mapstructure:"PROMPT_VERSION"`
	// AgentVoice is the synthesized voice for phone calls (default "sage").
	AgentVoice string `mapstructure:"AGENT_VOICE"`

	// CORSAllowOrigins is a comma-separated allowlist; empty allows all.
	CORSAllowOrigins string `mapstructure:"CORS_ALLOW_ORIGINS"`

	// Azure Cognitive Search (optional; enabled only when all three are set).
	AzureSearchEndpoint       string `mapstructure:"AZURE_SEARCH_ENDPOINT"`
	AzureSearchIndex          string `mapstructure:"AZURE_SEARCH_INDEX"`
	AzureSearchAPIKey         string `mapstructure:"AZURE_SEARCH_API_KEY"`
	AzureSearchSemanticConfig string `mapstructure:"AZURE_SEARCH_SEMANTIC_CONFIG"`

	// Dynamics 365 CRM (optional; enabled only when all four are set).
	DynamicsTenantID     string `mapstructure:"DYNAMICS_TENANT_ID"`
	DynamicsClientID     string `mapstructure:"DYNAMICS_CLIENT_ID"`
	DynamicsClientSecret string `mapstructure:"DYNAMICS_CLIENT_SECRET"`
	DynamicsResourceURL  string `mapstructure:"DYNAMICS_RESOURCE_URL"`
	DynamicsAPIVersion   string `mapstructure:"DYNAMICS_API_VERSION"`

	// Odoo CRM (optional; enabled only when both are set).
	OdooBaseURL string `mapstructure:"ODOO_BASE_URL"`
	OdooAPIKey  string `mapstructure:"ODOO_API_KEY"`

	// Twilio telephony (optional; enabled only when the first four are set).
	TwilioAccountSID        string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken         string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioNumber            string `mapstructure:"TWILIO_NUMBER"`
	TwilioTwiMLURL          string `mapstructure:"TWILIO_TWIML_URL"`
	TwilioStatusCallbackURL string `mapstructure:"TWILIO_STATUS_CALLBACK_URL"`
	// TwilioStreamURL overrides the wss:// media-stream URL returned in TwiML.
	TwilioStreamURL string `mapstructure:"TWILIO_STREAM_URL"`

	// Firestore conversation logging (optional; enabled only when both are set).
	FirestoreProjectID string `mapstructure:"FIRESTORE_PROJECT_ID"`
	// FirestoreCredentialsJSON is the service-account key, inline JSON.
	FirestoreCredentialsJSON string `mapstructure:"FIRESTORE_CREDENTIALS_JSON"`
	// ConversationsCollection is the Firestore collection holding call logs.
	ConversationsCollection string `mapstructure:"CONVERSATIONS_COLLECTION"`
}

// SearchEnabled reports whether Azure Search is fully configured.
func (c *Config) SearchEnabled() bool {
	return c.AzureSearchEndpoint != "" && c.AzureSearchIndex != "" && c.AzureSearchAPIKey != ""
}

// DynamicsEnabled reports whether Dynamics 365 is fully configured.
func (c *Config) DynamicsEnabled() bool {
	return c.DynamicsTenantID != "" && c.DynamicsClientID != "" &&
		c.DynamicsClientSecret != "" && c.DynamicsResourceURL != ""
}

// OdooEnabled reports whether Odoo CRM is fully configured.
func (c *Config) OdooEnabled() bool {
	return c.OdooBaseURL != "" && c.OdooAPIKey != ""
}

// TwilioEnabled reports whether Twilio telephony is fully configured.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" &&
		c.TwilioNumber != "" && c.TwilioTwiMLURL != ""
}

// FirestoreEnabled reports whether conversation logging is fully configured.
func (c *Config) FirestoreEnabled() bool {
	return c.FirestoreProjectID != "" && c.FirestoreCredentialsJSON != ""
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "3001")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MODEL_ID", "gpt-realtime-mini-2025-10-06")
	v.SetDefault("PROMPT_VERSION", "3")
	v.SetDefault("AGENT_VOICE", "sage")
	v.SetDefault("DYNAMICS_API_VERSION", "v9.2")
	v.SetDefault("CONVERSATIONS_COLLECTION", "conversations")

	// Optional keys default to empty so AutomaticEnv binds them for Unmarshal.
	for _, key := range []string{
		"OPENAI_API_KEY", "PROMPT_ID", "CORS_ALLOW_ORIGINS",
		"AZURE_SEARCH_ENDPOINT", "AZURE_SEARCH_INDEX", "AZURE_SEARCH_API_KEY",
		"AZURE_SEARCH_SEMANTIC_CONFIG",
		"DYNAMICS_TENANT_ID", "DYNAMICS_CLIENT_ID", "DYNAMICS_CLIENT_SECRET",
		"DYNAMICS_RESOURCE_URL",
		"ODOO_BASE_URL", "ODOO_API_KEY",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_NUMBER",
		"TWILIO_TWIML_URL", "TWILIO_STATUS_CALLBACK_URL", "TWILIO_STREAM_URL",
		"FIRESTORE_PROJECT_ID", "FIRESTORE_CREDENTIALS_JSON",
	} {
		v.SetDefault(key, "")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("config: OPENAI_API_KEY is required")
	}

	return &cfg, nil
}
