package server

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Config is the daemon configuration, loaded from a JSON file.
type Config struct {
	// Domain is the hostname announced by the SMTP frontend.
	Domain string `json:"domain" validate:"required,hostname"`

	// SMTPAddr is the listen address of the SMTP frontend.
	SMTPAddr string `json:"smtp_addr" validate:"required"`

	// HTTPAddr is the listen address of the HTTP API.
	HTTPAddr string `json:"http_addr" validate:"required"`

	// LogFile is the path of the JSON log file.
	LogFile string `json:"log_file"`

	// DatabaseURL selects the PostgreSQL result store. Empty keeps results
	// in memory.
	DatabaseURL string `json:"database_url"`

	// MarginHours widens certificate validity windows on both sides. Zero
	// selects the engine default.
	MarginHours int `json:"margin_hours" validate:"gte=0"`

	// AllowedOrigins are the CORS origins accepted by the HTTP API.
	AllowedOrigins []string `json:"allowed_origins"`

	// CertFile and KeyFile hold the PEM credentials used for STARTTLS.
	// Both empty disables TLS; the SMTP frontend then allows plain auth.
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`

	// AuthUsername and AuthPassword gate SMTP submission.
	AuthUsername string `json:"auth_username" validate:"required"`
	AuthPassword string `json:"auth_password" validate:"required"`
}

var validate = validator.New()

// LoadConfig reads and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if config.LogFile == "" {
		config.LogFile = "smimecheck.log"
	}
	if config.SMTPAddr == "" {
		config.SMTPAddr = ":1025"
	}
	if config.HTTPAddr == "" {
		config.HTTPAddr = ":8080"
	}

	if err := validate.Struct(&config); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &config, nil
}
