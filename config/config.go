/*
Copyright 2024 DuoTale Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	// Fallbacks for the upstream model providers; any of these can be
	// overridden per deployment.
	DEFAULT_CHAT_URL       = "https://api.openai.com/v1/chat/completions"
	DEFAULT_SPEECH_URL     = "https://api.openai.com/v1/audio/speech"
	DEFAULT_CHAT_MODEL     = "gpt-4o"
	DEFAULT_SPEECH_MODEL   = "tts-1"
	DEFAULT_HOLD_TTL_SEC   = 900
	DEFAULT_RETRY_ATTEMPTS = 3
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"DUOTALE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"DUOTALE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"DUOTALE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"DUOTALE_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"DUOTALE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"DUOTALE_SERVER_PORT"`
}

// DataConfig locates the artifact root where finished lessons (text,
// segment manifests, audio files) are written.
type DataConfig struct {
	Dir string `json:"dir" envconfig:"DUOTALE_DATA_DIR"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"DUOTALE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"DUOTALE_REDIS_SKIP_TLS_VERIFY"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"DUOTALE_TYPESENSE_DNS"`
}

// QueueConfig names the asynq queues the workers drain. Series generation is
// sharded across NumberOfQueues by device so one device's parts stay ordered.
type QueueConfig struct {
	SeriesQueue     string `json:"series_queue" envconfig:"DUOTALE_QUEUE_SERIES"`
	HoldExpiryQueue string `json:"hold_expiry_queue" envconfig:"DUOTALE_QUEUE_HOLD_EXPIRY"`
	IndexQueue      string `json:"index_queue" envconfig:"DUOTALE_QUEUE_INDEX"`
	NumberOfQueues  int    `json:"number_of_queues" envconfig:"DUOTALE_QUEUE_NUMBER_OF_QUEUES"`
	MonitoringPort  string `json:"monitoring_port" envconfig:"DUOTALE_QUEUE_MONITORING_PORT"`
}

// ChatConfig configures the chat-completion provider used for narrative
// generation, translation and prompt elevation.
type ChatConfig struct {
	Url        string `json:"url" envconfig:"DUOTALE_CHAT_URL"`
	ApiKey     string `json:"api_key" envconfig:"DUOTALE_CHAT_API_KEY"`
	Model      string `json:"model" envconfig:"DUOTALE_CHAT_MODEL"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"DUOTALE_CHAT_TIMEOUT_SEC"`
}

// SpeechConfig configures the text-to-speech provider used for per-segment
// synthesis.
type SpeechConfig struct {
	Url            string `json:"url" envconfig:"DUOTALE_SPEECH_URL"`
	ApiKey         string `json:"api_key" envconfig:"DUOTALE_SPEECH_API_KEY"`
	Model          string `json:"model" envconfig:"DUOTALE_SPEECH_MODEL"`
	PrimaryVoice   string `json:"primary_voice" envconfig:"DUOTALE_SPEECH_PRIMARY_VOICE"`
	SecondaryVoice string `json:"secondary_voice" envconfig:"DUOTALE_SPEECH_SECONDARY_VOICE"`
	TimeoutSec     int    `json:"timeout_sec" envconfig:"DUOTALE_SPEECH_TIMEOUT_SEC"`
}

// LedgerConfig sets the credit accounting knobs: how long a job hold lives
// before the expiry worker returns it, what a fresh device starts with, and
// when the low-balance monitor fires.
type LedgerConfig struct {
	HoldTTLSec          int   `json:"hold_ttl_sec" envconfig:"DUOTALE_LEDGER_HOLD_TTL_SEC"`
	StarterCredits      int64 `json:"starter_credits" envconfig:"DUOTALE_LEDGER_STARTER_CREDITS"`
	LowBalanceThreshold int64 `json:"low_balance_threshold" envconfig:"DUOTALE_LEDGER_LOW_BALANCE_THRESHOLD"`
}

// CreditPack is one redeemable product: a code that grants credits at a
// listed price. Prices are decimal so catalog math stays exact.
type CreditPack struct {
	Code     string          `json:"code"`
	Credits  int64           `json:"credits"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

type RetryConfig struct {
	MaxAttempts    int `json:"max_attempts" envconfig:"DUOTALE_RETRY_MAX_ATTEMPTS"`
	BaseDelayMs    int `json:"base_delay_ms" envconfig:"DUOTALE_RETRY_BASE_DELAY_MS"`
	MaxIntervalSec int `json:"max_interval_sec" envconfig:"DUOTALE_RETRY_MAX_INTERVAL_SEC"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"DUOTALE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"DUOTALE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"DUOTALE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type OtelGrafanaCloud struct {
	OtelExporterOtlpProtocol string `json:"otel_exporter_otlp_protocol" envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL"`
	OtelExporterOtlpEndpoint string `json:"otel_exporter_otlp_endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpHeaders  string `json:"otel_exporter_otlp_headers" envconfig:"OTEL_EXPORTER_OTLP_HEADERS"`
}

type Configuration struct {
	ProjectName        string           `json:"project_name" envconfig:"DUOTALE_PROJECT_NAME"`
	BackupDir          string           `json:"backup_dir" envconfig:"DUOTALE_BACKUP_DIR"`
	AwsAccessKeyId     string           `json:"aws_access_key_id"`
	S3Endpoint         string           `json:"s3_endpoint"`
	AwsSecretAccessKey string           `json:"aws_secret_access_key"`
	S3BucketName       string           `json:"s3_bucket_name"`
	S3Region           string           `json:"s3_region"`
	EnableTelemetry    bool             `json:"enable_telemetry" envconfig:"DUOTALE_ENABLE_TELEMETRY"`
	Server             ServerConfig     `json:"server"`
	Data               DataConfig       `json:"data"`
	Redis              RedisConfig      `json:"redis"`
	Queue              QueueConfig      `json:"queue"`
	TypeSense          TypeSenseConfig  `json:"typesense"`
	TypeSenseKey       string           `json:"type_sense_key"`
	Chat               ChatConfig       `json:"chat"`
	Speech             SpeechConfig     `json:"speech"`
	Ledger             LedgerConfig     `json:"ledger"`
	Retry              RetryConfig      `json:"retry"`
	CreditPacks        []CreditPack     `json:"credit_packs"`
	Notification       Notification     `json:"notification"`
	RateLimit          RateLimitConfig  `json:"rate_limit"`
	OtelGrafanaCloud   OtelGrafanaCloud `json:"otel_grafana_cloud"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("duotale", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called duotale.json with your config ❌")
	}
	return c, nil
}

// SetGrafanaExporterEnvs propagates the Grafana Cloud OTLP settings into the
// process environment so the OTel SDK exporters pick them up.
func SetGrafanaExporterEnvs() error {
	cnf, err := Fetch()
	if err != nil {
		return err
	}
	envs := map[string]string{
		"OTEL_EXPORTER_OTLP_PROTOCOL": cnf.OtelGrafanaCloud.OtelExporterOtlpProtocol,
		"OTEL_EXPORTER_OTLP_ENDPOINT": cnf.OtelGrafanaCloud.OtelExporterOtlpEndpoint,
		"OTEL_EXPORTER_OTLP_HEADERS":  cnf.OtelGrafanaCloud.OtelExporterOtlpHeaders,
	}
	for key, value := range envs {
		if value == "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "DuoTale Server"
	}

	if cnf.TypeSense.Dns == "" {
		cnf.TypeSense.Dns = "http://typesense:8108"
	}

	if cnf.Data.Dir == "" {
		log.Println("Error: Data dir is empty. It's a required field.")
		return errors.New("data dir is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.Data.Dir = strings.TrimSpace(cnf.Data.Dir)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Chat.Url == "" {
		cnf.Chat.Url = DEFAULT_CHAT_URL
	}
	if cnf.Chat.Model == "" {
		cnf.Chat.Model = DEFAULT_CHAT_MODEL
	}
	if cnf.Chat.TimeoutSec <= 0 {
		cnf.Chat.TimeoutSec = 60
	}
	if cnf.Speech.Url == "" {
		cnf.Speech.Url = DEFAULT_SPEECH_URL
	}
	if cnf.Speech.Model == "" {
		cnf.Speech.Model = DEFAULT_SPEECH_MODEL
	}
	if cnf.Speech.PrimaryVoice == "" {
		cnf.Speech.PrimaryVoice = "alloy"
	}
	if cnf.Speech.SecondaryVoice == "" {
		cnf.Speech.SecondaryVoice = "nova"
	}
	// Audio synthesis gets a longer leash than text calls
	if cnf.Speech.TimeoutSec <= 0 {
		cnf.Speech.TimeoutSec = 120
	}

	if cnf.Ledger.HoldTTLSec <= 0 {
		cnf.Ledger.HoldTTLSec = DEFAULT_HOLD_TTL_SEC
		log.Printf("Warning: Hold TTL not specified. Setting default value: %d seconds", DEFAULT_HOLD_TTL_SEC)
	}

	if cnf.Queue.SeriesQueue == "" {
		cnf.Queue.SeriesQueue = "duotale:series"
	}
	if cnf.Queue.HoldExpiryQueue == "" {
		cnf.Queue.HoldExpiryQueue = "duotale:hold-expiry"
	}
	if cnf.Queue.IndexQueue == "" {
		cnf.Queue.IndexQueue = "duotale:index"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 1
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5002"
	}
	if cnf.Retry.MaxAttempts <= 0 {
		cnf.Retry.MaxAttempts = DEFAULT_RETRY_ATTEMPTS
	}
	if cnf.Retry.BaseDelayMs <= 0 {
		cnf.Retry.BaseDelayMs = 500
	}
	if cnf.Retry.MaxIntervalSec <= 0 {
		cnf.Retry.MaxIntervalSec = 30
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
		log.Printf("Warning: Rate limit cleanup interval not specified. Setting default value: %d seconds", defaultCleanup)
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
