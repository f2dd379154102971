/*
Copyright 2024 Tupa Sync Authors.

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

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5401"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"TUPA_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"TUPA_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"TUPA_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"TUPA_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"TUPA_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"TUPA_REDIS_SKIP_TLS_VERIFY"`
}

// ErpConfig points the sync service at the downstream accounting system.
// Credentials come from configuration or the environment, never from code.
type ErpConfig struct {
	Url        string `json:"url" envconfig:"TUPA_ERP_URL"`
	Database   string `json:"database" envconfig:"TUPA_ERP_DATABASE"`
	Username   string `json:"username" envconfig:"TUPA_ERP_USERNAME"`
	ApiKey     string `json:"api_key" envconfig:"TUPA_ERP_API_KEY"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"TUPA_ERP_TIMEOUT_SEC"`
}

type QueueConfig struct {
	SyncQueue        string `json:"sync_queue" envconfig:"TUPA_QUEUE_SYNC"`
	RetryQueue       string `json:"retry_queue" envconfig:"TUPA_QUEUE_RETRY"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"TUPA_QUEUE_WEBHOOK"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"TUPA_NUMBER_OF_QUEUES"`
	MaxSyncAttempts  int    `json:"max_sync_attempts" envconfig:"TUPA_QUEUE_MAX_SYNC_ATTEMPTS"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"TUPA_QUEUE_MAX_RETRY_ATTEMPTS"`
}

type RetryConfig struct {
	RetentionHours int `json:"retention_hours" envconfig:"TUPA_RETRY_RETENTION_HOURS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"TUPA_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"TUPA_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"TUPA_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
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

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"TUPA_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Erp          ErpConfig        `json:"erp"`
	Queue        QueueConfig      `json:"queue"`
	Retry        RetryConfig      `json:"retry"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
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
	err = envconfig.Process("tupa", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called tupasync.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Tupa Sync"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Erp.Url = strings.TrimSpace(cnf.Erp.Url)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Erp.TimeoutSec <= 0 {
		cnf.Erp.TimeoutSec = 30
	}

	if cnf.Queue.SyncQueue == "" {
		cnf.Queue.SyncQueue = "pos:sync"
	}
	if cnf.Queue.RetryQueue == "" {
		cnf.Queue.RetryQueue = "pos:retry"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "pos:webhook"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MaxSyncAttempts <= 0 {
		cnf.Queue.MaxSyncAttempts = 1
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}

	if cnf.Retry.RetentionHours <= 0 {
		cnf.Retry.RetentionHours = 24
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
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyTestDefaults()
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) applyTestDefaults() {
	if cnf.Queue.SyncQueue == "" {
		cnf.Queue.SyncQueue = "pos:sync"
	}
	if cnf.Queue.RetryQueue == "" {
		cnf.Queue.RetryQueue = "pos:retry"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "pos:webhook"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 1
	}
	if cnf.Queue.MaxSyncAttempts <= 0 {
		cnf.Queue.MaxSyncAttempts = 1
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Retry.RetentionHours <= 0 {
		cnf.Retry.RetentionHours = 24
	}
	if cnf.Erp.TimeoutSec <= 0 {
		cnf.Erp.TimeoutSec = 5
	}
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
