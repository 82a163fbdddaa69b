package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
)

// Tables holds the DynamoDB table names the store operates on.
type Tables struct {
	Connections string
	Orders      string
	Kpis        string
	Jobs        string
	Shops       string
}

type Config struct {
	Env    string
	Tables Tables

	// Shared secret Shopify signs webhook bodies with.
	ShopifyAPISecret string
	// Static bearer secret for the manual sync trigger.
	SyncServiceKey string
	// AES key (hex or base64) for access-token blobs.
	EncryptionKey string

	ShopifyAPIVersion string
	SyncPageSize      int
	SyncMaxPages      int
	ShopifyTimeout    time.Duration

	// Optional SNS topic for sync failure alerts.
	AlertsTopicARN string
}

// Load reads configuration from the environment (and .env for local runs).
// Secrets may be indirected through SSM Parameter Store by setting
// <NAME>_SSM_PARAM instead of the value itself.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	pageSize := intEnv("SYNC_PAGE_SIZE", 250)
	maxPages := intEnv("SYNC_MAX_PAGES", 50)
	timeoutSec := intEnv("SHOPIFY_HTTP_TIMEOUT", 30)

	c := &Config{
		Env: getEnv("APP_ENV", "production"),
		Tables: Tables{
			Connections: os.Getenv("CONNECTIONS_TABLE"),
			Orders:      os.Getenv("ORDERS_TABLE"),
			Kpis:        os.Getenv("KPI_TABLE"),
			Jobs:        os.Getenv("JOBS_TABLE"),
			Shops:       os.Getenv("SHOPS_TABLE"),
		},
		ShopifyAPISecret:  os.Getenv("SHOPIFY_API_SECRET"),
		SyncServiceKey:    os.Getenv("SYNC_SERVICE_KEY"),
		EncryptionKey:     os.Getenv("ENCRYPTION_KEY"),
		ShopifyAPIVersion: getEnv("SHOPIFY_API_VERSION", "2025-10"),
		SyncPageSize:      pageSize,
		SyncMaxPages:      maxPages,
		ShopifyTimeout:    time.Duration(timeoutSec) * time.Second,
		AlertsTopicARN:    os.Getenv("ALERTS_TOPIC_ARN"),
	}

	if err := resolveSSMSecrets(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the table names a given entrypoint needs. Entrypoints
// pass the subset they use so the health check can run with none set.
func (c *Config) Validate(required ...string) error {
	byName := map[string]string{
		"CONNECTIONS_TABLE": c.Tables.Connections,
		"ORDERS_TABLE":      c.Tables.Orders,
		"KPI_TABLE":         c.Tables.Kpis,
		"JOBS_TABLE":        c.Tables.Jobs,
		"SHOPS_TABLE":       c.Tables.Shops,
	}
	for _, name := range required {
		if strings.TrimSpace(byName[name]) == "" {
			return fmt.Errorf("missing env %s", name)
		}
	}
	return nil
}

// resolveSSMSecrets replaces any secret whose *_SSM_PARAM variable is set
// with the decrypted parameter value. A single client is built lazily so
// entrypoints with plain env secrets never touch SSM.
func resolveSSMSecrets(ctx context.Context, c *Config) error {
	params := []struct {
		env  string
		dest *string
	}{
		{"SHOPIFY_API_SECRET_SSM_PARAM", &c.ShopifyAPISecret},
		{"SYNC_SERVICE_KEY_SSM_PARAM", &c.SyncServiceKey},
		{"ENCRYPTION_KEY_SSM_PARAM", &c.EncryptionKey},
	}

	var client *ssm.Client
	for _, p := range params {
		name := strings.TrimSpace(os.Getenv(p.env))
		if name == "" {
			continue
		}
		if client == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return fmt.Errorf("load aws config for ssm: %w", err)
			}
			client = ssm.NewFromConfig(awsCfg)
		}
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("ssm get %s: %w", name, err)
		}
		*p.dest = aws.ToString(out.Parameter.Value)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) int {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
