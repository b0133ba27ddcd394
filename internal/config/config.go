package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
	"github.com/spf13/viper"

	"github.com/web3-frozen/ethyields/internal/store"
)

// ErrConfig reports missing or invalid configuration.
var ErrConfig = errors.New("config")

type Config struct {
	BotToken string
	ChatID   string
	DB       store.Config

	PoolsURL    string
	HTTPTimeout time.Duration

	RedisURL      string
	RedisPassword string
	RunLockTTL    time.Duration

	PushgatewayURL string
}

// key -> accepted environment variable names, first match wins
var bindings = map[string][]string{
	"bot_token":               {"BOT_TOKEN"},
	"chat_id":                 {"chat_id", "CHAT_ID"},
	"host":                    {"host", "DB_HOST"},
	"user":                    {"user", "DB_USER"},
	"passwd":                  {"passwd", "DB_PASSWORD"},
	"database":                {"database", "DB_NAME"},
	"db_driver":               {"DB_DRIVER"},
	"db_port":                 {"DB_PORT"},
	"pools_url":               {"POOLS_URL"},
	"http_timeout":            {"HTTP_TIMEOUT"},
	"redis_url":               {"REDIS_URL"},
	"redis_password":          {"REDIS_PASSWORD"},
	"run_lock_ttl":            {"RUN_LOCK_TTL"},
	"pushgateway_url":         {"PUSHGATEWAY_URL"},
	"infisical_client_id":     {"INFISICAL_CLIENT_ID"},
	"infisical_client_secret": {"INFISICAL_CLIENT_SECRET"},
	"infisical_project_id":    {"INFISICAL_PROJECT_ID"},
	"infisical_env":           {"INFISICAL_ENV"},
	"infisical_site_url":      {"INFISICAL_SITE_URL"},
}

// required keys, reported under the names operators set
var required = []struct{ key, name string }{
	{"bot_token", "BOT_TOKEN"},
	{"chat_id", "chat_id"},
	{"host", "host"},
	{"user", "user"},
	{"passwd", "passwd"},
	{"database", "database"},
}

// Load reads envFile (dotenv syntax, optional) and the process environment,
// environment first. It fails with ErrConfig before any network or database
// call if a required key is missing.
func Load(envFile string) (Config, error) {
	v := viper.New()
	v.SetDefault("db_driver", store.DriverMySQL)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("run_lock_ttl", 10*time.Minute)
	v.SetDefault("infisical_env", "prod")
	v.SetDefault("infisical_site_url", "https://app.infisical.com")

	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("%w: bind %s: %w", ErrConfig, key, err)
		}
	}

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: read %s: %w", ErrConfig, envFile, err)
		}
	}

	if id, secret := v.GetString("infisical_client_id"), v.GetString("infisical_client_secret"); id != "" && secret != "" {
		loadFromInfisical(v, id, secret)
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(v.GetString(r.key)) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing %s", ErrConfig, strings.Join(missing, ", "))
	}

	driver := strings.ToLower(v.GetString("db_driver"))
	if driver != store.DriverMySQL && driver != store.DriverPostgres {
		return Config{}, fmt.Errorf("%w: DB_DRIVER must be %q or %q, got %q",
			ErrConfig, store.DriverMySQL, store.DriverPostgres, driver)
	}

	timeout := v.GetDuration("http_timeout")
	if timeout <= 0 {
		return Config{}, fmt.Errorf("%w: HTTP_TIMEOUT must be positive", ErrConfig)
	}

	return Config{
		BotToken: v.GetString("bot_token"),
		ChatID:   v.GetString("chat_id"),
		DB: store.Config{
			Driver:   driver,
			Host:     v.GetString("host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("user"),
			Password: v.GetString("passwd"),
			Database: v.GetString("database"),
		},
		PoolsURL:       v.GetString("pools_url"),
		HTTPTimeout:    timeout,
		RedisURL:       v.GetString("redis_url"),
		RedisPassword:  v.GetString("redis_password"),
		RunLockTTL:     v.GetDuration("run_lock_ttl"),
		PushgatewayURL: v.GetString("pushgateway_url"),
	}, nil
}

func loadFromInfisical(v *viper.Viper, clientID, clientSecret string) {
	projectID := v.GetString("infisical_project_id")
	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          v.GetString("infisical_site_url"),
		AutoTokenRefresh: false,
	})

	if _, err := client.Auth().UniversalAuthLogin(clientID, clientSecret); err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]string{
		"bot_token":      "BOT_TOKEN",
		"passwd":         "passwd",
		"redis_password": "REDIS_PASSWORD",
	}

	for key, secretKey := range secrets {
		if v.GetString(key) != "" {
			continue // env var or .env already set
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   secretKey,
			Environment: v.GetString("infisical_env"),
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", secretKey, "error", err)
			continue
		}
		v.Set(key, secret.SecretValue)
		slog.Info("loaded secret from infisical", "key", secretKey)
	}
}
