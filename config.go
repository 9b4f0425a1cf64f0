package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CrowderSoup/wiseflow/services"
)

// Config holds the server settings. Defaults are overlaid by the YAML file
// named in WISEFLOW_CONFIG, then by environment variables.
type Config struct {
	Port           string              `yaml:"port"`
	DBPath         string              `yaml:"db_path"`
	JWTSecret      string              `yaml:"jwt_secret"`
	StorageDir     string              `yaml:"storage_dir"`
	StorageBucket  string              `yaml:"storage_bucket"`
	StaticDir      string              `yaml:"static_dir"`
	PublicURL      string              `yaml:"public_url"`
	PersistTimeout time.Duration       `yaml:"persist_timeout"`
	TrashRetention time.Duration       `yaml:"trash_retention"`
	AllowedOrigins []string            `yaml:"allowed_origins"`
	SMTP           services.SMTPConfig `yaml:"smtp"`
}

func defaultConfig() Config {
	return Config{
		Port:           "3001",
		DBPath:         "./wiseflow.db",
		StorageDir:     "./storage",
		StorageBucket:  "wiseflow",
		StaticDir:      "./public",
		PersistTimeout: services.DefaultPersistTimeout,
		TrashRetention: services.DefaultTrashRetention,
		AllowedOrigins: []string{"*"},
	}
}

// LoadConfig reads the .env file at envFile when it exists, then builds the
// configuration.
func LoadConfig(envFile string) (Config, error) {
	if err := LoadEnv(envFile); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := defaultConfig()
	if path := os.Getenv("WISEFLOW_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:" + cfg.Port
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"PORT":           &c.Port,
		"DB_PATH":        &c.DBPath,
		"JWT_SECRET":     &c.JWTSecret,
		"STORAGE_DIR":    &c.StorageDir,
		"STORAGE_BUCKET": &c.StorageBucket,
		"STATIC_DIR":     &c.StaticDir,
		"PUBLIC_URL":     &c.PublicURL,
		"SMTP_HOST":      &c.SMTP.Host,
		"SMTP_PORT":      &c.SMTP.Port,
		"SMTP_USERNAME":  &c.SMTP.Username,
		"SMTP_PASSWORD":  &c.SMTP.Password,
		"SMTP_FROM":      &c.SMTP.From,
	}
	for key, field := range strs {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}

	durations := map[string]*time.Duration{
		"PERSIST_TIMEOUT": &c.PersistTimeout,
		"TRASH_RETENTION": &c.TrashRetention,
	}
	for key, field := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*field = d
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}
	return nil
}

// LoadEnv loads environment variables from a .env file. Non-empty values
// already in the environment win.
func LoadEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) != "" {
			continue
		}
		os.Setenv(key, value)
	}

	return scanner.Err()
}
