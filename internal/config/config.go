package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultDSN         = "host=localhost user=postgres password=postgres dbname=pdv port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:5173"
)

// Config reúne toda a configuração do processo. Campos obrigatórios:
// DatabaseDSN, JWTSecret e ReportSigningSecret. O resto tem valor padrão.
type Config struct {
	Env         string
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string
	LogLevel    string

	PublicBaseURL       string
	ReportDir           string
	ReportFormat        string // text | xlsx
	ReportSigningSecret string

	RedisAddr     string // vazio = sem lock distribuído
	RedisPassword string
	RedisDB       int

	RabbitMQURL string // vazio = sem publicação de eventos

	AuditRetryInterval    time.Duration
	AuditRetryMaxAttempts int
}

// Load lê o .env (se existir) e as variáveis de ambiente. Configuração
// inválida encerra o processo.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[WARN] .env lido com erro: %v", err)
	}

	cfg, err := FromEnv()
	if err != nil {
		log.Fatalf("[FATAL] configuração inválida: %v", err)
	}

	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN com valor de desenvolvimento, defina o seu em produção.")
	}
	if cfg.CORSOrigins == defaultCORSOrigins {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS com valor padrão, defina o domínio do frontend em produção.")
	}
	return cfg
}

// FromEnv monta a Config a partir do ambiente atual e a valida.
func FromEnv() (*Config, error) {
	var problems []error

	port := getEnv("HTTP_PORT", "8080")
	cfg := &Config{
		Env:                 getEnv("APP_ENV", "dev"),
		HTTPPort:            port,
		DatabaseDSN:         os.Getenv("DATABASE_DSN"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CORSOrigins:         getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		PublicBaseURL:       strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		ReportDir:           getEnv("REPORT_DIR", "./reports"),
		ReportFormat:        strings.ToLower(getEnv("REPORT_FORMAT", "text")),
		ReportSigningSecret: os.Getenv("REPORT_SIGNING_SECRET"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RabbitMQURL:         os.Getenv("RABBITMQ_URL"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		problems = append(problems, err)
	}
	if cfg.AuditRetryInterval, err = getEnvDuration("AUDIT_RETRY_INTERVAL", 5*time.Second); err != nil {
		problems = append(problems, err)
	}
	if cfg.AuditRetryMaxAttempts, err = getEnvInt("AUDIT_RETRY_MAX_ATTEMPTS", 5); err != nil {
		problems = append(problems, err)
	}

	if err := cfg.Validate(); err != nil {
		problems = append(problems, err)
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return cfg, nil
}

// Validate lista todos os problemas de uma vez.
func (c *Config) Validate() error {
	var problems []error

	if c.DatabaseDSN == "" {
		problems = append(problems, errors.New("DATABASE_DSN é obrigatório"))
	}
	if c.JWTSecret == "" {
		problems = append(problems, errors.New("JWT_SECRET é obrigatório"))
	} else if len(c.JWTSecret) < 32 {
		problems = append(problems, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres"))
	}
	if c.ReportSigningSecret == "" {
		problems = append(problems, errors.New("REPORT_SIGNING_SECRET é obrigatório"))
	} else if len(c.ReportSigningSecret) < 32 {
		problems = append(problems, errors.New("REPORT_SIGNING_SECRET deve ter pelo menos 32 caracteres"))
	}
	switch c.ReportFormat {
	case "text", "xlsx":
	default:
		problems = append(problems, fmt.Errorf("REPORT_FORMAT inválido: %q (text|xlsx)", c.ReportFormat))
	}
	if c.ReportDir == "" {
		problems = append(problems, errors.New("REPORT_DIR não pode ser vazio"))
	}
	if c.AuditRetryInterval <= 0 {
		problems = append(problems, errors.New("AUDIT_RETRY_INTERVAL deve ser positivo"))
	}
	if c.AuditRetryMaxAttempts < 1 {
		problems = append(problems, errors.New("AUDIT_RETRY_MAX_ATTEMPTS deve ser >= 1"))
	}

	return errors.Join(problems...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s inválido: %q", key, v)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s inválido: %q", key, v)
	}
	return d, nil
}
