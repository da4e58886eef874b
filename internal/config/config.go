package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds the runtime configuration required to boot the API. Each
// field corresponds to an environment variable. Optional tunables for
// individual subsystems live in their own Load* functions.
type Config struct {
	Env            string // application environment (dev, test, prod)
	Port           string // HTTP port to listen on
	DBDriver       string // "mysql" or "sqlite"
	DBUser         string // database username (mysql)
	DBPass         string // database password (optional)
	DBHost         string // database host address (mysql)
	DBPort         string // database port number (mysql)
	DBName         string // database name, or file path for sqlite
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
	AllowOrigins   []string
	RabbitURL      string // empty disables event publishing
}

// Load reads configuration values from environment variables. Missing
// required values terminate the process. The MySQL connection fields are
// only required when DB_DRIVER is mysql.
func Load() Config {
	driver := strings.ToLower(envStr("DB_DRIVER", "mysql"))
	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBDriver:       driver,
		DBPass:         os.Getenv("DB_PASS"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),
		AllowOrigins:   splitList(envStr("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		RabbitURL:      rabbitURL(),
	}
	switch driver {
	case "mysql":
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
	case "sqlite":
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", driver)
	}
	return cfg
}

// IsDev reports whether the service runs with development defaults.
func (c Config) IsDev() bool { return c.Env == "dev" || c.Env == "development" }

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// rabbitURL honours RABBITMQ_URL then AMQP_URL. Publishing stays off when
// neither is set.
func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
