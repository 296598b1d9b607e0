// File: internal/config/config.go
// quiznet server - configuration

package config

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the quiznet server. Ambient
// settings (database, redis, operator console) are read from a .env
// file via godotenv, same as the teacher; the player-facing network
// settings are CLI flags per spec.md §6 ("--tcp <port>", "--udp <port>",
// "--name <string>").
type Config struct {
	ServerName string
	TCPPort    int
	UDPPort    int

	AccountsFile string

	DBType           string
	DBHost           string
	DBPort           int
	DBName           string
	DBUser           string
	DBPassword       string
	DBMaxConnections int
	DBMaxIdleConns   int

	RedisEnabled bool
	RedisHost    string
	RedisPort    int
	RedisDB      int

	OperatorEnabled bool
	OperatorPort    int
	OperatorSecret  string
	OperatorQRPath  string

	ShutdownTimeoutSecs int
}

var defaultConfig = Config{
	ServerName:          "quiznet",
	TCPPort:             5556,
	UDPPort:             5555,
	AccountsFile:        "data/accounts.txt",
	DBType:              "sqlite",
	DBHost:              "localhost",
	DBPort:              5432,
	DBName:              "data/quiznet.db",
	DBUser:              "quiznet",
	DBMaxConnections:    25,
	DBMaxIdleConns:      5,
	RedisEnabled:        false,
	RedisHost:           "localhost",
	RedisPort:           6379,
	RedisDB:             0,
	OperatorEnabled:     false,
	OperatorPort:        5557,
	OperatorQRPath:      "data/operator-enroll.png",
	ShutdownTimeoutSecs: 10,
}

// Load parses CLI flags and an optional .env file (ambient settings
// only; the flags always win for the player-facing ports and name).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("quiznet-server", flag.ContinueOnError)

	cfg := defaultConfig

	tcpPort := fs.Int("tcp", defaultConfig.TCPPort, "TCP port for the game transport")
	udpPort := fs.Int("udp", defaultConfig.UDPPort, "UDP port for LAN discovery")
	name := fs.String("name", defaultConfig.ServerName, "server display name advertised over discovery")
	envFile := fs.String("env", ".env", "path to an optional .env file with ambient settings")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("config: failed to read %s: %v", *envFile, err)
	}

	cfg.TCPPort = *tcpPort
	cfg.UDPPort = *udpPort
	cfg.ServerName = *name

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString("ACCOUNTS_FILE", &cfg.AccountsFile)
	overrideString("DB_TYPE", &cfg.DBType)
	overrideString("DB_HOST", &cfg.DBHost)
	overrideInt("DB_PORT", &cfg.DBPort)
	overrideString("DB_NAME", &cfg.DBName)
	overrideString("DB_USER", &cfg.DBUser)
	overrideString("DB_PASSWORD", &cfg.DBPassword)
	overrideInt("DB_MAX_CONNECTIONS", &cfg.DBMaxConnections)
	overrideInt("DB_MAX_IDLE_CONNS", &cfg.DBMaxIdleConns)

	overrideBool("REDIS_ENABLED", &cfg.RedisEnabled)
	overrideString("REDIS_HOST", &cfg.RedisHost)
	overrideInt("REDIS_PORT", &cfg.RedisPort)
	overrideInt("REDIS_DB", &cfg.RedisDB)

	overrideBool("OPERATOR_ENABLED", &cfg.OperatorEnabled)
	overrideInt("OPERATOR_PORT", &cfg.OperatorPort)
	overrideString("OPERATOR_SECRET", &cfg.OperatorSecret)
	overrideString("OPERATOR_QR_PATH", &cfg.OperatorQRPath)

	overrideInt("SHUTDOWN_TIMEOUT_SECS", &cfg.ShutdownTimeoutSecs)
}

func overrideString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func overrideInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			*dst = n
		} else {
			log.Printf("config: warning: %s=%q is not an integer", key, v)
		}
	}
}

func overrideBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v == "true" || v == "1"
	}
}

func validate(cfg *Config) error {
	if cfg.TCPPort < 1 || cfg.TCPPort > 65535 {
		return fmt.Errorf("--tcp must be between 1 and 65535")
	}
	if cfg.UDPPort < 1 || cfg.UDPPort > 65535 {
		return fmt.Errorf("--udp must be between 1 and 65535")
	}
	if cfg.DBType != "sqlite" && cfg.DBType != "postgres" {
		return fmt.Errorf("DB_TYPE must be 'sqlite' or 'postgres'")
	}
	if cfg.DBName == "" {
		return fmt.Errorf("DB_NAME cannot be empty")
	}
	if cfg.ShutdownTimeoutSecs < 1 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SECS must be at least 1")
	}
	return nil
}

// LogSummary logs the resolved configuration without sensitive fields,
// in the teacher's "=== Server Configuration ===" style.
func (c *Config) LogSummary() {
	log.Println("=== Server Configuration ===")
	log.Printf("Name: %s", c.ServerName)
	log.Printf("TCP: %d  UDP: %d", c.TCPPort, c.UDPPort)
	log.Printf("Accounts file: %s", c.AccountsFile)
	log.Printf("Database: %s (%s)", c.DBType, c.DBName)
	log.Printf("Redis enabled: %v", c.RedisEnabled)
	log.Printf("Operator console enabled: %v", c.OperatorEnabled)
	log.Println("============================")
}
