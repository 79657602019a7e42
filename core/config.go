package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		RequestTimeout            time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
		MaxTxRetries  int
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	RateLimitConfig struct {
		RPS    float64
		Burst  int
		Window time.Duration
	}

	RosterConfig struct {
		CronSpec    string
		MaxRetries  int
		BaseBackoff time.Duration
		RunTimeout  time.Duration // bounds one scheduled run, retries included
		AlertEmail  string        // notified when a scheduled refresh gives up
	}

	CatalogConfig struct {
		URL     string
		Timeout time.Duration
	}

	LogConfig struct {
		Level  string
		Format string // console | json
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail string
		FrontendBaseURL  string
		UploadDir        string
		WorkDir          string

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		RateLimit RateLimitConfig
		Roster    RosterConfig
		Catalog   CatalogConfig
		Log       LogConfig
	}
)

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// FromAddress parses DefaultFromEmail, falling back to a bare noreply address.
func (c Config) FromAddress() mail.Address {
	if addr, err := mail.ParseAddress(c.DefaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` and the environment (in that order).
// Environment variables are prefixed with the upper-cased ENV, e.g. DEV_DATABASE_HOST.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Campus")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "k1x$9d!v0s+3b=7lq(zr^w5m@e8c#n2u*ah6jt-ypfgo4ix")
	conf.SetDefault("defaultFromEmail", "Campus <noreply@localhost>")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("uploadDir", "uploads")

	conf.SetDefault("server.host", "0.0.0.0")
	conf.SetDefault("server.port", 8000)
	conf.SetDefault("server.debugHost", "0.0.0.0:4000")
	conf.SetDefault("server.requestTimeout", 10*time.Second)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "campus")
	conf.SetDefault("database.user", "campus")
	conf.SetDefault("database.password", "campus")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.maxOpenConns", 25)
	conf.SetDefault("database.maxIdleConns", 25)
	conf.SetDefault("database.maxTxRetries", 3)

	conf.SetDefault("redis.addr", "")
	conf.SetDefault("redis.db", 0)

	conf.SetDefault("rateLimit.rps", 1.0)
	conf.SetDefault("rateLimit.burst", 5)
	conf.SetDefault("rateLimit.window", time.Minute)

	conf.SetDefault("roster.cronSpec", "@every 5m")
	conf.SetDefault("roster.maxRetries", 3)
	conf.SetDefault("roster.baseBackoff", 2*time.Second)
	conf.SetDefault("roster.runTimeout", 4*time.Minute)

	conf.SetDefault("catalog.timeout", 5*time.Second)

	conf.SetDefault("log.level", "info")
	conf.SetDefault("log.format", "console")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		SecretKey:        conf.GetString("secretKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		DefaultFromEmail: conf.GetString("defaultFromEmail"),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		UploadDir:        conf.GetString("uploadDir"),
		WorkDir:          wd,
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Port:                      conf.GetInt("server.port"),
			DebugHost:                 conf.GetString("server.debugHost"),
			RequestTimeout:            conf.GetDuration("server.requestTimeout"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			DisableReqLogs:            conf.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
			MaxOpenConns:  conf.GetInt("database.maxOpenConns"),
			MaxIdleConns:  conf.GetInt("database.maxIdleConns"),
			MaxTxRetries:  conf.GetInt("database.maxTxRetries"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redis.addr"),
			Password: conf.GetString("redis.password"),
			DB:       conf.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			RPS:    conf.GetFloat64("rateLimit.rps"),
			Burst:  conf.GetInt("rateLimit.burst"),
			Window: conf.GetDuration("rateLimit.window"),
		},
		Roster: RosterConfig{
			CronSpec:    conf.GetString("roster.cronSpec"),
			MaxRetries:  conf.GetInt("roster.maxRetries"),
			BaseBackoff: conf.GetDuration("roster.baseBackoff"),
			RunTimeout:  conf.GetDuration("roster.runTimeout"),
			AlertEmail:  conf.GetString("roster.alertEmail"),
		},
		Catalog: CatalogConfig{
			URL:     conf.GetString("catalog.url"),
			Timeout: conf.GetDuration("catalog.timeout"),
		},
		Log: LogConfig{
			Level:  conf.GetString("log.level"),
			Format: conf.GetString("log.format"),
		},
	}
}

// NewTestConfig returns the configuration used by package tests. It never touches the environment.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Campus",
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		SecretKey:        "test-secret",
		DefaultFromEmail: "Campus <noreply@localhost>",
		UploadDir:        os.TempDir(),
		Server: ServerConfig{
			RequestTimeout:            5 * time.Second,
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
			DisableReqLogs:            true,
		},
		Database:  DatabaseConfig{MaxTxRetries: 3},
		RateLimit: RateLimitConfig{RPS: 100, Burst: 100, Window: time.Minute},
		Roster:    RosterConfig{CronSpec: "@every 1m", MaxRetries: 2, BaseBackoff: time.Millisecond, RunTimeout: 10 * time.Second},
		Log:       LogConfig{Level: "debug", Format: "console"},
	}
}
