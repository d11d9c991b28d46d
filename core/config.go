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
	Config struct {
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		Server      ServerConfig
		Database    DatabaseConfig
		Redis       RedisConfig
		Moodle      MoodleConfig
		Attendance  AttendanceConfig
		Certificate CertificateConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
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

		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		PoolSize int
	}

	MoodleConfig struct {
		URL     string
		Token   string
		Timeout time.Duration
	}

	AttendanceConfig struct {
		ChunkSize       int
		MaxChunkSize    int
		ChunkDelay      time.Duration
		CheckInLeadTime time.Duration
		ScanCooldown    time.Duration
		AgentSessionTTL time.Duration
		StatsCacheTTL   time.Duration
	}

	CertificateConfig struct {
		SerialPrefix string
	}
)

// Address returns the server's "host:port".
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Address returns the database's "host:port".
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// Enabled reports whether the Moodle web service is configured.
func (c MoodleConfig) Enabled() bool { return c.URL != "" && c.Token != "" }

// NewConfig reads the app configuration from the environment.
// ENV selects the profile (DEV by default, TEST, QA, PROD) and is used as the env vars prefix:
// eg. DEV_DATABASE_HOST. A "config/.env.<env>" file is loaded first when it exists.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	loadDotEnv(env)

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Techlympics")
	v.SetDefault("secretKey", "t3chlymp!cs-d3v-s3cr3t-k3y-ch4ng3-m3-in-pr0duct!0n")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Techlympics <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("server.shutdownTimeout", 15*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "techlympics")
	v.SetDefault("database.user", "techlympics")
	v.SetDefault("database.password", "techlympics")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 20)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 20)

	v.SetDefault("moodle.url", "")
	v.SetDefault("moodle.token", "")
	v.SetDefault("moodle.timeout", 30*time.Second)

	v.SetDefault("attendance.chunkSize", 50)
	v.SetDefault("attendance.maxChunkSize", 500)
	v.SetDefault("attendance.chunkDelay", 100*time.Millisecond)
	v.SetDefault("attendance.checkInLeadTime", 2*time.Hour)
	v.SetDefault("attendance.scanCooldown", 1500*time.Millisecond)
	v.SetDefault("attendance.agentSessionTTL", 12*time.Hour)
	v.SetDefault("attendance.statsCacheTTL", 15*time.Second)

	v.SetDefault("certificate.serialPrefix", "MT")

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config: parsing defaultFromEmail: %v", err)
	}

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          *from,
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetInt("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),

			MaxOpenConns:    v.GetInt("database.maxOpenConns"),
			MaxIdleConns:    v.GetInt("database.maxIdleConns"),
			ConnMaxLifetime: v.GetDuration("database.connMaxLifetime"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			PoolSize: v.GetInt("redis.poolSize"),
		},
		Moodle: MoodleConfig{
			URL:     strings.TrimSuffix(v.GetString("moodle.url"), "/"),
			Token:   v.GetString("moodle.token"),
			Timeout: v.GetDuration("moodle.timeout"),
		},
		Attendance: AttendanceConfig{
			ChunkSize:       v.GetInt("attendance.chunkSize"),
			MaxChunkSize:    v.GetInt("attendance.maxChunkSize"),
			ChunkDelay:      v.GetDuration("attendance.chunkDelay"),
			CheckInLeadTime: v.GetDuration("attendance.checkInLeadTime"),
			ScanCooldown:    v.GetDuration("attendance.scanCooldown"),
			AgentSessionTTL: v.GetDuration("attendance.agentSessionTTL"),
			StatsCacheTTL:   v.GetDuration("attendance.statsCacheTTL"),
		},
		Certificate: CertificateConfig{
			SerialPrefix: v.GetString("certificate.serialPrefix"),
		},
	}
}

// NewTestConfig returns the TEST profile config regardless of ENV.
func NewTestConfig() *Config {
	if err := os.Setenv("ENV", "TEST"); err != nil {
		log.Fatalf("config: setting ENV: %v", err)
	}
	return NewConfig()
}

// loadDotEnv loads "config/.env.<env>" if it exists (ignored if it does not).
func loadDotEnv(env string) {
	wd, err := Getwd()
	if err != nil {
		return
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
}
