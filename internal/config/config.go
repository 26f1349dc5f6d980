package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

/* ===================== SETTINGS ===================== */

// Config holds all configuration required by the agent process.
// All values must come from env (or env-file loaded by the process runner).
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	LiveKit    LiveKitConfig
	Agent      AgentConfig
	Queue      QueueConfig
	Evaluation EvaluationConfig
	Recording  RecordingConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL prefixes the transcript and recording links stored with
	// each call.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is only required when MaxConcurrentCalls caps dispatch.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Dashboard operator credentials exchanged for a token pair at login.
	OperatorUsername string
	OperatorPassword string
}

type LiveKitConfig struct {
	URL        string
	APIKey     string
	APISecret  string
	SIPTrunkID string
}

type AgentConfig struct {
	CallingNumber   string
	OutboundAgentID string
	InboundAgentID  string

	DialTimeout        time.Duration
	PollInterval       time.Duration
	JoinTimeout        time.Duration
	ProperConversation time.Duration
	ShutdownTimeout    time.Duration

	IdleHangup         bool
	IdleCheckInterval  time.Duration
	IdleHangUpAfter    time.Duration
	IdlePresenceChecks int
	IdleReminder       string
	IdleClosing        string

	// MaxConcurrentCalls caps running call jobs across processes; 0 disables.
	MaxConcurrentCalls int
}

type QueueConfig struct {
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
}

// EvaluationConfig enables post-call evaluation when an API key is set.
type EvaluationConfig struct {
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	Timeout       time.Duration

	// EntityFields lists the values extracted from each transcript as
	// "name:description;name2:description2".
	EntityFields string
}

func (e EvaluationConfig) Enabled() bool { return e.OpenAIKey != "" }

// RecordingConfig controls audio-only room recordings uploaded to S3.
type RecordingConfig struct {
	Enabled   bool
	AccessKey string
	Secret    string
	Region    string
	Bucket    string
}

/* ===================== LOAD ===================== */

func Load() (Config, error) {
	c := Config{}
	p := &parser{}

	c.App.Env = env("APP_ENV")
	c.App.Port = p.requiredInt("APP_PORT")
	c.App.PublicBaseURL = env("PUBLIC_BASE_URL")

	c.DB.Host = env("DB_HOST")
	c.DB.Port = p.requiredInt("DB_PORT")
	c.DB.User = env("DB_USER")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = env("DB_NAME")
	c.DB.SSLMode = env("DB_SSLMODE")

	c.Redis.Host = env("REDIS_HOST")
	c.Redis.Port = p.optionalInt("REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = env("JWT_ISSUER")
	c.Auth.JWTAudience = env("JWT_AUDIENCE")
	c.Auth.AccessTokenTTL = p.duration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = p.duration("JWT_REFRESH_TTL")
	c.Auth.OperatorUsername = env("OPERATOR_USERNAME")
	c.Auth.OperatorPassword = os.Getenv("OPERATOR_PASSWORD")

	c.LiveKit.URL = env("LIVEKIT_URL")
	c.LiveKit.APIKey = env("LIVEKIT_API_KEY")
	c.LiveKit.APISecret = os.Getenv("LIVEKIT_API_SECRET")
	c.LiveKit.SIPTrunkID = env("SIP_OUTBOUND_TRUNK_ID")

	c.Agent.CallingNumber = env("AGENT_CALLING_NUMBER")
	c.Agent.OutboundAgentID = env("AGENT_OUTBOUND_ID")
	c.Agent.InboundAgentID = env("AGENT_INBOUND_ID")
	c.Agent.DialTimeout = p.duration("AGENT_DIAL_TIMEOUT")
	c.Agent.PollInterval = p.duration("AGENT_POLL_INTERVAL")
	c.Agent.JoinTimeout = p.duration("AGENT_JOIN_TIMEOUT")
	c.Agent.ProperConversation = p.duration("AGENT_PROPER_CONVERSATION")
	c.Agent.ShutdownTimeout = p.duration("AGENT_SHUTDOWN_TIMEOUT")
	c.Agent.IdleHangup = p.boolean("AGENT_IDLE_HANGUP", true)
	c.Agent.IdleCheckInterval = p.duration("AGENT_IDLE_CHECK_INTERVAL")
	c.Agent.IdleHangUpAfter = p.duration("AGENT_IDLE_HANGUP_AFTER")
	c.Agent.IdlePresenceChecks = p.optionalInt("AGENT_IDLE_PRESENCE_CHECKS")
	c.Agent.IdleReminder = env("AGENT_IDLE_REMINDER")
	c.Agent.IdleClosing = env("AGENT_IDLE_CLOSING")
	c.Agent.MaxConcurrentCalls = p.optionalInt("AGENT_MAX_CONCURRENT_CALLS")

	c.Queue.Workers = p.optionalInt("DB_QUEUE_WORKERS")
	c.Queue.MaxAttempts = p.optionalInt("DB_QUEUE_MAX_ATTEMPTS")
	c.Queue.RetryDelay = p.duration("DB_QUEUE_RETRY_DELAY")

	c.Evaluation.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.Evaluation.OpenAIModel = env("OPENAI_MODEL")
	c.Evaluation.OpenAIBaseURL = env("OPENAI_BASE_URL")
	c.Evaluation.Timeout = p.duration("EVALUATION_TIMEOUT")
	c.Evaluation.EntityFields = env("EVALUATION_ENTITY_FIELDS")

	c.Recording.Enabled = p.boolean("AGENT_RECORD_AUDIO", false)
	c.Recording.AccessKey = env("AWS_ACCESS_KEY")
	c.Recording.Secret = os.Getenv("AWS_SECRET_KEY")
	c.Recording.Region = env("AWS_REGION")
	c.Recording.Bucket = env("AWS_BUCKET")

	if err := joinErrors(p.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

/* ===================== VALIDATE ===================== */

// Validate checks required settings and fills in defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.IsProduction() && c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Agent.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("AGENT_MAX_CONCURRENT_CALLS must be >= 0, got %d", c.Agent.MaxConcurrentCalls))
	}
	if c.Agent.MaxConcurrentCalls > 0 {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when AGENT_MAX_CONCURRENT_CALLS is set"))
		}
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if !validPort(c.Redis.Port) {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.OperatorUsername == "" || c.Auth.OperatorPassword == "" {
		errs = append(errs, errors.New("OPERATOR_USERNAME and OPERATOR_PASSWORD are required"))
	}

	if c.LiveKit.URL == "" {
		errs = append(errs, errors.New("LIVEKIT_URL is required"))
	}
	if c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
		errs = append(errs, errors.New("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required"))
	}
	if c.LiveKit.SIPTrunkID == "" {
		errs = append(errs, errors.New("SIP_OUTBOUND_TRUNK_ID is required"))
	}

	if c.Recording.Enabled && (c.Recording.Bucket == "" || c.Recording.Region == "") {
		errs = append(errs, errors.New("AWS_BUCKET and AWS_REGION are required when AGENT_RECORD_AUDIO is set"))
	}

	errs = append(errs, c.Agent.applyDefaults()...)
	c.Queue.applyDefaults()
	if c.Evaluation.Timeout <= 0 {
		c.Evaluation.Timeout = time.Minute
	}

	return joinErrors(errs)
}

func (a *AgentConfig) applyDefaults() []error {
	var errs []error
	if a.DialTimeout <= 0 {
		a.DialTimeout = 45 * time.Second
	}
	if a.PollInterval <= 0 {
		a.PollInterval = 500 * time.Millisecond
	}
	if a.PollInterval >= a.DialTimeout {
		errs = append(errs, errors.New("AGENT_POLL_INTERVAL must be shorter than AGENT_DIAL_TIMEOUT"))
	}
	if a.JoinTimeout <= 0 {
		a.JoinTimeout = 60 * time.Second
	}
	if a.ProperConversation <= 0 {
		a.ProperConversation = 10 * time.Second
	}
	if a.ShutdownTimeout <= 0 {
		a.ShutdownTimeout = 10 * time.Second
	}
	if a.IdleCheckInterval <= 0 {
		a.IdleCheckInterval = 15 * time.Second
	}
	if a.IdleHangUpAfter <= 0 {
		a.IdleHangUpAfter = 10 * time.Second
	}
	if a.IdlePresenceChecks < 0 {
		errs = append(errs, fmt.Errorf("AGENT_IDLE_PRESENCE_CHECKS must be >= 0, got %d", a.IdlePresenceChecks))
	}
	if a.OutboundAgentID == "" {
		a.OutboundAgentID = "default"
	}
	if a.InboundAgentID == "" {
		a.InboundAgentID = a.OutboundAgentID
	}
	return errs
}

func (q *QueueConfig) applyDefaults() {
	if q.Workers <= 0 {
		q.Workers = 3
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 2
	}
	if q.RetryDelay <= 0 {
		q.RetryDelay = time.Second
	}
}

/* ===================== DERIVED VALUES ===================== */

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

/* ===================== ENV PARSING ===================== */

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// parser collects every malformed value so Load reports them together.
type parser struct {
	errs []error
}

func (p *parser) requiredInt(key string) int {
	if env(key) == "" {
		p.errs = append(p.errs, fmt.Errorf("%s is required", key))
		return 0
	}
	return p.optionalInt(key)
}

func (p *parser) optionalInt(key string) int {
	v := env(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

// duration returns 0 when unset; Validate applies the default.
func (p *parser) duration(key string) time.Duration {
	v := env(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration, got %q", key, v))
		return 0
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	v := env(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func validPort(n int) bool { return n > 0 && n <= 65535 }

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
