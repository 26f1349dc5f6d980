package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:     AppConfig{Env: env, Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voice"},
		Auth:    AuthConfig{JWTSecret: "secret", OperatorUsername: "ops", OperatorPassword: "pw"},
		LiveKit: LiveKitConfig{URL: "wss://lk.example.com", APIKey: "key", APISecret: "secret", SIPTrunkID: "ST_1"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "JWT_SECRET", "LIVEKIT_URL", "SIP_OUTBOUND_TRUNK_ID", "OPERATOR_USERNAME"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLModeAndBaseURL(t *testing.T) {
	c := validConfig("production")
	c.Auth.JWTIssuer = "voice"
	c.Auth.JWTAudience = "dashboard"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") || !strings.Contains(err.Error(), "PUBLIC_BASE_URL") {
		t.Fatalf("expected production errors, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Agent.DialTimeout != 45*time.Second || c.Agent.ProperConversation != 10*time.Second || c.Agent.IdleCheckInterval != 15*time.Second {
		t.Fatalf("unexpected agent defaults: %+v", c.Agent)
	}
	if c.Queue.Workers != 3 || c.Queue.MaxAttempts != 2 || c.Queue.RetryDelay != time.Second {
		t.Fatalf("unexpected queue defaults: %+v", c.Queue)
	}
	if c.Agent.InboundAgentID != "default" || c.Evaluation.Enabled() {
		t.Fatalf("unexpected defaults: %+v %+v", c.Agent, c.Evaluation)
	}
}

func TestValidate_CallCapNeedsRedis(t *testing.T) {
	c := validConfig("local")
	c.Agent.MaxConcurrentCalls = 5
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("expected redis error, got %v", err)
	}

	c = validConfig("local")
	c.Agent.MaxConcurrentCalls = 5
	c.Redis.Host = "redis"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.RedisAddr() != "redis:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
}

func TestValidate_RecordingNeedsBucket(t *testing.T) {
	c := validConfig("local")
	c.Recording.Enabled = true
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "AWS_BUCKET") {
		t.Fatalf("expected bucket error, got %v", err)
	}

	c = validConfig("local")
	c.Recording = RecordingConfig{Enabled: true, Bucket: "calls", Region: "us-east-1"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	vars := map[string]string{
		"APP_ENV":               "dev",
		"APP_PORT":              "9000",
		"DB_HOST":               "db",
		"DB_PORT":               "5432",
		"DB_USER":               "agent",
		"DB_NAME":               "voice",
		"JWT_SECRET":            "s",
		"OPERATOR_USERNAME":     "ops",
		"OPERATOR_PASSWORD":     "pw",
		"LIVEKIT_URL":           "wss://lk",
		"LIVEKIT_API_KEY":       "k",
		"LIVEKIT_API_SECRET":    "s",
		"SIP_OUTBOUND_TRUNK_ID": "ST_1",
		"AGENT_DIAL_TIMEOUT":    "30s",
		"AGENT_IDLE_HANGUP":     "false",
		"AGENT_OUTBOUND_ID":     "sales",
		"OPENAI_API_KEY":        "sk-test",
		"DB_QUEUE_WORKERS":      "5",
		"AGENT_RECORD_AUDIO":    "true",
		"AWS_BUCKET":            "calls",
		"AWS_REGION":            "eu-west-1",

		"EVALUATION_ENTITY_FIELDS": "city:destination city",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9000" || c.Agent.DialTimeout != 30*time.Second || c.Agent.IdleHangup {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Agent.InboundAgentID != "sales" || c.Queue.Workers != 5 || !c.Evaluation.Enabled() {
		t.Fatalf("unexpected config: %+v", c)
	}
	if !c.Recording.Enabled || c.Recording.Bucket != "calls" || c.Evaluation.EntityFields != "city:destination city" {
		t.Fatalf("unexpected recording/evaluation config: %+v %+v", c.Recording, c.Evaluation)
	}
	if !strings.Contains(c.PostgresDSN(), "sslmode=disable") {
		t.Fatalf("expected default sslmode in dsn")
	}
}

func TestLoad_CollectsParseErrors(t *testing.T) {
	t.Setenv("APP_PORT", "abc")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("AGENT_DIAL_TIMEOUT", "soon")
	t.Setenv("AGENT_IDLE_HANGUP", "maybe")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"APP_PORT", "AGENT_DIAL_TIMEOUT", "AGENT_IDLE_HANGUP"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}
