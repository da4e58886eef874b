package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// AgentConfig points at the external engine that extracts profile fields
// from the conversation, runs the risk model and writes coaching text.
type AgentConfig struct {
	Enabled bool          `env:"AGENT_ENABLED" envDefault:"true"`
	BaseURL string        `env:"AGENT_BASE_URL" envDefault:"http://localhost:8000"`
	APIKey  string        `env:"AGENT_API_KEY"`
	Timeout time.Duration `env:"AGENT_TIMEOUT" envDefault:"60s"`
}

// LifecycleConfig tunes the chat lifecycle.
type LifecycleConfig struct {
	RedirectDelay time.Duration `env:"LIFECYCLE_REDIRECT_DELAY" envDefault:"1500ms"`
	SendLockTTL   time.Duration `env:"LIFECYCLE_SEND_LOCK_TTL" envDefault:"2m"`
	HistoryLimit  int           `env:"LIFECYCLE_HISTORY_LIMIT" envDefault:"40"`
}

// LoadAgentConfig parses AGENT_* variables.
func LoadAgentConfig() (AgentConfig, error) {
	return env.ParseAs[AgentConfig]()
}

// LoadLifecycleConfig parses LIFECYCLE_* variables.
func LoadLifecycleConfig() (LifecycleConfig, error) {
	return env.ParseAs[LifecycleConfig]()
}
