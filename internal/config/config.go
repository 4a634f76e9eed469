// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"dm-relay/internal/usecase"
)

// Config is shared by the Lambda entrypoint and the dev server.
type Config struct {
	StateTable       string
	ParamPrefix      string
	OpenAIModel      string
	OpenAIBaseURL    string
	GraphBaseURL     string
	MessagingProduct string
	RequestTimeout   time.Duration
	TypingIndicator  bool
	TypingDelayMin   time.Duration
	TypingDelayMax   time.Duration
	MaxParallel      int
	LogLevel         string
	LogFormat        string

	// Dev server only.
	VerifyToken     string
	PageAccessToken string
	OpenAIAPIKey    string
	SQLitePath      string
	Port            int
}

type lookupFunc func(string) (string, bool)

// Load reads the common settings. Required keys are validated by Lambda or
// Local.
func Load() Config {
	return load(os.LookupEnv)
}

func load(lookup lookupFunc) Config {
	e := env{lookup: lookup}
	return Config{
		StateTable:       e.str("STATE_TABLE", ""),
		ParamPrefix:      e.str("PARAM_PREFIX", ""),
		OpenAIModel:      e.str("OPENAI_MODEL", usecase.DefaultModel),
		OpenAIBaseURL:    e.str("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GraphBaseURL:     e.str("GRAPH_BASE_URL", "https://graph.facebook.com/v23.0"),
		MessagingProduct: e.str("MESSAGING_PRODUCT", "instagram"),
		RequestTimeout:   e.duration("REQUEST_TIMEOUT", 10*time.Second),
		TypingIndicator:  e.boolean("TYPING_INDICATOR", true),
		TypingDelayMin:   e.duration("TYPING_DELAY_MIN", usecase.DefaultTypingDelayMin),
		TypingDelayMax:   e.duration("TYPING_DELAY_MAX", usecase.DefaultTypingDelayMax),
		MaxParallel:      e.integer("MAX_PARALLEL_SENDERS", 8),
		LogLevel:         e.str("LOG_LEVEL", "info"),
		LogFormat:        e.str("LOG_FORMAT", ""),
		VerifyToken:      e.str("VERIFY_TOKEN", ""),
		PageAccessToken:  e.str("PAGE_ACCESS_TOKEN", ""),
		OpenAIAPIKey:     e.str("OPENAI_API_KEY", ""),
		SQLitePath:       e.str("SQLITE_PATH", "relay.db"),
		Port:             e.integer("PORT", 5000),
	}
}

// ValidateLambda checks the keys the Lambda deployment cannot run without.
func (c Config) ValidateLambda() error {
	return requireSet(map[string]string{
		"STATE_TABLE":  c.StateTable,
		"PARAM_PREFIX": c.ParamPrefix,
	})
}

// ValidateLocal checks the keys the dev server cannot run without.
func (c Config) ValidateLocal() error {
	return requireSet(map[string]string{
		"VERIFY_TOKEN":      c.VerifyToken,
		"PAGE_ACCESS_TOKEN": c.PageAccessToken,
		"OPENAI_API_KEY":    c.OpenAIAPIKey,
	})
}

func requireSet(vals map[string]string) error {
	var missing []string
	for k, v := range vals {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
}

type env struct {
	lookup lookupFunc
}

func (e env) str(key, def string) string {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func (e env) integer(key string, def int) int {
	n, err := strconv.Atoi(e.str(key, ""))
	if err != nil {
		return def
	}
	return n
}

func (e env) duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(e.str(key, ""))
	if err != nil || d < 0 {
		return def
	}
	return d
}

func (e env) boolean(key string, def bool) bool {
	b, err := strconv.ParseBool(e.str(key, ""))
	if err != nil {
		return def
	}
	return b
}
