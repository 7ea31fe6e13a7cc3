// Package rcconfig loads the per-account configuration that drives every
// other component: credentials, DM/group policy, chunking, and media
// limits. It follows the same env-first/file-overlay precedence the
// teacher's own internal/config package uses, swapping the single global
// AppConfig for a list of Account values (§9: no module-level globals).
package rcconfig

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// GroupPolicy mirrors spec.md §3/§6.
type GroupPolicy string

const (
	GroupPolicyDisabled  GroupPolicy = "disabled"
	GroupPolicyAllowlist GroupPolicy = "allowlist"
	GroupPolicyOpen      GroupPolicy = "open"
)

// DMPolicy mirrors spec.md §3/§6.
type DMPolicy string

const (
	DMPolicyDisabled  DMPolicy = "disabled"
	DMPolicyAllowlist DMPolicy = "allowlist"
	DMPolicyOpen      DMPolicy = "open"
	DMPolicyPairing   DMPolicy = "pairing"
)

// ChunkMode mirrors spec.md §3.
type ChunkMode string

const (
	ChunkModeLength  ChunkMode = "length"
	ChunkModeNewline ChunkMode = "newline"
)

// GroupOverride is a single entry of the `groups{}` map: keyed by id, name,
// or the wildcard "*".
type GroupOverride struct {
	Enabled         *bool    `yaml:"enabled"`
	Allow           *bool    `yaml:"allow"`
	RequireMention  *bool    `yaml:"requireMention"`
	Users           []string `yaml:"users"`
	SystemPrompt    string   `yaml:"systemPrompt"`
}

// Credentials holds the raw identity used to obtain a bearer session (C2).
type Credentials struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	JWT          string `yaml:"jwt"`
	Server       string `yaml:"server"`
}

// applyEnvFallback fills blank fields from the RINGCENTRAL_* environment
// variables (§6), evaluated once at load time.
func (c *Credentials) applyEnvFallback() {
	if c.ClientID == "" {
		c.ClientID = os.Getenv("RINGCENTRAL_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		c.ClientSecret = os.Getenv("RINGCENTRAL_CLIENT_SECRET")
	}
	if c.JWT == "" {
		c.JWT = os.Getenv("RINGCENTRAL_JWT")
	}
	if c.Server == "" {
		c.Server = os.Getenv("RINGCENTRAL_SERVER")
	}
	if c.Server == "" {
		c.Server = "https://platform.ringcentral.com"
	}
}

// AccountConfig is the full per-account configuration record (§3 Account).
type AccountConfig struct {
	AccountID       string                   `yaml:"accountId"`
	Enabled         bool                     `yaml:"enabled"`
	Name            string                   `yaml:"name"`
	Credentials     Credentials              `yaml:"credentials"`
	DMPolicy        DMPolicy                 `yaml:"-"`
	DMAllowFrom     []string                 `yaml:"-"`
	GroupPolicy     GroupPolicy              `yaml:"groupPolicy"`
	GroupAllowFrom  []string                 `yaml:"groupAllowFrom"`
	Groups          map[string]GroupOverride `yaml:"groups"`
	RequireMention  bool                     `yaml:"requireMention"`
	MediaMaxMb      int                      `yaml:"mediaMaxMb"`
	TextChunkLimit  int                      `yaml:"textChunkLimit"`
	ChunkMode       ChunkMode                `yaml:"chunkMode"`
	SelfOnly        bool                     `yaml:"selfOnly"`
	BotExtensionID  string                   `yaml:"botExtensionId"`
	Workspace       string                   `yaml:"workspace"`

	// raw form, decoded manually to support both the flat legacy fields
	// (dmPolicy/allowFrom) and the preferred nested `dm{policy,allowFrom}`
	// form (§6).
	RawDMPolicy    DMPolicy `yaml:"dmPolicy"`
	RawAllowFrom   []string `yaml:"allowFrom"`
	RawDM          *struct {
		Policy     DMPolicy `yaml:"policy"`
		AllowFrom  []string `yaml:"allowFrom"`
	} `yaml:"dm"`
}

// normalizeDefaults applies §6's documented defaults and resolves the
// dmPolicy precedence (nested `dm{}` form wins over the flat legacy form).
func (a *AccountConfig) normalizeDefaults() {
	a.Credentials.applyEnvFallback()

	if a.RawDM != nil && (a.RawDM.Policy != "" || len(a.RawDM.AllowFrom) > 0) {
		a.DMPolicy = a.RawDM.Policy
		a.DMAllowFrom = a.RawDM.AllowFrom
	} else {
		a.DMPolicy = a.RawDMPolicy
		a.DMAllowFrom = a.RawAllowFrom
	}
	if a.DMPolicy == "" {
		a.DMPolicy = DMPolicyPairing
	}
	if a.GroupPolicy == "" {
		a.GroupPolicy = GroupPolicyAllowlist
	}
	if a.MediaMaxMb <= 0 {
		a.MediaMaxMb = 20
	}
	if a.TextChunkLimit <= 0 {
		a.TextChunkLimit = 4000
	}
	if a.ChunkMode == "" {
		a.ChunkMode = ChunkModeLength
	}
	if a.Workspace == "" {
		a.Workspace = "."
	}
}

// Key returns the identity the Subscription Manager singleton is keyed by
// (§4.3): (clientId, server, jwtPrefix).
func (a *AccountConfig) Key() string {
	prefix := a.Credentials.JWT
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return strings.Join([]string{a.Credentials.ClientID, a.Credentials.Server, prefix}, "|")
}

// BotDisplayName resolves the name used in the "is thinking..." placeholder
// and loop-guard detection context (§4.4): account.config.name, else the
// literal fallback.
func (a *AccountConfig) BotDisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return "OpenClaw"
}

// File is the top-level accounts document.
type File struct {
	LogLevel    string          `yaml:"logLevel"`
	LogFormat   string          `yaml:"logFormat"`
	MetricsAddr string          `yaml:"metricsAddr"`
	Accounts    []AccountConfig `yaml:"accounts"`
}

// Load reads a YAML accounts file from path, overlaying a .env file first
// (mirrors internal/config.LoadConfig's godotenv.Load + yaml.Decode order).
func Load(path string) (*File, error) {
	if err := godotenv.Load(".env"); err != nil {
		// No .env file is not an error; environment variables still apply.
		_ = err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file %q: %w", path, err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses an accounts document from r and fills in documented
// defaults for every account.
func Decode(r io.Reader) (*File, error) {
	var doc File
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode accounts file: %w", err)
	}

	if doc.LogLevel == "" {
		doc.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	}
	if doc.LogFormat == "" {
		doc.LogFormat = getEnvOrDefault("LOG_FORMAT", "text")
	}
	if doc.MetricsAddr == "" {
		doc.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")
	}

	for i := range doc.Accounts {
		doc.Accounts[i].normalizeDefaults()
	}

	return &doc, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
