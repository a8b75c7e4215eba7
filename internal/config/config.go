package config

import (
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	DefaultTicketKeyPattern   = `[A-Z]{2,10}-\d+`
	DefaultMaxTicketsPerChunk = 5
	DefaultReportPath         = "jira_report.html"
	DefaultReportTitle        = "Jira Bug Analysis Report"
)

const (
	FormatHTML = "html"
	FormatJSON = "json"
)

type Config struct {
	LLMProvider    string `yaml:"llm_provider"`
	LLMModel       string `yaml:"llm_model"`
	LLMMaxTokens   int    `yaml:"llm_max_tokens"`
	LLMConcurrency int    `yaml:"llm_concurrency"`
	LLMGuidePath   string `yaml:"llm_guidance_path"`

	GeminiAPIKey    string `yaml:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`

	ResponseFormat     string `yaml:"response_format"`
	MaxTicketsPerChunk int    `yaml:"max_tickets_per_chunk"`
	TicketKeyPattern   string `yaml:"ticket_key_pattern"`
	LineStartOnly      bool   `yaml:"line_start_only"`
	CategoryRulesPath  string `yaml:"category_rules_path"`

	PDFExtractor  string `yaml:"pdf_extractor"`
	PdfToTextPath string `yaml:"pdftotext_path"`

	ReportPath  string `yaml:"report_path"`
	ReportTitle string `yaml:"report_title"`
	JSONLPath   string `yaml:"jsonl_path"`

	JiraBaseURL    string `yaml:"jira_base_url"`
	JiraUsername   string `yaml:"jira_username"`
	JiraAPIToken   string `yaml:"jira_api_token"`
	JiraJQL        string `yaml:"jira_jql"`
	JiraMaxResults int    `yaml:"jira_max_results"`
	JiraMaxIssues  int    `yaml:"jira_max_issues"`

	DBPath                     string `yaml:"db_path"`
	SlackBotToken              string `yaml:"slack_bot_token"`
	ReportChannelID            string `yaml:"report_channel_id"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads the YAML file at path (CONFIG_PATH or config.yaml when empty),
// applies .env and environment overrides, fills defaults and validates.
// A missing config file is not an error.
func Load(path string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, eris.Wrap(err, "config: load .env")
	}

	configPath := path
	if configPath == "" {
		configPath = "config.yaml"
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		}
	}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, eris.Wrapf(err, "config: parse %s", configPath)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, eris.Wrapf(err, "config: read %s", configPath)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMGuidePath, "LLM_GUIDANCE_PATH")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.ResponseFormat, "RESPONSE_FORMAT")
	envOverride(&cfg.TicketKeyPattern, "TICKET_KEY_PATTERN")
	envOverride(&cfg.CategoryRulesPath, "CATEGORY_RULES_PATH")
	envOverride(&cfg.PDFExtractor, "PDF_EXTRACTOR")
	envOverride(&cfg.PdfToTextPath, "PDFTOTEXT_PATH")
	envOverride(&cfg.ReportPath, "REPORT_PATH")
	envOverride(&cfg.ReportTitle, "REPORT_TITLE")
	envOverrideAllowEmpty(&cfg.JSONLPath, "JSONL_PATH")
	envOverride(&cfg.JiraBaseURL, "JIRA_BASE_URL")
	envOverride(&cfg.JiraUsername, "JIRA_USERNAME")
	envOverride(&cfg.JiraAPIToken, "JIRA_API_TOKEN")
	envOverride(&cfg.JiraJQL, "JIRA_JQL")
	envOverrideAllowEmpty(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")
	envOverrideBool(&cfg.LineStartOnly, "LINE_START_ONLY")

	ints := []struct {
		field *int
		key   string
	}{
		{&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"},
		{&cfg.LLMConcurrency, "LLM_CONCURRENCY"},
		{&cfg.MaxTicketsPerChunk, "MAX_TICKETS_PER_CHUNK"},
		{&cfg.JiraMaxResults, "JIRA_MAX_RESULTS"},
		{&cfg.JiraMaxIssues, "JIRA_MAX_ISSUES"},
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
	}
	for _, in := range ints {
		if err := envOverrideInt(in.field, in.key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.LLMProvider == "" {
		c.LLMProvider = "gemini"
	}
	if c.LLMMaxTokens == 0 {
		c.LLMMaxTokens = 8192
	}
	if c.LLMConcurrency == 0 {
		c.LLMConcurrency = 1
	}
	if c.ResponseFormat == "" {
		c.ResponseFormat = FormatHTML
	}
	if c.MaxTicketsPerChunk == 0 {
		c.MaxTicketsPerChunk = DefaultMaxTicketsPerChunk
	}
	if c.TicketKeyPattern == "" {
		c.TicketKeyPattern = DefaultTicketKeyPattern
	}
	if c.PDFExtractor == "" {
		c.PDFExtractor = "pdftotext"
	}
	if c.PdfToTextPath == "" {
		c.PdfToTextPath = "pdftotext"
	}
	if c.ReportPath == "" {
		c.ReportPath = DefaultReportPath
	}
	if c.ReportTitle == "" {
		c.ReportTitle = DefaultReportTitle
	}
	if c.JiraMaxResults == 0 {
		c.JiraMaxResults = 50
	}
	if c.JiraMaxIssues == 0 {
		c.JiraMaxIssues = 500
	}
	if c.ExternalHTTPTimeoutSeconds == 0 {
		c.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	c.JiraBaseURL = strings.TrimRight(strings.TrimSpace(c.JiraBaseURL), "/")
}

// Validate checks value ranges. API keys are checked when a provider is built
// so that commands which never call the model work without one.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "gemini", "anthropic", "openai":
	default:
		return eris.Errorf("config: llm_provider must be 'gemini', 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}
	switch c.ResponseFormat {
	case FormatHTML, FormatJSON:
	default:
		return eris.Errorf("config: response_format must be 'html' or 'json', got '%s'", c.ResponseFormat)
	}
	switch c.PDFExtractor {
	case "pdftotext", "native":
	default:
		return eris.Errorf("config: pdf_extractor must be 'pdftotext' or 'native', got '%s'", c.PDFExtractor)
	}
	if c.MaxTicketsPerChunk < 1 {
		return eris.Errorf("config: invalid max_tickets_per_chunk '%d': must be >= 1", c.MaxTicketsPerChunk)
	}
	if c.LLMConcurrency < 1 {
		return eris.Errorf("config: invalid llm_concurrency '%d': must be >= 1", c.LLMConcurrency)
	}
	if c.LLMMaxTokens < 256 {
		return eris.Errorf("config: invalid llm_max_tokens '%d': must be >= 256", c.LLMMaxTokens)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return eris.Errorf("config: invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.JiraMaxResults < 1 || c.JiraMaxIssues < 1 {
		return eris.New("config: jira_max_results and jira_max_issues must be >= 1")
	}
	if _, err := regexp.Compile(c.TicketKeyPattern); err != nil {
		return eris.Wrapf(err, "config: invalid ticket_key_pattern '%s'", c.TicketKeyPattern)
	}
	return nil
}

// JiraConfigured reports whether tickets can be pulled straight from Jira.
func (c Config) JiraConfigured() bool {
	return c.JiraBaseURL != "" && c.JiraUsername != "" && c.JiraAPIToken != ""
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.ReportChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return eris.Wrapf(err, "config: invalid %s '%s'", envKey, val)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}
