package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Port string

	// Backend picks the model provider for grading and vision OCR: "gemini" or "openai".
	Backend string

	GeminiAPIKey      string
	GeminiModel       string
	GeminiVisionModel string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	DatabaseURL      string
	TelegramBotToken string
	WebhookURL       string // empty means long polling

	LogLevel  string
	LogFormat string

	// Extraction knobs. MaxPages and DPI bound worst-case memory and latency.
	MaxPages        int
	DPI             int
	MaxPixels       int
	StudentStrategy string
	PageWorkers     int
	OCRLangs        []string
	PdftoppmPath    string

	VisionMaxSide int
	VisionQuality int
	VisionTimeout time.Duration
	VisionRPS     float64

	GradeTimeout time.Duration

	// RequestTimeout bounds one whole evaluation. Zero derives it, see RequestBudget.
	RequestTimeout time.Duration

	// Retention purges stored evaluations older than this. Zero keeps everything.
	Retention time.Duration

	MaxUploadBytes int64
	AllowedOrigins []string
}

// fileConfig mirrors Config for the optional TOML file. Durations are strings ("90s").
type fileConfig struct {
	Port              string   `toml:"port"`
	Backend           string   `toml:"backend"`
	OpenAIModel       string   `toml:"openai_model"`
	OpenAIBaseURL     string   `toml:"openai_base_url"`
	GeminiModel       string   `toml:"gemini_model"`
	GeminiVisionModel string   `toml:"gemini_vision_model"`
	DatabaseURL       string   `toml:"database_url"`
	LogLevel          string   `toml:"log_level"`
	LogFormat         string   `toml:"log_format"`
	MaxPages          int      `toml:"max_pages"`
	DPI               int      `toml:"dpi"`
	MaxPixels         int      `toml:"max_pixels"`
	StudentStrategy   string   `toml:"student_strategy"`
	PageWorkers       int      `toml:"page_workers"`
	OCRLangs          []string `toml:"ocr_langs"`
	PdftoppmPath      string   `toml:"pdftoppm"`
	VisionMaxSide     int      `toml:"vision_max_side"`
	VisionQuality     int      `toml:"vision_quality"`
	VisionTimeout     string   `toml:"vision_timeout"`
	VisionRPS         float64  `toml:"vision_rps"`
	GradeTimeout      string   `toml:"grade_timeout"`
	RequestTimeout    string   `toml:"request_timeout"`
	Retention         string   `toml:"retention"`
	MaxUploadBytes    int64    `toml:"max_upload_bytes"`
	AllowedOrigins    []string `toml:"allowed_origins"`
}

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

func Defaults() *Config {
	return &Config{
		Port:            "5000",
		Backend:         BackendGemini,
		GeminiModel:     "gemini-2.5-flash",
		OpenAIModel:     "gpt-4o-mini",
		OpenAIBaseURL:   "https://api.openai.com/v1",
		LogLevel:        "info",
		LogFormat:       "text",
		MaxPages:        10,
		DPI:             150,
		MaxPixels:       18_000_000,
		StudentStrategy: "local",
		PageWorkers:     1,
		OCRLangs:        []string{"eng"},
		PdftoppmPath:    "pdftoppm",
		VisionMaxSide:   1600,
		VisionQuality:   75,
		VisionTimeout:   60 * time.Second,
		VisionRPS:       2,
		GradeTimeout:    120 * time.Second,
		MaxUploadBytes:  16 << 20,
		AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5000"},
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getEnvFloat(k string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func getEnvDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func getEnvList(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds the config from defaults, then EXAM_CONFIG_FILE (TOML), then the environment.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("EXAM_CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setStr(&c.Port, fc.Port)
	setStr(&c.Backend, fc.Backend)
	setStr(&c.OpenAIModel, fc.OpenAIModel)
	setStr(&c.OpenAIBaseURL, fc.OpenAIBaseURL)
	setStr(&c.GeminiModel, fc.GeminiModel)
	setStr(&c.GeminiVisionModel, fc.GeminiVisionModel)
	setStr(&c.DatabaseURL, fc.DatabaseURL)
	setStr(&c.LogLevel, fc.LogLevel)
	setStr(&c.LogFormat, fc.LogFormat)
	setInt(&c.MaxPages, fc.MaxPages)
	setInt(&c.DPI, fc.DPI)
	setInt(&c.MaxPixels, fc.MaxPixels)
	setStr(&c.StudentStrategy, fc.StudentStrategy)
	setInt(&c.PageWorkers, fc.PageWorkers)
	setStr(&c.PdftoppmPath, fc.PdftoppmPath)
	setInt(&c.VisionMaxSide, fc.VisionMaxSide)
	setInt(&c.VisionQuality, fc.VisionQuality)
	if len(fc.OCRLangs) > 0 {
		c.OCRLangs = fc.OCRLangs
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.VisionRPS != 0 {
		c.VisionRPS = fc.VisionRPS
	}
	if fc.MaxUploadBytes != 0 {
		c.MaxUploadBytes = fc.MaxUploadBytes
	}
	if fc.VisionTimeout != "" {
		d, err := time.ParseDuration(fc.VisionTimeout)
		if err != nil {
			return fmt.Errorf("config file vision_timeout: %w", err)
		}
		c.VisionTimeout = d
	}
	if fc.GradeTimeout != "" {
		d, err := time.ParseDuration(fc.GradeTimeout)
		if err != nil {
			return fmt.Errorf("config file grade_timeout: %w", err)
		}
		c.GradeTimeout = d
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("config file request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	if fc.Retention != "" {
		d, err := time.ParseDuration(fc.Retention)
		if err != nil {
			return fmt.Errorf("config file retention: %w", err)
		}
		c.Retention = d
	}
	return nil
}

func (c *Config) mergeEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	c.Port = getEnv("PORT", c.Port)
	c.Backend = strings.ToLower(getEnv("EXAM_BACKEND", c.Backend))
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.GeminiVisionModel = getEnv("GEMINI_VISION_MODEL", c.GeminiVisionModel)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.StudentStrategy = getEnv("EXAM_STUDENT_STRATEGY", c.StudentStrategy)
	c.PdftoppmPath = getEnv("EXAM_PDFTOPPM", c.PdftoppmPath)
	c.OCRLangs = getEnvList("EXAM_OCR_LANGS", c.OCRLangs)
	c.AllowedOrigins = getEnvList("EXAM_ALLOWED_ORIGINS", c.AllowedOrigins)

	c.MaxPages, err = getEnvInt("EXAM_MAX_PAGES", c.MaxPages)
	collect(err)
	c.DPI, err = getEnvInt("EXAM_DPI", c.DPI)
	collect(err)
	c.MaxPixels, err = getEnvInt("EXAM_MAX_PIXELS", c.MaxPixels)
	collect(err)
	c.PageWorkers, err = getEnvInt("EXAM_PAGE_WORKERS", c.PageWorkers)
	collect(err)
	c.VisionMaxSide, err = getEnvInt("EXAM_VISION_MAX_SIDE", c.VisionMaxSide)
	collect(err)
	c.VisionQuality, err = getEnvInt("EXAM_VISION_QUALITY", c.VisionQuality)
	collect(err)
	c.VisionRPS, err = getEnvFloat("EXAM_VISION_RPS", c.VisionRPS)
	collect(err)
	c.VisionTimeout, err = getEnvDuration("EXAM_VISION_TIMEOUT", c.VisionTimeout)
	collect(err)
	c.GradeTimeout, err = getEnvDuration("EXAM_GRADE_TIMEOUT", c.GradeTimeout)
	collect(err)
	c.RequestTimeout, err = getEnvDuration("EXAM_REQUEST_TIMEOUT", c.RequestTimeout)
	collect(err)
	c.Retention, err = getEnvDuration("EXAM_RETENTION", c.Retention)
	collect(err)

	upload, err := getEnvInt("EXAM_MAX_UPLOAD_BYTES", int(c.MaxUploadBytes))
	collect(err)
	c.MaxUploadBytes = int64(upload)

	return errors.Join(errs...)
}

// Validate checks value ranges. requireModel is set by commands that call the model backend.
func (c *Config) Validate(requireModel bool) error {
	var errs []error
	switch c.Backend {
	case BackendGemini, BackendOpenAI:
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendGemini, BackendOpenAI, c.Backend))
	}
	if requireModel && c.ModelAPIKey() == "" {
		env := "GEMINI_API_KEY"
		if c.Backend == BackendOpenAI {
			env = "OPENAI_API_KEY"
		}
		errs = append(errs, errors.New("missing required env "+env))
	}
	if c.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("max pages must be >= 1, got %d", c.MaxPages))
	}
	if c.DPI < 36 || c.DPI > 600 {
		errs = append(errs, fmt.Errorf("dpi must be within [36,600], got %d", c.DPI))
	}
	if c.PageWorkers < 1 {
		errs = append(errs, fmt.Errorf("page workers must be >= 1, got %d", c.PageWorkers))
	}
	if c.VisionQuality < 1 || c.VisionQuality > 100 {
		errs = append(errs, fmt.Errorf("vision quality must be within [1,100], got %d", c.VisionQuality))
	}
	if c.VisionTimeout <= 0 || c.GradeTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout must not be negative"))
	}
	if c.Retention < 0 {
		errs = append(errs, errors.New("retention must not be negative"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	return errors.Join(errs...)
}

// VisionModel falls back to the grading model when no dedicated vision model is set.
func (c *Config) VisionModel() string {
	if c.GeminiVisionModel != "" {
		return c.GeminiVisionModel
	}
	return c.GeminiModel
}

// ModelAPIKey is the key of the selected backend.
func (c *Config) ModelAPIKey() string {
	if c.Backend == BackendOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// requestSlack covers rendering, uploads and decoding around the model calls.
const requestSlack = 30 * time.Second

// RequestBudget is the deadline for one evaluation. Unless RequestTimeout is set it leaves room
// for every capped page to hit the vision timeout, worker by worker, and then for grading, so
// slow pages end as placeholders instead of failing the request.
func (c *Config) RequestBudget() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	workers := max(c.PageWorkers, 1)
	rounds := (max(c.MaxPages, 1) + workers - 1) / workers
	return time.Duration(rounds)*c.VisionTimeout + c.GradeTimeout + requestSlack
}
