package verify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/openai/openai-go/v3"
)

const (
	DefaultBaseURL        = "http://localhost:3000"
	DefaultEmail          = "admin@example.com"
	DefaultPassword       = "password"
	DefaultTabName        = "LLM Keys"
	DefaultScreenshotPath = "jules-scratch/verification/verification.png"
)

type Credentials struct {
	Email    string `envconfig:"VERIFY_EMAIL"`
	Password string `envconfig:"VERIFY_PASSWORD"`
}

// Config drives one Verifier run. LoadConfig fills the tagged fields from the
// environment; Logger, Acquire and OpenAI are injected by callers and tests.
type Config struct {
	Credentials

	BaseURL               string        `envconfig:"VERIFY_BASE_URL"`
	TabName               string        `envconfig:"VERIFY_TAB_NAME"`
	ScreenshotPath        string        `envconfig:"VERIFY_SCREENSHOT"`
	Annotate              bool          `envconfig:"VERIFY_ANNOTATE"`
	FailureScreenshotPath string        `envconfig:"VERIFY_FAILURE_SCREENSHOT"`
	ExpectTimeout         time.Duration `envconfig:"VERIFY_EXPECT_TIMEOUT"`
	NavigationTimeout     time.Duration `envconfig:"VERIFY_NAVIGATION_TIMEOUT"`
	RunTimeout            time.Duration `envconfig:"VERIFY_RUN_TIMEOUT"`
	CDPURL                string        `envconfig:"CDP_URL"`
	ChromePath            string        `envconfig:"CHROME_PATH"`
	Headless              bool          `envconfig:"VERIFY_HEADLESS"`
	VisionModel           string        `envconfig:"VERIFY_VISION_MODEL"`
	OpenAIAPIKey          string        `envconfig:"OPENAI_API_KEY"`
	LogLevel              slog.Level    `envconfig:"VERIFY_LOG_LEVEL"`

	Logger  *slog.Logger   `ignored:"true"`
	Acquire AcquireFunc    `ignored:"true"`
	OpenAI  *openai.Client `ignored:"true"`
}

// DefaultConfig holds the values LoadConfig keeps for unset variables.
func DefaultConfig() Config {
	return Config{
		Credentials:       Credentials{Email: DefaultEmail, Password: DefaultPassword},
		BaseURL:           DefaultBaseURL,
		TabName:           DefaultTabName,
		ScreenshotPath:    DefaultScreenshotPath,
		ExpectTimeout:     5 * time.Second,
		NavigationTimeout: 30 * time.Second,
		RunTimeout:        2 * time.Minute,
		Headless:          true,
		LogLevel:          slog.LevelInfo,
	}
}

// LoadConfig reads a .env file when present, then the environment. Unset
// variables keep their defaults.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	for name, d := range map[string]time.Duration{
		"VERIFY_EXPECT_TIMEOUT":     cfg.ExpectTimeout,
		"VERIFY_NAVIGATION_TIMEOUT": cfg.NavigationTimeout,
		"VERIFY_RUN_TIMEOUT":        cfg.RunTimeout,
	} {
		if d <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func (c Config) AdminURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/admin"
}

func (c Config) DashboardURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/dashboard"
}
