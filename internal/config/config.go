package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

type Config struct {
	// Editorial policy
	TargetLanguage      string
	ManualGate          bool
	MaxPerDay           int
	FeedCap             int
	MinArticleChars     int
	MinSummaryChars     int
	SummaryMaxRunes     int
	FallbackBudget      int
	TranslatePrefix     int
	DedupStrategy       string // bucket | similarity | both
	SimilarityThreshold float64
	DedupWindowHours    int
	PolicyFile          string
	Policy              *Policy

	// Feed store
	FeedPath    string
	LockBackend string // file | redis
	RedisURL    string
	LockTTL     time.Duration

	// Candidate source and status sink
	CandidateSource       string // sheets | rss | file
	StatusSink            string // sheets | sql | log
	SheetID               string
	SheetTab              string
	GoogleCredentialsFile string
	CandidatesFile        string
	FeedsConfigPath       string
	DatabaseDriver        string // postgres | sqlite
	DatabaseURL           string

	// Archive
	ArchiveBackend string // github | s3 | dir
	GitHubToken    string
	GitHubRepo     string // owner/name
	GitHubBranch   string
	GitHubDir      string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3Prefix       string
	ArchiveDir     string

	// Summarization
	GeminiAPIKey      string
	GeminiModel       string
	MaxGeminiRequests int // per run, 0 = unlimited
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	MaxOpenAIRequests int
	GoogleTranslate   bool
	CacheTTLHours     int

	// Notifications
	TelegramToken  string
	TelegramChatID string
	KafkaBrokers   []string
	KafkaTopic     string

	// App settings
	Debug          bool
	HTTPAddr       string
	Schedule       string // cron expression, empty = one shot
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		TargetLanguage:      getEnvOrDefault("TARGET_LANG", "cs"),
		ManualGate:          getEnvBool("MANUAL_GATE", false),
		MaxPerDay:           getEnvIntOrDefault("MAX_POSTS_PER_DAY", 3),
		FeedCap:             getEnvIntOrDefault("FEED_CAP", 300),
		MinArticleChars:     getEnvIntOrDefault("MIN_ARTICLE_CHARS", 900),
		MinSummaryChars:     getEnvIntOrDefault("MIN_SUMMARY_CHARS", 120),
		SummaryMaxRunes:     getEnvIntOrDefault("SUMMARY_MAX_RUNES", 800),
		FallbackBudget:      getEnvIntOrDefault("FALLBACK_BUDGET", 700),
		TranslatePrefix:     getEnvIntOrDefault("TRANSLATE_PREFIX", 1500),
		DedupStrategy:       getEnvOrDefault("DEDUP_STRATEGY", "both"),
		SimilarityThreshold: getEnvFloatOrDefault("DEDUP_THRESHOLD", 0.5),
		DedupWindowHours:    getEnvIntOrDefault("DEDUP_WINDOW_HOURS", 0),
		PolicyFile:          getEnvOrDefault("POLICY_FILE", "configs/policy.yaml"),

		FeedPath:    getEnvOrDefault("FEED_PATH", "public/posts.json"),
		LockBackend: getEnvOrDefault("LOCK_BACKEND", "file"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LockTTL:     time.Duration(getEnvIntOrDefault("LOCK_TTL_SECONDS", 120)) * time.Second,

		CandidateSource:       getEnvOrDefault("CANDIDATE_SOURCE", "sheets"),
		StatusSink:            getEnvOrDefault("STATUS_SINK", "sheets"),
		SheetID:               os.Getenv("SHEET_ID"),
		SheetTab:              getEnvOrDefault("SHEET_TAB", "Articles"),
		GoogleCredentialsFile: getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", "credentials.json"),
		CandidatesFile:        getEnvOrDefault("CANDIDATES_FILE", "candidates.json"),
		FeedsConfigPath:       getEnvOrDefault("FEEDS_CONFIG_PATH", "configs/feeds.yaml"),
		DatabaseDriver:        getEnvOrDefault("DATABASE_DRIVER", "postgres"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),

		ArchiveBackend: getEnvOrDefault("ARCHIVE_BACKEND", "github"),
		GitHubToken:    os.Getenv("GITHUB_TOKEN"),
		GitHubRepo:     os.Getenv("GITHUB_REPO"),
		GitHubBranch:   getEnvOrDefault("GITHUB_BRANCH", "main"),
		GitHubDir:      getEnvOrDefault("GITHUB_DIR", "articles"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Region:       getEnvOrDefault("AWS_REGION", "eu-central-1"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3Prefix:       getEnvOrDefault("S3_PREFIX", "articles"),
		ArchiveDir:     getEnvOrDefault("ARCHIVE_DIR", "articles"),

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		MaxGeminiRequests: getEnvIntOrDefault("MAX_GEMINI_REQUESTS", 20),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getEnvOrDefault("OPENAI_BASE_URL", "https://api.perplexity.ai"),
		OpenAIModel:       getEnvOrDefault("OPENAI_MODEL", "sonar"),
		MaxOpenAIRequests: getEnvIntOrDefault("MAX_OPENAI_REQUESTS", 20),
		GoogleTranslate:   getEnvBool("GOOGLE_TRANSLATE", true),
		CacheTTLHours:     getEnvIntOrDefault("CACHE_TTL_HOURS", 48),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),
		KafkaTopic:     getEnvOrDefault("KAFKA_TOPIC", "briefs.published"),

		Debug:          os.Getenv("DEBUG") == "true",
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		Schedule:       os.Getenv("SCHEDULE"),
		RequestTimeout: time.Duration(getEnvIntOrDefault("REQUEST_TIMEOUT_SECONDS", 20)) * time.Second,
		RetryAttempts:  getEnvIntOrDefault("RETRY_ATTEMPTS", 6),
		RetryDelay:     time.Duration(getEnvIntOrDefault("RETRY_DELAY_MS", 1000)) * time.Millisecond,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	policy, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

var supportedLanguages = map[string]bool{"cs": true, "sk": true, "da": true, "uk": true, "en": true}

func (c *Config) Validate() error {
	tag, err := language.Parse(c.TargetLanguage)
	if err != nil {
		return fmt.Errorf("TARGET_LANG %q: %w", c.TargetLanguage, err)
	}
	base, _ := tag.Base()
	if !supportedLanguages[base.String()] {
		return fmt.Errorf("TARGET_LANG %q is not supported", c.TargetLanguage)
	}
	c.TargetLanguage = base.String()

	if c.MaxPerDay < 1 {
		return fmt.Errorf("MAX_POSTS_PER_DAY must be positive")
	}
	if c.FeedCap < c.MaxPerDay {
		return fmt.Errorf("FEED_CAP (%d) must be at least MAX_POSTS_PER_DAY (%d)", c.FeedCap, c.MaxPerDay)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("DEDUP_THRESHOLD must be in (0, 1]")
	}
	switch c.DedupStrategy {
	case "bucket", "similarity", "both":
	default:
		return fmt.Errorf("DEDUP_STRATEGY must be 'bucket', 'similarity' or 'both'")
	}

	switch c.CandidateSource {
	case "sheets":
		if c.SheetID == "" {
			return fmt.Errorf("SHEET_ID is required for the sheets source")
		}
	case "rss", "file":
	default:
		return fmt.Errorf("CANDIDATE_SOURCE must be 'sheets', 'rss' or 'file'")
	}

	switch c.StatusSink {
	case "sheets":
		if c.SheetID == "" {
			return fmt.Errorf("SHEET_ID is required for the sheets status sink")
		}
	case "sql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the sql status sink")
		}
		if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
			return fmt.Errorf("DATABASE_DRIVER must be 'postgres' or 'sqlite'")
		}
	case "log":
	default:
		return fmt.Errorf("STATUS_SINK must be 'sheets', 'sql' or 'log'")
	}

	switch c.ArchiveBackend {
	case "github":
		if c.GitHubToken == "" || c.GitHubRepo == "" {
			return fmt.Errorf("GITHUB_TOKEN and GITHUB_REPO are required for the github archive")
		}
		if !strings.Contains(c.GitHubRepo, "/") {
			return fmt.Errorf("GITHUB_REPO must look like owner/name")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 archive")
		}
	case "dir":
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be 'github', 's3' or 'dir'")
	}

	if c.LockBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis lock")
	}
	if c.LockBackend != "redis" && c.LockBackend != "file" {
		return fmt.Errorf("LOCK_BACKEND must be 'file' or 'redis'")
	}
	return nil
}
