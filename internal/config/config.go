package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pacificaqd/airquality-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Pipeline scope.
	DataDir      string
	Pollutants   []string
	Years        []int
	TableVersion domain.Version
	Workers      int

	// AQS ingestion (primary feed).
	IngestEnabled bool
	AQSBaseURL    string
	AQSEmail      string
	AQSKey        string
	StateFIPS     []string
	StartDate     string // YYYY-MM-DD
	EndDate       string // YYYY-MM-DD
	RequestDelay  time.Duration
	FetchTimeout  time.Duration

	// Envista ingestion (secondary feed).
	EnvistaEnabled   bool
	EnvistaBaseURL   string
	EnvistaAPIKey    string
	EnvistaUsername  string
	EnvistaPassword  string
	EnvistaCacheSize int

	// Optional Kafka publication of daily AQI records.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	requestDelay, err := parseDurationEnv("REQUEST_DELAY", "800ms")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDurationEnv("FETCH_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	years, err := parseYears(envOrDefault("YEARS", strconv.Itoa(time.Now().Year())))
	if err != nil {
		return nil, err
	}

	workers, err := parseWorkers()
	if err != nil {
		return nil, err
	}

	tableVersion := domain.Version(envOrDefault("TABLE_VERSION", string(domain.VersionAuto)))
	switch tableVersion {
	case domain.VersionLegacy, domain.VersionCurrent, domain.VersionAuto:
	default:
		return nil, fmt.Errorf("invalid TABLE_VERSION %q: want legacy, current, or auto", tableVersion)
	}

	envistaKey := os.Getenv("ENVISTA_API_KEY")
	envistaUser := os.Getenv("ENVISTA_USERNAME")
	envistaEnabled := envistaKey != "" || envistaUser != ""
	if v := os.Getenv("ENVISTA_ENABLED"); v != "" {
		envistaEnabled = v == "true"
	}

	kafkaTopic := os.Getenv("KAFKA_SINK_TOPIC")
	kafkaEnabled := kafkaTopic != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataDir:      envOrDefault("DATA_DIR", "data"),
		Pollutants:   parseList(envOrDefault("POLLUTANTS", "88101")),
		Years:        years,
		TableVersion: tableVersion,
		Workers:      workers,

		IngestEnabled: os.Getenv("INGEST_ENABLED") == "true",
		AQSBaseURL:    envOrDefault("AQS_BASE_URL", "https://aqs.epa.gov/data/api"),
		AQSEmail:      os.Getenv("AQS_API_EMAIL"),
		AQSKey:        os.Getenv("AQS_API_KEY"),
		StateFIPS:     parseList(os.Getenv("STATE_FIPS")),
		StartDate:     os.Getenv("START_DATE"),
		EndDate:       os.Getenv("END_DATE"),
		RequestDelay:  requestDelay,
		FetchTimeout:  fetchTimeout,

		EnvistaEnabled:   envistaEnabled,
		EnvistaBaseURL:   envOrDefault("ENVISTA_BASE_URL", "https://api.envista.com"),
		EnvistaAPIKey:    envistaKey,
		EnvistaUsername:  envistaUser,
		EnvistaPassword:  os.Getenv("ENVISTA_PASSWORD"),
		EnvistaCacheSize: parseEnvistaCacheSize(),

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   parseList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: kafkaTopic,
	}

	if len(cfg.Pollutants) == 0 {
		return nil, errors.New("POLLUTANTS is required")
	}
	if len(cfg.Years) == 0 {
		return nil, errors.New("YEARS is required")
	}
	if cfg.IngestEnabled {
		if cfg.AQSEmail == "" || cfg.AQSKey == "" {
			return nil, errors.New("INGEST_ENABLED is true but AQS_API_EMAIL and AQS_API_KEY are not set")
		}
		if len(cfg.StateFIPS) == 0 {
			return nil, errors.New("INGEST_ENABLED is true but STATE_FIPS is not set")
		}
		if err := validateDateRange(cfg.StartDate, cfg.EndDate); err != nil {
			return nil, err
		}
	}
	if cfg.EnvistaEnabled && cfg.EnvistaUsername != "" && cfg.EnvistaPassword == "" && cfg.EnvistaAPIKey == "" {
		return nil, errors.New("ENVISTA_USERNAME is set but ENVISTA_PASSWORD is not")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_SINK_TOPIC is not set")
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

func parseYears(value string) ([]int, error) {
	parts := parseList(value)
	years := make([]int, 0, len(parts))
	for _, p := range parts {
		y, err := strconv.Atoi(p)
		if err != nil || y < 1980 || y > 2100 {
			return nil, fmt.Errorf("invalid YEARS entry %q", p)
		}
		years = append(years, y)
	}
	return years, nil
}

func parseWorkers() (int, error) {
	raw := envOrDefault("WORKERS", "4")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 64 {
		return 0, fmt.Errorf("invalid WORKERS %q: want 1-64", raw)
	}
	return n, nil
}

func parseEnvistaCacheSize() int {
	if s := os.Getenv("ENVISTA_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func validateDateRange(start, end string) error {
	if start == "" || end == "" {
		return errors.New("INGEST_ENABLED is true but START_DATE and END_DATE are not set")
	}
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return fmt.Errorf("invalid START_DATE %q", start)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return fmt.Errorf("invalid END_DATE %q", end)
	}
	if e.Before(s) {
		return fmt.Errorf("END_DATE %s precedes START_DATE %s", end, start)
	}
	return nil
}
