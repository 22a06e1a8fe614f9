// Owner: august@eternis.ai
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

type Config struct {
	CompletionsAPIURL     string
	CompletionsAPIKey     string
	CompletionsModel      string
	ServerPort            string
	GoogleCredentialsPath string
	GoogleTokenPath       string
	MboxPath              string
	FetchQuery            string
	MaxEmailsForAnalysis  int
	ScoreBatchSize        int
	ScoreWorkers          int
	PipelineTimeout       time.Duration
	NatsURL               string
}

func getEnv(key, defaultValue string, printEnv bool) string {
	logger := log.Default()
	value := os.Getenv(key)
	if printEnv {
		logger.Info("Env", "key", key, "value", value)
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int, printEnv bool) int {
	raw := getEnv(key, "", printEnv)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Default().Warn("Ignoring non-integer env value", "key", key, "value", raw)
		return defaultValue
	}
	return value
}

func LoadConfig(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{
		CompletionsAPIURL:     getEnv("COMPLETIONS_API_URL", "https://api.openai.com/v1", printEnv),
		CompletionsAPIKey:     getEnv("COMPLETIONS_API_KEY", "", printEnv),
		CompletionsModel:      getEnv("COMPLETIONS_MODEL", "gpt-4.1-mini", printEnv),
		ServerPort:            getEnv("SERVER_PORT", "44888", printEnv),
		GoogleCredentialsPath: getEnv("GOOGLE_CREDENTIALS_PATH", "credentials.json", printEnv),
		GoogleTokenPath:       getEnv("GOOGLE_TOKEN_PATH", "token.json", printEnv),
		MboxPath:              getEnv("MBOX_PATH", "", printEnv),
		FetchQuery:            getEnv("FETCH_QUERY", "in:inbox", printEnv),
		MaxEmailsForAnalysis:  getEnvInt("MAX_EMAILS_FOR_ANALYSIS", 200, printEnv),
		ScoreBatchSize:        getEnvInt("SCORE_BATCH_SIZE", 10, printEnv),
		ScoreWorkers:          getEnvInt("SCORE_WORKERS", 4, printEnv),
		NatsURL:               getEnv("NATS_URL", "nats://127.0.0.1:4222", printEnv),
	}

	conf.PipelineTimeout = time.Duration(getEnvInt("PIPELINE_TIMEOUT_SECONDS", 120, printEnv)) * time.Second

	return conf, nil
}
