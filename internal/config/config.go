package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Session SessionConfig
	Keys    APIKeys
	Ai      AIConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	RedisURL           string
	JwtSecret          string
	EventTopic         string
}

type SessionConfig struct {
	Timeout            time.Duration // idle time before a session expires
	EvictionGrace      time.Duration // how long EXPIRED/CLOSED records stay in the store
	MaxChunkBytes      int           // decoded audio payload cap
	MaxSessionsPerUser int
	MaxHistoryEntries  int // conversation length at which a session closes
	AllowedLanguages   []string
	DefaultLanguage    string
}

type APIKeys struct {
	GoogleGemini string
	ElevenLabs   string
}

type AIConfig struct {
	TranscribeModel  string
	QuestionModel    string
	SynthesisModel   string
	SynthesisVoice   string
	AdapterTimeout   time.Duration
	SynthesisEnabled bool
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			EventTopic:         getEnv("SESSION_EVENT_TOPIC_NAME", "SESSION_EVENTS"),
		},
		Session: SessionConfig{
			Timeout:            time.Duration(getEnvAsInt("SESSION_TIMEOUT", 3600)) * time.Second,
			EvictionGrace:      time.Duration(getEnvAsInt("SESSION_EVICTION_GRACE", 300)) * time.Second,
			MaxChunkBytes:      getEnvAsInt("MAX_AUDIO_CHUNK_SIZE", 25*1024*1024),
			MaxSessionsPerUser: getEnvAsInt("MAX_SESSIONS_PER_USER", 5),
			MaxHistoryEntries:  getEnvAsInt("MAX_HISTORY_ENTRIES", 40),
			AllowedLanguages:   getEnvAsSlice("ALLOWED_LANGUAGES", []string{"id", "en"}),
			DefaultLanguage:    getEnv("DEFAULT_LANGUAGE", "id"),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GEMINI_API_KEY", ""),
			ElevenLabs:   getEnv("ELEVEN_LABS_API_KEY", ""),
		},
		Ai: AIConfig{
			TranscribeModel:  getEnv("TRANSCRIBE_MODEL", "gemini-2.0-flash-lite"),
			QuestionModel:    getEnv("QUESTION_MODEL", "gemini-2.0-flash"),
			SynthesisModel:   getEnv("SYNTHESIS_MODEL", "eleven_flash_v2_5"),
			SynthesisVoice:   getEnv("SYNTHESIS_VOICE_ID", "v70fYBHUOrHA3AKIBjPq"),
			AdapterTimeout:   time.Duration(getEnvAsInt("ADAPTER_TIMEOUT", 30)) * time.Second,
			SynthesisEnabled: getEnvAsBool("SYNTHESIS_ENABLED", true),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsSlice(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	parts := strings.Split(strValue, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
