package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEQPresets are the transcoder filter chains selectable per guild.
// "off" disables filtering entirely.
var DefaultEQPresets = map[string]string{
	"off":   "",
	"music": "highpass=f=32,volume=-6dB,bass=g=4:f=95:w=1.0,alimiter=limit=0.98:attack=5:release=50",
}

// Config holds all application configuration
type Config struct {
	// Bot settings
	BotToken string
	HTTPAddr string

	// Directories
	PlaylistDir   string
	IntroSound    string
	DatabaseURL   string

	// Logging
	LogLevel  string
	LogFormat string

	// Queue policy
	PerUserCap          int
	PriorityRoleWeights map[string]int
	OwnerID             string

	// Presence
	PresenceTTL   time.Duration
	PresenceSweep time.Duration

	// Providers
	SpotifyClientID     string
	SpotifyClientSecret string

	// Transcoding / extraction
	FFmpegPath   string
	YtDlpPath    string
	RateLimitBPS int
	CookiesFile  string
	EQPresets    map[string]string

	// Engine
	CommandTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is required")
	}

	ffmpegPath := getEnvOrDefault("FFMPEG_PATH", "")
	if ffmpegPath == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH and FFMPEG_PATH not set")
		}
		ffmpegPath = p
	}

	ytDlpPath := getEnvOrDefault("YTDLP_PATH", "")
	if ytDlpPath == "" {
		p, err := exec.LookPath("yt-dlp")
		if err != nil {
			return nil, fmt.Errorf("yt-dlp not found in PATH and YTDLP_PATH not set")
		}
		ytDlpPath = p
	}

	eq := map[string]string{}
	for k, v := range DefaultEQPresets {
		eq[k] = v
	}
	for k, v := range getEnvJSONStringMap("AUDIO_EQ_PRESETS") {
		eq[k] = v
	}

	cookies := getEnvOrDefault("YTDLP_COOKIES_FILE", "")
	if cookies == "" {
		if _, err := os.Stat("youtube.com_cookies.txt"); err == nil {
			cookies = "youtube.com_cookies.txt"
		}
	}

	cfg := &Config{
		BotToken: botToken,
		HTTPAddr: getEnvOrDefault("HTTP_ADDR", ":8080"),

		PlaylistDir: getEnvOrDefault("PLAYLIST_DIR", "./data/playlists"),
		IntroSound:  getEnvOrDefault("INTRO_SOUND_PATH", "assets/sounds/intro.mp3"),
		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		PerUserCap:          getEnvInt("QUEUE_PER_USER_CAP", 10),
		PriorityRoleWeights: getEnvJSONIntMap("PRIORITY_ROLE_WEIGHTS"),
		OwnerID:             getEnvOrDefault("GREG_OWNER_ID", ""),

		SpotifyClientID:     getEnvOrDefault("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnvOrDefault("SPOTIFY_CLIENT_SECRET", ""),

		PresenceTTL:   time.Duration(getEnvInt("PRESENCE_TTL_SECONDS", 45)) * time.Second,
		PresenceSweep: time.Duration(getEnvInt("PRESENCE_SWEEP_SECONDS", 20)) * time.Second,

		FFmpegPath:   ffmpegPath,
		YtDlpPath:    ytDlpPath,
		RateLimitBPS: getEnvInt("YTDLP_LIMIT_BPS", 2_500_000),
		CookiesFile:  cookies,
		EQPresets:    eq,

		CommandTimeout: time.Duration(getEnvInt("ENGINE_COMMAND_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	// Create the snapshot directory before the engine starts
	if err := os.MkdirAll(cfg.PlaylistDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create playlist directory: %w", err)
	}

	return cfg, nil
}

// GetSafeToken returns a masked version of the token for logging
func (c *Config) GetSafeToken() string {
	if len(c.BotToken) < 15 {
		return "***"
	}
	return c.BotToken[:10] + "..." + c.BotToken[len(c.BotToken)-4:]
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvJSONIntMap(key string) map[string]int {
	out := map[string]int{}
	raw := os.Getenv(key)
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]int{}
	}
	return out
}

func getEnvJSONStringMap(key string) map[string]string {
	out := map[string]string{}
	raw := os.Getenv(key)
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]string{}
	}
	return out
}
