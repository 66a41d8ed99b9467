package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	WS     WSConfig     `mapstructure:"ws"`
	Signal SignalConfig `mapstructure:"signal"`
	STT    STTConfig    `mapstructure:"stt"`
	Engine EngineConfig `mapstructure:"engine"`
	Auth   AuthConfig   `mapstructure:"auth"`
	ICE    ICEConfig    `mapstructure:"ice"`
}

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type SignalConfig struct {
	Keepalive  time.Duration `mapstructure:"keepalive"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	// tolerant keeps slow members and drops their frames instead of evicting.
	Tolerant bool `mapstructure:"tolerant"`
}

type STTConfig struct {
	SampleRate        int           `mapstructure:"sample_rate"`
	Window            time.Duration `mapstructure:"window"`
	Overlap           time.Duration `mapstructure:"overlap"`
	MaxBuffer         time.Duration `mapstructure:"max_buffer"`
	FlushAfter        time.Duration `mapstructure:"flush_after"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	QueueSize         int           `mapstructure:"queue_size"`
	Language          string        `mapstructure:"language"`
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout"`
	FlushOnClose      bool          `mapstructure:"flush_on_close"`
	Warmup            bool          `mapstructure:"warmup"`
}

type EngineConfig struct {
	Kind      string        `mapstructure:"kind"`
	URL       string        `mapstructure:"url"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ProbePath string        `mapstructure:"probe_path"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type ICEConfig struct {
	STUN           []string `mapstructure:"stun"`
	TURN           []string `mapstructure:"turn"`
	TURNUsername   string   `mapstructure:"turn_username"`
	TURNCredential string   `mapstructure:"turn_credential"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("ws.read_limit", 1<<20)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "5s")
	v.SetDefault("ws.send_buffer", 32)

	v.SetDefault("signal.keepalive", "20s")
	v.SetDefault("signal.rate_limit", 50)
	v.SetDefault("signal.rate_window", "1s")
	v.SetDefault("signal.tolerant", false)

	v.SetDefault("stt.sample_rate", 16000)
	v.SetDefault("stt.window", "500ms")
	v.SetDefault("stt.overlap", "100ms")
	v.SetDefault("stt.max_buffer", "3s")
	v.SetDefault("stt.flush_after", "750ms")
	v.SetDefault("stt.poll_timeout", "1s")
	v.SetDefault("stt.queue_size", 300)
	v.SetDefault("stt.language", "en")
	v.SetDefault("stt.transcribe_timeout", "30s")
	v.SetDefault("stt.flush_on_close", false)
	v.SetDefault("stt.warmup", false)

	v.SetDefault("engine.kind", "none")
	v.SetDefault("engine.url", "http://localhost:8000")
	v.SetDefault("engine.model", "base")
	v.SetDefault("engine.api_key", "")
	v.SetDefault("engine.timeout", "30s")
	v.SetDefault("engine.probe_path", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("ice.stun", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice.turn", []string{})
	v.SetDefault("ice.turn_username", "")
	v.SetDefault("ice.turn_credential", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml (or CONFIG_FILE) over the
// defaults. VOICE_* environment variables override both, e.g.
// VOICE_STT_LANGUAGE for stt.language.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := os.Getenv("CONFIG_FILE")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Str("engine", cfg.Engine.Kind).Msg("config ready")
	return &cfg, nil
}
