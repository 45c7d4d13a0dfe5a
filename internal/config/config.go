package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server struct {
		Port     string
		LogLevel string
		GRPCAddr string
		// SessionID pins the SId sent to the script backend. Empty means a
		// fresh id per process.
		SessionID string
	}
	Dialogue struct {
		TickInterval   time.Duration
		NoInputTimeout time.Duration
		NoMatchTimeout time.Duration
		HeardStability time.Duration
		MaxHearing     time.Duration
		ListenSettle   time.Duration
	}
	Script struct {
		URL            string
		Version        string
		DialogueID     string
		DialogueIDFile string
		TKMLFile       string
		GrammarFile    string
		Timeout        time.Duration
	}
	Worker struct {
		TokenSecret    string
		TokenSkewSecs  int64
		CommandTimeout time.Duration
	}
}

// Load reads defaults, then the optional config file at path, then the
// environment. Later sources win.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.grpc_addr", ":9090")

	v.SetDefault("dialogue.tick_interval", "100ms")
	v.SetDefault("dialogue.no_input_timeout", "7s")
	v.SetDefault("dialogue.no_match_timeout", "4s")
	v.SetDefault("dialogue.heard_stability", "1500ms")
	v.SetDefault("dialogue.max_hearing", "15s")
	v.SetDefault("dialogue.listen_settle", "300ms")

	v.SetDefault("script.url", "http://www.proseco.co.uk/prosebot")
	v.SetDefault("script.version", "1.0")
	v.SetDefault("script.timeout", "10s")

	v.SetDefault("worker.token_skew_secs", 30)
	v.SetDefault("worker.command_timeout", "30s")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.grpc_addr", "GRPC_ADDR")
	v.BindEnv("server.session_id", "SESSION_ID")

	v.BindEnv("script.url", "SCRIPT_URL")
	v.BindEnv("script.dialogue_id", "DIALOGUE_ID")
	v.BindEnv("script.dialogue_id_file", "DIALOGUE_ID_FILE")
	v.BindEnv("script.tkml_file", "TKML_FILE")
	v.BindEnv("script.grammar_file", "GRAMMAR_FILE")

	v.BindEnv("worker.token_secret", "WORKER_TOKEN_SECRET")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.GRPCAddr = v.GetString("server.grpc_addr")
	c.Server.SessionID = v.GetString("server.session_id")

	c.Dialogue.TickInterval = v.GetDuration("dialogue.tick_interval")
	c.Dialogue.NoInputTimeout = v.GetDuration("dialogue.no_input_timeout")
	c.Dialogue.NoMatchTimeout = v.GetDuration("dialogue.no_match_timeout")
	c.Dialogue.HeardStability = v.GetDuration("dialogue.heard_stability")
	c.Dialogue.MaxHearing = v.GetDuration("dialogue.max_hearing")
	c.Dialogue.ListenSettle = v.GetDuration("dialogue.listen_settle")

	c.Script.URL = v.GetString("script.url")
	c.Script.Version = v.GetString("script.version")
	c.Script.DialogueID = v.GetString("script.dialogue_id")
	c.Script.DialogueIDFile = v.GetString("script.dialogue_id_file")
	c.Script.TKMLFile = v.GetString("script.tkml_file")
	c.Script.GrammarFile = v.GetString("script.grammar_file")
	c.Script.Timeout = v.GetDuration("script.timeout")

	c.Worker.TokenSecret = v.GetString("worker.token_secret")
	c.Worker.TokenSkewSecs = v.GetInt64("worker.token_skew_secs")
	c.Worker.CommandTimeout = v.GetDuration("worker.command_timeout")

	return c, nil
}

// Validate rejects values the dialogue loop cannot run with.
func (c Config) Validate() error {
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"dialogue.tick_interval", c.Dialogue.TickInterval},
		{"dialogue.no_input_timeout", c.Dialogue.NoInputTimeout},
		{"dialogue.no_match_timeout", c.Dialogue.NoMatchTimeout},
		{"dialogue.heard_stability", c.Dialogue.HeardStability},
		{"dialogue.max_hearing", c.Dialogue.MaxHearing},
		{"script.timeout", c.Script.Timeout},
		{"worker.command_timeout", c.Worker.CommandTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, d.key, d.d)
		}
	}
	if c.Dialogue.MaxHearing < c.Dialogue.NoMatchTimeout {
		return fmt.Errorf("%w: dialogue.max_hearing must be at least dialogue.no_match_timeout", ErrInvalid)
	}
	if c.Dialogue.ListenSettle < 0 {
		return fmt.Errorf("%w: dialogue.listen_settle must not be negative", ErrInvalid)
	}
	if c.Script.URL == "" {
		return fmt.Errorf("%w: script.url is required", ErrInvalid)
	}
	if c.Script.DialogueID == "" && c.Script.DialogueIDFile == "" {
		return fmt.Errorf("%w: one of script.dialogue_id or script.dialogue_id_file is required", ErrInvalid)
	}
	if c.Worker.TokenSkewSecs < 0 {
		return fmt.Errorf("%w: worker.token_skew_secs must not be negative", ErrInvalid)
	}
	return nil
}

func toString(v any) string { return fmt.Sprint(v) }
