// Package config loads daemon settings from flags, the environment and an env
// file. Flags win over the environment, the environment over the env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
)

type Config struct {
	EnvFile  string
	LogLevel string

	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Proxy    string

	UserName      string
	WakeWord      string
	ListenTimeout time.Duration
	Language      string

	WhisperModel string
	Espeak       string
	Duck         bool
	Chime        string

	Camera      string
	Display     string
	FrameWidth  int
	FrameHeight int

	Socket string
	BusURL string
	Shard  string
}

// envKeys maps a flag to the variables consulted when it is not set on the
// command line, in order.
var envKeys = map[string][]string{
	"log":            {"JARVIS_LOG"},
	"provider":       {"JARVIS_PROVIDER"},
	"model":          {"JARVIS_MODEL"},
	"base-url":       {"JARVIS_BASE_URL"},
	"proxy":          {"JARVIS_PROXY"},
	"user":           {"JARVIS_USER"},
	"wake-word":      {"JARVIS_WAKE_WORD"},
	"listen-timeout": {"JARVIS_LISTEN_TIMEOUT"},
	"lang":           {"JARVIS_LANG"},
	"whisper-model":  {"WHISPER_MODEL"},
	"espeak":         {"JARVIS_ESPEAK"},
	"duck":           {"JARVIS_DUCK"},
	"chime":          {"JARVIS_CHIME"},
	"camera":         {"JARVIS_CAMERA"},
	"display":        {"JARVIS_DISPLAY", "DISPLAY"},
	"frame-width":    {"JARVIS_FRAME_WIDTH"},
	"frame-height":   {"JARVIS_FRAME_HEIGHT"},
	"socket":         {"JARVIS_SOCKET"},
	"bus":            {"BUS_URL"},
	"shard":          {"JARVIS_SHARD"},
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func Load(args []string) (Config, error) {
	var c Config

	flags := cli.NewFlagSet("jarvis", cli.ContinueOnError)
	flags.StringVarP(&c.EnvFile, "env", "e", ".env", "Env file path")
	flags.StringVarP(&c.LogLevel, "log", "l", "info", "Log level (debug|info|warn|error)")

	flags.StringVar(&c.Provider, "provider", "gemini", "Assistant backend (gemini|openai)")
	flags.StringVar(&c.APIKey, "api-key", "", "Backend API key")
	flags.StringVar(&c.Model, "model", "", "Model name, provider default when empty")
	flags.StringVar(&c.BaseURL, "base-url", "", "Override the backend endpoint")
	flags.StringVarP(&c.Proxy, "proxy", "p", "", "Socks proxy address for backend calls")

	flags.StringVar(&c.UserName, "user", "Prabal", "Name the assistant addresses")
	flags.StringVarP(&c.WakeWord, "wake-word", "w", "jarvis", "Wake word")
	flags.DurationVar(&c.ListenTimeout, "listen-timeout", 2*time.Second, "Demotion timeout after a bare wake word")
	flags.StringVar(&c.Language, "lang", "en-US", "Recognition and voice language")

	flags.StringVar(&c.WhisperModel, "whisper-model", "models/ggml-base.en.bin", "Whisper model path")
	flags.StringVar(&c.Espeak, "espeak", "espeak-ng", "espeak-ng binary")
	flags.BoolVar(&c.Duck, "duck", true, "Lower other audio while speaking")
	flags.StringVar(&c.Chime, "chime", "", "Activation chime (mp3), empty disables it")

	flags.StringVar(&c.Camera, "camera", "/dev/video0", "Camera device, empty disables it")
	flags.StringVar(&c.Display, "display", "", "X display for screen sharing")
	flags.IntVar(&c.FrameWidth, "frame-width", 640, "Captured frame width")
	flags.IntVar(&c.FrameHeight, "frame-height", 480, "Captured frame height")

	flags.StringVarP(&c.Socket, "socket", "s", "/tmp/jarvis.sock", "Control socket path")
	flags.StringVarP(&c.BusURL, "bus", "u", "", "Presentation hub websocket url, empty disables it")
	flags.StringVar(&c.Shard, "shard", "jarvis", "Name on the hub")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", c.EnvFile, err)
	}

	for name, keys := range envKeys {
		if flags.Changed(name) {
			continue
		}
		if v, ok := lookup(keys...); ok {
			if err := flags.Set(name, v); err != nil {
				return Config{}, fmt.Errorf("env %s: %w", strings.Join(keys, "|"), err)
			}
		}
	}

	if !flags.Changed("api-key") {
		c.APIKey = apiKeyFromEnv(c.Provider)
	}

	return c, c.Validate()
}

func apiKeyFromEnv(provider string) string {
	keys := []string{"GEMINI_API_KEY", "API_KEY", "OPENAI_API_KEY"}
	if provider == "openai" {
		keys = []string{"OPENAI_API_KEY", "API_KEY", "GEMINI_API_KEY"}
	}
	v, _ := lookup(keys...)
	return v
}

func lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Validate rejects settings the daemon cannot boot with. A missing API key is
// fine: the backend answers with a fallback text instead.
func (c Config) Validate() error {
	var errs []error

	switch c.Provider {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if strings.TrimSpace(c.WakeWord) == "" {
		errs = append(errs, errors.New("wake word must not be empty"))
	}
	if c.ListenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("listen timeout must be positive, got %s", c.ListenTimeout))
	}
	if !logLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		errs = append(errs, fmt.Errorf("invalid frame size %dx%d", c.FrameWidth, c.FrameHeight))
	}

	return errors.Join(errs...)
}
