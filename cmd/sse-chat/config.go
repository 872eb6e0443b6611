package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	ssechat "github.com/MegaGrindStone/sse-chat"
	"github.com/MegaGrindStone/sse-chat/internal/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	defaultEndpoint = "http://localhost:8000"
	endpointEnv     = "SSECHAT_ENDPOINT"
)

type config struct {
	Endpoint       string        `yaml:"endpoint"`
	Path           string        `yaml:"path"`
	Greeting       string        `yaml:"greeting"`
	CancelPrevious bool          `yaml:"cancelPrevious"`
	ErrorMarker    string        `yaml:"errorMarker"`
	StreamTimeout  time.Duration `yaml:"streamTimeout"`
	MaxEventSize   int           `yaml:"maxEventSize"`
	Markdown       bool          `yaml:"markdown"`
	Log            logConfig     `yaml:"log"`
}

type logConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "error getting user config dir")
	}
	return filepath.Join(cfgDir, "sse-chat", "config.yaml"), nil
}

// loadConfig decodes the embedded defaults and then the file at path on top of them. A missing file
// is only an error when the path was given explicitly.
func loadConfig(path string, explicit bool) (config, error) {
	cfg := config{}
	if err := yaml.Unmarshal(ssechat.DefaultConfig, &cfg); err != nil {
		return config{}, errors.Wrap(err, "error decoding default config")
	}

	cfgFile, err := os.Open(path)
	switch {
	case err == nil:
		defer cfgFile.Close()
		if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, errors.Wrapf(err, "error decoding config file %s", path)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return config{}, errors.Wrap(err, "error opening config file")
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv(endpointEnv)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.Path != "" && !strings.HasPrefix(c.Path, "/") {
		return errors.Errorf("path %q must start with /", c.Path)
	}
	if c.StreamTimeout < 0 {
		return errors.Errorf("streamTimeout must not be negative, got %s", c.StreamTimeout)
	}
	if c.MaxEventSize < 0 {
		return errors.Errorf("maxEventSize must not be negative, got %d", c.MaxEventSize)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(err, "invalid log level %q", c.Log.Level)
	}
	return nil
}

func (c config) chatOptions() chat.Options {
	return chat.Options{
		CancelPrevious: c.CancelPrevious,
		ErrorMarker:    c.ErrorMarker,
		StreamTimeout:  c.StreamTimeout,
	}
}

// newLogger opens the log file of c. Without a file every log line is discarded.
func (c logConfig) newLogger() (zerolog.Logger, func() error, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrapf(err, "invalid log level %q", c.Level)
	}

	if c.File == "" {
		return zerolog.Nop(), func() error { return nil }, nil
	}

	logFile, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrap(err, "error opening log file")
	}

	logger := zerolog.New(logFile).Level(level).With().Timestamp().Logger()
	return logger, logFile.Close, nil
}
