package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultStorageKey  = "notes"
	DefaultFilePath    = "voxnote-data"
	DefaultSQLitePath  = "voxnote.db"
	DefaultFFmpeg      = "ffmpeg"
	DefaultSampleRate  = 16000
	DefaultChannels    = 1
	DefaultChunkSize   = 4096
	DefaultServiceName = "voxnote"
)

// DefaultLanguages are the recognition languages offered when none are
// configured.
var DefaultLanguages = []string{"pt-BR", "en-US"}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper"},
}

// API key environment variables, checked in order when
// dictation.provider.api_key is empty.
var apiKeyEnv = []string{"VOXNOTE_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFile
	}
	if cfg.Storage.Key == "" {
		cfg.Storage.Key = DefaultStorageKey
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case StorageFile:
			cfg.Storage.Path = DefaultFilePath
		case StorageSQLite:
			cfg.Storage.Path = DefaultSQLitePath
		}
	}

	if len(cfg.Dictation.Languages) == 0 {
		cfg.Dictation.Languages = slices.Clone(DefaultLanguages)
	}
	a := &cfg.Dictation.Audio
	if a.Command == "" {
		a.Command = DefaultFFmpeg
	}
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.Channels == 0 {
		a.Channels = DefaultChannels
	}
	if a.ChunkSize == 0 {
		a.ChunkSize = DefaultChunkSize
	}
}

// ApplyEnv fills secrets that are absent from the file from the environment.
// lookup is usually [os.LookupEnv].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg.Dictation.Provider.APIKey != "" {
		return
	}
	for _, name := range apiKeyEnv {
		if v, ok := lookup(name); ok && v != "" {
			cfg.Dictation.Provider.APIKey = v
			return
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, sqlite, memory", cfg.Storage.Backend))
	}
	if (cfg.Storage.Backend == StorageFile || cfg.Storage.Backend == StorageSQLite) && cfg.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required for backend %q", cfg.Storage.Backend))
	}
	if cfg.Storage.Watch && cfg.Storage.Backend != "" && cfg.Storage.Backend != StorageFile {
		errs = append(errs, fmt.Errorf("storage.watch is only supported by the file backend, not %q", cfg.Storage.Backend))
	}

	// Dictation
	validateProviderName("stt", cfg.Dictation.Provider.Name)
	if len(cfg.Dictation.Fallbacks) > 0 && cfg.Dictation.Provider.Name == "" {
		errs = append(errs, errors.New("dictation.fallbacks requires dictation.provider.name"))
	}
	for i, fb := range cfg.Dictation.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("dictation.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	if b := cfg.Dictation.Breaker; b.MaxFailures < 0 || b.Cooldown < 0 {
		errs = append(errs, errors.New("dictation.breaker values must not be negative"))
	}

	seen := make(map[string]int, len(cfg.Dictation.Languages))
	for i, tag := range cfg.Dictation.Languages {
		prefix := fmt.Sprintf("dictation.languages[%d]", i)
		if tag == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", prefix))
			continue
		}
		if prev, ok := seen[tag]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of dictation.languages[%d]", prefix, tag, prev))
		}
		seen[tag] = i
	}
	if d := cfg.Dictation.DefaultLanguage; d != "" && !slices.Contains(cfg.Dictation.Languages, d) {
		errs = append(errs, fmt.Errorf("dictation.default_language %q is not listed in dictation.languages", d))
	}

	a := cfg.Dictation.Audio
	if a.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("dictation.audio.sample_rate %d must be positive", a.SampleRate))
	}
	if a.Channels < 0 || a.Channels > 2 {
		errs = append(errs, fmt.Errorf("dictation.audio.channels %d is out of range [1, 2]", a.Channels))
	}
	if a.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("dictation.audio.chunk_size %d must be positive", a.ChunkSize))
	} else if a.Channels > 0 && a.ChunkSize%(2*a.Channels) != 0 {
		errs = append(errs, fmt.Errorf("dictation.audio.chunk_size %d must be a multiple of %d (whole 16-bit frames)", a.ChunkSize, 2*a.Channels))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
