// Package config provides the configuration schema, loader, and provider
// registry for voxnote.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects where notes are persisted.
type StorageBackend string

const (
	// StorageFile writes one JSON file per key into a directory.
	StorageFile StorageBackend = "file"

	// StorageSQLite writes into a local SQLite database file.
	StorageSQLite StorageBackend = "sqlite"

	// StorageMemory keeps notes in memory only; nothing survives a restart.
	StorageMemory StorageBackend = "memory"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageFile, StorageSQLite, StorageMemory:
		return true
	}
	return false
}

// Config is the root configuration structure for voxnote.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Dictation DictationConfig `yaml:"dictation"`
}

// ServerConfig holds logging and the optional HTTP side channel that serves
// metrics and health probes.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP side channel (e.g., ":9464").
	// Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the side channel. When nil, it serves plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// StorageConfig selects the durable key-value backend for notes.
type StorageConfig struct {
	// Backend is the registered storage name. Default: "file".
	Backend StorageBackend `yaml:"backend"`

	// Path is the directory (file backend) or database file (sqlite backend).
	Path string `yaml:"path"`

	// Key is the key the note collection is stored under. Default: "notes".
	Key string `yaml:"key"`

	// Watch reloads the collection when another process rewrites it. Only
	// the file backend supports it.
	Watch bool `yaml:"watch"`
}

// DictationConfig configures speech-to-text dictation.
type DictationConfig struct {
	// Provider selects the STT backend registered in the [Registry]. An empty
	// name disables dictation.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when Provider cannot open a stream.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Breaker controls when a failing provider is skipped. It only applies
	// when Fallbacks is non-empty.
	Breaker BreakerConfig `yaml:"breaker"`

	// Languages lists the selectable recognition languages as BCP-47 tags.
	Languages []string `yaml:"languages"`

	// DefaultLanguage preselects one of Languages. Empty means the user must
	// choose before recording.
	DefaultLanguage string `yaml:"default_language"`

	// Audio configures microphone capture.
	Audio AudioConfig `yaml:"audio"`
}

// BreakerConfig tunes the per-provider circuit breaker. Zero values take the
// breaker's defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed stream starts that
	// take a provider out of rotation.
	MaxFailures int `yaml:"max_failures"`

	// Cooldown is how long a provider stays out of rotation before it is
	// tried again (e.g., "30s").
	Cooldown time.Duration `yaml:"cooldown"`
}

// ProviderEntry is the configuration block of an STT provider. The Name
// field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// AudioConfig describes how the microphone is captured.
type AudioConfig struct {
	// Command is the ffmpeg executable. Default: "ffmpeg".
	Command string `yaml:"command"`

	// InputFormat is the ffmpeg input format (e.g., "pulse", "alsa",
	// "avfoundation", "dshow"). Empty picks a per-OS default.
	InputFormat string `yaml:"input_format"`

	// InputDevice names the capture device. Empty picks a per-OS default.
	InputDevice string `yaml:"input_device"`

	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels: 1 (mono) or 2. Default: 1.
	Channels int `yaml:"channels"`

	// ChunkSize is the number of PCM bytes per frame sent to the provider.
	// Must hold whole samples. Default: 4096.
	ChunkSize int `yaml:"chunk_size"`
}
