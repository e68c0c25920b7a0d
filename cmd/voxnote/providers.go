package main

import (
	"context"
	"log/slog"

	"github.com/MrWong99/voxnote/internal/config"
	"github.com/MrWong99/voxnote/internal/storage"
	"github.com/MrWong99/voxnote/internal/storage/filekv"
	"github.com/MrWong99/voxnote/internal/storage/sqlitekv"
	"github.com/MrWong99/voxnote/pkg/provider/stt"
	"github.com/MrWong99/voxnote/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxnote/pkg/provider/stt/whisper"
)

// registerBuiltins wires the storage backends and speech-to-text providers
// that ship with voxnote into reg.
func registerBuiltins(reg *config.Registry) {
	// ── Storage ───────────────────────────────────────────────────────────────

	reg.RegisterStorage(config.StorageFile, func(_ context.Context, sc config.StorageConfig) (storage.KV, error) {
		return filekv.Open(sc.Path)
	})
	reg.RegisterStorage(config.StorageSQLite, func(ctx context.Context, sc config.StorageConfig) (storage.KV, error) {
		return sqlitekv.Open(ctx, sc.Path)
	})
	reg.RegisterStorage(config.StorageMemory, func(context.Context, config.StorageConfig) (storage.KV, error) {
		slog.Warn("memory storage selected; notes will not survive a restart")
		return storage.NewMem(), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		serverURL := entry.BaseURL
		if serverURL == "" {
			serverURL = defaultWhisperURL
		}
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if ms, ok := intOption(entry.Options, "silence_ms"); ok {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms, ok := intOption(entry.Options, "max_buffer_ms"); ok {
			opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
		}
		return whisper.New(serverURL, opts...)
	})
}

// defaultWhisperURL is where whisper.cpp's server listens by default.
const defaultWhisperURL = "http://127.0.0.1:8080"

// intOption reads a positive integer from a provider's free-form options.
func intOption(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, v > 0
	case float64:
		return int(v), v > 0
	}
	return 0, false
}
