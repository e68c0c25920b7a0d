// Package app wires all voxnote subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens storage, resolves the
// dictation capability and loads the saved notes, Run drives the console
// (plus the optional admin HTTP server and storage watcher), and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStorage,
// WithDictation, WithInput, ...). When an option is not provided, New
// creates real implementations from the config and registry.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxnote/internal/capture"
	"github.com/MrWong99/voxnote/internal/config"
	"github.com/MrWong99/voxnote/internal/console"
	"github.com/MrWong99/voxnote/internal/dictation"
	"github.com/MrWong99/voxnote/internal/health"
	"github.com/MrWong99/voxnote/internal/notes"
	"github.com/MrWong99/voxnote/internal/observe"
	"github.com/MrWong99/voxnote/internal/resilience"
	"github.com/MrWong99/voxnote/internal/storage"
	"github.com/MrWong99/voxnote/internal/storage/filekv"
	"github.com/MrWong99/voxnote/pkg/audio"
	"github.com/MrWong99/voxnote/pkg/audio/ffmpeg"
	"github.com/MrWong99/voxnote/pkg/provider/stt"
)

// readHeaderTimeout bounds how long the admin server waits for headers.
const readHeaderTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	kv       storage.KV
	store    *notes.Store
	provider dictation.Provider
	failover *resilience.STTFailover // nil without fallbacks
	ctrl     *capture.Controller
	printer  *console.Printer
	console  *console.Console
	health   *health.Handler
	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	in       io.Reader
	out      io.Writer

	// admin is nil when server.listen_addr is empty.
	admin *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStorage injects a key-value backend instead of creating one from config.
// The App does not close injected storage.
func WithStorage(kv storage.KV) Option {
	return func(a *App) { a.kv = kv }
}

// WithDictation injects the dictation capability instead of probing for one.
func WithDictation(p dictation.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithInput sets the console input. Default: os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput sets the console output. Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the registry served on /metrics. Default:
// [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// New creates an App by wiring all subsystems together. reg supplies the
// storage and speech-to-text factories named in cfg.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		registry: reg,
		in:       os.Stdin,
		out:      os.Stdout,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}
	a.store = notes.NewStore(a.kv,
		notes.WithKey(cfg.Storage.Key),
		notes.WithMetrics(a.metrics),
	)

	// ── 2. Dictation capability, resolved once ───────────────────────────
	if a.provider == nil {
		a.provider = a.resolveDictation()
	}
	slog.Info("dictation capability resolved", "status", a.provider.Status())

	// ── 3. Controller + console ──────────────────────────────────────────
	a.printer = console.NewPrinter(a.out)
	ctrlOpts := []capture.Option{
		capture.WithSink(a.printer),
		capture.WithMetrics(a.metrics),
		capture.WithLanguages(cfg.Dictation.Languages...),
	}
	if cfg.Dictation.DefaultLanguage != "" {
		ctrlOpts = append(ctrlOpts, capture.WithLanguage(cfg.Dictation.DefaultLanguage))
	}
	a.ctrl = capture.New(a.store, a.provider, ctrlOpts...)
	a.ctrl.Load(ctx)
	a.console = console.New(a.ctrl, a.printer)

	// ── 4. Admin HTTP server ─────────────────────────────────────────────
	a.health = health.New(
		health.Checker{Name: "storage", Check: a.checkStorage},
		health.Checker{Name: "dictation", Optional: true, Check: a.checkDictation},
	)
	if cfg.Server.ListenAddr != "" {
		a.admin = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           observe.Middleware(a.metrics)(a.Handler()),
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}

	return a, nil
}

// initStorage opens the configured backend unless one was injected.
func (a *App) initStorage(ctx context.Context) error {
	if a.kv != nil {
		return nil
	}
	kv, err := a.registry.CreateStorage(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.kv = kv
	a.closers = append(a.closers, kv.Close)
	slog.Info("storage opened", "backend", a.cfg.Storage.Backend, "path", a.cfg.Storage.Path)
	return nil
}

// resolveDictation builds the speech-to-text provider and microphone capture
// from config and probes them. Any failure yields [dictation.Unavailable]:
// the application keeps working without dictation.
func (a *App) resolveDictation() dictation.Provider {
	if a.cfg.Dictation.Provider.Name == "" {
		return dictation.Unavailable{Reason: "no speech-to-text provider configured"}
	}
	sttProvider, err := a.buildSTT()
	if err != nil {
		return dictation.Unavailable{Reason: err.Error()}
	}

	ac := a.cfg.Dictation.Audio
	mic := ffmpeg.New(ac.Command)
	return dictation.Probe(dictation.Available{
		STT:     sttProvider,
		Capture: mic,
		Audio: audio.Config{
			SampleRate:  ac.SampleRate,
			Channels:    ac.Channels,
			InputFormat: ac.InputFormat,
			InputDevice: ac.InputDevice,
		},
		ChunkSize: ac.ChunkSize,
	}, mic.Probe)
}

// buildSTT creates the primary speech-to-text provider and its fallbacks.
// Entries whose factory fails are skipped. When more than one provider was
// built they are wrapped in a [resilience.STTFailover], tried in config order.
func (a *App) buildSTT() (stt.Provider, error) {
	d := a.cfg.Dictation
	entries := append([]config.ProviderEntry{d.Provider}, d.Fallbacks...)

	var (
		backends []resilience.Backend
		errs     []error
		seen     = make(map[string]int, len(entries))
	)
	for _, e := range entries {
		p, err := a.registry.CreateSTT(e)
		if err != nil {
			slog.Warn("speech-to-text provider unavailable", "name", e.Name, "err", err)
			errs = append(errs, fmt.Errorf("provider %q: %w", e.Name, err))
			continue
		}
		seen[e.Name]++
		name := e.Name
		if n := seen[e.Name]; n > 1 {
			name = fmt.Sprintf("%s#%d", e.Name, n)
		}
		backends = append(backends, resilience.Backend{Name: name, Provider: p})
	}

	switch len(backends) {
	case 0:
		return nil, errors.Join(errs...)
	case 1:
		return backends[0].Provider, nil
	}
	f, err := resilience.NewSTTFailover(resilience.BreakerConfig{
		MaxFailures: d.Breaker.MaxFailures,
		Cooldown:    d.Breaker.Cooldown,
	}, backends, resilience.WithStateHook(a.breakerChanged))
	if err != nil {
		return nil, err
	}
	a.failover = f
	return f, nil
}

func (a *App) breakerChanged(backend string, from, to resilience.State) {
	a.metrics.RecordBreakerTransition(context.Background(), backend, to.String())
	level := slog.LevelInfo
	if to == resilience.Open {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "speech-to-text backend state changed",
		"backend", backend, "from", from.String(), "to", to.String())
}

// Handler returns the admin routes: health probes, Prometheus metrics and a
// read-only JSON view of the notes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /notes", a.listNotes)
	return mux
}

// listNotes serves the collection, filtered by the optional q parameter.
func (a *App) listNotes(w http.ResponseWriter, r *http.Request) {
	visible := notes.Filter(a.ctrl.Notes(), r.URL.Query().Get("q"))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(visible); err != nil {
		observe.Logger(r.Context()).Warn("app: encode notes", "err", err)
	}
}

func (a *App) checkStorage(ctx context.Context) error {
	if _, err := a.kv.Get(ctx, a.store.Key()); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func (a *App) checkDictation(context.Context) error {
	if !a.provider.Supported() {
		return errors.New(a.provider.Status())
	}
	if a.failover != nil && !a.failover.Available() {
		return errors.New("every speech-to-text backend is cooling down")
	}
	return nil
}

// Controller exposes the capture controller, mainly for tests.
func (a *App) Controller() *capture.Controller { return a.ctrl }

// Run drives the console until the user quits, the input ends or ctx is
// cancelled. The admin server and the storage watcher run alongside and stop
// with it.
func (a *App) Run(ctx context.Context) error {
	var ln net.Listener
	if a.admin != nil {
		var err error
		if ln, err = net.Listen("tcp", a.admin.Addr); err != nil {
			return fmt.Errorf("app: listen %s: %w", a.admin.Addr, err)
		}
		slog.Info("admin server listening", "addr", ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return a.console.Run(runCtx, a.in)
	})

	if ln != nil {
		g.Go(func() error { return a.serve(ln) })
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
			defer cancel()
			return a.admin.Shutdown(shutdownCtx)
		})
	}

	if fs, ok := a.kv.(*filekv.Store); ok && a.cfg.Storage.Watch {
		g.Go(func() error {
			return fs.Watch(runCtx, a.store.Key(), func() {
				slog.Info("notes changed on disk, reloading", "dir", fs.Dir())
				// Failures are logged by Reload; the watch keeps running.
				_ = a.ctrl.Reload(runCtx)
			})
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) serve(ln net.Listener) error {
	var err error
	if tls := a.cfg.Server.TLS; tls != nil {
		err = a.admin.ServeTLS(ln, tls.CertFile, tls.KeyFile)
	} else {
		err = a.admin.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("app: admin server: %w", err)
}

// Shutdown stops dictation and releases resources. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.ctrl.Close()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
