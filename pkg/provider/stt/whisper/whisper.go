// Package whisper provides an STT provider backed by a local whisper.cpp
// server.
//
// whisper.cpp transcribes whole files, not streams. The provider buffers
// incoming PCM, splits it into utterances with an energy-based silence
// detector, and POSTs each utterance to the server's /inference endpoint as a
// WAV upload. Every transcribed utterance is appended to the session's result
// list as a final result; no interim results are produced.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithSilenceThresholdMs(500))
//	handle, err := p.StartStream(ctx, stt.StreamConfig{Language: "de-DE", Continuous: true})
//	handle.SendAudio(pcmChunk)
//	ev := <-handle.Results()
//	handle.Close()
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/MrWong99/voxnote/pkg/audio"
	"github.com/MrWong99/voxnote/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16: whisper.cpp expects 16-bit signed
	// little-endian PCM.
	bitsPerSample = 16

	// defaultRMSThreshold is the RMS energy (in 16-bit PCM units) below which
	// a chunk counts as silence. 300 of a possible 32 767 is near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000

	flushTimeout = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model name forwarded to the server (e.g., "base.en").
// When empty the server uses the model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language used when a stream does not name one.
// BCP-47 tags are reduced to their base language ("pt-BR" becomes "pt").
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the sample rate in Hz used when a stream does not name
// one. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
// Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) {
		p.silenceThresholdMs = ms
	}
}

// WithMaxBufferDurationMs caps how much speech is buffered before a flush is
// forced regardless of silence. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) {
		p.maxBufferDurationMs = ms
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// Each session keeps its own buffer and goroutine.
type Provider struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// New creates a Provider for the server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: flushTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a transcription session. No request is made until the
// first utterance is complete, so the only failures are a cancelled context
// and an unparseable language tag.
//
// Without cfg.Continuous the session ends after its first transcribed
// utterance.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	lang, err := baseLanguage(lang)
	if err != nil {
		return nil, err
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		p:          p,
		language:   lang,
		sampleRate: sr,
		channels:   ch,
		continuous: cfg.Continuous,

		audioCh: make(chan []byte, 256),
		results: make(chan stt.ResultEvent, 64),
		errs:    make(chan error, 16),
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// baseLanguage reduces a BCP-47 tag to the base language code whisper.cpp
// understands.
func baseLanguage(tag string) (string, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("whisper: language %q: %w", tag, err)
	}
	base, _ := t.Base()
	return base.String(), nil
}

// session implements stt.SessionHandle. Buffer state is confined to the
// processLoop goroutine.
type session struct {
	p          *Provider
	language   string
	sampleRate int
	channels   int
	continuous bool

	audioCh chan []byte
	results chan stt.ResultEvent
	errs    chan error

	done  chan struct{} // closed by Close
	ended chan struct{} // closed when processLoop returns
	once  sync.Once
	wg    sync.WaitGroup
}

// SendAudio queues a chunk of 16-bit little-endian PCM for buffering.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	case <-s.ended:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	case <-s.ended:
		return stt.ErrSessionClosed
	}
}

func (s *session) Results() <-chan stt.ResultEvent { return s.results }

func (s *session) Errors() <-chan error { return s.errs }

// Close flushes any buffered speech for a last transcription, then closes the
// output channels. Calling Close more than once is safe.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

// utterance accumulates PCM between silences.
type utterance struct {
	buf       []byte
	hadSpeech bool
	silenceMs int
}

func (u *utterance) take() []byte {
	pcm := u.buf
	speech := u.hadSpeech
	*u = utterance{}
	if !speech {
		return nil
	}
	return pcm
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)
	defer close(s.errs)
	defer close(s.ended)

	bytesPerMs := s.sampleRate * s.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.p.maxBufferDurationMs * bytesPerMs

	var (
		u     utterance
		index int
	)

	// flush transcribes the buffered utterance and reports whether the
	// session should keep running.
	flush := func(ctx context.Context) bool {
		pcm := u.take()
		if pcm == nil {
			return true
		}
		text, err := s.infer(ctx, pcm)
		if err != nil {
			select {
			case s.errs <- err:
			default:
			}
			return true
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return true
		}
		select {
		case s.results <- stt.ResultEvent{
			Index: index,
			Result: stt.Result{
				IsFinal:      true,
				Alternatives: []stt.Alternative{{Transcript: text}},
			},
		}:
			index++
		default:
		}
		return s.continuous
	}

	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		flush(fc)
	}

	// handle buffers one chunk and reports whether the session should keep
	// running.
	handle := func(chunk []byte) bool {
		if computeRMS(chunk) < defaultRMSThreshold {
			// Leading silence is dropped.
			if !u.hadSpeech {
				return true
			}
			u.silenceMs += chunkDurationMs(chunk, s.sampleRate, s.channels)
			u.buf = append(u.buf, chunk...)
			if u.silenceMs >= s.p.silenceThresholdMs {
				return flush(ctx)
			}
			return true
		}
		u.hadSpeech = true
		u.silenceMs = 0
		u.buf = append(u.buf, chunk...)
		if maxBufferBytes > 0 && len(u.buf) >= maxBufferBytes {
			return flush(ctx)
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return

		case <-s.done:
			// Audio queued before Close still belongs to the session.
			for {
				select {
				case chunk := <-s.audioCh:
					if !handle(chunk) {
						return
					}
				default:
					finalFlush()
					return
				}
			}

		case chunk := <-s.audioCh:
			if !handle(chunk) {
				return
			}
		}
	}
}

// infer uploads pcm as a 16 kHz mono WAV file and returns the transcribed
// text.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	mono := audio.Resample(audio.Downmix(pcm, s.channels), s.sampleRate, audio.WhisperRate)
	if _, err := fw.Write(encodeWAV(mono, audio.WhisperRate, 1)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        s.language,
		"model":           s.p.model,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: inference: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return result.Text, nil
}

// encodeWAV wraps 16-bit PCM in a 44-byte RIFF/WAVE header.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

// computeRMS returns the root-mean-square energy of 16-bit PCM.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return len(chunk) * 1000 / (sampleRate * channels * (bitsPerSample / 8))
}
