// Package commentary renders spoken DJ intros and skip banter: text from the
// language model, speech from piper, piped raw into ffmpeg for a queue-playable
// file. It also owns the temp files behind the handles it returns.
package commentary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/dj-tender/media"
	"github.com/onnwee/dj-tender/telemetry"
)

const (
	FallbackIntro  = "You're tuned in to the DJ. Here's a fresh batch of tracks, let's keep it going."
	FallbackBanter = "Skipped! Let's find something better."

	filePrefix = "dj-"
	fileExt    = ".ogg"
)

// Writer produces the text to speak.
type Writer interface {
	Commentary(ctx context.Context, tracks []media.Track) (string, error)
	Banter(ctx context.Context, skipped media.Track, skipper string) (string, error)
}

// VoiceStore returns a guild's configured voice key ("" when unset).
type VoiceStore interface {
	GuildVoice(ctx context.Context, guildID string) (string, error)
}

// Session is the read-only view of a DJ session the pipeline needs.
type Session interface {
	ID() string
	GuildID() string
	Initiator() string
}

type Config struct {
	PiperPath    string
	ModelDir     string
	FFmpegPath   string
	FFprobePath  string
	TempDir      string
	DefaultVoice string
	// SampleRate of piper's raw output (22050 for medium/high models).
	SampleRate int
	// Timeout bounds one synth+transcode run.
	Timeout time.Duration
}

type Pipeline struct {
	cfg    Config
	text   Writer
	voices VoiceStore
	log    *slog.Logger

	probe func(ctx context.Context, path string) (time.Duration, error)

	seq   atomic.Uint64
	mu    sync.Mutex
	files map[string]string // temp path -> session id
}

func New(cfg Config, text Writer, voices VoiceStore) *Pipeline {
	if cfg.PiperPath == "" {
		cfg.PiperPath = "piper"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "dj-tender")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 22050
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	p := &Pipeline{
		cfg:    cfg,
		text:   text,
		voices: voices,
		log:    slog.Default().With(slog.String("component", "commentary")),
		files:  make(map[string]string),
	}
	p.probe = p.ffprobe
	return p
}

// Intro renders a commentary handle introducing tracks. Text generation
// failures fall back to FallbackIntro; synthesis failures return a *PipelineError.
func (p *Pipeline) Intro(ctx context.Context, sess Session, tracks []media.Track) (media.Track, error) {
	text, err := p.text.Commentary(ctx, tracks)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("commentary text failed, using fallback", slog.String("component", "commentary"), slog.Any("err", err))
		text = FallbackIntro
	}
	meta := media.Track{Title: "DJ intro", Author: "AI DJ"}
	if len(tracks) > 0 {
		meta.Title = "DJ intro: " + tracks[0].Title
		meta.Thumbnail = tracks[0].Thumbnail
	}
	return p.render(ctx, sess, media.OriginCommentary, text, meta)
}

// Banter renders a short reaction to skipped.
func (p *Pipeline) Banter(ctx context.Context, sess Session, skipped media.Track, skipper string) (media.Track, error) {
	text, err := p.text.Banter(ctx, skipped, skipper)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("banter text failed, using fallback", slog.String("component", "commentary"), slog.Any("err", err))
		text = FallbackBanter
	}
	return p.render(ctx, sess, media.OriginBanter, text, media.Track{
		Title:     "DJ banter",
		Author:    "AI DJ",
		Thumbnail: skipped.Thumbnail,
	})
}

func (p *Pipeline) render(ctx context.Context, sess Session, origin media.Origin, text string, meta media.Track) (t media.Track, err error) {
	ctx, span := telemetry.StartSpan(ctx, "commentary.render",
		attribute.String("origin", origin.String()), attribute.String("session", sess.ID()))
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		telemetry.IncCommentary(origin.String(), result)
		telemetry.EndSpan(span, err)
	}()

	voice := ResolveVoice(p.guildVoice(ctx, sess.GuildID()), p.cfg.DefaultVoice)
	if err := os.MkdirAll(p.cfg.TempDir, 0o755); err != nil {
		return media.Track{}, &PipelineError{Stage: StageSetup, Err: err}
	}
	path := filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s%s-%s-%d%s", filePrefix, sess.ID(), origin, p.seq.Add(1), fileExt))

	var synthErr error
	telemetry.TimeFunc(telemetry.SynthesisDuration, func() {
		synthErr = p.synthesize(ctx, text, voice, path)
	})
	if synthErr != nil {
		p.discard(path)
		return media.Track{}, synthErr
	}

	dur, err := p.probe(ctx, path)
	if err != nil {
		p.discard(path)
		return media.Track{}, &PipelineError{Stage: StageProbe, Err: err}
	}

	p.mu.Lock()
	p.files[path] = sess.ID()
	p.mu.Unlock()

	meta.Locator = path
	meta.TempPath = path
	meta.Duration = dur
	meta.Origin = origin
	meta.Source = "tts"
	meta.RequestedBy = sess.Initiator()
	p.log.Debug("rendered", slog.String("origin", origin.String()), slog.String("voice", voice.Model()), slog.Duration("duration", dur))
	return meta, nil
}

func (p *Pipeline) guildVoice(ctx context.Context, guildID string) string {
	if p.voices == nil {
		return ""
	}
	key, err := p.voices.GuildVoice(ctx, guildID)
	if err != nil {
		p.log.Warn("guild voice lookup failed", slog.String("guild", guildID), slog.Any("err", err))
		return ""
	}
	return key
}

// synthesize runs piper with its stdout joined to ffmpeg's stdin by an OS pipe.
// Both processes run to completion; cancelling ctx does not kill them, only the
// configured timeout does.
func (p *Pipeline) synthesize(ctx context.Context, text string, voice Voice, out string) error {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer cancel()

	model := filepath.Join(p.cfg.ModelDir, voice.Model()+".onnx")
	synth := exec.CommandContext(runCtx, p.cfg.PiperPath, "--model", model, "--output-raw")
	transcode := exec.CommandContext(runCtx, p.cfg.FFmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "s16le", "-ar", strconv.Itoa(p.cfg.SampleRate), "-ac", "1",
		"-i", "pipe:0",
		"-c:a", "libopus", "-b:a", "64k",
		out,
	)

	pr, pw, err := os.Pipe()
	if err != nil {
		return &PipelineError{Stage: StageSetup, Err: err}
	}
	var synthStderr, transcodeStderr bytes.Buffer
	synth.Stdin = strings.NewReader(text)
	synth.Stdout = pw
	synth.Stderr = &synthStderr
	transcode.Stdin = pr
	transcode.Stderr = &transcodeStderr

	if err := transcode.Start(); err != nil {
		pr.Close()
		pw.Close()
		return &PipelineError{Stage: StageTranscode, TranscodeErr: err}
	}
	if err := synth.Start(); err != nil {
		pr.Close()
		pw.Close()
		transcodeErr := transcode.Wait()
		return &PipelineError{Stage: StageSynth, SynthErr: err, TranscodeErr: transcodeErr, TranscodeStderr: transcodeStderr.String()}
	}
	// The children hold their own copies; ours must close so ffmpeg sees EOF.
	pr.Close()
	pw.Close()

	synthErr := synth.Wait()
	transcodeErr := transcode.Wait()
	if synthErr == nil && transcodeErr == nil {
		return nil
	}
	stage := StageTranscode
	// A synthesizer killed by the transcoder closing its end of the pipe
	// failed second.
	if synthErr != nil && (transcodeErr == nil || !brokenPipe(synthErr, synthStderr.String())) {
		stage = StageSynth
	}
	return &PipelineError{
		Stage:           stage,
		SynthErr:        synthErr,
		TranscodeErr:    transcodeErr,
		SynthStderr:     synthStderr.String(),
		TranscodeStderr: transcodeStderr.String(),
	}
}

// brokenPipe reports whether a subprocess died writing to a closed pipe,
// either by SIGPIPE or by exiting after an EPIPE write error.
func brokenPipe(err error, stderr string) bool {
	if errors.Is(err, syscall.EPIPE) {
		return true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGPIPE {
			return true
		}
	}
	return strings.Contains(strings.ToLower(stderr), "broken pipe")
}

func (p *Pipeline) ffprobe(ctx context.Context, path string) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, errors.New("transcoder produced an empty file")
	}
	cmd := exec.CommandContext(ctx, p.cfg.FFprobePath,
		"-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (p *Pipeline) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.Warn("remove partial file", slog.String("path", path), slog.Any("err", err))
	}
}

// Release deletes the temp file behind a synthetic handle. Only the first call
// for a given file deletes it; regular tracks are ignored.
func (p *Pipeline) Release(t media.Track) {
	if !t.Synthetic() || t.TempPath == "" {
		return
	}
	p.mu.Lock()
	_, owned := p.files[t.TempPath]
	delete(p.files, t.TempPath)
	p.mu.Unlock()
	if owned {
		p.discard(t.TempPath)
	}
}

// ReleaseSession deletes every file still registered to sessionID.
func (p *Pipeline) ReleaseSession(sessionID string) {
	var paths []string
	p.mu.Lock()
	for path, id := range p.files {
		if id == sessionID {
			paths = append(paths, path)
			delete(p.files, path)
		}
	}
	p.mu.Unlock()
	for _, path := range paths {
		p.discard(path)
	}
}

// Pending is the number of files awaiting release.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}

// Sweep removes leftover rendered files from a previous run. Call before any
// session starts.
func (p *Pipeline) Sweep() (int, error) {
	matches, err := filepath.Glob(filepath.Join(p.cfg.TempDir, filePrefix+"*"+fileExt))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed, nil
}
