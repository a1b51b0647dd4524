// Package streamer owns the outbound stream lifecycle: a local HTTP server
// that serves the renderer page alongside the exported world-state
// snapshot, and the ffmpeg child process that encodes the captured page to
// the provider's ingest endpoint. The capture pipeline feeding frames into
// ffmpeg's stdin is an external collaborator; this package only starts and
// stops the pieces around it.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"time"
)

// Config holds the encoder and renderer settings.
type Config struct {
	IngestURL   string // empty disables the encoder
	Width       int
	Height      int
	Framerate   int
	Bitrate     string // e.g. "6000k"
	Preset      string // x264 preset, e.g. "ultrafast"
	RendererDir string // static renderer assets
	StateFile   string // exported snapshot, served as /state.json
	HTTPAddr    string // renderer server address
}

// Engine runs the renderer server and the encoder process.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	httpSrv *http.Server
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan error
}

func New(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// encoderArgs builds the ffmpeg invocation: PNG frames on stdin, silent
// audio (the ingest endpoint requires an audio track), H.264 tuned for
// live streaming, FLV out.
func encoderArgs(cfg Config) []string {
	return []string{
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(cfg.Framerate),
		"-c:v", "png",
		"-i", "-",

		"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100",

		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", cfg.Preset,
		"-tune", "zerolatency",
		"-b:v", cfg.Bitrate,
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),

		"-c:a", "aac",
		"-b:a", "128k",

		"-f", "flv",
		cfg.IngestURL,
	}
}

// Start brings up the renderer server and, when an ingest URL is
// configured, the encoder.
func (e *Engine) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(e.cfg.RendererDir)))
	mux.HandleFunc("/state.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, e.cfg.StateFile)
	})

	e.httpSrv = &http.Server{Addr: e.cfg.HTTPAddr, Handler: mux}
	go func() {
		e.logger.Info("renderer server listening", "addr", e.cfg.HTTPAddr)
		if err := e.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("renderer server error", "err", err)
		}
	}()

	if e.cfg.IngestURL == "" {
		e.logger.Info("no ingest URL configured, encoder disabled")
		return nil
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", encoderArgs(e.cfg)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("encoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	e.cmd = cmd
	e.stdin = stdin
	e.done = make(chan error, 1)
	go func() { e.done <- cmd.Wait() }()

	e.logger.Info("encoder started", "ingest", e.cfg.IngestURL, "pid", cmd.Process.Pid)
	return nil
}

// FrameSink returns the writer the capture pipeline feeds PNG frames into,
// or nil when the encoder is disabled.
func (e *Engine) FrameSink() io.Writer {
	if e.stdin == nil {
		return nil
	}
	return e.stdin
}

// Stop closes the encoder's input so it can flush its last frames, waits
// briefly for it to exit, and shuts down the renderer server.
func (e *Engine) Stop(ctx context.Context) error {
	var firstErr error

	if e.cmd != nil {
		_ = e.stdin.Close()
		select {
		case err := <-e.done:
			if err != nil {
				e.logger.Warn("encoder exited with error", "err", err)
			}
		case <-time.After(5 * time.Second):
			e.logger.Warn("encoder did not exit, killing")
			_ = e.cmd.Process.Kill()
			<-e.done
		case <-ctx.Done():
			_ = e.cmd.Process.Kill()
			<-e.done
		}
		e.cmd = nil
	}

	if e.httpSrv != nil {
		if err := e.httpSrv.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("renderer shutdown: %w", err)
		}
		e.httpSrv = nil
	}
	return firstErr
}
