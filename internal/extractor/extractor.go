package extractor

import (
	"context"
	"io"
	"os/exec"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/domain/valueobjects"
)

// Options carries the optional capabilities an extractor may honor. This
// replaces runtime signature inspection: extractors simply ignore fields
// they do not support.
type Options struct {
	CookiesFile  string
	RateLimitBPS int
	AudioFilter  string // ffmpeg -af chain applied by the transcoder
}

// SourceHandle is something the voice session can consume: either a direct
// remote URL (plus HTTP headers for the transcoder) or the stdout pipe of a
// running child process emitting raw audio.
type SourceHandle struct {
	URL         string
	Headers     map[string]string
	AudioFilter string

	Pipe io.ReadCloser
	proc *exec.Cmd
}

// NewDirectHandle wraps a remote stream URL
func NewDirectHandle(url string, headers map[string]string, audioFilter string) *SourceHandle {
	return &SourceHandle{URL: url, Headers: headers, AudioFilter: audioFilter}
}

// NewPipeHandle wraps a started child process whose stdout carries audio.
// Close kills the process.
func NewPipeHandle(proc *exec.Cmd, stdout io.ReadCloser, audioFilter string) *SourceHandle {
	return &SourceHandle{Pipe: stdout, proc: proc, AudioFilter: audioFilter}
}

// IsPipe reports whether the handle is backed by a child process
func (h *SourceHandle) IsPipe() bool {
	return h.Pipe != nil
}

// Close releases the handle. For piped handles the child process is killed
// and reaped; calling Close more than once is safe.
func (h *SourceHandle) Close() {
	if h == nil {
		return
	}
	if h.Pipe != nil {
		h.Pipe.Close()
		h.Pipe = nil
	}
	if h.proc != nil && h.proc.Process != nil {
		h.proc.Process.Kill()
		h.proc.Wait()
	}
	h.proc = nil
}

// Extractor resolves a provider URL into a playable source
type Extractor interface {
	// Name is the provider tag this extractor serves
	Name() valueobjects.Provider

	// IsValid reports whether the URL belongs to this provider
	IsValid(url string) bool

	// Stream resolves a direct stream handle and the real title
	Stream(ctx context.Context, url string, opts Options) (*SourceHandle, string, error)
}

// Searcher is implemented by extractors that support free-text search
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]*entities.Track, error)
}

// PipeStreamer is implemented by extractors with a child-process fallback
// for when direct stream resolution fails.
type PipeStreamer interface {
	StreamPipe(ctx context.Context, url string, opts Options) (*SourceHandle, string, error)
}

// BundleExpander is implemented by extractors that can expand playlist/mix
// URLs into individual tracks.
type BundleExpander interface {
	IsBundleURL(url string) bool
	ExpandBundle(ctx context.Context, url string, limit int) ([]*entities.Track, error)
}
