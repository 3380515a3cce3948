package extractor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/internal/utils"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

const (
	infoCacheSize = 500
	infoCacheTTL  = 5 * time.Minute // stream URLs expire upstream
)

// ytdlpInfo is the subset of yt-dlp's --dump-json output we consume
type ytdlpInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
	StreamURL  string  `json:"url,omitempty"`
}

// ytdlpRunner wraps the yt-dlp binary. Shared by the YouTube and SoundCloud
// extractors, which differ only in URL predicates and search prefixes.
type ytdlpRunner struct {
	path   string
	cache  *utils.LRUCache
	logger *logger.Logger
}

func newYtdlpRunner(path string, log *logger.Logger) *ytdlpRunner {
	return &ytdlpRunner{
		path:   path,
		cache:  utils.NewLRUCache(infoCacheSize, infoCacheTTL),
		logger: log,
	}
}

func (r *ytdlpRunner) baseArgs(opts Options) []string {
	args := []string{
		"--no-check-certificate",
		"--geo-bypass",
		"--no-warnings",
	}
	if opts.CookiesFile != "" {
		if _, err := os.Stat(opts.CookiesFile); err == nil {
			args = append(args, "--cookies", opts.CookiesFile)
		}
	}
	if opts.RateLimitBPS > 0 {
		args = append(args, "--limit-rate", strconv.Itoa(opts.RateLimitBPS))
	}
	return args
}

// extractInfo resolves metadata plus the best-audio stream URL for a single
// item. Results are cached for the stream URL lifetime.
func (r *ytdlpRunner) extractInfo(ctx context.Context, url string, opts Options) (*ytdlpInfo, error) {
	if cached, ok := r.cache.Get(url); ok {
		return cached.(*ytdlpInfo), nil
	}

	args := append([]string{
		"--dump-json",
		"--no-playlist",
		"--format", "bestaudio/best",
	}, r.baseArgs(opts)...)
	args = append(args, url)

	output, err := exec.CommandContext(ctx, r.path, args...).Output()
	if err != nil {
		r.logger.WithError(err).WithField("url", url).Debug("yt-dlp extraction failed")
		return nil, fmt.Errorf("%w: yt-dlp: %v", errors.ErrExtractionFailed, err)
	}

	// Skip any non-JSON noise before the object
	jsonStart := strings.Index(string(output), "{")
	if jsonStart == -1 {
		return nil, fmt.Errorf("%w: no JSON in yt-dlp output", errors.ErrExtractionFailed)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(output[jsonStart:], &info); err != nil {
		return nil, fmt.Errorf("%w: parse yt-dlp output: %v", errors.ErrExtractionFailed, err)
	}

	r.cache.Set(url, &info)
	return &info, nil
}

// search runs a yt-dlp search (prefix "ytsearch" or "scsearch") in flat
// mode and returns the matching entries.
func (r *ytdlpRunner) search(ctx context.Context, prefix, query string, limit int) ([]ytdlpInfo, error) {
	if limit <= 0 {
		limit = 5
	}

	args := append([]string{
		"--dump-json",
		"--flat-playlist",
	}, r.baseArgs(Options{})...)
	args = append(args, fmt.Sprintf("%s%d:%s", prefix, limit, query))

	output, err := exec.CommandContext(ctx, r.path, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", errors.ErrExtractionFailed, err)
	}
	return parseJSONLines(output), nil
}

// flatPlaylist expands a playlist/mix URL without resolving stream URLs
func (r *ytdlpRunner) flatPlaylist(ctx context.Context, url string, limit int, opts Options) ([]ytdlpInfo, error) {
	args := append([]string{
		"--dump-json",
		"--flat-playlist",
		"--playlist-items", fmt.Sprintf("1:%d", limit),
	}, r.baseArgs(opts)...)
	args = append(args, url)

	output, err := exec.CommandContext(ctx, r.path, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%w: playlist expansion: %v", errors.ErrExtractionFailed, err)
	}
	return parseJSONLines(output), nil
}

// pipe starts yt-dlp writing raw best-audio bytes to stdout. The caller
// owns the returned process and must kill it through the handle.
func (r *ytdlpRunner) pipe(ctx context.Context, url string, opts Options) (*exec.Cmd, io.ReadCloser, error) {
	args := append([]string{
		"--format", "bestaudio/best",
		"--output", "-",
		"--no-playlist",
		"--quiet",
	}, r.baseArgs(opts)...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, r.path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: yt-dlp stdout: %v", errors.ErrExtractionFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: yt-dlp stderr: %v", errors.ErrExtractionFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("%w: start yt-dlp: %v", errors.ErrExtractionFailed, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			r.logger.WithField("yt-dlp", scanner.Text()).Debug("yt-dlp output")
		}
	}()

	return cmd, stdout, nil
}

// parseJSONLines parses one JSON object per line, skipping noise
func parseJSONLines(output []byte) []ytdlpInfo {
	var infos []ytdlpInfo
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var info ytdlpInfo
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}
