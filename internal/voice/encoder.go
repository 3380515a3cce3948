package voice

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/jonas747/ogg"
	"github.com/paul-berdier/greg-voice/internal/extractor"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

var (
	// ErrEncodingFailed is returned when encoding fails
	ErrEncodingFailed = errors.New("audio encoding failed")
)

// Encoder transcodes a source handle into Discord opus frames via ffmpeg
type Encoder struct {
	ffmpegPath string
	logger     *logger.Logger
}

// NewEncoder creates an encoder using the given ffmpeg binary
func NewEncoder(ffmpegPath string, log *logger.Logger) *Encoder {
	return &Encoder{ffmpegPath: ffmpegPath, logger: log}
}

// EncodeOptions contains options for encoding
type EncodeOptions struct {
	Bitrate     int    // in kbps, default 128
	Application string // audio, voip, or lowdelay
	BufferSize  int    // frame channel capacity
}

// DefaultEncodeOptions returns default encoding options
func DefaultEncodeOptions() *EncodeOptions {
	return &EncodeOptions{
		Bitrate:     128,
		Application: "audio",
		BufferSize:  1024,
	}
}

// EncodeStream starts ffmpeg over the handle and returns a channel of opus
// frames plus an error channel. Both close when the stream ends. The
// handle's pipe process (if any) stays owned by the caller.
func (e *Encoder) EncodeStream(handle *extractor.SourceHandle, options *EncodeOptions) (<-chan []byte, <-chan error, error) {
	if options == nil {
		options = DefaultEncodeOptions()
	}

	cmd, stdout, err := e.startFFmpeg(handle, options)
	if err != nil {
		return nil, nil, err
	}

	frameChannel := make(chan []byte, options.BufferSize)
	errorChannel := make(chan error, 1)

	go e.readFrames(cmd, stdout, frameChannel, errorChannel)

	return frameChannel, errorChannel, nil
}

// startFFmpeg builds and starts the transcode process. Direct handles are
// fetched by ffmpeg itself (with reconnects and optional headers); piped
// handles feed stdin from the extractor's child process.
func (e *Encoder) startFFmpeg(handle *extractor.SourceHandle, options *EncodeOptions) (*exec.Cmd, io.ReadCloser, error) {
	var args []string

	if handle.IsPipe() {
		args = append(args, "-i", "pipe:0")
	} else {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "2",
		)
		if len(handle.Headers) > 0 {
			var sb strings.Builder
			for k, v := range handle.Headers {
				fmt.Fprintf(&sb, "%s: %s\r\n", k, v)
			}
			args = append(args, "-headers", sb.String())
		}
		args = append(args, "-i", handle.URL)
	}

	args = append(args, "-map", "0:a")
	if handle.AudioFilter != "" {
		args = append(args, "-af", handle.AudioFilter)
	}
	args = append(args,
		"-acodec", "libopus",
		"-f", "ogg",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", fmt.Sprintf("%d", options.Bitrate*1000),
		"-application", options.Application,
		"-frame_duration", "20",
		"-loglevel", "error",
		"pipe:1",
	)

	cmd := exec.Command(e.ffmpegPath, args...)
	if handle.IsPipe() {
		cmd.Stdin = handle.Pipe
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ffmpeg stdout: %v", ErrEncodingFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ffmpeg stderr: %v", ErrEncodingFailed, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			e.logger.WithField("ffmpeg", scanner.Text()).Warn("FFmpeg output")
		}
	}()

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("%w: start ffmpeg: %v", ErrEncodingFailed, err)
	}

	return cmd, stdout, nil
}

// readFrames decodes the ogg stream into opus packets, paced at the 20 ms
// frame interval so the channel buffer never runs far ahead of playback.
func (e *Encoder) readFrames(cmd *exec.Cmd, stdout io.ReadCloser, frameChannel chan []byte, errorChannel chan error) {
	defer close(frameChannel)
	defer close(errorChannel)
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
	}()

	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(stdout))

	frameCount := 0
	frameInterval := 20 * time.Millisecond
	startTime := time.Now()

	// Skip the opus header and comment packets
	skipPackets := 2

	for {
		packet, _, err := decoder.Decode()
		if err != nil {
			if err == io.EOF {
				e.logger.WithField("frames", frameCount).Debug("Encoding completed")
				return
			}
			if frameCount > 0 {
				e.logger.WithError(err).WithField("frames", frameCount).Warn("Encoding ended mid-stream")
				return
			}
			errorChannel <- err
			return
		}

		if skipPackets > 0 {
			skipPackets--
			continue
		}
		if len(packet) == 0 {
			continue
		}
		frameCount++

		expectedTime := startTime.Add(time.Duration(frameCount) * frameInterval)
		if now := time.Now(); now.Before(expectedTime) {
			time.Sleep(expectedTime.Sub(now))
		}

		frameChannel <- packet
	}
}
