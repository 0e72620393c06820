package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bdougie/fieldscan/internal/models"
)

// FFmpegSource decodes single frames by running ffmpeg once per seek position.
type FFmpegSource struct {
	path       string
	fps        float64
	frameCount int
	posMillis  int64
}

type probeOutput struct {
	Streams []struct {
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// OpenFFmpeg probes the video with ffprobe for its frame rate and frame count.
func OpenFFmpeg(ctx context.Context, videoPath string) (*FFmpegSource, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, &models.SourceUnreadableError{Path: videoPath, Err: err}
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,avg_frame_rate,nb_frames:format=duration",
		"-of", "json",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, &models.SourceUnreadableError{Path: videoPath, Err: fmt.Errorf("ffprobe: %w", err)}
	}

	fps, frames, err := parseProbe(output)
	if err != nil {
		return nil, &models.SourceUnreadableError{Path: videoPath, Err: err}
	}

	return &FFmpegSource{path: videoPath, fps: fps, frameCount: frames}, nil
}

func parseProbe(output []byte) (float64, int, error) {
	var probe probeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video stream")
	}
	stream := probe.Streams[0]

	fps := parseRate(stream.RFrameRate)
	if fps <= 0 {
		fps = parseRate(stream.AvgFrameRate)
	}
	// Frame rate is truncated to a whole number, matching how the frame walk
	// has always computed duration.
	fps = float64(int(fps))

	frames, err := strconv.Atoi(stream.NbFrames)
	if err != nil || frames <= 0 {
		// Some containers omit nb_frames; derive it from the duration.
		duration, derr := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
		if derr != nil {
			return 0, 0, fmt.Errorf("frame count unavailable")
		}
		frames = int(duration * fps)
	}

	return fps, frames, nil
}

func parseRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func (s *FFmpegSource) FrameCount() int { return s.frameCount }

func (s *FFmpegSource) FPS() float64 { return s.fps }

func (s *FFmpegSource) SeekMillis(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("negative seek position %d", ms)
	}
	s.posMillis = ms
	return nil
}

// Read decodes the frame at the current position as JPEG bytes.
func (s *FFmpegSource) Read(ctx context.Context) (Frame, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", float64(s.posMillis)/1000),
		"-i", s.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}

	return JPEGFrame(stdout.Bytes()), nil
}

func (s *FFmpegSource) Close() error { return nil }

// JPEGFrame is an already encoded frame.
type JPEGFrame []byte

func (f JPEGFrame) Save(path string) error {
	return os.WriteFile(path, f, 0644)
}

func (f JPEGFrame) Close() error { return nil }
