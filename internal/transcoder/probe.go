package transcoder

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// DefaultFrameRate is used when the probed frame rate cannot be parsed
const DefaultFrameRate = 30.0

// VideoMetadata holds video metadata extracted from ffprobe
type VideoMetadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string         `json:"codec_type"`
	CodecName    string         `json:"codec_name"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Duration     string         `json:"duration"`
	BitRate      string         `json:"bit_rate"`
	FrameRate    string         `json:"r_frame_rate"`
	AvgFrameRate string         `json:"avg_frame_rate"`
	Disposition  map[string]int `json:"disposition"`
}

// Probe extracts duration, frame rate, dimensions and bitrate from a source file
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*models.SourceMedia, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	stdout, stderr, err := f.runner.Run(ctx, f.ffprobePath, args)
	if err != nil {
		return nil, &ProbeError{Path: inputPath, Reason: "ffprobe failed", Stderr: stderrTail(stderr), Err: err}
	}

	return ParseProbeOutput(inputPath, stdout)
}

// ParseProbeOutput converts raw ffprobe JSON into SourceMedia.
// Exported for testing without a real ffprobe binary.
func ParseProbeOutput(inputPath string, data []byte) (*models.SourceMedia, error) {
	var metadata VideoMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, &ProbeError{Path: inputPath, Reason: "failed to parse ffprobe output", Err: err}
	}

	stream := primaryVideoStream(metadata.Streams)
	if stream == nil {
		return nil, &ProbeError{Path: inputPath, Reason: "no video stream"}
	}

	src := &models.SourceMedia{
		Width:  stream.Width,
		Height: stream.Height,
	}

	// Parse duration
	if duration, err := strconv.ParseFloat(metadata.Format.Duration, 64); err == nil {
		src.DurationSeconds = duration
	} else if duration, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
		src.DurationSeconds = duration
	}

	// Parse bitrate
	if bitrate, err := strconv.ParseInt(metadata.Format.BitRate, 10, 64); err == nil {
		src.Bitrate = bitrate
	} else if bitrate, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil {
		src.Bitrate = bitrate
	}

	rate := stream.FrameRate
	if rate == "" || rate == "0/0" {
		rate = stream.AvgFrameRate
	}
	src.FrameRate = ParseFrameRate(rate)

	return src, nil
}

// primaryVideoStream skips cover art so an attached picture is never
// mistaken for the video track.
func primaryVideoStream(streams []StreamInfo) *StreamInfo {
	for i := range streams {
		s := &streams[i]
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}
		return s
	}
	return nil
}

// ParseFrameRate parses ffprobe's "num/den" frame rate. It falls back to
// a plain float and finally to DefaultFrameRate.
func ParseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)

	parts := strings.Split(s, "/")
	if len(parts) == 2 {
		num, errNum := strconv.ParseFloat(parts[0], 64)
		den, errDen := strconv.ParseFloat(parts[1], 64)
		if errNum == nil && errDen == nil && den != 0 {
			if rate := num / den; isUsable(rate) {
				return rate
			}
		}
	}

	if rate, err := strconv.ParseFloat(s, 64); err == nil && isUsable(rate) {
		return rate
	}

	return DefaultFrameRate
}

func isUsable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
