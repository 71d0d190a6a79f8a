package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// SoftwareEncoderName is the libx264 fallback used when no hardware encoder works.
const SoftwareEncoderName = "libx264"

// DefaultHardwareEncoders lists hardware H.264 encoders in probe priority order.
var DefaultHardwareEncoders = []string{"h264_nvenc", "h264_qsv", "h264_amf", "h264_videotoolbox"}

// Encoder is one encoding strategy: a named video codec plus its arguments.
type Encoder struct {
	Name     string
	Hardware bool
	Args     []string
}

// SoftwareEncoder returns the libx264 profile.
func SoftwareEncoder(preset string, crf int) Encoder {
	preset = strings.TrimSpace(preset)
	if preset == "" {
		preset = "veryfast"
	}
	if crf <= 0 {
		crf = 23
	}
	return Encoder{
		Name: SoftwareEncoderName,
		Args: []string{"-c:v", SoftwareEncoderName, "-preset", preset, "-crf", strconv.Itoa(crf), "-pix_fmt", "yuv420p"},
	}
}

// HardwareEncoder returns the profile for a named hardware encoder.
func HardwareEncoder(name string) Encoder {
	name = strings.TrimSpace(name)
	args := []string{"-c:v", name}
	switch {
	case strings.HasSuffix(name, "_nvenc"):
		args = append(args, "-preset", "p4", "-cq", "23")
	case strings.HasSuffix(name, "_qsv"):
		args = append(args, "-global_quality", "23")
	case strings.HasSuffix(name, "_amf"):
		args = append(args, "-quality", "balanced", "-rc", "cqp", "-qp_i", "23", "-qp_p", "23")
	default:
		args = append(args, "-b:v", "8M")
	}
	return Encoder{Name: name, Hardware: true, Args: args}
}

func (e Encoder) String() string {
	if e.Hardware {
		return e.Name + " (hardware)"
	}
	return e.Name
}

// Target is the uniform output format clips are normalized to.
type Target struct {
	Width     int
	Height    int
	FrameRate float64
}

// FormatRate renders a frame rate for ffmpeg arguments ("30", "29.97").
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

// ScalePadFilter returns the filter chain that fits a clip inside the target
// box, pads the remainder, resets the sample aspect ratio, and forces the
// frame rate.
func ScalePadFilter(target Target) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%s",
		target.Width, target.Height, target.Width, target.Height, FormatRate(target.FrameRate),
	)
}

// NormalizeArgs builds the argument list for re-encoding one clip.
func NormalizeArgs(input, output string, target Target, enc Encoder) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", input, "-vf", ScalePadFilter(target)}
	args = append(args, enc.Args...)
	return append(args, "-an", "-movflags", "+faststart", output)
}

// ConcatArgs builds the argument list for the single concat-and-encode pass.
// Inputs are scaled and padded again so clips that were passed through on
// aspect ratio alone still land at exactly the target size.
func ConcatArgs(manifest, output string, target Target, enc Encoder) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-f", "concat", "-safe", "0", "-i", manifest, "-vf", ScalePadFilter(target)}
	args = append(args, enc.Args...)
	return append(args, "-r", FormatRate(target.FrameRate), "-an", "-movflags", "+faststart", output)
}

// EncoderTestArgs builds the argument list that checks whether encoder name
// works, using a one-second synthetic colour source.
func EncoderTestArgs(name string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=black:s=256x256:d=1",
		"-t", "1", "-c:v", name, "-f", "null", "-",
	}
}
