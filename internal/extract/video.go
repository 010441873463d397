package extract

import "context"

// AudioExtractor writes the audio track of a video as 16 kHz mono WAV to outPath.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
}

// FFmpegAudioExtractor runs the ffmpeg binary.
type FFmpegAudioExtractor struct {
	Path string
}

// NewFFmpegAudioExtractor returns an extractor using the ffmpeg binary at path.
func NewFFmpegAudioExtractor(path string) *FFmpegAudioExtractor {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegAudioExtractor{Path: path}
}

// ExtractAudio implements AudioExtractor.
func (f *FFmpegAudioExtractor) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	_, err := runCommand(ctx, f.Path,
		"-nostdin", "-y", "-loglevel", "error",
		"-i", videoPath,
		"-vn", "-ac", "1", "-ar", "16000", "-f", "wav",
		outPath)
	return err
}
