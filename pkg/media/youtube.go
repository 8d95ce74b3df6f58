// Package media fetches YouTube metadata and audio through yt-dlp and transcribes audio.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// FallbackDuration is reported when metadata cannot be fetched.
const FallbackDuration = 300

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com\/watch\?v=|youtu\.be\/|youtube\.com\/embed\/)([^&\n?#]+)`),
	regexp.MustCompile(`youtube\.com\/watch\?.*v=([^&\n?#]+)`),
}

// ExtractVideoID returns the video id from the common YouTube URL shapes.
func ExtractVideoID(url string) (string, bool) {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(url); len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// VideoInfo is the subset of yt-dlp metadata the pipeline uses.
type VideoInfo struct {
	Title       string `json:"title"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
	Uploader    string `json:"uploader"`
	UploadDate  string `json:"upload_date"`
	Fallback    bool   `json:"-"`
}

// FallbackInfo is used when yt-dlp cannot read metadata.
func FallbackInfo(videoID string) VideoInfo {
	title := "YouTube Video"
	if videoID != "" {
		title = "YouTube Video " + videoID
	}
	return VideoInfo{
		Title:       title,
		Duration:    FallbackDuration,
		Description: "Video information could not be extracted due to access restrictions.",
		Uploader:    "Unknown",
		Fallback:    true,
	}
}

// Runner executes an external command and returns stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return out, nil
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var audioFormats = []string{
	"bestaudio[ext=m4a]/bestaudio/best",
	"bestaudio[ext=webm]/bestaudio/best",
	"bestaudio/best",
	"worst",
}

// Downloader wraps the yt-dlp binary.
type Downloader struct {
	binary string
	run    Runner
}

// NewDownloader returns a yt-dlp wrapper. An empty binary defaults to "yt-dlp" on PATH.
func NewDownloader(binary string) *Downloader {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Downloader{binary: binary, run: execRunner}
}

// NewDownloaderWithRunner swaps command execution, used by tests.
func NewDownloaderWithRunner(binary string, run Runner) *Downloader {
	d := NewDownloader(binary)
	d.run = run
	return d
}

// Info reads metadata with --dump-json, first plainly then with a browser user agent.
func (d *Downloader) Info(ctx context.Context, url string) (VideoInfo, error) {
	attempts := [][]string{
		{"--dump-json", "--no-warnings", "--skip-download", url},
		{"--dump-json", "--no-warnings", "--skip-download", "--user-agent", userAgent, url},
	}
	var lastErr error
	for _, args := range attempts {
		out, err := d.run(ctx, d.binary, args...)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return VideoInfo{}, ctx.Err()
			}
			continue
		}
		var info VideoInfo
		if err := json.Unmarshal(firstLine(out), &info); err != nil {
			lastErr = fmt.Errorf("decode yt-dlp metadata: %w", err)
			continue
		}
		if info.Title == "" {
			info.Title = "Unknown Title"
		}
		return info, nil
	}
	return VideoInfo{}, lastErr
}

// DownloadAudio fetches the audio track into dir, trying progressively looser formats.
func (d *Downloader) DownloadAudio(ctx context.Context, url, dir string) (string, error) {
	template := filepath.Join(dir, "audio.%(ext)s")
	var lastErr error
	for _, format := range audioFormats {
		_, err := d.run(ctx, d.binary,
			"-f", format,
			"-o", template,
			"--no-playlist",
			"--no-progress",
			"--socket-timeout", "60",
			"--retries", "3",
			"--max-filesize", "100M",
			"--user-agent", userAgent,
			url,
		)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if path, ok := findAudio(dir); ok {
			return path, nil
		}
		lastErr = errors.New("yt-dlp produced no audio file")
	}
	return "", fmt.Errorf("download audio: %w", lastErr)
}

func findAudio(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "audio") && !strings.HasSuffix(e.Name(), ".part") {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

func firstLine(out []byte) []byte {
	out = bytes.TrimSpace(out)
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		return out[:i]
	}
	return out
}
