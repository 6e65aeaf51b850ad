package storage

import "testing"

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"segment", "stream_720p_014.ts", "video/mp2t"},
		{"variant playlist", "stream_360p.m3u8", "application/vnd.apple.mpegurl"},
		{"master playlist", "master.m3u8", "application/vnd.apple.mpegurl"},
		{"preview image", "preview.jpg", "image/jpeg"},
		{"sprite sheet", "thumbs_3.jpg", "image/jpeg"},
		{"cue sheet", "thumbnails.vtt", "text/vtt"},
		{"html", "index.html", "text/html"},
		{"css", "player.css", "text/css"},
		{"js", "player.js", "application/javascript"},
		{"png", "logo.png", "image/png"},
		{"unknown", "source.mkv", "application/octet-stream"},
		{"no extension", "LICENSE", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentType(tt.file); got != tt.want {
				t.Errorf("ContentType(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}
