package storage

import "path/filepath"

// ContentType returns the content type for a file name based on its
// extension. Known web and streaming formats get an explicit MIME type,
// everything else is generic binary.
func ContentType(name string) string {
	switch filepath.Ext(name) {
	case ".html":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".vtt":
		return "text/vtt"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
