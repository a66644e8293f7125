package sftpcache

import (
	"bytes"
	"encoding/base64"
	"path"
	"strings"
)

const textSniffLen = 8192

// Preview is a small file returned inline. Image content is base64, text
// content is the file as a string, and anything else has no content.
type Preview struct {
	IsText   bool   `json:"isText"`
	IsImage  bool   `json:"isImage"`
	Content  string `json:"content,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
}

var imageMagic = []struct {
	mime   string
	offset int
	magic  []byte
}{
	{"image/jpeg", 0, []byte{0xFF, 0xD8}},
	{"image/png", 0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
	{"image/gif", 0, []byte("GIF89a")},
	{"image/webp", 8, []byte("WEBP")},
}

var textMimeByExt = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"md":   "text/markdown",
	"yaml": "application/x-yaml",
	"yml":  "application/x-yaml",
}

func sniffImage(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for _, m := range imageMagic {
		end := m.offset + len(m.magic)
		if len(data) < end || !bytes.Equal(data[m.offset:end], m.magic) {
			continue
		}
		if m.mime == "image/webp" && !bytes.HasPrefix(data, []byte("RIFF")) {
			continue
		}
		return m.mime
	}
	return ""
}

func looksLikeText(data []byte) bool {
	n := min(len(data), textSniffLen)
	return bytes.IndexByte(data[:n], 0) < 0
}

func textMime(p string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if m, ok := textMimeByExt[ext]; ok {
		return m
	}
	return "text/plain"
}

// buildPreview classifies data read from path p.
func buildPreview(p string, data []byte) Preview {
	size := int64(len(data))
	if mime := sniffImage(data); mime != "" {
		return Preview{IsImage: true, Content: base64.StdEncoding.EncodeToString(data), MimeType: mime, Size: size}
	}
	if looksLikeText(data) {
		return Preview{IsText: true, Content: strings.ToValidUTF8(string(data), "\uFFFD"), MimeType: textMime(p), Size: size}
	}
	return Preview{Size: size}
}
