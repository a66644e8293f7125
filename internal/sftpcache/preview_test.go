package sftpcache

import (
	"encoding/base64"
	"testing"
)

func TestBuildPreview(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	webp := append([]byte("RIFF\x00\x00\x00\x00WEBP"), 0, 1)
	riffWave := []byte("RIFF\x00\x00\x00\x00WAVEfmt \x00")

	tests := []struct {
		name     string
		path     string
		data     []byte
		isImage  bool
		isText   bool
		mimeType string
	}{
		{"jpeg", "a.bin", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0}, true, false, "image/jpeg"},
		{"png", "pic", png, true, false, "image/png"},
		{"gif", "x.gif", []byte("GIF89a\x01\x00"), true, false, "image/gif"},
		{"webp", "x.webp", webp, true, false, "image/webp"},
		{"riff but not webp", "x.wav", riffWave, false, false, ""},
		{"json", "conf.JSON", []byte(`{"a":1}`), false, true, "application/json"},
		{"yaml", "k.yml", []byte("a: 1\n"), false, true, "application/x-yaml"},
		{"markdown", "README.md", []byte("# hi"), false, true, "text/markdown"},
		{"unknown ext", "notes.txt", []byte("plain"), false, true, "text/plain"},
		{"binary", "a.out", []byte{0x7f, 'E', 'L', 'F', 0, 0}, false, false, ""},
		{"empty", "empty", nil, false, true, "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := buildPreview(tt.path, tt.data)
			if p.IsImage != tt.isImage || p.IsText != tt.isText || p.MimeType != tt.mimeType {
				t.Fatalf("preview = %+v", p)
			}
			if p.Size != int64(len(tt.data)) {
				t.Errorf("Size = %d", p.Size)
			}
			switch {
			case p.IsImage:
				raw, err := base64.StdEncoding.DecodeString(p.Content)
				if err != nil || string(raw) != string(tt.data) {
					t.Errorf("image content does not decode to the input")
				}
			case p.IsText:
				if p.Content != string(tt.data) {
					t.Errorf("text content = %q", p.Content)
				}
			default:
				if p.Content != "" {
					t.Errorf("binary preview carries content")
				}
			}
		})
	}
}

func TestTextSniffOnlyChecksPrefix(t *testing.T) {
	data := make([]byte, textSniffLen+10)
	for i := range data {
		data[i] = 'a'
	}
	data[textSniffLen+5] = 0
	if !looksLikeText(data) {
		t.Error("NUL beyond the sniff window made the file binary")
	}
	data[10] = 0
	if looksLikeText(data) {
		t.Error("NUL inside the sniff window not detected")
	}
}
