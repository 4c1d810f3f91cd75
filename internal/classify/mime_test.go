package classify

import "testing"

func TestInferMIME(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"data url mediatype", "data:image/png;base64,AAAA", "image/png"},
		{"extension fallback", "https://example.com/a.pdf", "application/pdf"},
		{"unknown extension", "https://example.com/a.xyz", ""},
		{"no extension", "https://example.com/blob", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := InferMIME(c.url); got != c.want {
				t.Errorf("InferMIME(%q) = %q, want %q", c.url, got, c.want)
			}
		})
	}
}

func TestInferExtension(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		mimeType string
		want     string
	}{
		{"mime wins", "https://example.com/blob", "image/png", "png"},
		{"url extension fallback", "https://example.com/a.pdf", "", "pdf"},
		{"filename query param fallback", "https://example.com/blob?filename=report.csv", "", "csv"},
		{"nothing resolvable", "https://example.com/blob", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := InferExtension(c.url, c.mimeType); got != c.want {
				t.Errorf("InferExtension(%q, %q) = %q, want %q", c.url, c.mimeType, got, c.want)
			}
		})
	}
}
