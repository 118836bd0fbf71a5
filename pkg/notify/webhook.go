package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// jsonSink posts an apprise-compatible JSON document with the attachment
// inlined as base64.
type jsonSink struct {
	name string
	http *httpTarget
}

func newJSONSink(u *url.URL) *jsonSink {
	return &jsonSink{
		name: redact(u),
		http: newHTTPTarget(u, strings.EqualFold(u.Scheme, "jsons")),
	}
}

func (s *jsonSink) Name() string { return s.name }

type jsonAttachment struct {
	Filename string `json:"filename"`
	Base64   string `json:"base64"`
	Mimetype string `json:"mimetype"`
}

type jsonPayload struct {
	Version     string           `json:"version"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Type        string           `json:"type"`
	Attachments []jsonAttachment `json:"attachments,omitempty"`
}

func (s *jsonSink) Send(ctx context.Context, msg Message) error {
	payload := jsonPayload{
		Version: "1.0",
		Title:   msg.Title,
		Message: msg.Body,
		Type:    "info",
	}
	if msg.Attachment != "" {
		data, err := os.ReadFile(msg.Attachment)
		if err != nil {
			return fmt.Errorf("failed to read attachment: %w", err)
		}
		payload.Attachments = append(payload.Attachments, jsonAttachment{
			Filename: filepath.Base(msg.Attachment),
			Base64:   base64.StdEncoding.EncodeToString(data),
			Mimetype: mimeTypeOf(msg.Attachment),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return s.http.do(ctx, http.MethodPost, header, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	})
}

// formSink posts a multipart form with the attachment as a file field.
type formSink struct {
	name string
	http *httpTarget
}

func newFormSink(u *url.URL) *formSink {
	return &formSink{
		name: redact(u),
		http: newHTTPTarget(u, strings.EqualFold(u.Scheme, "forms")),
	}
}

func (s *formSink) Name() string { return s.name }

func (s *formSink) Send(ctx context.Context, msg Message) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"version", "1.0"},
		{"title", msg.Title},
		{"message", msg.Body},
		{"type", "info"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	if msg.Attachment != "" {
		if err := writeFilePart(w, "file01", msg.Attachment); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish form: %w", err)
	}

	body := buf.Bytes()
	header := http.Header{}
	header.Set("Content-Type", w.FormDataContentType())
	return s.http.do(ctx, http.MethodPost, header, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	})
}

func writeFilePart(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy attachment: %w", err)
	}
	return nil
}

// ntfySink uploads the attachment to an ntfy topic.
type ntfySink struct {
	name string
	http *httpTarget
}

func newNtfySink(u *url.URL) (*ntfySink, error) {
	if strings.Trim(u.Path, "/") == "" {
		return nil, fmt.Errorf("notification target %s: missing ntfy topic", redact(u))
	}
	return &ntfySink{
		name: redact(u),
		http: newHTTPTarget(u, strings.EqualFold(u.Scheme, "ntfys")),
	}, nil
}

func (s *ntfySink) Name() string { return s.name }

func (s *ntfySink) Send(ctx context.Context, msg Message) error {
	header := http.Header{}
	header.Set("X-Title", msg.Title)
	header.Set("X-Message", msg.Body)

	if msg.Attachment == "" {
		return s.http.do(ctx, http.MethodPost, header, func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(msg.Body)), nil
		})
	}

	header.Set("X-Filename", filepath.Base(msg.Attachment))
	return s.http.do(ctx, http.MethodPut, header, func() (io.ReadCloser, error) {
		return os.Open(msg.Attachment)
	})
}

func mimeTypeOf(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
