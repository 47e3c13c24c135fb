package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
)

// FilePart is one named file in a multipart upload.
type FilePart struct {
	Field   string
	Name    string
	Content io.Reader
}

// Upload sends a multipart/form-data request with plain fields and file
// parts, reporting progress as an integer percentage of bytes sent. The
// whole transfer is bounded by the client's upload timeout; hitting it
// surfaces ErrUploadTimeout. Auth handling and error normalization follow
// the JSON path.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, files []FilePart, requiresAuth bool, progress func(pct int), out any) error {
	token, err := c.bearer(requiresAuth)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writer.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}

	for _, f := range files {
		part, err := writer.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return fmt.Errorf("create file part %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return fmt.Errorf("read file %s: %w", f.Field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body := &progressReader{
		r:        bytes.NewReader(buf.Bytes()),
		total:    int64(buf.Len()),
		progress: progress,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = int64(buf.Len())
	c.setCommonHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrUploadTimeout
		}
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, out)
}

// progressReader reports cumulative read progress as a percentage.
type progressReader struct {
	r        io.Reader
	total    int64
	sent     int64
	lastPct  int
	progress func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += int64(n)
	if p.progress != nil && p.total > 0 {
		pct := int(p.sent * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.lastPct {
			p.lastPct = pct
			p.progress(pct)
		}
	}
	return n, err
}
