package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/textproto"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// MaxUploadSize bounds template sample uploads
const MaxUploadSize = 16 << 20

// ProgressFunc receives the number of body bytes sent so far and the total
type ProgressFunc func(sent, total int64)

type MediaResponse struct {
	ID string `json:"id"`
}

type progressReader struct {
	r     *bytes.Reader
	total int64
	sent  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

// Len lets retryablehttp set the content length
func (p *progressReader) Len() int {
	return p.r.Len()
}

// UploadMedia posts a file as multipart form data. progress is called as
// the body is written on every attempt.
func (c *Client) UploadMedia(ctx context.Context, file io.Reader, filename, mimeType string, progress ProgressFunc) (*MediaResponse, error) {
	if c.Config.PhoneNumberID == "" {
		return nil, ErrNotConfigured
	}

	fileData, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	if len(fileData) > MaxUploadSize {
		return nil, errors.Errorf("file exceeds %d bytes", MaxUploadSize)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(filename)+`"`)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, errors.Wrap(err, "create form part")
	}
	if _, err := part.Write(fileData); err != nil {
		return nil, errors.Wrap(err, "write form part")
	}
	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return nil, errors.Wrap(err, "write form field")
	}
	if err := writer.WriteField("type", mimeType); err != nil {
		return nil, errors.Wrap(err, "write form field")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close form")
	}

	payload := body.Bytes()
	total := int64(len(payload))
	bodyFunc := func() (io.Reader, error) {
		return &progressReader{r: bytes.NewReader(payload), total: total, fn: progress}, nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", c.endpoint(c.Config.PhoneNumberID, "media"), bodyFunc)
	if err != nil {
		return nil, errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", UserAgent)

	respBody, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upload failed")
	}

	var mediaResp MediaResponse
	if err := json.Unmarshal(respBody, &mediaResp); err != nil {
		return nil, errors.Wrap(err, "decode upload response")
	}

	c.log.WithField("filename", filename).WithField("id", mediaResp.ID).Info("media uploaded")
	return &mediaResp, nil
}

func escapeQuotes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
