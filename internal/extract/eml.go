package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/smartdocs/smartdocs/internal/models"
)

// extractEML parses an RFC 5322 message. The text/plain body becomes the document
// text; sender, subject, and date go into metadata so answers can cite who said
// what and when. A message with an empty body falls back to its subject line.
func extractEML(content []byte) (string, models.Metadata, error) {
	var meta models.Metadata

	msg, err := mail.ReadMessage(bytes.NewReader(content))
	if err != nil {
		return "", meta, fmt.Errorf("parse eml: %w", err)
	}

	dec := new(mime.WordDecoder)
	subject := msg.Header.Get("Subject")
	if decoded, derr := dec.DecodeHeader(subject); derr == nil {
		subject = decoded
	}
	meta.Subject = subject

	if from := msg.Header.Get("From"); from != "" {
		if addr, aerr := mail.ParseAddress(from); aerr == nil {
			if addr.Name != "" {
				meta.Sender = fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
			} else {
				meta.Sender = addr.Address
			}
		} else {
			meta.Sender = from
		}
	}
	if t, derr := msg.Header.Date(); derr == nil {
		meta.SentAt = t
	}
	if to := msg.Header.Get("To"); to != "" {
		if meta.Extra == nil {
			meta.Extra = make(map[string]string)
		}
		meta.Extra["recipients"] = to
	}

	body, err := emlBody(msg)
	if err != nil {
		return "", meta, fmt.Errorf("eml body: %w", err)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		body = subject
	}
	return body, meta, nil
}

// emlBody returns the first text/plain part of the message, descending into
// multipart containers. A non-multipart message is its own body.
func emlBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		return readEncodedBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return readEncodedBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return readEncodedBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("multipart message without boundary")
	}
	mr := multipart.NewReader(msg.Body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		partType, _, perr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if perr != nil {
			continue
		}
		if partType == "text/plain" {
			return readEncodedBody(part, part.Header.Get("Content-Transfer-Encoding"))
		}
		if strings.HasPrefix(partType, "multipart/") {
			nested, nerr := emlBody(&mail.Message{
				Header: mail.Header(part.Header),
				Body:   part,
			})
			if nerr == nil && nested != "" {
				return nested, nil
			}
		}
	}
}

// readEncodedBody decodes a body according to its Content-Transfer-Encoding.
func readEncodedBody(r io.Reader, encoding string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
