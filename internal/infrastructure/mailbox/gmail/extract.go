package gmail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/jhillyerd/enmime"
	"golang.org/x/net/html"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/kirillkom/mailtriage/internal/core/domain"
)

// extractBody walks a structured Gmail payload and returns the plain-text
// body, preferring text/plain parts and falling back to stripped text/html.
// An empty string with nil error means the payload had no usable text part.
func extractBody(payload *gmailapi.MessagePart) (string, error) {
	if payload == nil {
		return "", nil
	}

	var plain, htmlBody strings.Builder
	if err := collectParts(payload, &plain, &htmlBody); err != nil {
		return "", err
	}

	if text := strings.TrimSpace(plain.String()); text != "" {
		return text, nil
	}
	if markup := htmlBody.String(); strings.TrimSpace(markup) != "" {
		return strings.TrimSpace(stripHTML(markup)), nil
	}
	return "", nil
}

func collectParts(part *gmailapi.MessagePart, plain, htmlBody *strings.Builder) error {
	if part.Body != nil && part.Body.Data != "" {
		switch {
		case part.MimeType == "text/plain":
			decoded, err := decodeBody(part.Body.Data)
			if err != nil {
				return err
			}
			plain.WriteString(decoded)
		case part.MimeType == "text/html":
			decoded, err := decodeBody(part.Body.Data)
			if err != nil {
				return err
			}
			htmlBody.WriteString(decoded)
		}
	}
	for _, child := range part.Parts {
		if err := collectParts(child, plain, htmlBody); err != nil {
			return err
		}
	}
	return nil
}

func decodeBody(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", domain.WrapError(domain.ErrData, "decode message body", err)
	}
	return string(decoded), nil
}

// extractRawBody parses a base64url raw RFC822 message through a MIME
// envelope parser, used when the structured payload exposes no text part.
func extractRawBody(raw string) (string, error) {
	if raw == "" {
		return "", domain.WrapError(domain.ErrData, "parse raw message", errors.New("empty raw payload"))
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return "", domain.WrapError(domain.ErrData, "decode raw message", err)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(decoded))
	if err != nil {
		return "", domain.WrapError(domain.ErrData, "parse raw message", err)
	}
	if text := strings.TrimSpace(env.Text); text != "" {
		return text, nil
	}
	if strings.TrimSpace(env.HTML) != "" {
		return strings.TrimSpace(stripHTML(env.HTML)), nil
	}
	return "", domain.WrapError(domain.ErrData, "parse raw message", errors.New("no text content"))
}

// stripHTML flattens markup to its visible text, skipping script and style
// subtrees.
func stripHTML(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	var (
		out  strings.Builder
		skip int
	)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return out.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "tr", "li":
				out.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "tr", "li":
				out.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				out.WriteString(string(tokenizer.Text()))
			}
		}
	}
}
