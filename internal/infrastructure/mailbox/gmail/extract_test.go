package gmail

import (
	"encoding/base64"
	"strings"
	"testing"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/kirillkom/mailtriage/internal/core/domain"
)

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmailapi.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmailapi.MessagePartBody{Data: encode("<p>html version</p>")},
			},
			{
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: encode("plain version")},
			},
		},
	}

	body, err := extractBody(payload)
	if err != nil {
		t.Fatalf("extractBody() error = %v", err)
	}
	if body != "plain version" {
		t.Fatalf("expected plain part, got %q", body)
	}
}

func TestExtractBodyFallsBackToStrippedHTML(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "text/html",
		Body: &gmailapi.MessagePartBody{
			Data: encode("<html><head><style>.x{}</style></head><body><p>Hello <b>there</b></p><script>evil()</script></body></html>"),
		},
	}

	body, err := extractBody(payload)
	if err != nil {
		t.Fatalf("extractBody() error = %v", err)
	}
	if !strings.Contains(body, "Hello there") {
		t.Fatalf("expected stripped text, got %q", body)
	}
	if strings.Contains(body, "evil") || strings.Contains(body, ".x{}") {
		t.Fatalf("script/style content leaked: %q", body)
	}
}

func TestExtractBodyWalksNestedParts(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmailapi.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmailapi.MessagePart{
					{
						MimeType: "text/plain",
						Body:     &gmailapi.MessagePartBody{Data: encode("nested body")},
					},
				},
			},
		},
	}

	body, err := extractBody(payload)
	if err != nil {
		t.Fatalf("extractBody() error = %v", err)
	}
	if body != "nested body" {
		t.Fatalf("expected nested plain part, got %q", body)
	}
}

func TestExtractBodyUndecodableIsDataKind(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "text/plain",
		Body:     &gmailapi.MessagePartBody{Data: "%%% not base64 %%%"},
	}

	_, err := extractBody(payload)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrData) {
		t.Fatalf("expected data kind, got %v", err)
	}
}

func TestExtractRawBodyParsesMIME(t *testing.T) {
	raw := strings.Join([]string{
		"From: jane@example.com",
		"To: support@example.com",
		"Subject: Partnership inquiry",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Please add me as a new contact.",
		"",
	}, "\r\n")

	body, err := extractRawBody(encode(raw))
	if err != nil {
		t.Fatalf("extractRawBody() error = %v", err)
	}
	if !strings.Contains(body, "Please add me as a new contact.") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestExtractRawBodyEmptyIsDataKind(t *testing.T) {
	_, err := extractRawBody("")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrData) {
		t.Fatalf("expected data kind, got %v", err)
	}
}
