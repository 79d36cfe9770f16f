// Package gmail implements the mailbox capability over the Gmail REST API.
// OAuth bootstrapping is owned externally: the adapter only loads an already
// issued token and reports a missing or rejected one as an auth failure.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/kirillkom/mailtriage/internal/core/domain"
)

const gmailUser = "me"

type Client struct {
	srv   *gmailapi.Service
	query string
}

type Options struct {
	CredentialsFile string
	TokenFile       string
	// Query selects which messages count as work, e.g.
	// "category:primary is:unread".
	Query string
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Query == "" {
		opts.Query = "category:primary is:unread"
	}

	creds, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, domain.WrapError(domain.ErrAuth, "read gmail credentials", err)
	}
	oauthConfig, err := google.ConfigFromJSON(creds, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, domain.WrapError(domain.ErrAuth, "parse gmail credentials", err)
	}

	token, err := tokenFromFile(opts.TokenFile)
	if err != nil {
		return nil, domain.WrapError(domain.ErrAuth, "load gmail token", err)
	}

	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{srv: srv, query: opts.Query}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

func (c *Client) ListUnread(ctx context.Context, max int) ([]domain.MailItem, error) {
	call := c.srv.Users.Messages.List(gmailUser).Q(c.query).Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	listed, err := call.Do()
	if err != nil {
		return nil, wrapGmailError("list unread", err)
	}

	items := make([]domain.MailItem, 0, len(listed.Messages))
	for _, ref := range listed.Messages {
		msg, err := c.srv.Users.Messages.Get(gmailUser, ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date").
			Context(ctx).Do()
		if err != nil {
			wrapped := wrapGmailError("fetch metadata", err)
			if domain.IsKind(wrapped, domain.ErrAuth) {
				return nil, wrapped
			}
			// Isolated per-message failure; the rest of the batch proceeds.
			slog.Warn("gmail_metadata_failed", "message_id", ref.Id, "error", wrapped)
			continue
		}
		items = append(items, toMailItem(msg))
	}
	return items, nil
}

func toMailItem(msg *gmailapi.Message) domain.MailItem {
	item := domain.MailItem{
		ID:         msg.Id,
		Snippet:    msg.Snippet,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return item
	}
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			item.Subject = header.Value
		case "From":
			item.Sender = header.Value
		}
	}
	return item
}

func (c *Client) FetchBody(ctx context.Context, id string) (string, error) {
	msg, err := c.srv.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		return "", wrapGmailError("fetch message", err)
	}

	body, err := extractBody(msg.Payload)
	if err != nil {
		return "", err
	}
	if body != "" {
		return body, nil
	}

	// Some messages only expose a usable body through the raw RFC822 form.
	raw, err := c.srv.Users.Messages.Get(gmailUser, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return "", wrapGmailError("fetch raw message", err)
	}
	return extractRawBody(raw.Raw)
}

func (c *Client) MarkRead(ctx context.Context, id string) error {
	_, err := c.srv.Users.Messages.Modify(gmailUser, id, &gmailapi.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return wrapGmailError("mark read", err)
	}
	return nil
}
