package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"smart-mail-responder-go/internal/model"
)

// GmailConfig holds Gmail API credentials
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	UserEmail    string
}

// GmailSource implements Source using the Gmail API
type GmailSource struct {
	service   *gmail.Service
	userEmail string
}

// NewGmailSource creates a Gmail source authenticated with a refresh token
func NewGmailSource(ctx context.Context, cfg GmailConfig, opts ...option.ClientOption) (*GmailSource, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	opts = append([]option.ClientOption{option.WithTokenSource(tokenSource)}, opts...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	userEmail := cfg.UserEmail
	if userEmail == "" {
		userEmail = "me"
	}

	return &GmailSource{service: service, userEmail: userEmail}, nil
}

// Name returns the source name
func (s *GmailSource) Name() string {
	return "gmail"
}

// FetchUnseen returns the oldest limit unread messages in raw format,
// oldest first, matching the IMAP source. The API lists newest first, so
// every page of ids is read before the oldest are downloaded.
func (s *GmailSource) FetchUnseen(ctx context.Context, limit int) ([]model.RawMessage, error) {
	var ids []string
	err := s.service.Users.Messages.List(s.userEmail).
		Q("is:unread").
		Context(ctx).
		Pages(ctx, func(page *gmail.ListMessagesResponse) error {
			for _, m := range page.Messages {
				ids = append(ids, m.Id)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	messages := make([]model.RawMessage, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]

		msg, err := s.service.Users.Messages.Get(s.userEmail, id).Format("raw").Context(ctx).Do()
		if err != nil {
			logrus.Warnf("Failed to get message %s: %v", id, err)
			continue
		}

		data, err := decodeRaw(msg.Raw)
		if err != nil {
			logrus.Warnf("Failed to decode message %s: %v", id, err)
			continue
		}
		messages = append(messages, data)
	}

	return messages, nil
}

// Close is a no-op for the Gmail API
func (s *GmailSource) Close() error {
	return nil
}

func decodeRaw(data string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail may omit padding.
		return base64.RawURLEncoding.DecodeString(data)
	}
	return b, nil
}
