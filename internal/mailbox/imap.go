package mailbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"smart-mail-responder-go/internal/model"
)

// IMAPConfig holds the connection settings for an IMAP mailbox
type IMAPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	Folders  []string
	Timeout  time.Duration
}

// IMAPSource implements Source over IMAP. A new session is opened for
// every fetch so a dropped connection never outlives a batch.
type IMAPSource struct {
	config IMAPConfig
}

// NewIMAPSource creates a new IMAP source
func NewIMAPSource(cfg IMAPConfig) *IMAPSource {
	if len(cfg.Folders) == 0 {
		cfg.Folders = []string{"INBOX"}
	}
	return &IMAPSource{config: cfg}
}

// Name returns the source name
func (s *IMAPSource) Name() string {
	return "imap"
}

// FetchUnseen walks the configured folders in order and returns up to
// limit unseen messages. Messages are fetched with BODY.PEEK[] so their
// \Seen flag is left untouched.
func (s *IMAPSource) FetchUnseen(ctx context.Context, limit int) ([]model.RawMessage, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	var messages []model.RawMessage
	for _, folder := range s.config.Folders {
		if len(messages) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return messages, err
		}

		fetched, err := s.fetchFolder(c, folder, limit-len(messages))
		if err != nil {
			logrus.WithField("folder", folder).Warnf("Skipping folder: %v", err)
			continue
		}
		messages = append(messages, fetched...)
	}

	return messages, nil
}

func (s *IMAPSource) connect() (*client.Client, error) {
	addr := s.config.Host + ":" + strconv.Itoa(s.config.Port)

	// The dialer timeout also bounds the wait for the server greeting.
	dialer := &net.Dialer{Timeout: s.config.Timeout}

	var (
		c   *client.Client
		err error
	)
	if s.config.TLS {
		c, err = client.DialWithDialerTLS(dialer, addr, nil)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}
	c.Timeout = s.config.Timeout

	if err := c.Login(s.config.Username, s.config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return c, nil
}

func (s *IMAPSource) fetchFolder(c *client.Client, folder string, limit int) ([]model.RawMessage, error) {
	if _, err := c.Select(folder, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	sort.Slice(seqNums, func(i, j int) bool { return seqNums[i] < seqNums[j] })
	if len(seqNums) > limit {
		seqNums = seqNums[:limit]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	ch := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	bySeq := make(map[uint32]model.RawMessage, len(seqNums))
	for msg := range ch {
		r := msg.GetBody(section)
		if r == nil {
			logrus.Warnf("IMAP message %d returned no body", msg.SeqNum)
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			logrus.Warnf("Failed to read IMAP message %d: %v", msg.SeqNum, err)
			continue
		}
		bySeq[msg.SeqNum] = data
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	messages := make([]model.RawMessage, 0, len(bySeq))
	for _, seq := range seqNums {
		if data, ok := bySeq[seq]; ok {
			messages = append(messages, data)
		}
	}
	return messages, nil
}

// Close is a no-op; sessions are closed after each fetch.
func (s *IMAPSource) Close() error {
	return nil
}
