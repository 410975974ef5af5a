package mailbox

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/sirupsen/logrus"

	"smart-mail-responder-go/internal/model"
)

// FilterConfig restricts which messages a source hands to the pipeline.
type FilterConfig struct {
	AllowedDomains []string
	Blacklist      []string
	MaxSize        int
}

// FilteredSource drops oversized messages and senders outside the
// allowed domains or on the blacklist.
type FilteredSource struct {
	Source
	allowed   map[string]struct{}
	blacklist map[string]struct{}
	maxSize   int
}

// Filtered wraps src with the given filter
func Filtered(src Source, cfg FilterConfig) *FilteredSource {
	return &FilteredSource{
		Source:    src,
		allowed:   toSet(cfg.AllowedDomains),
		blacklist: toSet(cfg.Blacklist),
		maxSize:   cfg.MaxSize,
	}
}

// FetchUnseen fetches from the wrapped source and applies the filter
func (f *FilteredSource) FetchUnseen(ctx context.Context, limit int) ([]model.RawMessage, error) {
	messages, err := f.Source.FetchUnseen(ctx, limit)
	if err != nil {
		return nil, err
	}

	kept := messages[:0]
	for _, raw := range messages {
		if f.maxSize > 0 && len(raw) > f.maxSize {
			logrus.Warnf("Dropping message of %d bytes (max %d)", len(raw), f.maxSize)
			continue
		}
		sender := senderOf(raw)
		if !f.Allow(sender) {
			logrus.WithField("from", sender).Info("Dropping message from filtered sender")
			continue
		}
		kept = append(kept, raw)
	}
	return kept, nil
}

// Allow reports whether mail from address passes the filter. Blacklist
// entries match either a full address or a domain.
func (f *FilteredSource) Allow(address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	domain := ""
	if i := strings.LastIndex(address, "@"); i >= 0 {
		domain = address[i+1:]
	}

	if _, ok := f.blacklist[address]; ok {
		return false
	}
	if _, ok := f.blacklist[domain]; ok && domain != "" {
		return false
	}
	if len(f.allowed) == 0 {
		return true
	}
	_, ok := f.allowed[domain]
	return ok
}

// senderOf reads only the header block of raw and returns the From address.
func senderOf(raw []byte) string {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return ""
	}
	mh := mail.Header{}
	mh.Header.Header = h
	addrs, err := mh.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].Address
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
