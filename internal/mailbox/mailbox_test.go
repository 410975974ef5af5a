package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"smart-mail-responder-go/internal/model"
	"smart-mail-responder-go/internal/parser"
)

type staticSource struct {
	messages []model.RawMessage
	err      error
}

func (s *staticSource) FetchUnseen(context.Context, int) ([]model.RawMessage, error) {
	return s.messages, s.err
}
func (s *staticSource) Name() string { return "static" }
func (s *staticSource) Close() error { return nil }

func rawFrom(from string) model.RawMessage {
	return model.RawMessage("From: " + from + "\r\nSubject: hi\r\n\r\nbody\r\n")
}

func TestDemoSource(t *testing.T) {
	src, err := NewDemoSource()
	require.NoError(t, err)

	all, err := src.FetchUnseen(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	first, err := parser.Parse(all[0])
	require.NoError(t, err)
	assert.Equal(t, "cliente@empresa.com", first.From)
	assert.Equal(t, "Problema con mi pedido reciente", first.Subject)
	assert.Contains(t, first.Body, "dañado")
	assert.Equal(t, "<demo-1@smart-mail-responder.local>", first.ID)

	second, err := parser.Parse(all[1])
	require.NoError(t, err)
	assert.Equal(t, "Consulta sobre sus servicios", second.Subject)

	two, err := src.FetchUnseen(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestFilteredSourceAllow(t *testing.T) {
	f := Filtered(&staticSource{}, FilterConfig{
		AllowedDomains: []string{"gmail.com", "MiEmpresa.com"},
		Blacklist:      []string{"spammer@gmail.com", "bad.com"},
	})

	assert.True(t, f.Allow("ana@gmail.com"))
	assert.True(t, f.Allow("Jefe@miempresa.com"))
	assert.False(t, f.Allow("spammer@gmail.com"))
	assert.False(t, f.Allow("someone@other.com"))
	assert.False(t, f.Allow(""))

	open := Filtered(&staticSource{}, FilterConfig{Blacklist: []string{"bad.com"}})
	assert.True(t, open.Allow("someone@other.com"))
	assert.False(t, open.Allow("x@bad.com"))
}

func TestFilteredSourceFetch(t *testing.T) {
	big := model.RawMessage("From: ana@gmail.com\r\nSubject: big\r\n\r\n" + strings.Repeat("x", 200))
	src := &staticSource{messages: []model.RawMessage{
		rawFrom("Ana <ana@gmail.com>"),
		rawFrom("eve@evil.com"),
		big,
		rawFrom("luis@gmail.com"),
	}}

	f := Filtered(src, FilterConfig{AllowedDomains: []string{"gmail.com"}, MaxSize: 100})

	got, err := f.FetchUnseen(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, string(got[0]), "ana@gmail.com")
	assert.Contains(t, string(got[1]), "luis@gmail.com")
	assert.Equal(t, "static", f.Name())
}

func TestFilteredSourcePropagatesError(t *testing.T) {
	f := Filtered(&staticSource{err: errors.New("down")}, FilterConfig{})
	_, err := f.FetchUnseen(context.Background(), 10)
	assert.Error(t, err)
}

func TestDecodeRaw(t *testing.T) {
	payload := []byte("From: a@b.c\r\n\r\nhi?>")

	padded, err := decodeRaw(base64.URLEncoding.EncodeToString(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, padded)

	unpadded, err := decodeRaw(base64.RawURLEncoding.EncodeToString(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, unpadded)
}

func newGmailTestServer(t *testing.T, raws map[string]string, query *string) *GmailSource {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			*query = r.URL.Query().Get("q")
			// Newest first, split over two pages.
			if r.URL.Query().Get("pageToken") == "" {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"messages":      []map[string]string{{"id": "new"}, {"id": "mid"}},
					"nextPageToken": "p2",
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{{"id": "old"}},
			})
		case strings.Contains(r.URL.Path, "/users/me/messages/"):
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":  id,
				"raw": base64.URLEncoding.EncodeToString([]byte(raws[id])),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	src, err := NewGmailSource(context.Background(), GmailConfig{},
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return src
}

var gmailRaws = map[string]string{
	"old": "From: a@gmail.com\r\nSubject: old\r\n\r\nfirst\r\n",
	"mid": "From: c@gmail.com\r\nSubject: mid\r\n\r\nmiddle\r\n",
	"new": "From: b@gmail.com\r\nSubject: new\r\n\r\nsecond\r\n",
}

func TestGmailSourceFetchUnseen(t *testing.T) {
	var query string
	src := newGmailTestServer(t, gmailRaws, &query)

	got, err := src.FetchUnseen(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, gmailRaws["old"], string(got[0]))
	assert.Equal(t, gmailRaws["mid"], string(got[1]))
	assert.Equal(t, gmailRaws["new"], string(got[2]))
	assert.Equal(t, "is:unread", query)
}

func TestGmailSourceLimitKeepsOldest(t *testing.T) {
	var query string
	src := newGmailTestServer(t, gmailRaws, &query)

	got, err := src.FetchUnseen(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, gmailRaws["old"], string(got[0]))
	assert.Equal(t, gmailRaws["mid"], string(got[1]))
}
