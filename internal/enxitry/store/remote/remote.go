// Package remote is a store.Backend that talks to enxitry-tabled over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/enxitry/enxitry/internal/enxitry/store"
)

const (
	EncodingJSON     = "json"
	EncodingProtobuf = "protobuf"

	contentTypeJSON  = "application/json"
	contentTypeProto = "application/x-protobuf"

	maxResponseBody = 32 << 20
)

type Options struct {
	BaseURL  string
	Encoding string // "json" (default) | "protobuf"
	Token    string
	Timeout  time.Duration
}

type Backend struct {
	opts Options

	mu     sync.Mutex
	client *http.Client
}

func New(opts Options) (*Backend, error) {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		return nil, errors.New("remote: base url is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("remote: base url: %w", err)
	}
	switch opts.Encoding {
	case "":
		opts.Encoding = EncodingJSON
	case EncodingJSON, EncodingProtobuf:
	default:
		return nil, fmt.Errorf("remote: unsupported encoding %q", opts.Encoding)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	b := &Backend{opts: opts}
	b.client = b.newClient()
	return b, nil
}

func (b *Backend) newClient() *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{
		Timeout:   b.opts.Timeout,
		Transport: gzhttp.Transport(base),
	}
}

func (b *Backend) httpClient() *http.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

func (b *Backend) tableURL(table string) string {
	return b.opts.BaseURL + "/v1/tables/" + url.PathEscape(table)
}

func (b *Backend) Load(ctx context.Context, table string) (store.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.tableURL(table), nil)
	if err != nil {
		return store.Snapshot{}, err
	}
	req.Header.Set("Accept", b.contentType())
	b.authorize(req)

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("remote load %s: %w", table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("remote load %s: read body: %w", table, err)
	}
	if resp.StatusCode != http.StatusOK {
		return store.Snapshot{}, statusError("load", table, resp.StatusCode, body)
	}
	return b.decode(resp.Header.Get("Content-Type"), body)
}

func (b *Backend) Save(ctx context.Context, table string, snap store.Snapshot) error {
	body, err := b.encode(snap)
	if err != nil {
		return fmt.Errorf("remote save %s: %w", table, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.tableURL(table), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", b.contentType())
	b.authorize(req)

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("remote save %s: %w", table, err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return statusError("save", table, resp.StatusCode, msg)
	}
	return nil
}

// Reopen drops pooled connections and starts over with a fresh client.
func (b *Backend) Reopen(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.client.CloseIdleConnections()
	b.client = b.newClient()
	return nil
}

func (b *Backend) Close() error {
	b.httpClient().CloseIdleConnections()
	return nil
}

func (b *Backend) authorize(req *http.Request) {
	if b.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.opts.Token)
	}
}

func (b *Backend) contentType() string {
	if b.opts.Encoding == EncodingProtobuf {
		return contentTypeProto
	}
	return contentTypeJSON
}

func (b *Backend) encode(snap store.Snapshot) ([]byte, error) {
	if b.opts.Encoding == EncodingProtobuf {
		st, err := snap.ToStruct()
		if err != nil {
			return nil, err
		}
		return proto.Marshal(st)
	}
	return json.Marshal(snap)
}

func (b *Backend) decode(contentType string, body []byte) (store.Snapshot, error) {
	if strings.HasPrefix(contentType, contentTypeProto) {
		var st structpb.Struct
		if err := proto.Unmarshal(body, &st); err != nil {
			return store.Snapshot{}, fmt.Errorf("%w: %v", store.ErrMalformed, err)
		}
		return store.SnapshotFromStruct(&st)
	}
	var snap store.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	return snap, nil
}

// StatusError is a non-2xx reply from the table daemon.
type StatusError struct {
	Op     string
	Table  string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote %s %s: status %d: %s", e.Op, e.Table, e.Status, e.Body)
}

func statusError(op, table string, status int, body []byte) error {
	return &StatusError{Op: op, Table: table, Status: status, Body: strings.TrimSpace(string(body))}
}
