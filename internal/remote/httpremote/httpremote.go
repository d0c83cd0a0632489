// Package httpremote is a remote.Store that talks to the gateway: documents
// over its REST routes, changes over its WebSocket feed.
package httpremote

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

	"github.com/coder/websocket"
	"go.uber.org/zap"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/logger"
	"ledgersync/internal/remote"
)

const redialDelay = time.Second

// Store is a gateway client.
type Store struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.SugaredLogger

	mu    sync.RWMutex
	token string
}

var _ remote.Store = (*Store)(nil)

// New creates a client for the gateway at baseURL. Deadlines come from the
// caller's context, so httpClient should not set its own Timeout.
func New(baseURL string, httpClient *http.Client) *Store {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        logger.Named("remote.http"),
	}
}

// SetToken sets the bearer token sent with every request.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Store) authHeader() http.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := http.Header{}
	if s.token != "" {
		h.Set("Authorization", "Bearer "+s.token)
	}
	return h
}

// documentRequest mirrors the gateway's write body.
type documentRequest struct {
	OwnerID   string          `json:"owner_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

func newDocumentRequest(doc remote.Document) documentRequest {
	return documentRequest{
		OwnerID:   doc.OwnerID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Data:      doc.Data,
	}
}

func documentsPath(collection string) string {
	return "/api/v1/collections/" + url.PathEscape(collection) + "/documents"
}

func documentPath(collection, id string) string {
	return documentsPath(collection) + "/" + url.PathEscape(id)
}

// Put implements remote.Store.
func (s *Store) Put(ctx context.Context, collection string, doc remote.Document) error {
	return s.do(ctx, http.MethodPut, documentPath(collection, doc.ID), newDocumentRequest(doc), nil)
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, collection, id, ownerID string) error {
	path := documentPath(collection, id) + "?owner_id=" + url.QueryEscape(ownerID)
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

// Get implements remote.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (remote.Document, bool, error) {
	var doc remote.Document
	err := s.do(ctx, http.MethodGet, documentPath(collection, id), nil, &doc)
	if errors.Is(err, apperrors.ErrNotFound) {
		return remote.Document{}, false, nil
	}
	if err != nil {
		return remote.Document{}, false, err
	}
	return doc, true, nil
}

// List implements remote.Store.
func (s *Store) List(ctx context.Context, collection, ownerID string) ([]remote.Document, error) {
	var result struct {
		Documents []remote.Document `json:"documents"`
	}
	path := documentsPath(collection) + "?owner_id=" + url.QueryEscape(ownerID)
	if err := s.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Documents, nil
}

// CreateIfAbsent implements remote.Store.
func (s *Store) CreateIfAbsent(ctx context.Context, collection string, doc remote.Document) (bool, error) {
	var result struct {
		Created bool `json:"created"`
	}
	err := s.do(ctx, http.MethodPost, documentPath(collection, doc.ID)+"/claim", newDocumentRequest(doc), &result)
	if err != nil {
		return false, err
	}
	return result.Created, nil
}

// Ping implements remote.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (s *Store) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = s.authHeader()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError rebuilds the gateway's AppError from an error response.
func decodeError(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Code != "" {
		return apperrors.WithMessage(apperrors.FromCode(body.Error.Code), body.Error.Message)
	}
	return statusError(resp.StatusCode)
}

func statusError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthenticated
	case http.StatusForbidden:
		return apperrors.ErrUnauthorized
	case http.StatusNotFound:
		return apperrors.ErrNotFound
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperrors.ErrUnavailable
	}
	return fmt.Errorf("unexpected status %d", status)
}

// Watch implements remote.Store. The feed is re-dialed after a dropped
// connection; changes made while it was down are left to the next sync.
func (s *Store) Watch(ctx context.Context, collection, ownerID string, fn remote.Handler) (func(), error) {
	conn, err := s.dial(ctx, collection, ownerID)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go s.feed(loopCtx, conn, collection, ownerID, fn, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (s *Store) feedURL(collection, ownerID string) string {
	u := s.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/v1/collections/" + url.PathEscape(collection) + "/changes?owner_id=" + url.QueryEscape(ownerID)
}

// dial opens the feed and waits for its ready frame.
func (s *Store) dial(ctx context.Context, collection, ownerID string) (*websocket.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, s.feedURL(collection, ownerID), &websocket.DialOptions{
		HTTPHeader: s.authHeader(),
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return nil, statusError(resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing change feed: %w", err)
	}

	msg, err := readFrame(ctx, conn)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("waiting for change feed: %w", err)
	}
	if msg.Type != remote.FeedReady {
		conn.CloseNow()
		return nil, fmt.Errorf("change feed sent %q before ready", msg.Type)
	}
	return conn, nil
}

func (s *Store) feed(ctx context.Context, conn *websocket.Conn, collection, ownerID string, fn remote.Handler, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
	}()

	log := s.log.With("collection", collection, "owner_id", ownerID)
	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(redialDelay):
			}
			c, err := s.dial(ctx, collection, ownerID)
			if err != nil {
				log.Warnw("change feed redial failed", "error", err)
				continue
			}
			conn = c
		}

		msg, err := readFrame(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnw("change feed dropped", "error", err)
			conn.CloseNow()
			conn = nil
			continue
		}
		if msg.Type == remote.FeedChange && msg.Change != nil {
			fn(*msg.Change)
		}
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn) (remote.FeedMessage, error) {
	var msg remote.FeedMessage
	_, data, err := conn.Read(ctx)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decoding feed frame: %w", err)
	}
	return msg, nil
}
