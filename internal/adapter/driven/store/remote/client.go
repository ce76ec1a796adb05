// Package remote is a port.RoomStore backed by another process's room API,
// so participants on different hosts share one store.
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
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/duet/internal/adapter/roomapi"
	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type RoomStore struct {
	base   *url.URL
	client *http.Client
	dialer *websocket.Dialer
}

type Option func(*RoomStore)

func WithHTTPClient(c *http.Client) Option {
	return func(s *RoomStore) {
		s.client = c
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(s *RoomStore) {
		s.dialer = d
	}
}

// New returns a store talking to the server at baseURL, for example
// "http://localhost:8080".
func New(baseURL string, opts ...Option) (*RoomStore, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}

	s := &RoomStore{
		base:   u,
		client: &http.Client{Timeout: 15 * time.Second},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RoomStore) CreateRoom(ctx context.Context) (domain.RoomID, error) {
	var resp roomapi.CreateRoomResponse
	if err := s.do(ctx, http.MethodPost, "/api/rooms", nil, &resp); err != nil {
		return "", err
	}
	return domain.RoomID(resp.ID), nil
}

func (s *RoomStore) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var room roomapi.Room
	if err := s.do(ctx, http.MethodGet, roomPath(id), nil, &room); err != nil {
		return domain.Room{}, err
	}
	return room.Domain(), nil
}

func (s *RoomStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []roomapi.Room
	if err := s.do(ctx, http.MethodGet, "/api/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Domain())
	}
	return out, nil
}

func (s *RoomStore) SetOffer(ctx context.Context, id domain.RoomID, offer domain.SessionDescription) error {
	return s.do(ctx, http.MethodPut, roomPath(id)+"/offer", offer, nil)
}

func (s *RoomStore) SetAnswer(ctx context.Context, id domain.RoomID, answer domain.SessionDescription) error {
	return s.do(ctx, http.MethodPut, roomPath(id)+"/answer", answer, nil)
}

func (s *RoomStore) AppendCandidate(ctx context.Context, id domain.RoomID, side domain.Side, c domain.Candidate) (domain.CandidateEvent, error) {
	var evt roomapi.CandidateEvent
	if err := s.do(ctx, http.MethodPost, candidatesPath(id, side), c, &evt); err != nil {
		return domain.CandidateEvent{}, err
	}
	return evt.Domain(), nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	return s.do(ctx, http.MethodDelete, roomPath(id), nil, nil)
}

func (s *RoomStore) WatchAnswer(ctx context.Context, id domain.RoomID) (<-chan domain.Room, error) {
	return watch(ctx, s, roomPath(id)+"/watch", nil, roomapi.Room.Domain)
}

func (s *RoomStore) WatchCandidates(ctx context.Context, id domain.RoomID, side domain.Side, after uint64) (<-chan domain.CandidateEvent, error) {
	q := url.Values{"after": {strconv.FormatUint(after, 10)}}
	return watch(ctx, s, candidatesPath(id, side)+"/watch", q, roomapi.CandidateEvent.Domain)
}

func (s *RoomStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint("http", path, nil), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unavailable(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// watch opens a stream of JSON frames and converts each into a domain
// value. The channel closes when ctx is cancelled or the server goes away.
func watch[W, T any](ctx context.Context, s *RoomStore, path string, q url.Values, conv func(W) T) (<-chan T, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.endpoint("ws", path, q), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return nil, responseError(resp)
		}
		return nil, unavailable(err)
	}

	out := make(chan T)
	go func() {
		defer close(out)
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() {
			conn.Close()
		})
		defer stop()

		for {
			var w W
			if err := conn.ReadJSON(&w); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("path", path).Msg("Watch stream ended")
				}
				return
			}
			select {
			case out <- conv(w):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *RoomStore) endpoint(scheme, path string, q url.Values) string {
	u := *s.base
	if scheme == "ws" {
		u.Scheme = "ws"
		if s.base.Scheme == "https" {
			u.Scheme = "wss"
		}
	}
	u.Path = s.base.Path + path
	u.RawPath = ""
	u.RawQuery = q.Encode()
	return u.String()
}

// roomPath is unescaped; endpoint escapes it once when building the URL.
func roomPath(id domain.RoomID) string {
	return "/api/rooms/" + id.String()
}

func candidatesPath(id domain.RoomID, side domain.Side) string {
	return roomPath(id) + "/candidates/" + side.String()
}

func responseError(resp *http.Response) error {
	var body roomapi.ErrorResponse
	if resp.Body != nil {
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	}
	return roomapi.ErrorFor(resp.StatusCode, body.Error)
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
