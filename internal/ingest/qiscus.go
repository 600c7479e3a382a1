package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AngelCh415/leadfunnel/internal/identity"
	"github.com/AngelCh415/leadfunnel/internal/metrics"
	"github.com/AngelCh415/leadfunnel/internal/models"
	"github.com/AngelCh415/leadfunnel/internal/utils"
)

// ErrSourceUnavailable is matched by every SourceError.
var ErrSourceUnavailable = errors.New("message source unavailable")

type SourceError struct {
	Op     string
	RoomID models.RoomID
	Err    error
}

func (e *SourceError) Error() string {
	if e.RoomID != "" {
		return fmt.Sprintf("%s room %s: %v", e.Op, e.RoomID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() []error { return []error{ErrSourceUnavailable, e.Err} }

// Source is the chat platform as seen by the pipeline.
type Source interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListMessages(ctx context.Context, roomID models.RoomID, cursor string) (Page, error)
}

// Page is one slice of a room's history. Next is empty on the last page.
type Page struct {
	Messages []models.Message
	Next     string
}

type QiscusOptions struct {
	BaseURL          string
	AppID            string
	Secret           string
	RoomIDs          []string
	RoomsEndpoint    string
	MessagesEndpoint string
	PageSize         int
	Timeout          time.Duration
	Retries          int
	RequestsPerSec   float64
	Burst            int
}

type QiscusClient struct {
	c       HTTPClient
	opts    QiscusOptions
	limiter *rate.Limiter
	backoff utils.Backoff
	log     *slog.Logger
	m       *metrics.Collectors
}

func NewQiscusClient(c HTTPClient, opts QiscusOptions, log *slog.Logger, m *metrics.Collectors) *QiscusClient {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSec > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst)
	}
	return &QiscusClient{
		c:       c,
		opts:    opts,
		limiter: lim,
		backoff: utils.NewBackoff(200*time.Millisecond, opts.Retries),
		log:     log,
		m:       m,
	}
}

func (q *QiscusClient) PageSize() int { return q.opts.PageSize }

func (q *QiscusClient) newRequest(endpoint string, params url.Values) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		u := strings.TrimRight(q.opts.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("QISCUS-SDK-APP-ID", q.opts.AppID)
		req.Header.Set("QISCUS-SDK-SECRET", q.opts.Secret)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
}

func (q *QiscusClient) call(ctx context.Context, op, endpoint string, params url.Values, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
	defer cancel()
	if err := q.limiter.Wait(ctx); err != nil {
		q.m.Source(op, "error")
		return err
	}
	err := GetJSONWithRetry(ctx, q.c, q.backoff, q.newRequest(endpoint, params), dst)
	if err != nil {
		q.m.Source(op, "error")
		return err
	}
	q.m.Source(op, "ok")
	return nil
}

type roomsResp struct {
	Results struct {
		Rooms []roomJSON `json:"rooms"`
	} `json:"results"`
}

type commentsResp struct {
	Results struct {
		Comments []commentJSON `json:"comments"`
	} `json:"results"`
}

// ListRooms fetches the rooms to scan, optionally restricted to the
// configured room ids. Rooms without an id are dropped.
func (q *QiscusClient) ListRooms(ctx context.Context) ([]models.Room, error) {
	params := url.Values{}
	for _, id := range q.opts.RoomIDs {
		params.Add("room_ids[]", id)
	}
	var resp roomsResp
	if err := q.call(ctx, "list_rooms", q.opts.RoomsEndpoint, params, &resp); err != nil {
		return nil, &SourceError{Op: "list_rooms", Err: err}
	}
	out := make([]models.Room, 0, len(resp.Results.Rooms))
	for _, r := range resp.Results.Rooms {
		room := r.toModel()
		if room.ID == "" {
			q.log.Warn("room without id dropped", slog.String("name", room.Name))
			continue
		}
		out = append(out, room)
	}
	return out, nil
}

// ListMessages fetches one page of comments. An empty cursor asks for the
// first page; otherwise the page after the message with that id.
func (q *QiscusClient) ListMessages(ctx context.Context, roomID models.RoomID, cursor string) (Page, error) {
	params := url.Values{}
	params.Set("room_id", roomID.String())
	params.Set("limit", strconv.Itoa(q.opts.PageSize))
	if cursor != "" {
		params.Set("last_message_id", cursor)
	}
	var resp commentsResp
	if err := q.call(ctx, "list_messages", q.opts.MessagesEndpoint, params, &resp); err != nil {
		return Page{}, &SourceError{Op: "list_messages", RoomID: roomID, Err: err}
	}
	page := Page{Messages: make([]models.Message, 0, len(resp.Results.Comments))}
	for _, c := range resp.Results.Comments {
		page.Messages = append(page.Messages, c.toModel(roomID))
	}
	if n := len(page.Messages); n >= q.opts.PageSize && n > 0 {
		page.Next = page.Messages[n-1].ID
	}
	return page, nil
}

// FetchAll follows the cursor until a short page, a cursor that does not
// advance, or maxPages. truncated reports that maxPages ended the walk while
// the source still had older messages.
func FetchAll(ctx context.Context, src Source, roomID models.RoomID, maxPages int) (msgs []models.Message, truncated bool, err error) {
	var cursor string
	for i := 0; maxPages <= 0 || i < maxPages; i++ {
		page, err := src.ListMessages(ctx, roomID, cursor)
		if err != nil {
			return nil, false, err
		}
		msgs = append(msgs, page.Messages...)
		if page.Next == "" || page.Next == cursor {
			return msgs, false, nil
		}
		cursor = page.Next
	}
	return msgs, true, nil
}

// wire types

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var id models.RoomID
	if err := id.UnmarshalJSON(b); err != nil {
		return err
	}
	*s = flexString(id)
	return nil
}

type participantJSON struct {
	Email  string          `json:"email"`
	UserID flexString      `json:"user_id"`
	Extras json.RawMessage `json:"extras"`
}

type roomJSON struct {
	ID           models.RoomID     `json:"id"`
	RoomID       models.RoomID     `json:"room_id"`
	Name         string            `json:"name"`
	RoomName     string            `json:"room_name"`
	Options      json.RawMessage   `json:"room_options"`
	Participants []participantJSON `json:"participants"`
}

func (r roomJSON) toModel() models.Room {
	room := models.Room{
		ID:   r.ID,
		Name: firstNonEmpty(r.Name, r.RoomName),
	}
	if room.ID == "" {
		room.ID = r.RoomID
	}
	if v, ok := objectField(r.Options, "channel").(string); ok {
		room.Channel = strings.TrimSpace(v)
	}
	for _, p := range r.Participants {
		typ, _ := objectField(p.Extras, "type").(string)
		room.Participants = append(room.Participants, models.Participant{
			Email:  strings.TrimSpace(p.Email),
			UserID: string(p.UserID),
			Type:   typ,
		})
	}
	return room
}

type commentJSON struct {
	ID                flexString `json:"id"`
	Message           string     `json:"message"`
	Type              string     `json:"type"`
	Timestamp         string     `json:"timestamp"`
	UnixNanoTimestamp int64      `json:"unix_nano_timestamp"`
	Email             string     `json:"email"`
	Sender            struct {
		Email  string          `json:"email"`
		Extras json.RawMessage `json:"extras"`
	} `json:"sender"`
	UserExtras json.RawMessage `json:"user_extras"`
}

func (c commentJSON) toModel(roomID models.RoomID) models.Message {
	m := models.Message{
		ID:        string(c.ID),
		RoomID:    roomID,
		Timestamp: strings.TrimSpace(c.Timestamp),
		Body:      c.Message,
		Sender:    firstNonEmpty(c.Sender.Email, c.Email),
		Role:      models.RoleCustomer,
	}
	if m.Timestamp == "" && c.UnixNanoTimestamp > 0 {
		m.Timestamp = time.Unix(0, c.UnixNanoTimestamp).UTC().Format(time.RFC3339Nano)
	}
	senderType, _ := objectField(c.Sender.Extras, "type").(string)
	if senderType == "" {
		senderType, _ = objectField(c.UserExtras, "type").(string)
	}
	switch {
	case c.Type == "system_event":
		m.Role = models.RoleSystem
	case strings.Contains(strings.ToLower(senderType), "system"):
		m.Role = models.RoleSystem
	case identity.IsStaffType(senderType):
		m.Role = models.RoleAgent
	}
	return m
}

// objectField reads key from a JSON object that may itself be encoded as a
// JSON string, which the platform does for room_options and extras.
func objectField(raw json.RawMessage, key string) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil
		}
		raw = json.RawMessage(inner)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj[key]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
