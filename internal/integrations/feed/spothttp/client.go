package spothttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/SpotBox/internal/integrations/feed"
	"github.com/BearBump/SpotBox/internal/models"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL = "https://api.findmespot.com/spot-main-web/consumer/rest-api/2.0/public/feed"
	DefaultTimeout = 30 * time.Second

	// PageSize is the fixed number of messages SPOT returns per page.
	PageSize = 50

	userAgent       = "SpotBox/1.0"
	noMessagesCode  = "E-0195"
	dateRangeLayout = "2006-01-02T15:04:05-0000"
	maxPages        = 200
)

type Client struct {
	baseURL  string
	feedID   string
	password string
	httpc    *http.Client
}

var _ feed.Client = (*Client)(nil)

func New(baseURL, feedID, password string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		feedID:   feedID,
		password: password,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type feedResponse struct {
	Response *struct {
		FeedMessageResponse *struct {
			Count      int `json:"count"`
			TotalCount int `json:"totalCount"`
			Messages   struct {
				Message json.RawMessage `json:"message"`
			} `json:"messages"`
		} `json:"feedMessageResponse"`
		Errors *struct {
			Error json.RawMessage `json:"error"`
		} `json:"errors"`
	} `json:"response"`
}

type apiError struct {
	Code        string `json:"code"`
	Text        string `json:"text"`
	Description string `json:"description"`
}

type rawMessage struct {
	MessengerID   string `json:"messengerId"`
	MessengerName string `json:"messengerName"`
	DateTime      string `json:"dateTime"`
	UnixTime      any    `json:"unixTime"`
	Latitude      any    `json:"latitude"`
	Longitude     any    `json:"longitude"`
	Altitude      any    `json:"altitude"`
	MessageType   string `json:"messageType"`
	BatteryState  string `json:"batteryState"`
}

type page struct {
	positions []models.Position
	// raw counts upstream messages, including ones that failed to normalize.
	raw   int
	total int
}

func (c *Client) GetLatestPosition(ctx context.Context, password string) (*models.Position, error) {
	p, err := c.fetch(ctx, "latest.json", c.params(password))
	if err != nil {
		return nil, err
	}
	if len(p.positions) == 0 {
		return nil, nil
	}
	latest := p.positions[0]
	for _, pos := range p.positions[1:] {
		if pos.Timestamp.After(latest.Timestamp) {
			latest = pos
		}
	}
	return &latest, nil
}

func (c *Client) GetMessages(ctx context.Context, q feed.MessagesQuery) ([]models.Position, error) {
	start := q.Start
	if start <= 0 {
		start = 1
	}
	params := c.params(q.Password)
	if q.Count <= 0 {
		params.Set("start", strconv.Itoa(start))
		p, err := c.fetch(ctx, "message.json", params)
		if err != nil {
			return nil, err
		}
		return p.positions, nil
	}
	return c.paginate(ctx, params, start, q.Count)
}

func (c *Client) GetMessagesByDateRange(ctx context.Context, q feed.DateRangeQuery) ([]models.Position, error) {
	if q.From.IsZero() || q.To.IsZero() || q.To.Before(q.From) {
		return nil, errors.New("invalid date range")
	}
	if q.To.Sub(q.From) > feed.MaxDateRange {
		return nil, feed.ErrRangeTooLarge
	}
	params := c.params(q.Password)
	params.Set("startDate", q.From.UTC().Format(dateRangeLayout))
	params.Set("endDate", q.To.UTC().Format(dateRangeLayout))
	return c.paginate(ctx, params, 1, 0)
}

// TestConnection tries the cheap latest endpoint first, then one page of
// history.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.fetch(ctx, "latest.json", c.params(""))
	if err == nil {
		return true
	}
	slog.Warn("spot latest.json check failed", "error", err.Error())

	params := c.params("")
	params.Set("start", "1")
	if _, err := c.fetch(ctx, "message.json", params); err != nil {
		slog.Warn("spot message.json check failed", "error", err.Error())
		return false
	}
	return true
}

// paginate walks message.json from start. count <= 0 means until the
// upstream runs out. It never requests a page once count is satisfied.
func (c *Client) paginate(ctx context.Context, params url.Values, start, count int) ([]models.Position, error) {
	var out []models.Position
	for i := 0; i < maxPages; i++ {
		params.Set("start", strconv.Itoa(start))
		p, err := c.fetch(ctx, "message.json", params)
		if err != nil {
			return nil, err
		}
		out = append(out, p.positions...)

		if count > 0 && len(out) >= count {
			return out[:count], nil
		}
		if p.raw < PageSize {
			return out, nil
		}
		if p.total > 0 && start-1+p.raw >= p.total {
			return out, nil
		}
		start += p.raw
	}
	slog.Warn("spot pagination stopped at page limit", "pages", maxPages)
	return out, nil
}

func (c *Client) params(password string) url.Values {
	q := url.Values{}
	if password == "" {
		password = c.password
	}
	if password != "" {
		q.Set("feedPassword", password)
	}
	return q
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) (page, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return page{}, errors.Wrap(err, "parse base url")
	}
	u.Path = path.Join("/", u.Path, c.feedID, endpoint)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return page{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return page{}, &feed.ConnectivityError{Op: endpoint, Err: errors.Wrap(err, "do request")}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return page{}, &feed.UpstreamError{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	var r feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return page{}, &feed.UpstreamError{Op: endpoint, Err: errors.Wrap(err, "decode")}
	}
	if r.Response == nil {
		return page{}, &feed.UpstreamError{Op: endpoint, Message: "missing response object"}
	}
	if r.Response.Errors != nil {
		apiErrs, err := decodeOneOrMany[apiError](r.Response.Errors.Error)
		if err != nil {
			return page{}, &feed.UpstreamError{Op: endpoint, Err: errors.Wrap(err, "decode errors")}
		}
		for _, e := range apiErrs {
			if e.Code == noMessagesCode {
				return page{}, nil
			}
		}
		ue := &feed.UpstreamError{Op: endpoint, Message: "unknown error"}
		if len(apiErrs) > 0 {
			ue.Code = apiErrs[0].Code
			ue.Message = strings.TrimSpace(apiErrs[0].Text + " " + apiErrs[0].Description)
		}
		return page{}, ue
	}
	fmr := r.Response.FeedMessageResponse
	if fmr == nil {
		return page{}, &feed.UpstreamError{Op: endpoint, Message: "missing feedMessageResponse"}
	}

	raws, err := decodeOneOrMany[json.RawMessage](fmr.Messages.Message)
	if err != nil {
		return page{}, &feed.UpstreamError{Op: endpoint, Err: errors.Wrap(err, "decode messages")}
	}

	out := page{raw: len(raws), total: fmr.TotalCount}
	out.positions = make([]models.Position, 0, len(raws))
	for i, raw := range raws {
		pos, err := toPosition(raw)
		if err != nil {
			slog.Warn("skip spot message", "feed_id", c.feedID, "index", i, "error", err.Error())
			continue
		}
		out.positions = append(out.positions, pos)
	}
	return out, nil
}

// decodeOneOrMany accepts either a JSON array or a single object; SPOT
// collapses one-element lists into a bare object.
func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	switch b[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	case '{':
		var one T
		if err := json.Unmarshal(b, &one); err != nil {
			return nil, err
		}
		return []T{one}, nil
	default:
		return nil, fmt.Errorf("unexpected json %q", string(b[:1]))
	}
}

func toPosition(raw json.RawMessage) (models.Position, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m rawMessage
	if err := dec.Decode(&m); err != nil {
		return models.Position{}, &models.ValidationError{Field: "message", Reason: err.Error()}
	}

	asset := strings.TrimSpace(m.MessengerName)
	if asset == "" {
		asset = strings.TrimSpace(m.MessengerID)
	}
	if asset == "" {
		asset = models.UnknownAsset
	}

	var ts time.Time
	var err error
	if m.DateTime != "" {
		ts, err = models.ParseTimestamp(m.DateTime)
	}
	if m.DateTime == "" || (err != nil && m.UnixTime != nil) {
		ts, err = models.ParseTimestamp(m.UnixTime)
	}
	if err != nil {
		return models.Position{}, err
	}

	lat, err := models.ParseCoordinate("latitude", m.Latitude)
	if err != nil {
		return models.Position{}, err
	}
	lon, err := models.ParseCoordinate("longitude", m.Longitude)
	if err != nil {
		return models.Position{}, err
	}

	var alt *float64
	if m.Altitude != nil {
		if v, err := models.ParseCoordinate("altitude", m.Altitude); err == nil {
			alt = &v
		}
	}

	return models.NewPosition(models.Position{
		AssetID:      asset,
		Timestamp:    ts,
		Latitude:     lat,
		Longitude:    lon,
		Altitude:     alt,
		MessageType:  models.StringPtr(m.MessageType),
		BatteryState: models.StringPtr(m.BatteryState),
	})
}
