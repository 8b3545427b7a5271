package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/alexjbarnes/reel-sync/internal/httpx"
	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/alexjbarnes/reel-sync/internal/session"
	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	// watchReadLimit caps a single change frame.
	watchReadLimit = 1024 * 1024

	reconnectMin               = time.Second
	reconnectMax               = time.Minute
	reconnectBackoffMultiplier = 2

	// jitterDivisor bounds reconnect jitter to [0, backoff/jitterDivisor).
	jitterDivisor = 2
)

// Change is one server-side write to the user's favorites.
type Change struct {
	Op     string
	ID     models.MovieID
	Record *models.FavoriteRecord
}

// Watch streams the user's favorites changes to fn until ctx is done or
// the server closes the feed. Frames with an unknown op or a bad id are
// logged and skipped. A cancelled ctx returns nil.
func (c *Client) Watch(ctx context.Context, s session.Session, fn func(Change)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + favoritesPath(s) + "/watch"

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + s.Token},
		},
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return fmt.Errorf("dialing change feed: %w", statusError(resp.StatusCode, nil))
		}

		return &httpx.TransientError{Err: fmt.Errorf("dialing change feed: %w", err)}
	}
	defer conn.CloseNow()

	conn.SetReadLimit(watchReadLimit)

	c.logger.Debug("watching favorites", slog.String("user_id", s.UserID))

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}

			return &httpx.TransientError{Err: fmt.Errorf("reading change feed: %w", err)}
		}

		if typ != websocket.MessageText {
			c.logger.Debug("ignoring binary frame on change feed", slog.Int("bytes", len(data)))
			continue
		}

		change, err := parseChange(data)
		if err != nil {
			c.logger.Warn("skipping change", slog.String("error", err.Error()))
			continue
		}

		fn(change)
	}
}

// Follow runs Watch until ctx is done, reconnecting after transient
// failures with exponential backoff. onReconnect, if set, runs before each
// connection attempt after the first. Follow returns nil once ctx is done
// and the error itself when a failure is permanent.
func (c *Client) Follow(ctx context.Context, s session.Session, fn func(Change), onReconnect func()) error {
	backoff := reconnectMin

	for {
		started := time.Now()

		err := c.Watch(ctx, s, fn)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil && !httpx.IsTransient(err) {
			return err
		}

		// A feed that stayed up for a while starts the backoff over.
		if time.Since(started) > reconnectMax {
			backoff = reconnectMin
		}

		reason := "feed closed"
		if err != nil {
			reason = err.Error()
		}

		c.logger.Warn("change feed lost, reconnecting",
			slog.String("reason", reason),
			slog.Duration("backoff", backoff),
		)

		jitter := time.Duration(rand.Int64N(int64(backoff) / jitterDivisor)) //nolint:gosec // reconnect jitter only

		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff = min(backoff*reconnectBackoffMultiplier, reconnectMax)

		if onReconnect != nil {
			onReconnect()
		}
	}
}

var errUnknownOp = errors.New("unknown change op")

func parseChange(data []byte) (Change, error) {
	if !gjson.ValidBytes(data) {
		return Change{}, fmt.Errorf("change frame is not JSON")
	}

	root := gjson.ParseBytes(data)

	op := root.Get("op").String()
	if op != "put" && op != "delete" {
		return Change{}, fmt.Errorf("%w %q", errUnknownOp, op)
	}

	id, err := models.ParseMovieID(root.Get("id").String())
	if err != nil {
		return Change{}, err
	}

	ch := Change{Op: op, ID: id}

	if rec := root.Get("record"); op == "put" && rec.IsObject() {
		parsed, err := models.ParseMovie(rec)
		if err == nil {
			ch.Record = &parsed
		}
	}

	return ch, nil
}
