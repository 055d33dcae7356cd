// Package wssource reads process variables from the live feed of another
// pvlogger instance (or anything speaking the same sample JSON) over a
// websocket connection.
package wssource

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/synchlab/pvlogger/pkg/types"
)

const (
	maxRetries       = 10
	baseRetryDelay   = 2 * time.Second
	maxRetryDelay    = 60 * time.Second
	readDeadline     = 90 * time.Second
	pingInterval     = 30 * time.Second
	connectPollDelay = 100 * time.Millisecond
)

// FeedReader maintains the websocket subscription and keeps the most recent
// reading per PV name. Individual PV sources are keys into that cache.
type FeedReader struct {
	host string

	readingMutex sync.RWMutex
	latest       map[types.PVName]types.Reading
}

func NewFeedReader(host string) *FeedReader {
	return &FeedReader{
		host:   host,
		latest: make(map[types.PVName]types.Reading),
	}
}

// Start launches the dial-and-listen loop. It reconnects with exponential
// backoff and returns when ctx is cancelled or the retry budget runs out.
func (f *FeedReader) Start(ctx context.Context) {
	go f.listen(ctx)
}

// Source returns the ValueSource for one PV name carried on the feed.
func (f *FeedReader) Source(name types.PVName) *FeedSource {
	return &FeedSource{reader: f, name: name}
}

func (f *FeedReader) listen(ctx context.Context) {
	u := url.URL{Scheme: "ws", Host: f.host, Path: "/ws"}

	retryCount := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if retryCount > 0 {
			// Exponential backoff, capped
			retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
			log.Infof("retrying feed connection in %v (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}

		log.Infof("connecting to %s", u.String())
		dialer := websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			log.Warnf("feed connection failed: %v", err)
			retryCount++
			if retryCount >= maxRetries {
				log.Errorf("max retries (%d) reached, giving up on feed", maxRetries)
				return
			}
			continue
		}

		log.Info("connected, accepting samples")
		retryCount = 0

		connectionBroken := f.handleConnection(ctx, c)
		c.Close()
		if !connectionBroken {
			return
		}
		log.Warn("feed connection lost, will retry")
	}
}

// handleConnection consumes samples until the connection breaks (true) or
// ctx is cancelled (false).
func (f *FeedReader) handleConnection(ctx context.Context, c *websocket.Conn) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warnf("websocket error: %v", err)
				} else {
					log.Infof("feed connection closed: %v", err)
				}
				return
			}
			c.SetReadDeadline(time.Now().Add(readDeadline))

			if messageType != websocket.TextMessage {
				log.Debugf("ignoring message type %d", messageType)
				continue
			}
			if sample := types.SampleFromJsonBytes(message); sample != nil {
				f.store(sample)
			} else {
				log.Warnf("failed to parse sample: %s", string(message))
			}
		}
	}()

	// Periodic pings keep the connection alive between samples.
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					log.Warnf("failed to send ping: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		log.Info("closing feed connection")
		err := c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Debugf("error sending close message: %v", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return false
	}
}

func (f *FeedReader) store(sample *types.Sample) {
	f.readingMutex.Lock()
	for _, r := range sample.Readings {
		f.latest[r.Name] = r
	}
	f.readingMutex.Unlock()
}

func (f *FeedReader) lookup(name types.PVName) (types.Reading, bool) {
	f.readingMutex.RLock()
	defer f.readingMutex.RUnlock()
	r, ok := f.latest[name]
	return r, ok
}

// FeedSource exposes one PV name of a shared FeedReader as a ValueSource.
type FeedSource struct {
	reader *FeedReader
	name   types.PVName
}

func (s *FeedSource) Name() types.PVName {
	return s.name
}

// Connect waits until the name has been observed on the feed at least once.
// The wait is unbounded; only ctx cancels it.
func (s *FeedSource) Connect(ctx context.Context) error {
	for {
		if _, ok := s.reader.lookup(s.name); ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectPollDelay):
		}
	}
}

func (s *FeedSource) Read() (types.Reading, error) {
	r, ok := s.reader.lookup(s.name)
	if !ok {
		return types.Reading{}, fmt.Errorf("no reading received yet for %s", s.name)
	}
	return r, nil
}

// Close is a no-op; the shared connection belongs to the FeedReader.
func (s *FeedSource) Close() error {
	return nil
}
