package snapshotService

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"github.com/tanmay-xvx/controller-relay/internals/config"
	"github.com/tanmay-xvx/controller-relay/internals/logging"
	"github.com/tanmay-xvx/controller-relay/internals/models"
)

const (
	observerRating    = 1
	observerFrequency = "199.998"
	observerSuffix    = "_OBS"
	maxRating         = 12
)

// ErrInvalidFeed is returned when the feed body is not a JSON object.
var ErrInvalidFeed = errors.New("invalid data feed")

// Service implements SnapshotLoader against the network data feed.
type Service struct {
	client  *http.Client
	url     string
	retries uint64
	backoff time.Duration
	logger  *slog.Logger
}

// NewSnapshotService creates a loader for cfg.VatsimDataURL. A nil client gets
// one with cfg.UpstreamTimeout.
func NewSnapshotService(cfg *config.Config, client *http.Client, logger *slog.Logger) *Service {
	if client == nil {
		client = &http.Client{Timeout: cfg.UpstreamTimeout}
	}

	return &Service{
		client:  client,
		url:     cfg.VatsimDataURL,
		retries: cfg.UpstreamRetries,
		backoff: 100 * time.Millisecond,
		logger:  logging.Component(logger, "snapshot"),
	}
}

// Load fetches the feed and returns the active controllers.
func (s *Service) Load(ctx context.Context) models.Snapshot {
	body, err := s.fetch(ctx)
	if err != nil {
		s.logger.Error("failed to fetch data feed", logging.Error(err))
		return models.EmptySnapshot()
	}

	snap, err := ParseSnapshot(body)
	if err != nil {
		s.logger.Error("failed to parse data feed", logging.Error(err))
		return models.EmptySnapshot()
	}

	s.logger.Info("snapshot loaded",
		"controllers", len(snap.Controllers),
		"connected_clients", snap.Stats.ConnectedClients)
	return snap
}

// fetch reads the feed body, retrying transport errors and 5xx answers.
func (s *Service) fetch(ctx context.Context) ([]byte, error) {
	backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(s.backoff))

	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("data feed returned %s", resp.Status))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("data feed returned %s", resp.Status)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return body, err
}

// ParseSnapshot extracts the active controllers and network stats from a feed
// document. Observers, the observer frequency, "_OBS" positions and entries
// without a callsign or with a rating outside 1..12 are skipped.
func ParseSnapshot(body []byte) (models.Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return models.Snapshot{}, ErrInvalidFeed
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return models.Snapshot{}, ErrInvalidFeed
	}

	snap := models.EmptySnapshot()
	snap.Stats = models.NetworkStats{
		ConnectedClients: int(root.Get("general.connected_clients").Int()),
		UniqueUsers:      int(root.Get("general.unique_users").Int()),
	}

	root.Get("controllers").ForEach(func(_, c gjson.Result) bool {
		if ctrl, ok := activeController(c); ok {
			snap.Controllers = append(snap.Controllers, ctrl)
		}
		return true
	})
	return snap, nil
}

func activeController(c gjson.Result) (models.Controller, bool) {
	if !c.IsObject() {
		return models.Controller{}, false
	}

	callsign := c.Get("callsign").String()
	rating := c.Get("rating").Int()
	frequency := c.Get("frequency").String()

	switch {
	case callsign == "", rating < 1, rating > maxRating:
		return models.Controller{}, false
	case rating == observerRating, frequency == observerFrequency, strings.Contains(callsign, observerSuffix):
		return models.Controller{}, false
	}

	return models.Controller{
		CID:         c.Get("cid").Int(),
		Name:        c.Get("name").String(),
		Callsign:    callsign,
		Frequency:   frequency,
		Facility:    int(c.Get("facility").Int()),
		Rating:      int(rating),
		Server:      c.Get("server").String(),
		VisualRange: int(c.Get("visual_range").Int()),
		TextATIS:    textATIS(c.Get("text_atis")),
		LogonTime:   c.Get("logon_time").String(),
		LastUpdated: c.Get("last_updated").String(),
	}, true
}

func textATIS(v gjson.Result) []string {
	switch {
	case v.IsArray():
		lines := make([]string, 0, len(v.Array()))
		for _, line := range v.Array() {
			lines = append(lines, line.String())
		}
		return lines
	case v.Type == gjson.String:
		return []string{v.Str}
	default:
		return nil
	}
}
