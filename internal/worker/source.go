package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// DefaultElementBase is the public catalog endpoint element refreshes go
// through when no override is configured.
const DefaultElementBase = "https://celestrak.org"

const fetchAttempts = 3

// HTTPElementSource fetches general-perturbations records over HTTP.
// Transient upstream failures (429 and 5xx) are retried with exponential
// backoff up to three attempts per fetch.
type HTTPElementSource struct {
	base   string
	client *http.Client
}

// NewHTTPElementSource builds a source against base, defaulting to the
// public catalog. client may be nil for a 30s-timeout default.
func NewHTTPElementSource(base string, client *http.Client) *HTTPElementSource {
	if base == "" {
		base = DefaultElementBase
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPElementSource{base: strings.TrimRight(base, "/"), client: client}
}

// gpRecord is the upstream record shape. Only the fields the engine keeps
// are decoded.
type gpRecord struct {
	NoradID  int         `json:"NORAD_CAT_ID"`
	Name     string      `json:"OBJECT_NAME"`
	Type     string      `json:"OBJECT_TYPE"`
	Category string      `json:"CATEGORY"`
	Line1    string      `json:"TLE_LINE1"`
	Line2    string      `json:"TLE_LINE2"`
	Period   json.Number `json:"PERIOD"`
}

// FetchElements retrieves the current elements for one object.
func (s *HTTPElementSource) FetchElements(ctx context.Context, noradID int) (*model.OrbitalObject, error) {
	endpoint := fmt.Sprintf("%s/NORAD/elements/gp.php?CATNR=%d&FORMAT=json", s.base, noradID)
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("bad element endpoint: %w", err)
	}

	body, err := s.fetchWithRetry(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var records []gpRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode elements for %d: %w", noradID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no elements published for %d", noradID)
	}

	rec := records[0]
	if rec.Line1 == "" || rec.Line2 == "" || rec.Name == "" || rec.NoradID == 0 {
		return nil, fmt.Errorf("incomplete element record for %d", noradID)
	}

	period, _ := rec.Period.Float64()
	return &model.OrbitalObject{
		NoradID:       rec.NoradID,
		Name:          rec.Name,
		Category:      rec.Category,
		Type:          model.ParseObjectType(rec.Type),
		Line1:         rec.Line1,
		Line2:         rec.Line2,
		PeriodMinutes: period,
		RefreshedAt:   time.Now().UTC(),
	}, nil
}

func (s *HTTPElementSource) fetchWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		default:
			return nil, backoff.Permanent(fmt.Errorf("upstream status %d", resp.StatusCode))
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(fetchAttempts),
	)
}
