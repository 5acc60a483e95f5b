package eventprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
)

// httpClient fetches one sport's scoreboard per poll (spec §4.B's "one
// request per sport's scoreboard, not per event"), modeled on the teacher's
// goalserve_http.PregameClient: a single *http.Client with a fixed timeout,
// one JSON GET per call, no per-request connection reuse surprises.
type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPClient(baseURL, apiKey string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// scoreboardEvent is the wire shape for one event within a sport's
// scoreboard response.
type scoreboardEvent struct {
	EventID        string          `json:"event_id"`
	League         string          `json:"league"`
	HomeTeam       string          `json:"home_team"`
	AwayTeam       string          `json:"away_team"`
	ScheduledStart time.Time       `json:"scheduled_start"`
	Status         string          `json:"status"` // "scheduled" | "live" | "final"
	HomeScore      int             `json:"home_score"`
	AwayScore      int             `json:"away_score"`
	Period         string          `json:"period"`
	SecondsRemain  float64         `json:"seconds_remaining"`
	Possession     string          `json:"possession"`
	Plays          []scoreboardPlay `json:"plays"`
}

type scoreboardPlay struct {
	PlayID  string    `json:"play_id"`
	Kind    string    `json:"kind"` // "score" | "turnover" | "period_end" | "other"
	Scoring bool      `json:"scoring"`
	Time    time.Time `json:"time"`
}

type scoreboardResponse struct {
	Sport  string            `json:"sport"`
	Events []scoreboardEvent `json:"events"`
}

// fetch performs the sport's single scoreboard GET. A 429 is surfaced
// wrapped in domain.ErrRateLimited so the caller can withhold it from the
// circuit breaker; any other non-200 or transport error is domain.ErrTransient.
func (c *httpClient) fetch(ctx context.Context, sport string) (*scoreboardResponse, error) {
	url := fmt.Sprintf("%s/scoreboard/%s?api_key=%s", c.baseURL, sport, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("eventprovider: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eventprovider: fetch %s: %w: %w", sport, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("eventprovider: %s rate limited: %w", sport, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eventprovider: %s status %d: %w", sport, resp.StatusCode, domain.ErrTransient)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("eventprovider: read %s body: %w: %w", sport, domain.ErrTransient, err)
	}

	var out scoreboardResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("eventprovider: parse %s body: %w", sport, err)
	}
	return &out, nil
}
