// Package gamma provides a client for the public Polymarket Gamma API.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client provides access to the Gamma REST API.
type Client struct {
	apiURL         string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a Gamma API client.
func NewClient(apiURL string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		apiURL:         apiURL,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// Event is an event as returned by the Gamma /events endpoint. An event
// bundles one or more yes/no markets.
type Event struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Active      bool     `json:"active"`
	Closed      bool     `json:"closed"`
	Volume      float64  `json:"volume"`
	VolumeNum   float64  `json:"volumeNum"`
	Markets     []Market `json:"markets"`
}

// Market is a raw market object from the Gamma API. Outcomes and
// OutcomePrices arrive as JSON-encoded strings inside the JSON payload.
type Market struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	Slug            string   `json:"slug"`
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	Image           string   `json:"image"`
	Outcomes        any      `json:"outcomes"`
	OutcomePrices   any      `json:"outcomePrices"`
	BestBid         *float64 `json:"bestBid"`
	BestAsk         *float64 `json:"bestAsk"`
	LastTradePrice  *float64 `json:"lastTradePrice"`
	VolumeNum       float64  `json:"volumeNum"`
	Volume24hr      float64  `json:"volume24hr"`
	LiquidityNum    float64  `json:"liquidityNum"`
	EnableOrderBook bool     `json:"enableOrderBook"`
	Closed          bool     `json:"closed"`
	StartDate       string   `json:"startDate"`
	EndDate         string   `json:"endDate"`
}

// MarketView is the flattened per-market summary served to clients.
type MarketView struct {
	EventID         string    `json:"eventId,omitempty"`
	MarketID        string    `json:"marketId"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	Image           string    `json:"image"`
	StartDate       string    `json:"startDate"`
	EndDate         string    `json:"endDate"`
	Outcomes        []string  `json:"outcomes"`
	OutcomePrices   []float64 `json:"outcomePrices"`
	BestBid         *float64  `json:"bestBid"`
	BestAsk         *float64  `json:"bestAsk"`
	LastTradePrice  *float64  `json:"lastTradePrice"`
	VolumeNum       float64   `json:"volumeNum"`
	Volume24hr      float64   `json:"volume24hr"`
	LiquidityNum    float64   `json:"liquidityNum"`
	EnableOrderBook bool      `json:"enableOrderBook"`
	Resolved        bool      `json:"resolved"`
}

// EventResult is one search hit: an event plus its simplified markets.
type EventResult struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Slug         string       `json:"slug"`
	Category     string       `json:"category"`
	Description  string       `json:"description"`
	Image        string       `json:"image"`
	StartDate    string       `json:"startDate"`
	EndDate      string       `json:"endDate"`
	Volume       float64      `json:"volume"`
	MarketsCount int          `json:"marketsCount"`
	Markets      []MarketView `json:"markets"`
}

// ActiveEvents fetches the newest open events, one summary per event (its
// first market).
func (c *Client) ActiveEvents(ctx context.Context, limit, offset int) ([]MarketView, error) {
	u := c.apiURL + "/events?" + url.Values{
		"order":     {"creationDate"},
		"ascending": {"false"},
		"closed":    {"false"},
		"limit":     {strconv.Itoa(limit)},
		"offset":    {strconv.Itoa(offset)},
	}.Encode()

	var events []Event
	if err := c.getJSON(ctx, u, &events); err != nil {
		return nil, fmt.Errorf("failed to fetch active events: %w", err)
	}

	views := make([]MarketView, 0, len(events))
	for _, ev := range events {
		var m Market
		if len(ev.Markets) > 0 {
			m = ev.Markets[0]
		}
		v := viewFromMarket(m)
		v.EventID = ev.ID
		if ev.Title != "" {
			v.Title = ev.Title
		}
		if ev.Slug != "" {
			v.Slug = ev.Slug
		}
		if ev.Category != "" {
			v.Category = ev.Category
		}
		if v.Description == "" {
			v.Description = ev.Description
		}
		if ev.Image != "" {
			v.Image = ev.Image
		}
		if ev.StartDate != "" {
			v.StartDate = ev.StartDate
		}
		if ev.EndDate != "" {
			v.EndDate = ev.EndDate
		}
		views = append(views, v)
	}
	return views, nil
}

// TrendingMarkets fetches open markets ordered by total volume descending.
func (c *Client) TrendingMarkets(ctx context.Context, limit, offset int) ([]MarketView, error) {
	u := c.apiURL + "/markets?" + url.Values{
		"order":     {"volumeNum"},
		"ascending": {"false"},
		"closed":    {"false"},
		"limit":     {strconv.Itoa(limit)},
		"offset":    {strconv.Itoa(offset)},
	}.Encode()

	var markets []Market
	if err := c.getJSON(ctx, u, &markets); err != nil {
		return nil, fmt.Errorf("failed to fetch trending markets: %w", err)
	}

	views := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, viewFromMarket(m))
	}
	return views, nil
}

// Search queries the Gamma public-search endpoint by keyword.
// status filters events by lifecycle: "active" (default) or "closed".
func (c *Client) Search(ctx context.Context, query, status string, limitPerType, page int) ([]EventResult, error) {
	if status != "closed" {
		status = "active"
	}
	u := c.apiURL + "/public-search?" + url.Values{
		"q":              {query},
		"events_status":  {status},
		"limit_per_type": {strconv.Itoa(limitPerType)},
		"page":           {strconv.Itoa(page)},
	}.Encode()

	var payload struct {
		Events []Event `json:"events"`
	}
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}

	results := make([]EventResult, 0, len(payload.Events))
	for _, ev := range payload.Events {
		markets := make([]MarketView, 0, len(ev.Markets))
		for _, m := range ev.Markets {
			markets = append(markets, viewFromMarket(m))
		}
		results = append(results, EventResult{
			ID:           ev.ID,
			Title:        ev.Title,
			Slug:         ev.Slug,
			Category:     ev.Category,
			Description:  ev.Description,
			Image:        ev.Image,
			StartDate:    ev.StartDate,
			EndDate:      ev.EndDate,
			Volume:       ev.Volume,
			MarketsCount: len(markets),
			Markets:      markets,
		})
	}
	return results, nil
}

// MarketDetails fetches a single market by ID.
func (c *Client) MarketDetails(ctx context.Context, id string) (*Market, error) {
	u := c.apiURL + "/markets?" + url.Values{"id": {id}}.Encode()

	var markets []Market
	if err := c.getJSON(ctx, u, &markets); err != nil {
		return nil, fmt.Errorf("failed to fetch market details: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("market not found: %s", id)
	}
	return &markets[0], nil
}

// View returns the flattened summary of a raw market.
func (m *Market) View() MarketView {
	return viewFromMarket(*m)
}

func viewFromMarket(m Market) MarketView {
	title := m.Question
	if title == "" {
		title = "Untitled Market"
	}
	category := m.Category
	if category == "" {
		category = "Uncategorized"
	}
	return MarketView{
		MarketID:        m.ID,
		Title:           title,
		Slug:            m.Slug,
		Category:        category,
		Description:     m.Description,
		Image:           m.Image,
		StartDate:       m.StartDate,
		EndDate:         m.EndDate,
		Outcomes:        ParseStringList(m.Outcomes),
		OutcomePrices:   ParsePriceList(m.OutcomePrices),
		BestBid:         m.BestBid,
		BestAsk:         m.BestAsk,
		LastTradePrice:  m.LastTradePrice,
		VolumeNum:       m.VolumeNum,
		Volume24hr:      m.Volume24hr,
		LiquidityNum:    m.LiquidityNum,
		EnableOrderBook: m.EnableOrderBook,
		Resolved:        m.Closed,
	}
}

// ParseStringList decodes Gamma's outcomes field, which is either a JSON
// array or a JSON-encoded string of one. Malformed input yields an empty
// list, never an error.
func ParseStringList(raw any) []string {
	switch v := raw.(type) {
	case string:
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return []string{}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// ParsePriceList decodes Gamma's outcomePrices field. Prices arrive as
// decimal strings ("[\"0.75\", \"0.25\"]"); malformed input yields an empty
// list.
func ParsePriceList(raw any) []float64 {
	toFloat := func(s string) (float64, bool) {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	switch v := raw.(type) {
	case string:
		var strs []string
		if err := json.Unmarshal([]byte(v), &strs); err != nil {
			return []float64{}
		}
		out := make([]float64, 0, len(strs))
		for _, s := range strs {
			if f, ok := toFloat(s); ok {
				out = append(out, f)
			}
		}
		return out
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case string:
				if f, ok := toFloat(n); ok {
					out = append(out, f)
				}
			}
		}
		return out
	default:
		return []float64{}
	}
}

func (c *Client) getJSON(ctx context.Context, urlStr string, dst any) error {
	resp, err := c.doRequest(ctx, urlStr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs a GET with linear-backoff retry on transport errors and
// server-side failures.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
