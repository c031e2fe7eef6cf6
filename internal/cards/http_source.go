package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPSource fetches card data from the card database's REST API.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSource) FetchCard(ctx context.Context, cardID string) (Info, error) {
	endpoint := fmt.Sprintf("%s/cards/%s", s.baseURL, url.PathEscape(cardID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Info{}, fmt.Errorf("build card request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("fetch card %s: %w", cardID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Info{}, ErrCardNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("fetch card %s: unexpected status %d", cardID, resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Info{}, fmt.Errorf("decode card %s: %w", cardID, err)
	}
	return info, nil
}
