package newsletter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jedmorris/syncforge/pkg/httpclient"
)

const beehiivBaseURL = "https://api.beehiiv.com/v2"

// BeehiivClient lists subscribers for the nightly reconciliation pass.
// Inbound sync is normally webhook-driven; this client exists only to
// re-list the full active set and catch what a missed webhook did not.
type BeehiivClient struct {
	http          *httpclient.Client
	apiKey        string
	publicationID string
}

// NewBeehiivClient constructs a BeehiivClient.
func NewBeehiivClient(hc *httpclient.Client, apiKey, publicationID string) *BeehiivClient {
	return &BeehiivClient{http: hc, apiKey: apiKey, publicationID: publicationID}
}

// BeehiivSubscriber is one subscriber record as returned by the list endpoint.
type BeehiivSubscriber struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Tags  []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Created string `json:"created"`
}

type subscribersPage struct {
	Data         []BeehiivSubscriber `json:"data"`
	TotalResults int                 `json:"total_results"`
}

// GetAllSubscribers pages through every subscriber with the given status.
func (c *BeehiivClient) GetAllSubscribers(ctx context.Context, status string) ([]BeehiivSubscriber, error) {
	var all []BeehiivSubscriber
	page := 1

	for {
		query := url.Values{"limit": {"100"}, "expand[]": {"tags"}, "status": {status}, "page": {fmt.Sprint(page)}}
		u := fmt.Sprintf("%s/publications/%s/subscriptions?%s", beehiivBaseURL, c.publicationID, query.Encode())

		req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		var pg subscribersPage
		err = json.NewDecoder(resp.Body).Decode(&pg)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding subscribers page: %w", err)
		}
		if len(pg.Data) == 0 {
			break
		}
		all = append(all, pg.Data...)
		if len(all) >= pg.TotalResults {
			break
		}
		page++
	}
	return all, nil
}
