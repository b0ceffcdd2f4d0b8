package webook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"webook-events-bot/internal/domain"
	"webook-events-bot/internal/infra/metrics"
)

// listingQuery — GraphQL запрос листинга событий каталога.
const listingQuery = `query getEventListing($lang: String, $limit: Int, $skip: Int, $where: EventFilter, $order: [EventOrder]) {
    eventCollection(locale: $lang, limit: $limit, skip: $skip, where: $where, order: $order) {
        total
        items {
            __typename
            id
            title
            subtitle
            slug
            ticketingUrlSlug
            image11 {
                url
                title
                sys {
                    id
                    publishedAt
                }
            }
            startingPrice
            currencyCode
            eventType
            schedule {
                openDateTime
                closeDateTime
            }
            zone {
                title
            }
            location {
                title
                city
            }
            category {
                id
                title
                slug
            }
        }
    }
}`

// Client запрашивает листинг событий каталога webook по GraphQL API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	locale     string
	breaker    *gobreaker.CircuitBreaker
	now        func() time.Time
}

var _ domain.CatalogClient = (*Client)(nil)

// NewClient создаёт клиента каталога. Повторяющиеся отказы апстрима
// размыкают breaker, и последующие циклы опроса завершаются быстро,
// пока апстрим не восстановится.
func NewClient(apiURL, locale string, timeout time.Duration) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webook",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		locale:     locale,
		breaker:    breaker,
		now:        time.Now,
	}
}

type listingRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type listingResponse struct {
	Data struct {
		EventCollection struct {
			Total int           `json:"total"`
			Items []listingItem `json:"items"`
		} `json:"eventCollection"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// priceValue принимает цену и числом, и строкой — каталог отдаёт оба
// варианта в зависимости от локали.
type priceValue string

func (p *priceValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*p = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = priceValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = priceValue(n.String())
	return nil
}

type listingItem struct {
	Typename         string `json:"__typename"`
	ID               string `json:"id"`
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle"`
	Slug             string `json:"slug"`
	TicketingURLSlug string `json:"ticketingUrlSlug"`
	Image11          *struct {
		URL   string `json:"url"`
		Title string `json:"title"`
		Sys   *struct {
			ID          string     `json:"id"`
			PublishedAt *time.Time `json:"publishedAt"`
		} `json:"sys"`
	} `json:"image11"`
	StartingPrice priceValue `json:"startingPrice"`
	CurrencyCode  string     `json:"currencyCode"`
	EventType     string     `json:"eventType"`
	Schedule      *struct {
		OpenDateTime  *time.Time `json:"openDateTime"`
		CloseDateTime *time.Time `json:"closeDateTime"`
	} `json:"schedule"`
	Zone *struct {
		Title string `json:"title"`
	} `json:"zone"`
	Location *struct {
		Title string `json:"title"`
		City  string `json:"city"`
	} `json:"location"`
	Category *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Slug  string `json:"slug"`
	} `json:"category"`
}

// EventListing возвращает страницу листинга, отсортированную от новых к
// старым по дате публикации. Приватные и уже закрытые события
// отфильтровываются на стороне апстрима.
func (c *Client) EventListing(ctx context.Context, limit, skip int) ([]domain.Listing, error) {
	payload := listingRequest{
		Query: listingQuery,
		Variables: map[string]any{
			"order": "sys_publishedAt_DESC",
			"lang":  c.locale,
			"limit": limit,
			"skip":  skip,
			"where": map[string]any{
				"visibility_not": "private",
				"OR": []map[string]any{
					{"schedule": map[string]any{"closeDateTime_exists": false}},
					{"schedule": map[string]any{"closeDateTime_gte": c.now().UTC().Format(time.RFC3339)}},
				},
			},
		},
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, payload)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Listing), nil
}

func (c *Client) fetch(ctx context.Context, payload listingRequest) ([]domain.Listing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	applyHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("webook", "event_listing", "eventCollection", start, err)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("listing failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", decoded.Errors[0].Message)
	}

	listings := make([]domain.Listing, 0, len(decoded.Data.EventCollection.Items))
	for _, item := range decoded.Data.EventCollection.Items {
		listings = append(listings, item.toDomain())
	}
	return listings, nil
}

func (i listingItem) toDomain() domain.Listing {
	listing := domain.Listing{
		UpstreamID:       i.ID,
		UpstreamSystemID: i.Typename,
		Title:            i.Title,
		Subtitle:         i.Subtitle,
		Slug:             i.Slug,
		TicketingURLSlug: i.TicketingURLSlug,
		StartingPrice:    string(i.StartingPrice),
		CurrencyCode:     i.CurrencyCode,
		EventType:        i.EventType,
	}
	if i.Image11 != nil {
		listing.ImageURL = i.Image11.URL
		listing.ImageTitle = i.Image11.Title
		if i.Image11.Sys != nil {
			listing.ImageSystemID = i.Image11.Sys.ID
			if i.Image11.Sys.PublishedAt != nil {
				listing.PublishedAt = *i.Image11.Sys.PublishedAt
			}
		}
	}
	if i.Schedule != nil {
		if i.Schedule.OpenDateTime != nil {
			listing.OpenDateTime = *i.Schedule.OpenDateTime
		}
		listing.CloseDateTime = i.Schedule.CloseDateTime
	}
	if i.Zone != nil {
		listing.ZoneTitle = i.Zone.Title
	}
	if i.Location != nil {
		listing.LocationTitle = i.Location.Title
		listing.LocationCity = i.Location.City
	}
	if i.Category != nil {
		listing.CategoryTitle = i.Category.Title
		listing.CategorySlug = i.Category.Slug
	}
	return listing
}

// applyHeaders выставляет браузерные заголовки — каталог отклоняет
// запросы без Origin и привычного User-Agent.
func applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Origin", "https://webook.com")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:132.0) Gecko/20100101 Firefox/132.0")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}
