package roadinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/geo"
)

var DefaultOverpassURLs = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.openstreetmap.ru/api/interpreter",
}

var defaultOverpassHTTP = &http.Client{Timeout: 30 * time.Second}

// OverpassClient queries OpenStreetMap road ways, trying each mirror in order.
type OverpassClient struct {
	URLs        []string
	UserAgent   string
	MinInterval time.Duration
	Client      *http.Client

	mu        sync.Mutex
	lastReqAt time.Time
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []geo.Point       `json:"geometry"`
}

func (o *OverpassClient) Ways(ctx context.Context, q Query) ([]Way, error) {
	if err := q.Center.Validate(); err != nil {
		return nil, err
	}
	urls := o.URLs
	if len(urls) == 0 {
		urls = DefaultOverpassURLs
	}

	query := BuildOverpassQuery(q)
	var errs []error
	for _, endpoint := range urls {
		if err := o.wait(ctx); err != nil {
			return nil, err
		}
		ways, err := o.fetch(ctx, endpoint, query)
		if err == nil {
			return ways, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
	}
	return nil, apperr.External("overpass", errors.Join(errs...))
}

func (o *OverpassClient) wait(ctx context.Context) error {
	o.mu.Lock()
	sleepFor := time.Until(o.lastReqAt.Add(o.MinInterval))
	if sleepFor > 0 {
		o.mu.Unlock()
		timer := time.NewTimer(sleepFor)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		o.mu.Lock()
	}
	o.lastReqAt = time.Now()
	o.mu.Unlock()
	return nil
}

func (o *OverpassClient) fetch(ctx context.Context, endpoint, query string) ([]Way, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", o.userAgent())

	resp, err := o.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("overpass http error: %s", resp.Status)
	}

	var body overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}
	return parseOverpassElements(body.Elements), nil
}

// client and userAgent resolve defaults without writing to o, which is
// shared across goroutines.
func (o *OverpassClient) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return defaultOverpassHTTP
}

func (o *OverpassClient) userAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	return "pothole-backend"
}

// BuildOverpassQuery renders q as Overpass QL. Filtered queries use the
// bounding box of the radius, unfiltered ones a circular around: filter.
func BuildOverpassQuery(q Query) string {
	if len(q.Highways) == 0 {
		return fmt.Sprintf("[out:json][timeout:25];way(around:%.0f,%.6f,%.6f)[\"highway\"];out geom;",
			q.RadiusMeters, q.Center.Lat, q.Center.Lon)
	}
	s, w, n, e := geo.BoundingBox(q.Center, q.RadiusMeters)
	return fmt.Sprintf("[out:json][timeout:25];way[\"highway\"~\"^(%s)$\"](%.6f,%.6f,%.6f,%.6f);out geom;",
		strings.Join(q.Highways, "|"), s, w, n, e)
}

func parseOverpassElements(elements []overpassElement) []Way {
	ways := make([]Way, 0, len(elements))
	for _, el := range elements {
		if el.Type != "" && el.Type != "way" {
			continue
		}
		ways = append(ways, Way{ID: el.ID, Tags: el.Tags, Geometry: el.Geometry})
	}
	return ways
}
