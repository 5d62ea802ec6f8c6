// Package unsplash implements the optional image-search collaborator.
// Failures here are never fatal to a scheduler run; articles are published
// without images when the search fails.
package unsplash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/pkg/logger"
	"github.com/content-scheduler/pkg/ratelimit"
)

const (
	baseURL = "https://api.unsplash.com"
)

// Photo represents an Unsplash photo
type Photo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	AltDesc     string `json:"alt_description"`
	URLs        URLs   `json:"urls"`
	User        User   `json:"user"`
}

// URLs contains different size URLs for the photo
type URLs struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

// User represents the photographer
type User struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// SearchResult represents the API response for photo search
type SearchResult struct {
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Results    []Photo `json:"results"`
}

// Client is the Unsplash API client
type Client struct {
	apiKey      string
	httpClient  *http.Client
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewClient creates a new Unsplash client
func NewClient(apiKey string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	return &Client{
		apiKey:      apiKey,
		rateLimiter: limiter,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.WithComponent("unsplash"),
	}
}

// SearchPhotos searches for photos matching the query
func (c *Client) SearchPhotos(ctx context.Context, query string, perPage int) ([]Photo, error) {
	if perPage <= 0 {
		perPage = 5
	}
	if perPage > 30 {
		perPage = 30
	}

	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterUnsplash); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	endpoint := fmt.Sprintf("%s/search/photos", baseURL)
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", fmt.Sprintf("%d", perPage))
	params.Set("orientation", "landscape")

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Client-ID "+c.apiKey)
	req.Header.Set("Accept-Version", "v1")

	c.log.Debug().Str("query", query).Msg("Searching Unsplash photos")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.log.Debug().
		Int("total", result.Total).
		Int("returned", len(result.Results)).
		Msg("Search completed")

	return result.Results, nil
}

// FindImages searches each keyword in turn and returns up to limit image
// references suitable for attaching to a post.
func (c *Client) FindImages(ctx context.Context, keywords []string, limit int) ([]models.ImageRef, error) {
	if limit <= 0 {
		limit = 3
	}

	var refs []models.ImageRef
	seen := make(map[string]bool)

	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		photos, err := c.SearchPhotos(ctx, keyword, limit)
		if err != nil {
			c.log.Warn().Err(err).Str("keyword", keyword).Msg("Image search failed for keyword")
			continue
		}
		for _, photo := range photos {
			if seen[photo.ID] {
				continue
			}
			seen[photo.ID] = true
			refs = append(refs, models.ImageRef{
				ID:          photo.ID,
				URL:         photo.URLs.Regular,
				Thumbnail:   photo.URLs.Thumb,
				Attribution: Attribution(&photo),
				Source:      "unsplash",
			})
			if len(refs) >= limit {
				return refs, nil
			}
		}
	}

	if len(refs) == 0 {
		return nil, fmt.Errorf("no images found for keywords: %s", strings.Join(keywords, ", "))
	}
	return refs, nil
}

// Attribution returns the credit text for a photo (required by Unsplash)
func Attribution(photo *Photo) string {
	return fmt.Sprintf("Photo by %s on Unsplash", photo.User.Name)
}
