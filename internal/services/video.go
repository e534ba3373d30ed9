package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/novaplayer/api/internal/shared"
)

const youtubeSearchURL = "https://www.googleapis.com/youtube/v3/search"

// VideoService finds the official music video for a track through the
// YouTube Data API. Every lookup is best-effort: a missing key, a quota
// error, or no results all yield nil so the player UI simply hides the
// video panel.
type VideoService struct {
	apiKey     string
	httpClient *http.Client
	logger     *log.Logger
	searchURL  string
}

// NewVideoService creates a [VideoService]. An empty API key disables lookups.
func NewVideoService(apiKey string, logger *log.Logger) *VideoService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &VideoService{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		searchURL:  youtubeSearchURL,
	}
}

// youtubeSearchResponse covers the slice of the search payload we read.
type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// FindVideo searches for "<track> <artist> official video" and returns the
// first hit, or nil when nothing usable comes back.
func (s *VideoService) FindVideo(ctx context.Context, trackName, artistName string) *Video {
	if s.apiKey == "" {
		return nil
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", trackName+" "+artistName+" official video")
	params.Set("type", "video")
	params.Set("maxResults", "1")
	params.Set("key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("video lookup failed", "track", trackName, "err", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		s.logger.Debug("video lookup rejected", "track", trackName, "status", resp.StatusCode)
		return nil
	}

	var result youtubeSearchResponse
	if err := json.Unmarshal(body, &result); err != nil || len(result.Items) == 0 {
		return nil
	}

	item := result.Items[0]
	if item.ID.VideoID == "" {
		return nil
	}

	return &Video{
		VideoID:   item.ID.VideoID,
		Title:     item.Snippet.Title,
		Thumbnail: item.Snippet.Thumbnails.High.URL,
		URL:       "https://www.youtube.com/watch?v=" + item.ID.VideoID,
	}
}
