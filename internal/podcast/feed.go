// Package podcast parses podcast RSS feeds into the Episode records the
// rest of the pipeline operates on. encoding/xml is used directly — no
// third-party feed parser in the example pack covers podcast-specific
// elements (itunes:duration, enclosure) any better than tagged structs do.
package podcast

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sifter/internal/models"
)

type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Image rssImage  `xml:"image"`
	Items []rssItem `xml:"item"`
}

type rssImage struct {
	URL string `xml:"url"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	GUID        rssGUID       `xml:"guid"`
	PubDate     string        `xml:"pubDate"`
	Duration    string        `xml:"duration"` // itunes:duration, namespace-stripped by the decoder
	Enclosure   rssEnclosure  `xml:"enclosure"`
}

type rssGUID struct {
	Value string `xml:",chardata"`
}

type rssEnclosure struct {
	URL string `xml:"url,attr"`
}

// ParsedFeed is a podcast's metadata plus the episodes found in one fetch
// of its RSS feed.
type ParsedFeed struct {
	Title    string
	ImageURL string
	Episodes []ParsedEpisode
}

// ParsedEpisode is one <item> from the feed, not yet associated with a
// PodcastID — the caller (the feed-polling job) assigns that.
type ParsedEpisode struct {
	GUID        string
	Title       string
	AudioURL    string
	PublishedAt time.Time
	Duration    *float64
}

// Parse decodes RSS/XML feed content into a ParsedFeed. Entries missing a
// usable enclosure URL are skipped rather than failing the whole feed,
// since malformed individual items are common in the wild.
func Parse(content []byte) (*ParsedFeed, error) {
	var feed rssFeed
	if err := xml.Unmarshal(content, &feed); err != nil {
		return nil, fmt.Errorf("parse rss feed: %w", err)
	}

	parsed := &ParsedFeed{
		Title:    strings.TrimSpace(feed.Channel.Title),
		ImageURL: feed.Channel.Image.URL,
	}

	for _, item := range feed.Channel.Items {
		if item.Enclosure.URL == "" {
			continue
		}
		guid := strings.TrimSpace(item.GUID.Value)
		if guid == "" {
			guid = item.Enclosure.URL
		}

		ep := ParsedEpisode{
			GUID:     guid,
			Title:    strings.TrimSpace(item.Title),
			AudioURL: item.Enclosure.URL,
		}
		if t, err := parsePubDate(item.PubDate); err == nil {
			ep.PublishedAt = t
		} else {
			ep.PublishedAt = time.Now().UTC()
		}
		if d, ok := parseITunesDuration(item.Duration); ok {
			ep.Duration = &d
		}

		parsed.Episodes = append(parsed.Episodes, ep)
	}

	return parsed, nil
}

// ToModel converts a ParsedEpisode into a models.Episode belonging to
// podcastID, with the given ID.
func (e ParsedEpisode) ToModel(id, podcastID string) *models.Episode {
	return &models.Episode{
		ID:          id,
		PodcastID:   podcastID,
		GUID:        e.GUID,
		Title:       e.Title,
		AudioURL:    e.AudioURL,
		PublishedAt: e.PublishedAt,
		Duration:    e.Duration,
		Status:      models.EpisodeStatusPending,
	}
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05Z07:00",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

func parsePubDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// parseITunesDuration accepts either a bare seconds count ("1834") or an
// HH:MM:SS / MM:SS clock string, both of which are common in the wild.
func parseITunesDuration(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, ":") {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return secs, true
	}
	parts := strings.Split(s, ":")
	var total float64
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		total = total*60 + float64(n)
	}
	return total, true
}
