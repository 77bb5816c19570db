package podcast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"sifter/internal/config"
	"sifter/internal/errs"
)

// FetchFeed downloads rssURL and parses it.
func FetchFeed(ctx context.Context, rssURL string) (*ParsedFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rssURL, nil)
	if err != nil {
		return nil, errs.InvariantViolation("build rss request: " + err.Error())
	}
	req.Header.Set("User-Agent", config.DownloadUserAgent)

	client := &http.Client{Timeout: config.DownloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Transport("fetch rss feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.HTTPStatus(fmt.Sprintf("rss feed returned HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transport("read rss feed body", err)
	}

	feed, err := Parse(body)
	if err != nil {
		return nil, errs.Parse("parse rss feed", err)
	}
	return feed, nil
}

// DownloadEpisodeAudio downloads audioURL to localPath.
func DownloadEpisodeAudio(ctx context.Context, audioURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return errs.InvariantViolation("build audio download request: " + err.Error())
	}
	req.Header.Set("User-Agent", config.DownloadUserAgent)

	client := &http.Client{Timeout: config.DownloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return errs.Transport("download episode audio", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.HTTPStatus(fmt.Sprintf("episode audio download returned HTTP %d", resp.StatusCode), nil)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return errs.Transport("create episode audio file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return errs.Transport("write episode audio file", err)
	}
	return nil
}
