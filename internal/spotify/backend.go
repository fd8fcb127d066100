package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/llehouerou/autoplay/internal/media"
)

// Search implements media.Backend. HintISRC queries are turned into an
// isrc: field filter; HintMix returns recommendations seeded by the query.
func (c *Client) Search(ctx context.Context, query string, hint media.SourceHint) ([]media.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	switch hint {
	case media.HintISRC:
		query = "isrc:" + strings.ToUpper(strings.ReplaceAll(query, "-", ""))
	case media.HintMix:
		seed := media.Item{ExternalID: query}
		if _, ok := parseID(query); !ok {
			seed = media.Item{Title: query}
		}
		return c.Recommend(ctx, seed, nil, nil, maxSearchResults)
	}

	if id, ok := parseID(query); ok {
		it, err := c.resolve(ctx, id)
		if err != nil || it == nil {
			return nil, err
		}
		return []media.Item{*it}, nil
	}

	res, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, c.options(spotify.Limit(maxSearchResults))...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if res.Tracks == nil {
		return nil, nil
	}
	items := make([]media.Item, 0, len(res.Tracks.Tracks))
	for i := range res.Tracks.Tracks {
		items = append(items, toItem(&res.Tracks.Tracks[i]))
	}
	return items, nil
}

// ResolveByID implements media.Backend.
func (c *Client) ResolveByID(ctx context.Context, id string) (*media.Item, error) {
	sid, ok := parseID(id)
	if !ok {
		return nil, nil //nolint:nilnil // foreign id is unknown
	}
	return c.resolve(ctx, sid)
}

func (c *Client) resolve(ctx context.Context, id spotify.ID) (*media.Item, error) {
	t, err := c.api.GetTrack(ctx, id, c.options()...)
	if err != nil {
		if notFound(err) {
			return nil, nil //nolint:nilnil // unknown id
		}
		return nil, fmt.Errorf("track %s: %w", id, err)
	}
	items := c.enrich(ctx, []spotify.FullTrack{*t})
	return &items[0], nil
}

func notFound(err error) bool {
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == http.StatusNotFound
	}
	var sp *spotify.Error
	return errors.As(err, &sp) && sp.Status == http.StatusNotFound
}
