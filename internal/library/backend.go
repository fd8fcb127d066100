package library

import (
	"context"
	"strings"

	"github.com/llehouerou/autoplay/internal/media"
)

const (
	searchLimit = 50
	mixLimit    = 40
)

// Verify Library implements media.Backend at compile time.
var _ media.Backend = (*Library)(nil)

// Search implements media.Backend. HintMix expands a seed (id or free text)
// into related tracks, HintISRC looks up an ISRC code, anything else is a
// free-text search. A "library:<id>" query resolves that single track.
func (l *Library) Search(ctx context.Context, query string, hint media.SourceHint) ([]media.Item, error) {
	switch hint {
	case media.HintMix:
		return l.mix(ctx, query)
	case media.HintISRC:
		return l.byISRC(ctx, query)
	}

	if media.IDPrefix(query) == IDPrefix {
		it, err := l.ResolveByID(ctx, query)
		if err != nil || it == nil {
			return nil, err
		}
		return []media.Item{*it}, nil
	}

	tracks, err := l.searchTracks(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}
	return items(tracks), nil
}

// ResolveByID implements media.Backend.
func (l *Library) ResolveByID(ctx context.Context, id string) (*media.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, ok := parseID(id)
	if !ok {
		return nil, nil //nolint:nilnil // foreign or malformed id is unknown
	}
	t, err := l.TrackByID(n)
	if err != nil || t == nil {
		return nil, err
	}
	it := t.Item()
	return &it, nil
}

// searchTracks matches query against the trigram index, best match first.
func (l *Library) searchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+prefixed("t.", trackColumns)+`
		FROM library_search_fts f
		JOIN library_tracks t ON t.id = f.track_id
		WHERE f.search_text MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, escapeFTSQuery(query), limit)
	if err != nil {
		return nil, err
	}
	return scanTracks(rows)
}

func (l *Library) byISRC(ctx context.Context, isrc string) ([]media.Item, error) {
	isrc = normalizeISRC(isrc)
	if isrc == "" {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+trackColumns+` FROM library_tracks WHERE isrc = ? ORDER BY id
	`, isrc)
	if err != nil {
		return nil, err
	}
	tracks, err := scanTracks(rows)
	if err != nil {
		return nil, err
	}
	return items(tracks), nil
}

// mix returns tracks sharing the seed's artist or genre, in random order.
// Alternate versions of the seed (same artist, same normalised title) are left out.
func (l *Library) mix(ctx context.Context, query string) ([]media.Item, error) {
	seed, err := l.seed(ctx, query)
	if err != nil || seed == nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT `+trackColumns+`
		FROM library_tracks
		WHERE id != ?
		  AND (artist = ? COLLATE NOCASE
		       OR album_artist = ? COLLATE NOCASE
		       OR (genre IS NOT NULL AND genre != '' AND genre = ? COLLATE NOCASE))
		ORDER BY RANDOM()
		LIMIT ?
	`, seed.ID, seed.Artist, seed.AlbumArtist, seed.Genre, mixLimit)
	if err != nil {
		return nil, err
	}
	tracks, err := scanTracks(rows)
	if err != nil {
		return nil, err
	}

	title := baseTitle(seed.Title)
	out := tracks[:0]
	for _, t := range tracks {
		if strings.EqualFold(t.Artist, seed.Artist) && baseTitle(t.Title) == title {
			continue
		}
		out = append(out, t)
	}
	return items(out), nil
}

// seed resolves the mix seed from an id or the best free-text match.
func (l *Library) seed(ctx context.Context, query string) (*Track, error) {
	if n, ok := parseID(query); ok {
		return l.TrackByID(n)
	}
	if media.IDPrefix(query) != "" && !strings.ContainsRune(query, ' ') {
		// id of another backend
		return nil, nil //nolint:nilnil // nothing to expand
	}
	tracks, err := l.searchTracks(ctx, query, 1)
	if err != nil || len(tracks) == 0 {
		return nil, err
	}
	return &tracks[0], nil
}

func items(tracks []Track) []media.Item {
	out := make([]media.Item, 0, len(tracks))
	for i := range tracks {
		out = append(out, tracks[i].Item())
	}
	return out
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// normalizeISRC strips separators and upper-cases an ISRC ("us-rc1-76-07839").
func normalizeISRC(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", " ", "").Replace(s)
}
