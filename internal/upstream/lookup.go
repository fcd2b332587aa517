package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// itemBatchMax is the upstream cap on identifiers per item-detail call.
const itemBatchMax = 15

// ResolveCharacter fetches the basic profile for server+name. Used by the
// registration surface to turn a player-typed name into a tracked key.
func (c *Client) ResolveCharacter(ctx context.Context, server, name string) (CharacterProfile, error) {
	u := *c.base
	u.Path = "/api/v1/characters/" + url.PathEscape(server) + "/" + url.PathEscape(name)
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()

	var p CharacterProfile
	if err := c.get(ctx, &u, &p); err != nil {
		return CharacterProfile{}, fmt.Errorf("character %s/%s: %w", server, name, err)
	}
	if p.Server == "" {
		p.Server = server
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// ItemDetails resolves item metadata (name, grade) for the given ids,
// chunking requests to the upstream batch cap. Unknown ids are simply
// absent from the result; that is the caller's MissingIdentifierData case,
// not an error here.
func (c *Client) ItemDetails(ctx context.Context, ids []string) (map[string]ItemDetail, error) {
	out := make(map[string]ItemDetail, len(ids))

	seen := make(map[string]bool, len(ids))
	batch := make([]string, 0, itemBatchMax)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		u := *c.base
		u.Path = "/api/v1/items"
		q := url.Values{}
		q.Set("ids", strings.Join(batch, ","))
		q.Set("apikey", c.apiKey)
		u.RawQuery = q.Encode()

		var resp itemsResponse
		if err := c.get(ctx, &u, &resp); err != nil {
			return fmt.Errorf("item details: %w", err)
		}
		for _, it := range resp.Items {
			if it.ID == "" {
				continue
			}
			out[it.ID] = ItemDetail{ID: it.ID, Name: it.Name, Grade: it.Grade}
		}
		batch = batch[:0]
		return nil
	}

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		batch = append(batch, id)
		if len(batch) == itemBatchMax {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
