package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rickgao/dex-scanner/internal/model"
)

// FilterQuery encodes a filter as scanner query parameters.
// Nil filter fields are omitted.
func FilterQuery(f model.Filter) url.Values {
	query := url.Values{}

	if f.Chain != nil {
		query.Set("chain", *f.Chain)
	}
	if f.RankBy != nil && *f.RankBy != model.RankNone {
		query.Set("rankBy", string(*f.RankBy))
	}
	if f.OrderBy != nil {
		query.Set("orderBy", string(*f.OrderBy))
	}
	if f.MinVol24H != nil {
		query.Set("minVol24H", strconv.FormatFloat(*f.MinVol24H, 'f', -1, 64))
	}
	if f.MaxAge != nil {
		query.Set("maxAge", strconv.FormatFloat(*f.MaxAge, 'f', -1, 64))
	}
	if f.MinMcap != nil {
		query.Set("minMcap", strconv.FormatFloat(*f.MinMcap, 'f', -1, 64))
	}
	if f.IsNotHP != nil {
		query.Set("isNotHP", strconv.FormatBool(*f.IsNotHP))
	}

	return query
}

// GetScannerPage fetches one page of scanner results for a filter.
// Pages are 1-based.
func (c *Client) GetScannerPage(ctx context.Context, f model.Filter, page int) (*ScannerResponse, error) {
	query := FilterQuery(f)
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}

	var resp ScannerResponse
	if err := c.get(ctx, "/scanner", query, &resp); err != nil {
		return nil, fmt.Errorf("get scanner page %d: %w", page, err)
	}

	return &resp, nil
}
