// Package solr is the HTTP client for the external full-text search
// engine. It serializes query descriptors onto the engine's select and
// export request handlers and decodes the JSON responses, keeping
// connection failures and rejected queries distinguishable.
package solr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ocsearch/ocsearch/pkg/log"
	"github.com/ocsearch/ocsearch/pkg/query"
)

var (
	// ErrConnection marks network-level failures reaching the engine.
	ErrConnection = errors.New("engine connection failed")

	// ErrQuery marks queries the engine rejected.
	ErrQuery = errors.New("engine rejected query")
)

// Options adjusts a single execution.
type Options struct {
	Highlight bool
	Profile   query.Profile
}

// Client talks to one engine server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a client for the engine at baseURL. Requests time
// out after timeout; pass 0 for a 30 second default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.ForService("solr"),
	}
}

// Execute runs a composed query against the named engine core. The
// bulk-export profile routes to the export handler and drops paging so
// the full result set streams back.
func (c *Client) Execute(ctx context.Context, core string, d *query.Descriptor, opts Options) (*Response, error) {
	handler := "select"
	if opts.Profile == query.ProfileBulkExport {
		handler = "export"
	}

	reqURL := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, core, handler, encodeDescriptor(d, opts).Encode())
	c.logger.Debugf("querying %s", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building engine request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrConnection, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrQuery, engineMessage(body, httpResp.StatusCode))
	}

	resp, err := decodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return resp, nil
}

// encodeDescriptor serializes the descriptor onto engine query
// parameters. Values within a field filter OR together; separate filter
// parameters AND together on the engine side.
func encodeDescriptor(d *query.Descriptor, opts Options) url.Values {
	params := url.Values{}
	params.Set("q", d.Query)
	params.Set("wt", "json")

	for _, f := range d.Filters {
		quoted := make([]string, len(f.Values))
		for i, v := range f.Values {
			quoted[i] = strconv.Quote(v)
		}
		params.Add("fq", fmt.Sprintf("%s:(%s)", f.Field, strings.Join(quoted, " OR ")))
	}

	if len(d.Fields) > 0 {
		params.Set("fl", strings.Join(d.Fields, ","))
	}

	if len(d.FacetFields) > 0 {
		params.Set("facet", "true")
		params.Set("facet.mincount", "1")
		for _, field := range d.FacetFields {
			params.Add("facet.field", field)
		}
	}

	if d.Sort != "" {
		params.Set("sort", d.Sort)
	}

	if opts.Profile != query.ProfileBulkExport {
		params.Set("start", strconv.Itoa(d.Start))
		params.Set("rows", strconv.Itoa(d.Rows))
	}

	if opts.Highlight && d.Highlight {
		params.Set("hl", "true")
	}

	if mlt := d.MoreLikeThis; mlt != nil {
		params.Set("mlt", "true")
		params.Set("mlt.fl", strings.Join(mlt.Fields, ","))
		params.Set("mlt.count", strconv.Itoa(mlt.Count))
	}

	return params
}

// engineMessage digs the engine's error message out of an error body,
// falling back to the HTTP status.
func engineMessage(body []byte, status int) string {
	var w wire
	if err := json.Unmarshal(body, &w); err == nil && w.Error != nil && w.Error.Msg != "" {
		return w.Error.Msg
	}
	return fmt.Sprintf("status %d", status)
}
