package solr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is one engine document with its fields kept in wire order.
// The export writer depends on field order, so documents cannot be plain
// maps.
type Document struct {
	keys   []string
	values map[string]any
}

// UnmarshalJSON decodes the document object preserving key order.
func (d *Document) UnmarshalJSON(data []byte) error {
	d.values = make(map[string]any)
	d.keys = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("document is not a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("document key is not a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decoding field %s: %w", key, err)
		}
		if _, exists := d.values[key]; !exists {
			d.keys = append(d.keys, key)
		}
		d.values[key] = value
	}
	return nil
}

// MarshalJSON encodes the document in field order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Fields returns the document's field names in wire order.
func (d *Document) Fields() []string {
	return d.keys
}

// Get returns a field value.
func (d *Document) Get(field string) (any, bool) {
	v, ok := d.values[field]
	return v, ok
}

// Set stores a field value, appending the field when it is new. Plugin
// post-hooks use this to decorate documents.
func (d *Document) Set(field string, value any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, exists := d.values[field]; !exists {
		d.keys = append(d.keys, field)
	}
	d.values[field] = value
}

// ID returns the document's id field as a string.
func (d *Document) ID() string {
	if v, ok := d.values["id"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FacetValue is one facet bucket: a field value and its document count,
// in the order the engine returned it.
type FacetValue struct {
	Value string
	Count int
}

// Response is the decoded engine response for one query.
type Response struct {
	NumFound int
	Docs     []Document

	// Facets maps facet field id to its value buckets in engine order.
	Facets map[string][]FacetValue

	// Highlighting maps document id to field snippets.
	Highlighting map[string]map[string][]string

	// Similar maps document id to its more-like-this neighbors.
	Similar map[string][]Document
}

// wire mirrors the Solr JSON response layout.
type wire struct {
	Response struct {
		NumFound int        `json:"numFound"`
		Docs     []Document `json:"docs"`
	} `json:"response"`
	FacetCounts struct {
		FacetFields map[string][]json.RawMessage `json:"facet_fields"`
	} `json:"facet_counts"`
	Highlighting map[string]map[string][]string `json:"highlighting"`
	MoreLikeThis map[string]struct {
		Docs []Document `json:"docs"`
	} `json:"moreLikeThis"`
	Error *struct {
		Msg  string `json:"msg"`
		Code int    `json:"code"`
	} `json:"error"`
}

func decodeResponse(data []byte) (*Response, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding engine response: %w", err)
	}

	resp := &Response{
		NumFound:     w.Response.NumFound,
		Docs:         w.Response.Docs,
		Facets:       make(map[string][]FacetValue),
		Highlighting: w.Highlighting,
		Similar:      make(map[string][]Document),
	}

	// Solr returns facet buckets as a flat [value, count, ...] array,
	// which preserves the engine's value ordering.
	for field, flat := range w.FacetCounts.FacetFields {
		values := make([]FacetValue, 0, len(flat)/2)
		for i := 0; i+1 < len(flat); i += 2 {
			var fv FacetValue
			if err := json.Unmarshal(flat[i], &fv.Value); err != nil {
				return nil, fmt.Errorf("decoding facet %s value: %w", field, err)
			}
			if err := json.Unmarshal(flat[i+1], &fv.Count); err != nil {
				return nil, fmt.Errorf("decoding facet %s count: %w", field, err)
			}
			values = append(values, fv)
		}
		resp.Facets[field] = values
	}

	for id, mlt := range w.MoreLikeThis {
		resp.Similar[id] = mlt.Docs
	}

	return resp, nil
}
