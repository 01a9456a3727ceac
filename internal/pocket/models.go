package pocket

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type getRequest struct {
	ConsumerKey string `json:"consumer_key"`
	AccessToken string `json:"access_token"`
	State       string `json:"state,omitempty"`
	Count       int    `json:"count,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	DetailType  string `json:"detailType,omitempty"`
	Since       int64  `json:"since,omitempty"`
	ItemIDs     string `json:"item_ids,omitempty"`
	Total       string `json:"total,omitempty"`
}

type getResponse struct {
	Status int `json:"status"`
	// "total" arrives as a quoted string on most detail types.
	Total json.RawMessage `json:"total"`
	Since int64           `json:"since"`
	// "list" is an object keyed by item ID, except for empty
	// responses where the API returns a bare array.
	List json.RawMessage `json:"list"`
}

// items decodes the list payload into per-item raw JSON, tolerating
// the empty-array form.
func (r *getResponse) items() (map[string]json.RawMessage, error) {
	if len(r.List) == 0 || bytes.Equal(bytes.TrimSpace(r.List), []byte("[]")) {
		return map[string]json.RawMessage{}, nil
	}
	var items map[string]json.RawMessage
	if err := json.Unmarshal(r.List, &items); err != nil {
		return nil, fmt.Errorf("decode item list: %w", err)
	}
	return items, nil
}

// Item is one bookmark as returned by the service. Numeric fields
// arrive as strings on most detail types.
type Item struct {
	ItemID        string                     `json:"item_id"`
	GivenURL      string                     `json:"given_url"`
	ResolvedURL   string                     `json:"resolved_url"`
	GivenTitle    string                     `json:"given_title"`
	ResolvedTitle string                     `json:"resolved_title"`
	Excerpt       string                     `json:"excerpt"`
	WordCount     string                     `json:"word_count"`
	TimeAdded     string                     `json:"time_added"`
	TimeToRead    int                        `json:"time_to_read"`
	Tags          map[string]json.RawMessage `json:"tags"`
}

// Action is one entry of a /v3/send batch.
type Action struct {
	Action string `json:"action"`
	ItemID string `json:"item_id"`
	Tags   string `json:"tags,omitempty"`
}

type sendRequest struct {
	ConsumerKey string   `json:"consumer_key"`
	AccessToken string   `json:"access_token"`
	Actions     []Action `json:"actions"`
}

type sendResponse struct {
	Status int `json:"status"`
	// Per-action results are booleans on success but may be objects;
	// only a literal false marks a failed action.
	ActionResults []json.RawMessage `json:"action_results"`
}
