package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Article is a locally persisted representation of one Pocket item,
// progressively enriched with scraped content and generated summaries.
type Article struct {
	ID               int64      `db:"id" json:"id"`
	PocketID         string     `db:"pocket_id" json:"pocket_id"`
	Title            string     `db:"title" json:"title"`
	URL              string     `db:"url" json:"url"`
	Content          string     `db:"content" json:"content,omitempty"`
	ContentHTML      string     `db:"content_html" json:"content_html,omitempty"`
	Summary20        string     `db:"summary_20" json:"summary_20,omitempty"`
	Summary50        string     `db:"summary_50" json:"summary_50,omitempty"`
	Summary100       string     `db:"summary_100" json:"summary_100,omitempty"`
	UnlimitedSummary string     `db:"unlimited_summary" json:"unlimited_summary,omitempty"`
	Tags             string     `db:"tags" json:"tags,omitempty"` // comma-joined
	PocketData       string     `db:"pocket_data" json:"-"`
	Author           string     `db:"author" json:"author,omitempty"`
	PublishedDate    *time.Time `db:"published_date" json:"published_date,omitempty"`
	WordCount        int        `db:"word_count" json:"word_count"`
	ReadingTime      int        `db:"estimated_reading_time" json:"estimated_reading_time"`
	Metadata         Metadata   `db:"firecrawl_metadata" json:"metadata,omitempty"`
	DateAdded        time.Time  `db:"date_added" json:"date_added"`
}

// Enriched reports whether scraped content has already been attached.
// An article with empty content, empty markup and no metadata is the
// sole candidate for the enrichment pass.
func (a *Article) Enriched() bool {
	return a.Content != "" || a.ContentHTML != "" || a.Metadata != nil
}

// Summarized reports whether generated summaries are present.
func (a *Article) Summarized() bool {
	return a.Summary20 != ""
}

// TagList splits the comma-joined tag column into individual tags.
func (a *Article) TagList() []string {
	if a.Tags == "" {
		return nil
	}
	parts := strings.Split(a.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Metadata is the opaque key/value blob returned by the scraping API.
// Stored as JSONB; no schema is assumed beyond the few fields promoted
// into Article columns.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("metadata: cannot scan %T", src)
	}
	return json.Unmarshal(data, m)
}
