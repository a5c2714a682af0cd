package models

import (
	"context"
	"time"
)

// NoiseTopic marks an article that did not fall into any topic cluster.
const NoiseTopic = -1

type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SourceName  string    `json:"source_name"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet"`
	FullText    string    `json:"full_text,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Hash        string    `json:"hash"`
	// TopicID is nil until clustering has run.
	TopicID *int `json:"topic_id,omitempty"`
}

// Topic returns the assigned topic id, or NoiseTopic when none is set.
func (a Article) Topic() int {
	if a.TopicID == nil {
		return NoiseTopic
	}
	return *a.TopicID
}

func (a *Article) SetTopic(id int) {
	a.TopicID = &id
}

// SearchSource is a news search provider queried with free text.
type SearchSource interface {
	Search(ctx context.Context, query string, limit int) ([]Article, error)
	GetName() string
}
