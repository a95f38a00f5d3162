package domain

import (
	"strings"
	"time"
)

// ArticleRecord is one stored news article with its embedding.
type ArticleRecord struct {
	ID          string
	Vector      []float32
	Headline    string
	Summary     string
	Publisher   string
	PublishedAt time.Time
	SourceURL   string
	Metadata    map[string]string
}

// Text is the hybrid headline+summary string used for embedding-based scoring.
func (a ArticleRecord) Text() string {
	return strings.TrimSpace(strings.TrimSpace(a.Headline) + " " + strings.TrimSpace(a.Summary))
}

func (a ArticleRecord) HasSummary() bool {
	return strings.TrimSpace(a.Summary) != ""
}

// Cluster is a labelled group of articles. Members keep the store order.
type Cluster struct {
	Label   int
	Members []ArticleRecord
}

func (c Cluster) Size() int { return len(c.Members) }

// CourseCandidate is a curated cluster that becomes one course.
type CourseCandidate struct {
	TopicLabel int
	Members    []ArticleRecord
}

// CollectionRef names a vector-store collection.
type CollectionRef struct {
	Name  string
	Topic string
}
