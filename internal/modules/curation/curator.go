package curation

import (
	"fmt"

	"github.com/yungbote/newsquiz-backend/internal/domain"
)

// MinClusterFloor is the smallest minimum cluster size. A course is never
// shorter than this, so maxSize below it is a configuration error.
const MinClusterFloor = 5

// MinClusterSize is max(MinClusterFloor, totalValidDocs/k/2).
func MinClusterSize(totalValidDocs, k int) int {
	if k <= 0 {
		return MinClusterFloor
	}
	if m := totalValidDocs / k / 2; m > MinClusterFloor {
		return m
	}
	return MinClusterFloor
}

// Curate keeps clusters with at least minSize members and truncates each to maxSize.
// The size gate applies before truncation, so a candidate has
// min(minSize, maxSize) to maxSize members.
func Curate(clusters []domain.Cluster, minSize, maxSize int) ([]domain.CourseCandidate, error) {
	if maxSize < MinClusterFloor {
		return nil, fmt.Errorf("curate: maxSize must be at least %d, got %d", MinClusterFloor, maxSize)
	}
	if minSize < 1 {
		return nil, fmt.Errorf("curate: minSize must be positive, got %d", minSize)
	}
	out := make([]domain.CourseCandidate, 0, len(clusters))
	for _, c := range clusters {
		if c.Size() < minSize {
			continue
		}
		members := c.Members
		if len(members) > maxSize {
			members = members[:maxSize]
		}
		out = append(out, domain.CourseCandidate{
			TopicLabel: c.Label,
			Members:    append([]domain.ArticleRecord(nil), members...),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("curate: %d clusters, none with >= %d members: %w", len(clusters), minSize, domain.ErrNoViableClusters)
	}
	return out, nil
}
