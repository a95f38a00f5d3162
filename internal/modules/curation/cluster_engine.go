package curation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

type EngineConfig struct {
	Seed      int64 `yaml:"seed"`
	NInit     int   `yaml:"n_init"`
	MaxIter   int   `yaml:"max_iter"`
	MinFactor int   `yaml:"min_factor"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Seed: 42, NInit: 4, MaxIter: 50, MinFactor: 2}
}

func (c EngineConfig) withDefaults() EngineConfig {
	def := DefaultEngineConfig()
	if c.NInit <= 0 {
		c.NInit = def.NInit
	}
	if c.MaxIter <= 0 {
		c.MaxIter = def.MaxIter
	}
	if c.MinFactor <= 0 {
		c.MinFactor = def.MinFactor
	}
	return c
}

// ClusterEngine partitions article embeddings into k size-balanced clusters.
type ClusterEngine struct {
	log *logger.Logger
	cfg EngineConfig
}

func NewClusterEngine(log *logger.Logger, cfg EngineConfig) *ClusterEngine {
	if log == nil {
		log = logger.Nop()
	}
	return &ClusterEngine{log: log.Component("cluster_engine"), cfg: cfg.withDefaults()}
}

// CapacityBounds returns the inclusive per-cluster size range for n points in k clusters.
func CapacityBounds(n, k int) (lo, hi int) {
	if k <= 0 {
		return 0, 0
	}
	lo = n/k - 1
	if lo < 1 {
		lo = 1
	}
	return lo, n/k + 2
}

// Cluster groups records into exactly k clusters whose sizes lie within CapacityBounds.
// Clusters are labelled 0..k-1 in order of their first member's position in records.
func (e *ClusterEngine) Cluster(ctx context.Context, records []domain.ArticleRecord, k int) ([]domain.Cluster, error) {
	if k <= 0 {
		return nil, fmt.Errorf("cluster: k must be positive, got %d", k)
	}
	recs, err := usableRecords(records)
	if err != nil {
		return nil, err
	}
	n := len(recs)
	if n < k*e.cfg.MinFactor {
		return nil, fmt.Errorf("cluster: %d usable records for k=%d (need %d): %w", n, k, k*e.cfg.MinFactor, domain.ErrInsufficientData)
	}
	lo, hi := CapacityBounds(n, k)

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	var (
		bestAssign  []int
		bestInertia = math.Inf(1)
	)
	for run := 0; run < e.cfg.NInit; run++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		centroids := kmeansPlusPlus(recs, k, rng)
		assign, inertia := e.refine(recs, centroids, k, lo, hi)
		e.log.Debug("kmeans restart finished", "run", run, "inertia", inertia)
		if inertia < bestInertia {
			bestInertia = inertia
			bestAssign = assign
		}
	}
	if bestAssign == nil {
		return nil, fmt.Errorf("cluster: no assignment produced: %w", domain.ErrInsufficientData)
	}
	out := buildClusters(recs, bestAssign, k)
	e.log.Info("clustering complete", "records", n, "k", k, "lo", lo, "hi", hi, "inertia", bestInertia)
	return out, nil
}

func (e *ClusterEngine) refine(recs []domain.ArticleRecord, centroids [][]float64, k, lo, hi int) ([]int, float64) {
	n := len(recs)
	cost := make([][]float64, n)
	for p := range cost {
		cost[p] = make([]float64, k)
	}
	var assign []int
	for iter := 0; iter < e.cfg.MaxIter; iter++ {
		for p := range recs {
			for j := 0; j < k; j++ {
				cost[p][j] = squaredDistance(recs[p].Vector, centroids[j])
			}
		}
		next := capacitatedAssign(cost, k, lo, hi)
		stable := assign != nil && equalInts(assign, next)
		assign = next
		centroids = recomputeCentroids(recs, assign, centroids)
		if stable {
			break
		}
	}
	var inertia float64
	for p := range recs {
		if j := assign[p]; j >= 0 {
			inertia += squaredDistance(recs[p].Vector, centroids[j])
		}
	}
	return assign, inertia
}

// usableRecords drops records without vectors and repeated IDs; first occurrence wins.
func usableRecords(records []domain.ArticleRecord) ([]domain.ArticleRecord, error) {
	seen := make(map[string]bool, len(records))
	out := make([]domain.ArticleRecord, 0, len(records))
	dim := 0
	for _, r := range records {
		if len(r.Vector) == 0 || seen[r.ID] {
			continue
		}
		if dim == 0 {
			dim = len(r.Vector)
		} else if len(r.Vector) != dim {
			return nil, fmt.Errorf("cluster: record %q has dimension %d, expected %d", r.ID, len(r.Vector), dim)
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

func kmeansPlusPlus(recs []domain.ArticleRecord, k int, rng *rand.Rand) [][]float64 {
	n := len(recs)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, toFloat64(recs[rng.Intn(n)].Vector))
	d2 := make([]float64, n)
	for p := range recs {
		d2[p] = squaredDistance(recs[p].Vector, centroids[0])
	}
	for len(centroids) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}
		pick := 0
		if total <= 0 {
			pick = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			acc := 0.0
			pick = n - 1
			for p, d := range d2 {
				acc += d
				if acc >= target && d > 0 {
					pick = p
					break
				}
			}
		}
		c := toFloat64(recs[pick].Vector)
		centroids = append(centroids, c)
		for p := range recs {
			if d := squaredDistance(recs[p].Vector, c); d < d2[p] {
				d2[p] = d
			}
		}
	}
	return centroids
}

func recomputeCentroids(recs []domain.ArticleRecord, assign []int, prev [][]float64) [][]float64 {
	k := len(prev)
	dim := len(prev[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	for p, j := range assign {
		if j < 0 {
			continue
		}
		counts[j]++
		for i, x := range recs[p].Vector {
			sums[j][i] += float64(x)
		}
	}
	out := make([][]float64, k)
	for j := range sums {
		if counts[j] == 0 {
			out[j] = prev[j]
			continue
		}
		for i := range sums[j] {
			sums[j][i] /= float64(counts[j])
		}
		out[j] = sums[j]
	}
	return out
}

func buildClusters(recs []domain.ArticleRecord, assign []int, k int) []domain.Cluster {
	first := make([]int, k)
	for j := range first {
		first[j] = -1
	}
	groups := make([][]domain.ArticleRecord, k)
	for p, j := range assign {
		if j < 0 {
			continue
		}
		if first[j] < 0 {
			first[j] = p
		}
		groups[j] = append(groups[j], recs[p])
	}
	ids := make([]int, 0, k)
	for j := 0; j < k; j++ {
		if len(groups[j]) > 0 {
			ids = append(ids, j)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return first[ids[a]] < first[ids[b]] })
	out := make([]domain.Cluster, 0, len(ids))
	for label, j := range ids {
		out = append(out, domain.Cluster{Label: label, Members: groups[j]})
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
