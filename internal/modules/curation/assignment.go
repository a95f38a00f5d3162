package curation

import (
	"math"
	"sort"
)

// capacitatedAssign assigns every point to a centroid so that each cluster
// holds between lo and hi points and the total squared distance is minimal.
//
// It runs successive shortest paths on the residual graph compressed to
// cluster nodes: source, k clusters, sink. A point moving from cluster i to
// cluster j is an i->j edge weighted by the cheapest cost delta among i's
// points. Sink edges cost 0 until a cluster reaches lo and bigM until hi,
// so every lower bound is filled before any cluster grows past it.
func capacitatedAssign(cost [][]float64, k, lo, hi int) []int {
	n := len(cost)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	if n == 0 || k <= 0 {
		return assign
	}
	counts := make([]int, k)

	maxCost := 0.0
	for p := range cost {
		for j := 0; j < k; j++ {
			maxCost = math.Max(maxCost, cost[p][j])
		}
	}
	bigM := float64(n)*maxCost + 1

	// Per cluster, unassigned points ordered by (cost, index).
	order := make([][]int, k)
	cursor := make([]int, k)
	for j := 0; j < k; j++ {
		idx := make([]int, n)
		for p := range idx {
			idx[p] = p
		}
		col := j
		sort.SliceStable(idx, func(a, b int) bool { return cost[idx[a]][col] < cost[idx[b]][col] })
		order[j] = idx
	}

	const src = 0
	sink := k + 1
	nodes := k + 2
	inf := math.Inf(1)

	// moveCost[i][j] is the cheapest delta for moving one point of i into j.
	moveCost := make([][]float64, k)
	moveVia := make([][]int, k)
	dirty := make([]bool, k)
	for i := 0; i < k; i++ {
		moveCost[i] = make([]float64, k)
		moveVia[i] = make([]int, k)
		dirty[i] = true
	}
	members := make([][]int, k)

	w := make([][]float64, nodes)
	via := make([][]int, nodes)
	for i := range w {
		w[i] = make([]float64, nodes)
		via[i] = make([]int, nodes)
	}
	dist := make([]float64, nodes)
	pred := make([]int, nodes)

	for placed := 0; placed < n; placed++ {
		for i := range w {
			for j := range w[i] {
				w[i][j] = inf
				via[i][j] = -1
			}
		}
		for j := 0; j < k; j++ {
			for cursor[j] < n && assign[order[j][cursor[j]]] >= 0 {
				cursor[j]++
			}
			if cursor[j] < n {
				p := order[j][cursor[j]]
				w[src][1+j] = cost[p][j]
				via[src][1+j] = p
			}
		}
		for i := 0; i < k; i++ {
			if dirty[i] {
				for j := 0; j < k; j++ {
					moveCost[i][j] = inf
					moveVia[i][j] = -1
				}
				for _, p := range members[i] {
					base := cost[p][i]
					for j := 0; j < k; j++ {
						if j == i {
							continue
						}
						if c := cost[p][j] - base; c < moveCost[i][j] {
							moveCost[i][j] = c
							moveVia[i][j] = p
						}
					}
				}
				dirty[i] = false
			}
			for j := 0; j < k; j++ {
				if moveVia[i][j] >= 0 {
					w[1+i][1+j] = moveCost[i][j]
					via[1+i][1+j] = moveVia[i][j]
				}
			}
		}
		for j := 0; j < k; j++ {
			switch {
			case counts[j] < lo:
				w[1+j][sink] = 0
			case counts[j] < hi:
				w[1+j][sink] = bigM
			}
		}

		for i := range dist {
			dist[i] = inf
			pred[i] = -1
		}
		dist[src] = 0
		for round := 0; round < nodes-1; round++ {
			updated := false
			for u := 0; u < nodes; u++ {
				if math.IsInf(dist[u], 1) {
					continue
				}
				for v := 0; v < nodes; v++ {
					if math.IsInf(w[u][v], 1) {
						continue
					}
					if nd := dist[u] + w[u][v]; nd < dist[v]-1e-12 {
						dist[v] = nd
						pred[v] = u
						updated = true
					}
				}
			}
			if !updated {
				break
			}
		}
		if math.IsInf(dist[sink], 1) {
			break
		}

		type move struct{ point, to int }
		var moves []move
		seen := make([]bool, nodes)
		for v := sink; v != src; {
			u := pred[v]
			if u < 0 || seen[u] {
				moves = nil
				break
			}
			seen[u] = true
			if v != sink {
				moves = append(moves, move{point: via[u][v], to: v - 1})
			}
			v = u
		}
		if len(moves) == 0 {
			break
		}
		for _, m := range moves {
			if prev := assign[m.point]; prev >= 0 {
				counts[prev]--
				members[prev] = removeInt(members[prev], m.point)
				dirty[prev] = true
			}
			assign[m.point] = m.to
			counts[m.to]++
			members[m.to] = append(members[m.to], m.point)
			dirty[m.to] = true
		}
	}
	return assign
}

func removeInt(xs []int, x int) []int {
	for i, v := range xs {
		if v == x {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}
