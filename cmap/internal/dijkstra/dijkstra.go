// Package dijkstra finds the minimum-cost partition of a sequence of n
// items into contiguous runs, by shortest-path search over the DAG whose
// vertices are the n+1 run boundaries and whose edge (i,j) costs cost(i,j)
// for the run covering items [i,j). It is the segmentation engine behind
// cmap.BuildFormat4Segments.
package dijkstra

// ShortestPath finds the minimum-cost path from vertex 0 to vertex n in the
// DAG with edges (i, j) for 0 <= i < j <= n, weighted by cost(i, j). It
// returns the total cost and the sequence of vertices visited (always
// starting at 0 and ending at n).
func ShortestPath(cost func(i, j int) int, n int) (int, []int) {
	dist := make([]int, n)
	to := make([]int, n)
	for i := 0; i < n; i++ {
		dist[i] = cost(i, n)
		to[i] = n
	}

	settled := make([]bool, n)
	for !settled[0] {
		bestNode, bestDist := -1, 0
		for i := 0; i < n; i++ {
			if !settled[i] && (bestNode < 0 || dist[i] < bestDist) {
				bestNode = i
				bestDist = dist[i]
			}
		}
		settled[bestNode] = true
		pos := bestNode

		for i := 0; i < pos; i++ {
			alt := bestDist + cost(i, pos)
			if alt < dist[i] {
				dist[i] = alt
				to[i] = pos
			}
		}
	}

	res := []int{0}
	pos := 0
	for pos < n {
		pos = to[pos]
		res = append(res, pos)
	}
	return dist[0], res
}
