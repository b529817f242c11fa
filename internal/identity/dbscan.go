package identity

// DBSCAN labels during expansion.
const (
	dbscanUnclassified = -2
	dbscanNoise        = -1
)

// dbscan runs density clustering over the given embeddings and returns the
// member indexes per cluster plus the noise indexes. A point is a core
// point when at least minSamples points (itself included) lie within eps.
// Points reachable only through non-core neighbors stay noise.
func dbscan(points [][]float32, eps float64, minSamples int, dist DistanceFunc) (clusters [][]int, noise []int) {
	n := len(points)
	if n == 0 {
		return nil, nil
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = dbscanUnclassified
	}

	neighborsOf := func(idx int) []int {
		var result []int
		for j := 0; j < n; j++ {
			if dist(points[idx], points[j]) <= eps {
				result = append(result, j)
			}
		}
		return result
	}

	clusterID := 0
	for i := 0; i < n; i++ {
		if labels[i] != dbscanUnclassified {
			continue
		}

		neighbors := neighborsOf(i)
		if len(neighbors) < minSamples {
			labels[i] = dbscanNoise
			continue
		}

		labels[i] = clusterID
		queue := append([]int(nil), neighbors...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == dbscanNoise {
				// Border point: joins the cluster but never expands it.
				labels[j] = clusterID
			}
			if labels[j] != dbscanUnclassified {
				continue
			}

			labels[j] = clusterID
			jNeighbors := neighborsOf(j)
			if len(jNeighbors) >= minSamples {
				queue = append(queue, jNeighbors...)
			}
		}
		clusterID++
	}

	clusters = make([][]int, clusterID)
	for i, label := range labels {
		if label == dbscanNoise {
			noise = append(noise, i)
			continue
		}
		clusters[label] = append(clusters[label], i)
	}

	return clusters, noise
}
