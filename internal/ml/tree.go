package ml

import "sort"

// treeNode is one node of a regression tree. Leaves carry the fitted value;
// internal nodes route on feature <= threshold.
type treeNode struct {
	Leaf      bool      `json:"leaf"`
	Value     float64   `json:"value,omitempty"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

func (n *treeNode) predict(row []float64) float64 {
	node := n
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// buildTree fits a depth-limited least-squares regression tree on the sampled
// row indices. Candidate thresholds are taken at evenly spaced order
// statistics per feature rather than every distinct value, which bounds the
// split search without changing results noticeably on weekly stat tables.
func buildTree(x [][]float64, y []float64, idx []int, depth, maxDepth, minLeaf int) *treeNode {
	mean := meanAt(y, idx)
	if depth >= maxDepth || len(idx) < 2*minLeaf {
		return &treeNode{Leaf: true, Value: mean}
	}

	best := findBestSplit(x, y, idx, minLeaf)
	if best == nil {
		return &treeNode{Leaf: true, Value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if x[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < minLeaf || len(right) < minLeaf {
		return &treeNode{Leaf: true, Value: mean}
	}

	return &treeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      buildTree(x, y, left, depth+1, maxDepth, minLeaf),
		Right:     buildTree(x, y, right, depth+1, maxDepth, minLeaf),
	}
}

const maxThresholdCandidates = 16

func findBestSplit(x [][]float64, y []float64, idx []int, minLeaf int) *split {
	if len(idx) == 0 {
		return nil
	}
	numFeatures := len(x[idx[0]])

	var total, totalSq float64
	for _, i := range idx {
		total += y[i]
		totalSq += y[i] * y[i]
	}
	n := float64(len(idx))
	baseSSE := totalSq - total*total/n

	var best *split
	values := make([]float64, 0, len(idx))
	for f := 0; f < numFeatures; f++ {
		values = values[:0]
		for _, i := range idx {
			values = append(values, x[i][f])
		}
		sort.Float64s(values)
		if values[0] == values[len(values)-1] {
			continue
		}

		for _, threshold := range thresholdCandidates(values) {
			var leftN, leftSum, leftSq float64
			for _, i := range idx {
				if x[i][f] <= threshold {
					leftN++
					leftSum += y[i]
					leftSq += y[i] * y[i]
				}
			}
			rightN := n - leftN
			if leftN < float64(minLeaf) || rightN < float64(minLeaf) {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/leftN) + (rightSq - rightSum*rightSum/rightN)
			gain := baseSSE - sse
			if best == nil || gain > best.gain {
				best = &split{feature: f, threshold: threshold, gain: gain}
			}
		}
	}
	if best == nil || best.gain <= 0 {
		return nil
	}
	return best
}

func thresholdCandidates(sorted []float64) []float64 {
	candidates := make([]float64, 0, maxThresholdCandidates)
	step := len(sorted) / (maxThresholdCandidates + 1)
	if step < 1 {
		step = 1
	}
	var last float64
	for i := step; i < len(sorted); i += step {
		v := sorted[i]
		if len(candidates) > 0 && v == last {
			continue
		}
		candidates = append(candidates, v)
		last = v
	}
	return candidates
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}
