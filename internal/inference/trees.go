package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TreeNode is one node of an XGBoost JSON tree dump. Leaves carry Leaf;
// split nodes send x[Split] < SplitCondition to Yes, otherwise No, and
// missing values to Missing.
type TreeNode struct {
	NodeID         int         `json:"nodeid"`
	Split          string      `json:"split,omitempty"`
	SplitCondition float64     `json:"split_condition,omitempty"`
	Yes            int         `json:"yes,omitempty"`
	No             int         `json:"no,omitempty"`
	Missing        int         `json:"missing,omitempty"`
	Leaf           *float64    `json:"leaf,omitempty"`
	Children       []*TreeNode `json:"children,omitempty"`
}

// TreeEnsembleParams is the serialized residual model.
type TreeEnsembleParams struct {
	BaseScore          float64     `json:"base_score"`
	FeatureNames       []string    `json:"feature_names"`
	FeatureImportances []float64   `json:"feature_importances"`
	NEstimators        int         `json:"n_estimators"`
	MaxDepth           int         `json:"max_depth"`
	Trees              []*TreeNode `json:"trees"`
}

// TreeEnsemble is a gradient-boosted regression tree ensemble.
type TreeEnsemble struct {
	baseScore   float64
	names       []string
	index       map[string]int
	importances []float64
	nEstimators int
	maxDepth    int
	trees       []*TreeNode
}

// NewTreeEnsemble decodes a serialized tree ensemble.
func NewTreeEnsemble(raw json.RawMessage) (*TreeEnsemble, error) {
	var p TreeEnsembleParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode residual model: %w", err)
	}
	return NewTreeEnsembleFromParams(p)
}

// NewTreeEnsembleFromParams builds an ensemble from decoded parameters.
func NewTreeEnsembleFromParams(p TreeEnsembleParams) (*TreeEnsemble, error) {
	if len(p.FeatureNames) == 0 {
		return nil, fmt.Errorf("residual model has no feature names")
	}

	te := &TreeEnsemble{
		baseScore:   p.BaseScore,
		names:       append([]string(nil), p.FeatureNames...),
		index:       make(map[string]int, len(p.FeatureNames)),
		nEstimators: p.NEstimators,
		maxDepth:    p.MaxDepth,
		trees:       p.Trees,
	}
	for i, name := range p.FeatureNames {
		te.index[name] = i
	}
	if te.nEstimators == 0 {
		te.nEstimators = len(p.Trees)
	}

	for i, tree := range p.Trees {
		if err := te.check(tree); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}

	if len(p.FeatureImportances) > 0 {
		if len(p.FeatureImportances) != len(p.FeatureNames) {
			return nil, fmt.Errorf("feature_importances has %d entries for %d features",
				len(p.FeatureImportances), len(p.FeatureNames))
		}
		te.importances = append([]float64(nil), p.FeatureImportances...)
	} else {
		te.importances = te.splitCounts()
	}
	return te, nil
}

// FeatureNames returns the fitted column order.
func (te *TreeEnsemble) FeatureNames() []string {
	return append([]string(nil), te.names...)
}

// FeatureImportances returns the stored importance vector, or normalized
// split counts when the artifact carried none.
func (te *TreeEnsemble) FeatureImportances() []float64 {
	return append([]float64(nil), te.importances...)
}

// Predict sums the leaf values of every tree on top of the base score.
func (te *TreeEnsemble) Predict(x []float64) (float64, error) {
	if len(x) != len(te.names) {
		return 0, fmt.Errorf("expected %d features, got %d", len(te.names), len(x))
	}
	sum := te.baseScore
	for i, tree := range te.trees {
		leaf, err := te.walk(tree, x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += leaf
	}
	return sum, nil
}

// Describe reports the ensemble's size.
func (te *TreeEnsemble) Describe() map[string]string {
	depth := "N/A"
	if te.maxDepth > 0 {
		depth = strconv.Itoa(te.maxDepth)
	}
	return map[string]string{
		"n_estimators": strconv.Itoa(te.nEstimators),
		"max_depth":    depth,
	}
}

func (te *TreeEnsemble) walk(node *TreeNode, x []float64) (float64, error) {
	for node.Leaf == nil {
		idx, err := te.featureIndex(node.Split)
		if err != nil {
			return 0, err
		}
		next := node.No
		switch v := x[idx]; {
		case math.IsNaN(v):
			next = node.Missing
		case v < node.SplitCondition:
			next = node.Yes
		}
		child := findChild(node, next)
		if child == nil {
			return 0, fmt.Errorf("node %d has no child %d", node.NodeID, next)
		}
		node = child
	}
	return *node.Leaf, nil
}

// featureIndex resolves a split name, accepting both fitted names and the
// positional f<N> form.
func (te *TreeEnsemble) featureIndex(split string) (int, error) {
	if idx, ok := te.index[split]; ok {
		return idx, nil
	}
	if strings.HasPrefix(split, "f") {
		if idx, err := strconv.Atoi(split[1:]); err == nil && idx >= 0 && idx < len(te.names) {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("unknown split feature %q", split)
}

func (te *TreeEnsemble) check(node *TreeNode) error {
	if node == nil {
		return fmt.Errorf("nil node")
	}
	if node.Leaf != nil {
		return nil
	}
	if _, err := te.featureIndex(node.Split); err != nil {
		return err
	}
	if len(node.Children) == 0 {
		return fmt.Errorf("split node %d has no children", node.NodeID)
	}
	for _, child := range node.Children {
		if err := te.check(child); err != nil {
			return err
		}
	}
	return nil
}

func (te *TreeEnsemble) splitCounts() []float64 {
	counts := make([]float64, len(te.names))
	var visit func(*TreeNode)
	visit = func(node *TreeNode) {
		if node == nil || node.Leaf != nil {
			return
		}
		if idx, err := te.featureIndex(node.Split); err == nil {
			counts[idx]++
		}
		for _, child := range node.Children {
			visit(child)
		}
	}
	total := 0.0
	for _, tree := range te.trees {
		visit(tree)
	}
	for _, c := range counts {
		total += c
	}
	if total > 0 {
		for i := range counts {
			counts[i] /= total
		}
	}
	return counts
}

func findChild(node *TreeNode, id int) *TreeNode {
	for _, child := range node.Children {
		if child.NodeID == id {
			return child
		}
	}
	return nil
}
