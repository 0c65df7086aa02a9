package browser

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
)

func TestPruneAccessibilityNodeTruncatesLongName(t *testing.T) {
	longName := ""
	for i := 0; i < 200; i++ {
		longName += "a"
	}
	node := &playwright.AccessibilitySnapshotResult{Role: "button", Name: longName}
	pruned := pruneAccessibilityNode(node, maxAccessibilityDepth)
	assert.Len(t, pruned.Name, maxAccessibilityNameChars)
}

func TestPruneAccessibilityNodeStopsAtMaxDepth(t *testing.T) {
	leaf := playwright.AccessibilitySnapshotResult{Role: "text", Name: "leaf"}
	mid := playwright.AccessibilitySnapshotResult{Role: "group", Name: "mid", Children: []playwright.AccessibilitySnapshotResult{leaf}}
	root := &playwright.AccessibilitySnapshotResult{Role: "root", Name: "root", Children: []playwright.AccessibilitySnapshotResult{mid}}

	pruned := pruneAccessibilityNode(root, 1)
	assert.Len(t, pruned.Children, 1)
	assert.Empty(t, pruned.Children[0].Children)
}

func TestPruneAccessibilityNodeAtZeroDepthHasNoChildren(t *testing.T) {
	leaf := playwright.AccessibilitySnapshotResult{Role: "text", Name: "leaf"}
	root := &playwright.AccessibilitySnapshotResult{Role: "root", Name: "root", Children: []playwright.AccessibilitySnapshotResult{leaf}}
	pruned := pruneAccessibilityNode(root, 0)
	assert.Empty(t, pruned.Children)
}
