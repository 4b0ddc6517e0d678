package orderbook

import (
	"math/rand"
	"testing"
)

func TestUpsertFindDelete(t *testing.T) {
	tr := NewRBTree()

	prices := []int64{50, 20, 80, 10, 30, 70, 90}
	for _, p := range prices {
		lvl := tr.UpsertLevel(p)
		if lvl.Price != p {
			t.Fatalf("upsert returned level %d, want %d", lvl.Price, p)
		}
	}

	// Upsert of an existing price returns the same level.
	if tr.UpsertLevel(30) != tr.FindLevel(30) {
		t.Fatal("upsert created a duplicate level")
	}

	if tr.FindLevel(42) != nil {
		t.Fatal("found a price that was never inserted")
	}

	tr.DeleteLevel(20)
	if tr.FindLevel(20) != nil {
		t.Fatal("deleted level still findable")
	}
	if tr.MinLevel().Price != 10 || tr.MaxLevel().Price != 90 {
		t.Fatalf("min/max = %d/%d, want 10/90", tr.MinLevel().Price, tr.MaxLevel().Price)
	}
}

func TestOrderedTraversal(t *testing.T) {
	tr := NewRBTree()
	rng := rand.New(rand.NewSource(1))
	inserted := make(map[int64]bool)
	for i := 0; i < 500; i++ {
		p := int64(rng.Intn(10000) + 1)
		tr.UpsertLevel(p)
		inserted[p] = true
	}

	var asc []int64
	tr.ForEachAscending(func(lvl *PriceLevel) bool {
		asc = append(asc, lvl.Price)
		return true
	})
	if len(asc) != len(inserted) {
		t.Fatalf("traversed %d levels, want %d", len(asc), len(inserted))
	}
	for i := 1; i < len(asc); i++ {
		if asc[i-1] >= asc[i] {
			t.Fatalf("ascending order violated at %d: %d >= %d", i, asc[i-1], asc[i])
		}
	}

	var desc []int64
	tr.ForEachDescending(func(lvl *PriceLevel) bool {
		desc = append(desc, lvl.Price)
		return true
	})
	for i := 1; i < len(desc); i++ {
		if desc[i-1] <= desc[i] {
			t.Fatalf("descending order violated at %d", i)
		}
	}
}

func TestTraversalEarlyStop(t *testing.T) {
	tr := NewRBTree()
	for p := int64(1); p <= 10; p++ {
		tr.UpsertLevel(p)
	}
	count := 0
	tr.ForEachAscending(func(*PriceLevel) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Fatalf("visited %d levels, want 3", count)
	}
}

// checkRBInvariants walks the whole tree verifying the red-black
// structural rules: the root is black, no red node has a red child, and
// every root-to-leaf path carries the same number of black nodes.
func checkRBInvariants(t *testing.T, tr *RBTree) {
	t.Helper()
	if tr.root.color != black {
		t.Fatal("root is red")
	}
	var walk func(n *rbNode) int
	walk = func(n *rbNode) int {
		if n == tr.nil {
			return 1
		}
		if n.color == red && (n.left.color == red || n.right.color == red) {
			t.Fatalf("red node %d has a red child", n.key)
		}
		lh := walk(n.left)
		rh := walk(n.right)
		if lh != rh {
			t.Fatalf("black height mismatch at %d: %d vs %d", n.key, lh, rh)
		}
		if n.color == black {
			lh++
		}
		return lh
	}
	walk(tr.root)
}

// Deletions that leave a black deficit on the right spine rebalance
// through the mirrored fixup branches; the tree must stay a valid
// red-black tree through every removal, not merely stay ordered.
func TestDeleteRebalancesBothSpines(t *testing.T) {
	for _, del := range [][]int64{
		{1, 2, 3, 4, 5, 6, 7, 8},         // ascending: deficits on the left
		{8, 7, 6, 5, 4, 3, 2, 1},         // descending: deficits on the right
		{4, 5, 3, 6, 2, 7, 1, 8},         // inside out
		{1, 8, 2, 7, 3, 6, 4, 5},         // outside in
		{2, 4, 6, 8, 1, 3, 5, 7},         // evens then odds
		{5, 1, 7, 3, 8, 2, 6, 4},         // mixed
	} {
		for size := int64(8); size <= 64; size *= 2 {
			tr := NewRBTree()
			for p := int64(1); p <= size; p++ {
				tr.UpsertLevel(p)
			}
			checkRBInvariants(t, tr)
			for _, base := range del {
				for p := base; p <= size; p += 8 {
					if !tr.DeleteLevel(p) {
						t.Fatalf("delete %d reported missing", p)
					}
					checkRBInvariants(t, tr)
				}
			}
			if tr.Size() != 0 {
				t.Fatalf("size = %d after deleting everything", tr.Size())
			}
		}
	}
}

func TestRandomInsertDelete(t *testing.T) {
	tr := NewRBTree()
	rng := rand.New(rand.NewSource(7))
	live := make(map[int64]bool)

	for i := 0; i < 5000; i++ {
		p := int64(rng.Intn(200) + 1)
		if live[p] && rng.Intn(2) == 0 {
			tr.DeleteLevel(p)
			delete(live, p)
		} else {
			tr.UpsertLevel(p)
			live[p] = true
		}
	}

	n := 0
	prev := int64(0)
	tr.ForEachAscending(func(lvl *PriceLevel) bool {
		if !live[lvl.Price] {
			t.Fatalf("tree holds deleted price %d", lvl.Price)
		}
		if lvl.Price <= prev {
			t.Fatalf("order violated: %d after %d", lvl.Price, prev)
		}
		prev = lvl.Price
		n++
		return true
	})
	if n != len(live) {
		t.Fatalf("tree has %d levels, want %d", n, len(live))
	}
}
