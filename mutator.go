package merkletree

import (
	"fmt"

	"github.com/kocubinski/merkletree/merkleerr"
)

// resolveNode looks up a node by hash: dirty cache first (it holds
// everything mutated since the last flush), then the read-through
// cache, then the durable nodes column family. Returns ErrNotFound if
// none of the three has it.
func (t *Tree) resolveNode(h Hash) (*node, error) {
	if n, ok := t.dirty.get(h); ok {
		return n, nil
	}
	if n, ok := t.readCache.getNode(h); ok {
		return n, nil
	}
	blob, err := t.cfNode.Get(h[:])
	if err != nil {
		return nil, fmt.Errorf("%w: loading node %x: %v", merkleerr.ErrIOFailure, h, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: node %x", merkleerr.ErrNotFound, h)
	}
	n, err := decodeNode(blob)
	if err != nil {
		return nil, err
	}
	t.readCache.putNode(n)
	return n, nil
}

// addLeaf is the entry point at level 0 of spec.md §4.3. It
// increments numLeaves, then grows the tree with the new leaf.
// Called only from the commit worker goroutine, which processes the
// queue one item at a time — so no two addLeaf/updateLeaf calls ever
// run concurrently on the same tree, and the containers below only
// need their own internal locks, never t.mu.
func (t *Tree) addLeaf(leafHash Hash) error {
	leaf := &node{hash: leafHash}
	t.dirty.put(leaf)

	t.metaMu.Lock()
	t.numLeaves++
	t.metaMu.Unlock()

	return t.addNode(0, leaf)
}

// addNode implements spec.md §4.3's three-way case split for
// inserting a node at level.
func (t *Tree) addNode(level uint32, n *node) error {
	hangingHash, hasHanging := t.hanging.get(level)

	if !hasHanging {
		t.hanging.set(level, n.hash)

		t.metaMu.RLock()
		depth := t.depth
		t.metaMu.RUnlock()

		if level == depth {
			return t.becomeRoot(n)
		}

		parentHash := oddArityHash(&n.hash, nil)
		parent := &node{hash: parentHash, left: &n.hash}
		h := parent.hash
		n.parent = &h
		t.dirty.put(parent)
		return t.addNode(level+1, parent)
	}

	hangingNode, err := t.resolveNode(hangingHash)
	if err != nil {
		return err
	}

	if hangingNode.parent == nil {
		// hangingNode is also the current root: ℓ == depth here, and
		// replacing the root always grows the tree by one level, so
		// depth advances to ℓ+1 before the recursive call below checks
		// it (see DESIGN.md for why this bump belongs here rather
		// than in becomeRoot).
		parentHash := oddArityHash(&hangingNode.hash, &n.hash)
		parent := &node{hash: parentHash, left: &hangingNode.hash, right: &n.hash}
		ph := parent.hash
		hangingNode.parent = &ph
		n.parent = &ph
		t.dirty.put(hangingNode)
		t.dirty.put(parent)
		t.hanging.clearLevel(level)

		t.metaMu.Lock()
		t.depth = level + 1
		t.metaMu.Unlock()

		return t.addNode(level+1, parent)
	}

	grandparent, err := t.resolveNode(*hangingNode.parent)
	if err != nil {
		return err
	}
	if err := grandparent.addLeaf(n.hash); err != nil {
		return err
	}
	h := grandparent.hash
	n.parent = &h
	t.dirty.put(n)
	t.hanging.clearLevel(level)
	newHash := grandparent.recomputeHash()
	return t.updateNodeHash(grandparent, newHash)
}

// becomeRoot installs n as the tree root: n's parent is already nil,
// and rootHash is set to n's hash. depth is left unchanged here;
// addNode advances it when a root gains a sibling.
// Reached only the first time a level reaches the current depth
// without a hanging sibling — i.e. the very first leaf, or whenever
// the tree grows a new top level.
func (t *Tree) becomeRoot(n *node) error {
	t.dirty.put(n)
	t.metaMu.Lock()
	h := n.hash
	t.rootHash = &h
	t.metaMu.Unlock()
	return nil
}

// updateLeaf locates the node currently stored under oldHash and
// rehashes it to newHash (spec.md §4.3's tree-level updateLeaf).
func (t *Tree) updateLeaf(oldHash, newHash Hash) error {
	if oldHash == newHash {
		return fmt.Errorf("%w: updateLeaf old and new hash are equal", merkleerr.ErrInvalidArgument)
	}
	n, err := t.resolveNode(oldHash)
	if err != nil {
		return err
	}
	return t.updateNodeHash(n, newHash)
}

// updateNodeHash is the heart of rehashing (spec.md §4.3). It moves n
// to its new hash in every structure that indexes it by hash, then
// propagates the change upward (root repoint, or parent rewrite +
// recurse).
func (t *Tree) updateNodeHash(n *node, newHash Hash) error {
	if n.pendingOldHash == nil {
		old := n.hash
		n.pendingOldHash = &old
	}
	oldHash := n.hash
	n.hash = newHash

	t.hanging.repoint(oldHash, newHash)
	t.dirty.move(oldHash, newHash, n)

	if n.parent == nil {
		// n is the root.
		t.metaMu.Lock()
		h := newHash
		t.rootHash = &h
		t.metaMu.Unlock()

		if n.left != nil {
			child, err := t.resolveNode(*n.left)
			if err != nil {
				return err
			}
			h := newHash
			child.parent = &h
			t.dirty.put(child)
		}
		if n.right != nil {
			child, err := t.resolveNode(*n.right)
			if err != nil {
				return err
			}
			h := newHash
			child.parent = &h
			t.dirty.put(child)
		}
		return nil
	}

	if !n.isLeaf() {
		// Keep downward links consistent: both children's parent
		// pointers must point at n's new hash.
		if n.left != nil {
			child, err := t.resolveNode(*n.left)
			if err != nil {
				return err
			}
			h := newHash
			child.parent = &h
			t.dirty.put(child)
		}
		if n.right != nil {
			child, err := t.resolveNode(*n.right)
			if err != nil {
				return err
			}
			h := newHash
			child.parent = &h
			t.dirty.put(child)
		}
	}

	parent, err := t.resolveNode(*n.parent)
	if err != nil {
		return err
	}
	parent.updateLeafPointer(oldHash, newHash)
	t.dirty.put(parent)
	parentNewHash := parent.recomputeHash()
	return t.updateNodeHash(parent, parentNewHash)
}
