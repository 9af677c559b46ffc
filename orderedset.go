package fairsched

// OrderedSet is a balanced, intrusive red-black tree of *Thread ordered by
// vRuntime (ties broken by admission sequence, see Thread.less). It is the
// component spec.md §4.1 and §9 describe: logarithmic insert/remove/
// popMin/readMin, zero allocation on the hot path because
// the tree's left/right/parent/red/inTree fields are embedded directly on
// Thread rather than allocated per operation (spec.md §9's preferred
// alternative to the original's per-operation node wrapper).
//
// OrderedSet is not itself thread-safe; the scheduler serializes all
// access under its own readyLock (spec.md §4.1).
//
// The rotation/insert-fixup shape follows the red-black tree in
// other_examples' Orizon kernel scheduler reference; delete-fixup is the
// standard CLRS algorithm, which that reference's own deleteNode left
// unimplemented beyond the leaf case.
type OrderedSet struct {
	root *Thread
	size int
}

// Size returns the number of elements currently in the set.
func (s *OrderedSet) Size() int { return s.size }

// Empty reports whether the set has no elements.
func (s *OrderedSet) Empty() bool { return s.size == 0 }

// Insert admits t into the set. Duplicates (equal keys) are admitted, as
// required by spec.md §4.1; t must not already be a member of any set.
func (s *OrderedSet) Insert(t *Thread) {
	t.left, t.right, t.parent = nil, nil, nil
	t.red = true

	if s.root == nil {
		s.root = t
		t.red = false
		t.inTree = true
		s.size++
		return
	}

	cur := s.root
	for {
		if t.less(cur) {
			if cur.left == nil {
				cur.left = t
				t.parent = cur
				break
			}
			cur = cur.left
		} else {
			if cur.right == nil {
				cur.right = t
				t.parent = cur
				break
			}
			cur = cur.right
		}
	}

	s.fixInsert(t)
	t.inTree = true
	s.size++
}

func (s *OrderedSet) fixInsert(n *Thread) {
	for n.parent != nil && n.parent.red {
		gp := n.parent.parent
		if n.parent == gp.left {
			uncle := gp.right
			if uncle != nil && uncle.red {
				n.parent.red = false
				uncle.red = false
				gp.red = true
				n = gp
			} else {
				if n == n.parent.right {
					n = n.parent
					s.rotateLeft(n)
				}
				n.parent.red = false
				gp.red = true
				s.rotateRight(gp)
			}
		} else {
			uncle := gp.left
			if uncle != nil && uncle.red {
				n.parent.red = false
				uncle.red = false
				gp.red = true
				n = gp
			} else {
				if n == n.parent.left {
					n = n.parent
					s.rotateRight(n)
				}
				n.parent.red = false
				gp.red = true
				s.rotateLeft(gp)
			}
		}
	}
	s.root.red = false
}

func (s *OrderedSet) rotateLeft(x *Thread) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		s.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (s *OrderedSet) rotateRight(x *Thread) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		s.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func minNode(n *Thread) *Thread {
	for n.left != nil {
		n = n.left
	}
	return n
}

// ReadMin returns the minimum-keyed element without removing it, or nil if
// the set is empty.
func (s *OrderedSet) ReadMin() *Thread {
	if s.root == nil {
		return nil
	}
	return minNode(s.root)
}

// PopMin removes and returns the minimum-keyed element, or nil if the set
// is empty.
func (s *OrderedSet) PopMin() *Thread {
	min := s.ReadMin()
	if min == nil {
		return nil
	}
	s.Remove(min)
	return min
}

// Remove removes t, identified by pointer identity, from the set. It is a
// no-op (returning false) if t is not currently a member -- per spec.md
// §9's resolution of the suspend-removal open question, "remove if
// present" rather than an assertion failure.
func (s *OrderedSet) Remove(t *Thread) bool {
	if t == nil || !t.inTree {
		return false
	}

	y := t
	yWasRed := y.red
	var x, xParent *Thread

	switch {
	case t.left == nil:
		x, xParent = t.right, t.parent
		s.transplant(t, t.right)
	case t.right == nil:
		x, xParent = t.left, t.parent
		s.transplant(t, t.left)
	default:
		y = minNode(t.right)
		yWasRed = y.red
		x = y.right
		if y.parent == t {
			xParent = y
		} else {
			xParent = y.parent
			s.transplant(y, y.right)
			y.right = t.right
			y.right.parent = y
		}
		s.transplant(t, y)
		y.left = t.left
		y.left.parent = y
		y.red = t.red
	}

	if !yWasRed {
		s.fixRemove(x, xParent)
	}

	t.left, t.right, t.parent = nil, nil, nil
	t.inTree = false
	s.size--
	return true
}

// transplant replaces the subtree rooted at u with the subtree rooted at
// v within s, standard CLRS red-black tree delete helper.
func (s *OrderedSet) transplant(u, v *Thread) {
	if u.parent == nil {
		s.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

// fixRemove restores red-black properties after removing a black node,
// where child (possibly nil) has taken its place under parent.
func (s *OrderedSet) fixRemove(child, parent *Thread) {
	for child != s.root && !isRed(child) {
		if parent == nil {
			break
		}
		if child == parent.left {
			sib := parent.right
			if isRed(sib) {
				sib.red = false
				parent.red = true
				s.rotateLeft(parent)
				sib = parent.right
			}
			if !isRed(sib.left) && !isRed(sib.right) {
				sib.red = true
				child = parent
				parent = child.parent
				continue
			}
			if !isRed(sib.right) {
				if sib.left != nil {
					sib.left.red = false
				}
				sib.red = true
				s.rotateRight(sib)
				sib = parent.right
			}
			sib.red = parent.red
			parent.red = false
			if sib.right != nil {
				sib.right.red = false
			}
			s.rotateLeft(parent)
			child = s.root
			break
		}
		sib := parent.left
		if isRed(sib) {
			sib.red = false
			parent.red = true
			s.rotateRight(parent)
			sib = parent.left
		}
		if !isRed(sib.left) && !isRed(sib.right) {
			sib.red = true
			child = parent
			parent = child.parent
			continue
		}
		if !isRed(sib.left) {
			if sib.right != nil {
				sib.right.red = false
			}
			sib.red = true
			s.rotateLeft(sib)
			sib = parent.left
		}
		sib.red = parent.red
		parent.red = false
		if sib.left != nil {
			sib.left.red = false
		}
		s.rotateRight(parent)
		child = s.root
		break
	}
	if child != nil {
		child.red = false
	}
}

func isRed(n *Thread) bool {
	return n != nil && n.red
}
