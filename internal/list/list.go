// Package list is a specialized adaption of `container/ring` for use as
// intrusive queue storage: nodes are embedded in their owners, so linking
// and unlinking never allocates, membership is checkable in O(1), and a
// node can be unlinked without knowing which list currently holds it.
package list

import "iter"

type (
	// A Node is one element of a [List]. The zero value is an unlinked
	// node. Nodes must not be copied while linked.
	Node[T any] struct {
		next, prev *Node[T]
		// Value is the owner of this node,
		// assigned once before first use.
		Value T
	}
	// A List is a doubly linked list of embedded nodes with a sentinel
	// root. The zero value is not usable; call [New] or [List.Init].
	// Head is the newest end, tail the oldest.
	List[T any] struct {
		root Node[T]
	}
)

// New returns an initialized empty list.
func New[T any]() *List[T] {
	return new(List[T]).Init()
}

// Init (re)initializes the list to empty and returns it.
// Any nodes still linked are abandoned, not unlinked.
func (l *List[T]) Init() *List[T] {
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// Linked reports whether n is currently a member of any list.
func (n *Node[T]) Linked() bool { return n.next != nil }

// Unlink removes n from whichever list holds it.
// n must be linked.
func (n *Node[T]) Unlink() {
	if n.next == nil {
		panic("list: unlinking unlinked node")
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
}

// Empty reports whether the list has no elements.
func (l *List[T]) Empty() bool { return l.root.next == &l.root }

// Len computes the number of elements in the list.
// It executes in time proportional to the number of elements.
func (l *List[T]) Len() int {
	n := 0
	for p := l.root.next; p != &l.root; p = p.next {
		n++
	}
	return n
}

// Head returns the newest node, or nil if the list is empty.
func (l *List[T]) Head() *Node[T] {
	if l.Empty() {
		return nil
	}
	return l.root.next
}

// Tail returns the oldest node, or nil if the list is empty.
func (l *List[T]) Tail() *Node[T] {
	if l.Empty() {
		return nil
	}
	return l.root.prev
}

// PushHead links n at the head of the list.
// n must not be linked into any list.
func (l *List[T]) PushHead(n *Node[T]) {
	l.insert(n, &l.root)
}

// PushTail links n at the tail of the list.
// n must not be linked into any list.
func (l *List[T]) PushTail(n *Node[T]) {
	l.insert(n, l.root.prev)
}

func (l *List[T]) insert(n, at *Node[T]) {
	if n.next != nil {
		panic("list: node already linked")
	}
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
}

// MoveAllTo transfers every element of l to the tail of dst,
// preserving order, and leaves l empty.
func (l *List[T]) MoveAllTo(dst *List[T]) {
	for !l.Empty() {
		n := l.Head()
		n.Unlink()
		dst.PushTail(n)
	}
}

// Iter iterates the list from head to tail. The behavior is undefined
// if the list is mutated during iteration other than unlinking the
// most recently yielded node.
func (l *List[T]) Iter() iter.Seq[*Node[T]] {
	return func(yield func(*Node[T]) bool) {
		for n := l.root.next; n != &l.root; {
			next := n.next
			if !yield(n) {
				return
			}
			n = next
		}
	}
}
