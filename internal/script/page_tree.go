// internal/script/page_tree.go
package script

import "github.com/oksome/servo/internal/msg"

// AddChild appends a page to this page's child list. Pipeline ids are unique
// across the whole tree; enforcing that is the caller's responsibility.
func (p *Page) AddChild(child *Page) {
	p.children = append(p.children, child)
}

// Children returns the page's child list in insertion order.
func (p *Page) Children() []*Page {
	return p.children
}

// Find returns the first page with the given id in a pre-order depth-first
// search of the tree rooted at p, or nil.
func (p *Page) Find(id msg.PipelineID) *Page {
	if p.ID == id {
		return p
	}
	for _, child := range p.children {
		if found := child.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// Remove detaches and returns the subtree rooted at the page with the given
// id. Immediate children are checked before recursing, and the first match
// wins. Remove never detaches p itself even when p.ID == id; removing a root
// context must be handled by the caller.
func (p *Page) Remove(id msg.PipelineID) *Page {
	for i, child := range p.children {
		if child.ID == id {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return child
		}
	}
	for _, child := range p.children {
		if found := child.Remove(id); found != nil {
			return found
		}
	}
	return nil
}

// PageIterator walks a page tree lazily. It is finite and non-restartable,
// and reflects the tree's shape at traversal time: mutating the tree during
// traversal leaves the iteration undefined.
type PageIterator struct {
	stack []*Page
}

// Iter returns an iterator over the tree rooted at p. The root is yielded
// first; children are then visited in reverse of their stored order because
// the traversal is driven by an explicit LIFO stack.
func (p *Page) Iter() *PageIterator {
	return &PageIterator{stack: []*Page{p}}
}

// Next returns the next page in the traversal, or nil when exhausted.
func (it *PageIterator) Next() *Page {
	if len(it.stack) == 0 {
		return nil
	}
	next := it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	it.stack = append(it.stack, next.children...)
	return next
}
