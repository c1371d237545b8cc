// Package queue provides the bounded heap used to keep the k best
// candidates during an exhaustive scan.
package queue

// Item is a scan candidate.
//
// Key is normalized so that lower is always better: backends that rank by
// a similarity store its negation. Position is the insertion position of
// the candidate and breaks exact Key ties (earlier wins).
type Item struct {
	Position uint32
	Key      float32
}

// worse reports whether a ranks strictly behind b.
func worse(a, b Item) bool {
	if a.Key != b.Key {
		return a.Key > b.Key
	}
	return a.Position > b.Position
}

// TopK keeps the k best items seen so far.
// Internally it is a max-heap on rank, so the current worst item sits at
// the root and can be evicted in O(log k).
type TopK struct {
	k     int
	items []Item
}

// NewTopK returns a keeper for at most k items. k must be positive.
func NewTopK(k int) *TopK {
	return &TopK{
		k:     k,
		items: make([]Item, 0, k),
	}
}

// Len returns the number of items currently kept.
func (q *TopK) Len() int { return len(q.items) }

// Worst returns the item that would be evicted next.
func (q *TopK) Worst() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Offer adds it if the keeper is not full or it beats the current worst.
// Returns true if the item was kept.
func (q *TopK) Offer(it Item) bool {
	if len(q.items) < q.k {
		q.items = append(q.items, it)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if !worse(q.items[0], it) {
		return false
	}
	q.items[0] = it
	q.siftDown(0)
	return true
}

// Drain empties the keeper and returns its items best first.
func (q *TopK) Drain() []Item {
	out := make([]Item, len(q.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = q.pop()
	}
	return out
}

// Reset clears the keeper for reuse.
func (q *TopK) Reset() {
	q.items = q.items[:0]
}

func (q *TopK) pop() Item {
	n := len(q.items)
	root := q.items[0]
	q.items[0] = q.items[n-1]
	q.items[n-1] = Item{}
	q.items = q.items[:n-1]
	if len(q.items) > 0 {
		q.siftDown(0)
	}
	return root
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !worse(q.items[i], q.items[p]) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		w := l
		if r := l + 1; r < n && worse(q.items[r], q.items[l]) {
			w = r
		}
		if !worse(q.items[w], q.items[i]) {
			return
		}
		q.items[i], q.items[w] = q.items[w], q.items[i]
		i = w
	}
}
