package bus

import (
	"github.com/strato-bus/strato/internal/envelope"
)

// retainedStore keeps the last retained message per topic, bounded by an
// LRU cap. The structure is a hash map into an intrusive doubly-linked list
// ordered by recency, so set, touch, and evict are all O(1); a publish never
// scans the store.
//
// Invariant: after any mutation, len(nodes) <= cap (for cap > 0).
// Not thread-safe; callers hold the bus mutex.
type retainedStore struct {
	cap   int
	nodes map[string]*retainedNode

	// head is most recently used, tail least. Sentinel-free: nil ends.
	head *retainedNode
	tail *retainedNode
}

type retainedNode struct {
	topic string
	msg   *envelope.Message

	// lastTouchedSeq records the logical clock value of the most recent
	// set or replay touch. Kept for introspection; recency ordering itself
	// lives in the list links.
	lastTouchedSeq int64

	prev *retainedNode
	next *retainedNode
}

func newRetainedStore(capacity int) *retainedStore {
	return &retainedStore{
		cap:   capacity,
		nodes: make(map[string]*retainedNode),
	}
}

// set upserts the retained message for a topic and moves it to the front.
// Returns the topic evicted to stay within capacity, if any.
func (s *retainedStore) set(topic string, msg *envelope.Message, seq int64) (evicted string, didEvict bool) {
	if s.cap == 0 {
		// Retention disabled; nothing is stored, nothing evicted.
		return "", false
	}

	if node, ok := s.nodes[topic]; ok {
		node.msg = msg
		node.lastTouchedSeq = seq
		s.moveToFront(node)
		return "", false
	}

	node := &retainedNode{topic: topic, msg: msg, lastTouchedSeq: seq}
	s.nodes[topic] = node
	s.pushFront(node)

	if len(s.nodes) > s.cap {
		oldest := s.tail
		s.unlink(oldest)
		delete(s.nodes, oldest.topic)
		return oldest.topic, true
	}
	return "", false
}

// get returns the retained message for a topic and touches its recency.
func (s *retainedStore) get(topic string, seq int64) (*envelope.Message, bool) {
	node, ok := s.nodes[topic]
	if !ok {
		return nil, false
	}
	node.lastTouchedSeq = seq
	s.moveToFront(node)
	return node.msg, true
}

// remove drops a topic's retained entry, if present.
func (s *retainedStore) remove(topic string) bool {
	node, ok := s.nodes[topic]
	if !ok {
		return false
	}
	s.unlink(node)
	delete(s.nodes, topic)
	return true
}

// len returns the entry count.
func (s *retainedStore) len() int {
	return len(s.nodes)
}

// matching returns retained messages whose topic matches any of the given
// patterns, least-recently-touched first. The stable order makes retained
// replay deterministic. Matching does not count as a touch.
func (s *retainedStore) matching(match func(topic string) bool) []*envelope.Message {
	var out []*envelope.Message
	for node := s.tail; node != nil; node = node.prev {
		if match(node.topic) {
			out = append(out, node.msg)
		}
	}
	return out
}

func (s *retainedStore) pushFront(node *retainedNode) {
	node.prev = nil
	node.next = s.head
	if s.head != nil {
		s.head.prev = node
	}
	s.head = node
	if s.tail == nil {
		s.tail = node
	}
}

func (s *retainedStore) unlink(node *retainedNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		s.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		s.tail = node.prev
	}
	node.prev = nil
	node.next = nil
}

func (s *retainedStore) moveToFront(node *retainedNode) {
	if s.head == node {
		return
	}
	s.unlink(node)
	s.pushFront(node)
}
