package gateway

import "container/list"

// lruSet is a bounded set used to suppress duplicate chat_message/
// new_user_message fan-outs by line_message_id (spec §4.9 "Dedup for
// chat_message").
type lruSet struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newLRUSet(capacity int) *lruSet {
	return &lruSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// addIfAbsent returns true and records id if it was not already present;
// returns false if id is a duplicate.
func (s *lruSet) addIfAbsent(id string) bool {
	if _, ok := s.index[id]; ok {
		s.order.MoveToFront(s.index[id])
		return false
	}
	el := s.order.PushFront(id)
	s.index[id] = el
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.index, oldest.Value.(string))
		}
	}
	return true
}
