package mem

import "container/list"

type msgDone struct {
	msg  *Message
	done chan struct{}
}

// maxSizeEnforcer deletes the oldest messages until the entire store is equal to or less than
// maxSize bytes.
func (s *Store) maxSizeEnforcer(maxSize int64) {
	all := &list.List{}
	curSize := int64(0)
	drop := func(m *Message) {
		if m.el != nil {
			all.Remove(m.el)
			m.el = nil
			curSize -= m.Size()
		}
	}
	for {
		select {
		case md, ok := <-s.incoming:
			if !ok {
				return
			}
			md.msg.el = all.PushBack(md.msg)
			curSize += md.msg.Size()
			for curSize > maxSize && all.Len() > 0 {
				oldest := all.Front().Value.(*Message)
				drop(oldest)
				s.removeMessage(oldest.id)
			}
			close(md.done)
		case md, ok := <-s.remove:
			if !ok {
				return
			}
			drop(md.msg)
			close(md.done)
		}
	}
}

// enforcerDeliver sends delivery to enforcer if configured, and waits for completion.
func (s *Store) enforcerDeliver(m *Message) {
	if s.incoming != nil {
		md := &msgDone{msg: m, done: make(chan struct{})}
		s.incoming <- md
		<-md.done
	}
}

// enforcerRemove sends removal to enforcer if configured, and waits for completion.
func (s *Store) enforcerRemove(m *Message) {
	if s.remove != nil {
		md := &msgDone{msg: m, done: make(chan struct{})}
		s.remove <- md
		<-md.done
	}
}
