package modbuscore

import "github.com/rinzlerlabs/modbuscore/common"

// ServerFlags selects which ids a ServerEntry accepts.
type ServerFlags uint8

const (
	// ReceiveBroadcast accepts requests addressed to IDBroadcast.
	ReceiveBroadcast ServerFlags = 1 << iota
	// ReceiveAny accepts a request regardless of its id, in addition to
	// the id the entry is registered under.
	ReceiveAny
)

// ServerCallback handles one incoming request. It is invoked with the
// Engine's lock released, and must call Engine.ServerReply exactly once
// for a unicast request it handles; it must not reply to a broadcast.
type ServerCallback func(e *Engine, entry *ServerEntry, msg *Message) error

// ServerEntry is one node of an Engine's server registry, a singly
// linked list the caller owns: entries are inserted at the head and
// iterated front-to-back.
type ServerEntry struct {
	ID       uint8
	Flags    ServerFlags
	Callback ServerCallback
	Arg      any

	next *ServerEntry
}

// ServerAdd registers entry, head-inserting it into the Engine's list.
// It is an error to register the same id twice, regardless of flags.
func (e *Engine) ServerAdd(entry *ServerEntry) error {
	if entry.ID != IDBroadcast && (entry.ID < IDMin || entry.ID > IDMax) {
		return common.ErrInvalidArgument
	}
	if entry.Callback == nil {
		return common.ErrInvalidArgument
	}

	e.serversMu.Lock()
	defer e.serversMu.Unlock()

	for cur := e.servers; cur != nil; cur = cur.next {
		if cur.ID == entry.ID {
			return common.ErrExists
		}
	}
	entry.next = e.servers
	e.servers = entry
	return nil
}

// ServerRemove unlinks the entry matching id, if any.
func (e *Engine) ServerRemove(id uint8) error {
	e.serversMu.Lock()
	defer e.serversMu.Unlock()

	var prev *ServerEntry
	for cur := e.servers; cur != nil; cur = cur.next {
		if cur.ID == id {
			if prev == nil {
				e.servers = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			return nil
		}
		prev = cur
	}
	return common.ErrNotFound
}

// ServerGet returns the entry registered under id, without regard to
// ReceiveAny/ReceiveBroadcast matching semantics. This is a direct lookup,
// distinct from the dispatch matching ServerListen performs.
func (e *Engine) ServerGet(id uint8) (*ServerEntry, error) {
	e.serversMu.Lock()
	defer e.serversMu.Unlock()

	for cur := e.servers; cur != nil; cur = cur.next {
		if cur.ID == id {
			return cur, nil
		}
	}
	return nil, common.ErrNotFound
}

// ServerIter calls fn for every registered entry, front-to-back, until fn
// returns false or the list is exhausted.
func (e *Engine) ServerIter(fn func(*ServerEntry) bool) {
	e.serversMu.Lock()
	defer e.serversMu.Unlock()

	for cur := e.servers; cur != nil; cur = cur.next {
		if !fn(cur) {
			return
		}
	}
}

// matchingServers snapshots, under the registry lock, every entry that
// would accept a request addressed to id.
func (e *Engine) matchingServers(id uint8) []*ServerEntry {
	e.serversMu.Lock()
	defer e.serversMu.Unlock()

	var matches []*ServerEntry
	for cur := e.servers; cur != nil; cur = cur.next {
		switch {
		case cur.Flags&ReceiveAny != 0:
			matches = append(matches, cur)
		case id == IDBroadcast:
			if cur.Flags&ReceiveBroadcast != 0 {
				matches = append(matches, cur)
			}
		case cur.ID == id:
			matches = append(matches, cur)
		}
	}
	return matches
}
