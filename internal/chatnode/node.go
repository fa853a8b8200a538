package chatnode

import (
	"sync"

	"github.com/chatmesh/server/internal/metrics"
)

// Node holds every chatroom currently hosted on this chat node, guarded by
// one mutex per spec §5's shared-resource policy.
type Node struct {
	host       string
	opsPort    int
	streamPort int

	mu        sync.Mutex
	chatrooms map[string]*Chatroom
}

// NewNode constructs an empty Node advertising the given address.
func NewNode(host string, opsPort, streamPort int) *Node {
	return &Node{host: host, opsPort: opsPort, streamPort: streamPort, chatrooms: make(map[string]*Chatroom)}
}

// CreateChatroom adds a new, empty Chatroom named name. Returns false if
// one already exists.
func (n *Node) CreateChatroom(name string) (*Chatroom, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.chatrooms[name]; exists {
		return nil, false
	}
	room := NewChatroom(name)
	n.chatrooms[name] = room
	metrics.ActiveChatrooms.Set(float64(len(n.chatrooms)))
	return room, true
}

// Get returns the Chatroom named name, if hosted here.
func (n *Node) Get(name string) (*Chatroom, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	room, ok := n.chatrooms[name]
	return room, ok
}

// DeleteChatroom closes and removes the chatroom named name. Returns false
// if it was not hosted here.
func (n *Node) DeleteChatroom(name string) bool {
	n.mu.Lock()
	room, ok := n.chatrooms[name]
	if ok {
		delete(n.chatrooms, name)
	}
	count := len(n.chatrooms)
	n.mu.Unlock()

	if !ok {
		return false
	}
	room.CloseRoom()
	metrics.ActiveChatrooms.Set(float64(count))
	return true
}

// ChatroomNames returns every chatroom name currently hosted here.
func (n *Node) ChatroomNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.chatrooms))
	for name := range n.chatrooms {
		names = append(names, name)
	}
	return names
}

// LoadStats reports this node's getChatroomData(): chatroom and total
// subscriber counts, plus the addresses the coordinator uses for placement.
type LoadStats struct {
	ChatroomCount int
	UserCount     int
	Host          string
	RMIPort       int
	TCPPort       int
}

// Stats computes this node's current LoadStats.
func (n *Node) Stats() LoadStats {
	n.mu.Lock()
	defer n.mu.Unlock()

	userCount := 0
	for _, room := range n.chatrooms {
		userCount += room.SubscriberCount()
	}
	return LoadStats{
		ChatroomCount: len(n.chatrooms),
		UserCount:     userCount,
		Host:          n.host,
		RMIPort:       n.opsPort,
		TCPPort:       n.streamPort,
	}
}
