package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatmesh/server/internal/txn"
	"github.com/stretchr/testify/require"
)

type fakeChatNode struct {
	srv   *httptest.Server
	rooms []string
	data  txn.ChatroomDataResponse
}

func newFakeChatNode(rooms []string, data txn.ChatroomDataResponse) *fakeChatNode {
	f := &fakeChatNode{rooms: rooms, data: data}
	mux := http.NewServeMux()
	mux.HandleFunc("/chatOps/getChatrooms", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(txn.ChatroomListResponse{Status: txn.StatusOK, Names: f.rooms})
	})
	mux.HandleFunc("/chatOps/getChatroomData", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.data)
	})
	mux.HandleFunc("/chatOps/createChatroom", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.rooms = append(f.rooms, req.Name)
		json.NewEncoder(w).Encode(txn.OKResponse("created"))
	})
	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeChatNode) ref(t *testing.T) ChatNodeRef {
	host, port := parseHostPort(t, f.srv.URL)
	return ChatNodeRef{Host: host, OpsPort: port, StreamPort: port}
}

func (f *fakeChatNode) close() { f.srv.Close() }

func TestInnerCreateChatroom_PicksLeastLoaded(t *testing.T) {
	busy := newFakeChatNode(nil, txn.ChatroomDataResponse{UserCount: 10, ChatroomCount: 3, TCPPort: 7001})
	quiet := newFakeChatNode(nil, txn.ChatroomDataResponse{UserCount: 1, ChatroomCount: 1, TCPPort: 7002})
	defer busy.close()
	defer quiet.close()

	roster := NewRoster()
	roster.AddChatNode(busy.ref(t))
	roster.AddChatNode(quiet.ref(t))

	placer := NewPlacer(roster, 2*time.Second)
	placement, failMsg, err := placer.InnerCreateChatroom(context.Background(), "general")

	require.NoError(t, err)
	require.Empty(t, failMsg)
	require.Equal(t, quiet.ref(t).Host, placement.Host)
	require.Equal(t, 7002, placement.TCPPort)
}

func TestInnerCreateChatroom_AlreadyExists(t *testing.T) {
	node := newFakeChatNode([]string{"general"}, txn.ChatroomDataResponse{})
	defer node.close()

	roster := NewRoster()
	roster.AddChatNode(node.ref(t))

	placer := NewPlacer(roster, 2*time.Second)
	_, failMsg, err := placer.InnerCreateChatroom(context.Background(), "general")

	require.Error(t, err)
	require.Equal(t, txn.SentinelChatroomExists, failMsg)
}

func TestInnerCreateChatroom_NoNodes(t *testing.T) {
	placer := NewPlacer(NewRoster(), 2*time.Second)
	_, _, err := placer.InnerCreateChatroom(context.Background(), "general")
	require.Error(t, err)
}
