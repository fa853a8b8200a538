package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatmesh/server/internal/txn"
	"github.com/stretchr/testify/require"
)

// fakeParticipant is an httptest-backed stand-in for a data node's
// DataParticipant surface, letting the driver tests exercise the real
// HTTP/JSON wire path instead of mocking rpcutil.Client.
type fakeParticipant struct {
	mu         sync.Mutex
	canCommit  txn.Ack
	committed  []txn.Transaction
	aborted    []txn.Transaction
	srv        *httptest.Server
}

func newFakeParticipant(ack txn.Ack) *fakeParticipant {
	f := &fakeParticipant{canCommit: ack}
	mux := http.NewServeMux()
	mux.HandleFunc("/dataParticipant/canCommit", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ack := f.canCommit
		f.mu.Unlock()
		json.NewEncoder(w).Encode(txn.AckResponse{Ack: ack})
	})
	mux.HandleFunc("/dataParticipant/doCommit", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Transaction txn.Transaction `json:"transaction"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.committed = append(f.committed, req.Transaction)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(txn.OKResponse("committed"))
	})
	mux.HandleFunc("/dataParticipant/doAbort", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Transaction txn.Transaction `json:"transaction"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.aborted = append(f.aborted, req.Transaction)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(txn.OKResponse("aborted"))
	})
	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeParticipant) ref() DataNodeRef {
	host, portStr, _ := strings.Cut(strings.TrimPrefix(f.srv.URL, "http://"), ":")
	port, _ := strconv.Atoi(portStr)
	return DataNodeRef{Host: host, OpsPort: port, ParticipantPort: port}
}

func (f *fakeParticipant) close() { f.srv.Close() }

func TestGenericCommit_Unanimous(t *testing.T) {
	f1 := newFakeParticipant(txn.AckYes)
	f2 := newFakeParticipant(txn.AckYes)
	defer f1.close()
	defer f2.close()

	roster := NewRoster()
	roster.AddDataNode(f1.ref())
	roster.AddDataNode(f2.ref())

	driver := NewDriver(roster, 1*time.Second, 2*time.Second)
	ok := driver.GenericCommit(context.Background(), txn.OpCreateUser, "alice", "pw")

	require.True(t, ok)
	require.Len(t, f1.committed, 1)
	require.Len(t, f2.committed, 1)
}

func TestGenericCommit_OneVoteNo(t *testing.T) {
	f1 := newFakeParticipant(txn.AckYes)
	f2 := newFakeParticipant(txn.AckNo)
	defer f1.close()
	defer f2.close()

	roster := NewRoster()
	roster.AddDataNode(f1.ref())
	roster.AddDataNode(f2.ref())

	driver := NewDriver(roster, 1*time.Second, 2*time.Second)
	ok := driver.GenericCommit(context.Background(), txn.OpCreateUser, "bob", "pw")

	require.False(t, ok)
	require.Len(t, f1.aborted, 1)
	require.Empty(t, f2.committed)
}

func TestGenericCommit_NoParticipants(t *testing.T) {
	roster := NewRoster()
	driver := NewDriver(roster, 1*time.Second, 2*time.Second)
	ok := driver.GenericCommit(context.Background(), txn.OpCreateUser, "carol", "pw")
	require.False(t, ok)
}

func TestGetDecision_AbsentIsNA(t *testing.T) {
	driver := NewDriver(NewRoster(), 1*time.Second, 2*time.Second)
	require.Equal(t, txn.AckNA, driver.GetDecision(999))
}

func TestExplicitPath_AbortOnSideEffectFailure(t *testing.T) {
	f1 := newFakeParticipant(txn.AckYes)
	defer f1.close()

	roster := NewRoster()
	roster.AddDataNode(f1.ref())

	driver := NewDriver(roster, 1*time.Second, 2*time.Second)
	tr, ok := driver.BeginExplicit(context.Background(), txn.OpCreateChatroom, "general", "alice")
	require.True(t, ok)

	driver.AbortExplicit(context.Background(), tr)
	require.Len(t, f1.aborted, 1)
	require.Empty(t, f1.committed)
}
