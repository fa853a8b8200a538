package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func parseHostPort(t *testing.T, url string) (string, int) {
	t.Helper()
	host, portStr, ok := strings.Cut(strings.TrimPrefix(url, "http://"), ":")
	require.True(t, ok)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestRoster_AddDataNode_Dedupes(t *testing.T) {
	r := NewRoster()
	ref := DataNodeRef{Host: "node1", OpsPort: 8001, ParticipantPort: 8002}
	r.AddDataNode(ref)
	r.AddDataNode(ref)
	require.Len(t, r.DataOps(), 1)
	require.Len(t, r.DataParticipants(), 1)
}

func TestRoster_AddChatNode(t *testing.T) {
	r := NewRoster()
	r.AddChatNode(ChatNodeRef{Host: "chat1", OpsPort: 9001, StreamPort: 9002})
	require.Len(t, r.ChatNodes(), 1)
}

func TestRoster_Sweep_EvictsUnreachable(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	r := NewRoster()
	host, port := parseHostPort(t, healthy.URL)
	r.AddDataNode(DataNodeRef{Host: host, OpsPort: port, ParticipantPort: port})
	r.AddDataNode(DataNodeRef{Host: "unreachable.invalid", OpsPort: 1, ParticipantPort: 2})

	require.Len(t, r.DataOps(), 2)
	r.Sweep(context.Background())
	require.Len(t, r.DataOps(), 1)
	require.Equal(t, host, r.DataOps()[0].Host)
}
