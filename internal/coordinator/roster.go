// Package coordinator implements the coordinator role: roster management
// for chat nodes and data nodes, the 2PC transaction driver, and the
// client-facing UserOps surface (registration, login, chatroom lifecycle).
package coordinator

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"go.uber.org/zap"
)

// ChatNodeRef identifies a registered chat node.
type ChatNodeRef struct {
	Host       string
	OpsPort    int
	StreamPort int
}

func (r ChatNodeRef) opsBaseURL() string {
	return "http://" + r.Host + ":" + strconv.Itoa(r.OpsPort)
}

// DataNodeRef identifies a registered data node, carrying both of its
// surfaces (DataOps queries and the 2PC DataParticipant protocol).
type DataNodeRef struct {
	Host            string
	OpsPort         int
	ParticipantPort int
}

func (r DataNodeRef) opsBaseURL() string {
	return "http://" + r.Host + ":" + strconv.Itoa(r.OpsPort)
}

func (r DataNodeRef) participantBaseURL() string {
	return "http://" + r.Host + ":" + strconv.Itoa(r.ParticipantPort)
}

// Roster holds the coordinator's three independently-mutexed ordered
// sequences: chat_nodes, data_ops, data_participants (the latter two share
// one registration but are tracked as distinct sequences per spec §4.1,
// since a node can in principle be reachable on one surface and not the
// other during a partial outage).
type Roster struct {
	chatMu    sync.Mutex
	chatNodes []ChatNodeRef

	dataOpsMu sync.Mutex
	dataOps   []DataNodeRef

	dataParticipantsMu sync.Mutex
	dataParticipants   []DataNodeRef

	httpClient *http.Client
}

// NewRoster constructs an empty Roster.
func NewRoster() *Roster {
	return &Roster{
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// AddChatNode appends ref to the chat_nodes sequence; a ref with the same
// host and ops port as an existing entry replaces that entry instead.
func (r *Roster) AddChatNode(ref ChatNodeRef) {
	r.chatMu.Lock()
	defer r.chatMu.Unlock()
	for i, existing := range r.chatNodes {
		if existing.Host == ref.Host && existing.OpsPort == ref.OpsPort {
			r.chatNodes[i] = ref
			return
		}
	}
	r.chatNodes = append(r.chatNodes, ref)
	metrics.ChatNodesRegistered.Set(float64(len(r.chatNodes)))
}

// ChatNodes returns a snapshot of the chat_nodes sequence in registration order.
func (r *Roster) ChatNodes() []ChatNodeRef {
	r.chatMu.Lock()
	defer r.chatMu.Unlock()
	out := make([]ChatNodeRef, len(r.chatNodes))
	copy(out, r.chatNodes)
	return out
}

// AddDataNode appends ref to both the data_ops and data_participants
// sequences — a data node registers once and joins both surfaces.
func (r *Roster) AddDataNode(ref DataNodeRef) {
	r.dataOpsMu.Lock()
	found := false
	for i, existing := range r.dataOps {
		if existing.Host == ref.Host && existing.OpsPort == ref.OpsPort {
			r.dataOps[i] = ref
			found = true
			break
		}
	}
	if !found {
		r.dataOps = append(r.dataOps, ref)
	}
	r.dataOpsMu.Unlock()

	r.dataParticipantsMu.Lock()
	found = false
	for i, existing := range r.dataParticipants {
		if existing.Host == ref.Host && existing.OpsPort == ref.OpsPort {
			r.dataParticipants[i] = ref
			found = true
			break
		}
	}
	if !found {
		r.dataParticipants = append(r.dataParticipants, ref)
	}
	count := len(r.dataParticipants)
	r.dataParticipantsMu.Unlock()

	metrics.DataParticipantsRegistered.Set(float64(count))
}

// DataOps returns a snapshot of the data_ops sequence.
func (r *Roster) DataOps() []DataNodeRef {
	r.dataOpsMu.Lock()
	defer r.dataOpsMu.Unlock()
	out := make([]DataNodeRef, len(r.dataOps))
	copy(out, r.dataOps)
	return out
}

// DataParticipants returns a snapshot of the data_participants sequence.
func (r *Roster) DataParticipants() []DataNodeRef {
	r.dataParticipantsMu.Lock()
	defer r.dataParticipantsMu.Unlock()
	out := make([]DataNodeRef, len(r.dataParticipants))
	copy(out, r.dataParticipants)
	return out
}

// StartSweeper runs the 60s (configurable) liveness sweep in the
// background until ctx is cancelled, evicting any roster member whose
// /health endpoint fails to respond.
func (r *Roster) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Sweep performs one liveness pass over every roster sequence, evicting
// unreachable members. It is safe to call concurrently with registration,
// and is also invoked eagerly by reestablishChatroom per spec §4.1.
func (r *Roster) Sweep(ctx context.Context) {
	r.sweepChatNodes(ctx)
	r.sweepDataNodes(ctx)
}

func (r *Roster) sweepChatNodes(ctx context.Context) {
	r.chatMu.Lock()
	candidates := make([]ChatNodeRef, len(r.chatNodes))
	copy(candidates, r.chatNodes)
	r.chatMu.Unlock()

	alive := make([]ChatNodeRef, 0, len(candidates))
	for _, c := range candidates {
		if r.isAlive(ctx, c.opsBaseURL()) {
			alive = append(alive, c)
		}
	}

	r.chatMu.Lock()
	evicted := len(r.chatNodes) - len(alive)
	r.chatNodes = alive
	r.chatMu.Unlock()

	if evicted > 0 {
		metrics.RosterSweepEvictions.WithLabelValues("chat_node").Add(float64(evicted))
		metrics.ChatNodesRegistered.Set(float64(len(alive)))
		logging.Warn(ctx, "roster sweep evicted unreachable chat nodes", zap.Int("evicted", evicted))
	}
}

func (r *Roster) sweepDataNodes(ctx context.Context) {
	r.dataOpsMu.Lock()
	candidates := make([]DataNodeRef, len(r.dataOps))
	copy(candidates, r.dataOps)
	r.dataOpsMu.Unlock()

	alive := make([]DataNodeRef, 0, len(candidates))
	for _, d := range candidates {
		if r.isAlive(ctx, d.opsBaseURL()) {
			alive = append(alive, d)
		}
	}
	aliveRefs := make(map[DataNodeRef]bool, len(alive))
	for _, d := range alive {
		aliveRefs[d] = true
	}

	r.dataOpsMu.Lock()
	evictedOps := len(r.dataOps) - len(alive)
	r.dataOps = alive
	r.dataOpsMu.Unlock()

	r.dataParticipantsMu.Lock()
	keptParticipants := make([]DataNodeRef, 0, len(r.dataParticipants))
	for _, d := range r.dataParticipants {
		if aliveRefs[d] {
			keptParticipants = append(keptParticipants, d)
		}
	}
	evictedParticipants := len(r.dataParticipants) - len(keptParticipants)
	r.dataParticipants = keptParticipants
	count := len(keptParticipants)
	r.dataParticipantsMu.Unlock()

	if evictedOps > 0 || evictedParticipants > 0 {
		metrics.RosterSweepEvictions.WithLabelValues("data_node").Add(float64(evictedOps))
		metrics.DataParticipantsRegistered.Set(float64(count))
		logging.Warn(ctx, "roster sweep evicted unreachable data nodes",
			zap.Int("evicted_ops", evictedOps), zap.Int("evicted_participants", evictedParticipants))
	}
}

func (r *Roster) isAlive(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
