package datanode

import (
	"context"
	"sync"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"go.uber.org/zap"
)

// pollTask tracks one in-flight decision-poll task so doCommit/doAbort can
// mark it finished before a racing poll re-enters the coordinator.
type pollTask struct {
	finished chan struct{}
	once     sync.Once
}

func (p *pollTask) setFinished() {
	p.once.Do(func() { close(p.finished) })
}

// Participant implements canCommit/doCommit/doAbort over a Store, per
// spec §4.2. One Participant exists per data node.
type Participant struct {
	store *Store
	cache *Cache

	mu       sync.Mutex
	inFlight map[int64]txn.Transaction
	polls    map[int64]*pollTask

	decisionClient *rpcutil.Client
	selfID         string
	pollInterval   time.Duration

	tokenMu sync.RWMutex
	token   string

	wg sync.WaitGroup
}

// NewParticipant constructs a Participant bound to store. Each transaction
// that votes YES polls decisionClient (the coordinator's DecisionOps
// surface) once, pollInterval after canCommit, unless doCommit/doAbort
// arrives first. cache may be nil.
func NewParticipant(store *Store, cache *Cache, decisionClient *rpcutil.Client, selfID string, pollInterval time.Duration) *Participant {
	return &Participant{
		store:          store,
		cache:          cache,
		inFlight:       make(map[int64]txn.Transaction),
		polls:          make(map[int64]*pollTask),
		decisionClient: decisionClient,
		selfID:         selfID,
		pollInterval:   pollInterval,
	}
}

// SetToken records the signed participant identity token minted by the
// coordinator at registration, presented back on every getDecision/
// haveCommitted call in place of selfID.
func (p *Participant) SetToken(token string) {
	p.tokenMu.Lock()
	p.token = token
	p.tokenMu.Unlock()
}

func (p *Participant) self() string {
	p.tokenMu.RLock()
	defer p.tokenMu.RUnlock()
	if p.token != "" {
		return p.token
	}
	return p.selfID
}

// CanCommit implements spec §4.2's canCommit: NO on a duplicate CREATEUSER
// key or on any key already held in the transaction map (per-key mutual
// exclusion across ops); otherwise records t, spawns its decision-poll
// task, and votes YES.
func (p *Participant) CanCommit(ctx context.Context, t txn.Transaction) txn.Ack {
	p.mu.Lock()

	if t.Op == txn.OpCreateUser && p.store.UserExists(t.Key) {
		p.mu.Unlock()
		return txn.AckNo
	}

	for _, existing := range p.inFlight {
		if existing.Key == t.Key {
			p.mu.Unlock()
			return txn.AckNo
		}
	}

	p.inFlight[t.Index] = t
	task := &pollTask{finished: make(chan struct{})}
	p.polls[t.Index] = task
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runDecisionPoll(t, task)

	return txn.AckYes
}

// DoCommit implements spec §4.2's doCommit: stops the companion poll task
// before applying the op (so a racing poll cannot re-enter the
// coordinator), applies it idempotently, then best-effort reports
// haveCommitted.
func (p *Participant) DoCommit(ctx context.Context, t txn.Transaction) {
	p.finishPoll(t.Index)

	var err error
	switch t.Op {
	case txn.OpCreateUser:
		err = p.store.ApplyCreateUser(ctx, t.Key, t.Value)
	case txn.OpCreateChatroom:
		err = p.store.ApplyCreateChatroom(ctx, t.Key, t.Value)
	case txn.OpDeleteChatroom:
		err = p.store.ApplyDeleteChatroom(ctx, t.Key)
	case txn.OpLogMessage:
		err = p.store.ApplyLogMessage(ctx, t.Key, t.Value)
	default:
		logging.Warn(ctx, "doCommit: unknown op ignored", zap.String("op", string(t.Op)))
	}
	if err != nil {
		logging.Error(ctx, "doCommit: durable write failed", zap.Error(err), zap.Int64("txn_index", t.Index))
	}
	p.invalidateCache(ctx, t)

	p.mu.Lock()
	delete(p.inFlight, t.Index)
	p.mu.Unlock()

	if p.decisionClient != nil {
		go func() {
			if err := p.haveCommitted(context.Background(), t.Index); err != nil {
				logging.Warn(context.Background(), "haveCommitted report failed", zap.Error(err), zap.Int64("txn_index", t.Index))
			}
		}()
	}
}

// DoAbort implements spec §4.2's doAbort: idempotently discards t.
func (p *Participant) DoAbort(t txn.Transaction) {
	p.finishPoll(t.Index)
	p.mu.Lock()
	delete(p.inFlight, t.Index)
	p.mu.Unlock()
}

// invalidateCache drops any cached entries that doCommit's write just made
// stale, so the read-through cache never answers with a pre-commit value.
func (p *Participant) invalidateCache(ctx context.Context, t txn.Transaction) {
	if p.cache == nil {
		return
	}
	switch t.Op {
	case txn.OpCreateUser:
		p.cache.invalidate(ctx, userExistsKey(t.Key), userPasswordKey(t.Key))
	case txn.OpCreateChatroom, txn.OpDeleteChatroom:
		p.cache.invalidate(ctx, chatroomExistsKey(t.Key))
	}
}

func (p *Participant) finishPoll(index int64) {
	p.mu.Lock()
	task, ok := p.polls[index]
	if ok {
		delete(p.polls, index)
	}
	p.mu.Unlock()
	if ok {
		task.setFinished()
	}
}

// runDecisionPoll is the decision-poll task from spec §4.2: sleeps 1,000ms
// (pollInterval), and unless woken by setFinished, asks the coordinator for
// the transaction's decision and applies it locally.
func (p *Participant) runDecisionPoll(t txn.Transaction, task *pollTask) {
	defer p.wg.Done()

	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()

	select {
	case <-task.finished:
		return
	case <-timer.C:
	}

	ack, err := p.getDecision(context.Background(), t.Index)
	if err != nil {
		metrics.DecisionPolls.WithLabelValues("unreachable").Inc()
		return
	}

	switch ack {
	case txn.AckYes:
		metrics.DecisionPolls.WithLabelValues("yes").Inc()
		p.DoCommit(context.Background(), t)
	case txn.AckNo:
		metrics.DecisionPolls.WithLabelValues("no").Inc()
		p.DoAbort(t)
	case txn.AckNA:
		metrics.DecisionPolls.WithLabelValues("na").Inc()
	}
}

func (p *Participant) getDecision(ctx context.Context, index int64) (txn.Ack, error) {
	var resp txn.AckResponse
	req := struct {
		Index int64  `json:"index"`
		Self  string `json:"self"`
	}{Index: index, Self: p.self()}

	if err := p.decisionClient.PostJSON(ctx, "/getDecision", req, &resp); err != nil {
		return "", err
	}
	return resp.Ack, nil
}

func (p *Participant) haveCommitted(ctx context.Context, index int64) error {
	req := struct {
		Index int64  `json:"index"`
		Self  string `json:"self"`
	}{Index: index, Self: p.self()}
	return p.decisionClient.PostJSON(ctx, "/haveCommitted", req, nil)
}

// Shutdown waits for in-flight decision-poll tasks to exit, or until ctx
// is done, whichever comes first.
func (p *Participant) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
