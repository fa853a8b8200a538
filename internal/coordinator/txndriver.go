package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("chatmesh/coordinator/txndriver")

// commitWaitEntry tracks how many doCommit recipients still owe a
// haveCommitted report, and the wake channel doCommit's bounded wait blocks on.
type commitWaitEntry struct {
	remaining int32
	wake      chan struct{}
	once      sync.Once
}

func (e *commitWaitEntry) signalDone() {
	e.once.Do(func() { close(e.wake) })
}

// Driver runs the 2PC coordinator protocol over the roster's
// data_participants sequence: index generation, the decision table, the
// commit-wait table, and both the generic and explicit-step commit flows.
type Driver struct {
	roster *Roster

	nextIndex int64

	decisionMu sync.Mutex
	decisions  map[int64]txn.Ack

	waitMu sync.Mutex
	waits  map[int64]*commitWaitEntry

	commitWaitTimeout time.Duration
	clientTimeout     time.Duration
}

// NewDriver constructs a Driver bound to roster.
func NewDriver(roster *Roster, commitWaitTimeout, clientTimeout time.Duration) *Driver {
	return &Driver{
		roster:            roster,
		decisions:         make(map[int64]txn.Ack),
		waits:             make(map[int64]*commitWaitEntry),
		commitWaitTimeout: commitWaitTimeout,
		clientTimeout:     clientTimeout,
	}
}

func (d *Driver) newIndex() int64 {
	return atomic.AddInt64(&d.nextIndex, 1)
}

func (d *Driver) participantClient(ref DataNodeRef) *rpcutil.Client {
	return rpcutil.NewClient("participant-"+ref.Host, ref.participantBaseURL(), d.clientTimeout)
}

// GenericCommit runs the standard 2PC flow: canCommit fan-out, and on
// unanimous YES, a doCommit fan-out followed by a bounded wait for
// haveCommitted reports. It returns true iff the transaction committed.
func (d *Driver) GenericCommit(ctx context.Context, op txn.Op, key, value string) bool {
	t := txn.Transaction{Index: d.newIndex(), Op: op, Key: key, Value: value}
	return d.runCommit(ctx, t)
}

// BeginExplicit runs 2PC phase A (canCommit) only, returning the
// transaction and whether every participant voted YES. Callers that need a
// non-transactional side effect between phases use this together with
// CompleteExplicit or AbortExplicit.
func (d *Driver) BeginExplicit(ctx context.Context, op txn.Op, key, value string) (txn.Transaction, bool) {
	t := txn.Transaction{Index: d.newIndex(), Op: op, Key: key, Value: value}
	return t, d.canCommitPhase(ctx, t)
}

// CompleteExplicit runs 2PC phase C: set decision YES, fan out doCommit,
// and bounded-wait for haveCommitted.
func (d *Driver) CompleteExplicit(ctx context.Context, t txn.Transaction) {
	d.commitPhase(ctx, t)
}

// AbortExplicit runs the abort path for a transaction that passed canCommit
// but whose side effect (or decision) failed: set decision NO, fan out
// doAbort, clear the decision.
func (d *Driver) AbortExplicit(ctx context.Context, t txn.Transaction) {
	d.setDecision(t.Index, txn.AckNo)
	d.abortPhase(ctx, t)
	d.clearDecision(t.Index)
}

func (d *Driver) runCommit(ctx context.Context, t txn.Transaction) bool {
	ctx, span := tracer.Start(ctx, "2pc.commit", trace.WithAttributes(
		attribute.String("chatmesh.txn.op", string(t.Op)),
		attribute.Int64("chatmesh.txn.index", t.Index),
	))
	defer span.End()

	start := time.Now()
	ok := d.canCommitPhase(ctx, t)
	span.SetAttributes(attribute.Bool("chatmesh.txn.committed", ok))
	if !ok {
		d.setDecision(t.Index, txn.AckNo)
		d.abortPhase(ctx, t)
		d.clearDecision(t.Index)
		metrics.TransactionsTotal.WithLabelValues(string(t.Op), "aborted").Inc()
		metrics.TransactionDuration.WithLabelValues(string(t.Op)).Observe(time.Since(start).Seconds())
		return false
	}

	d.commitPhase(ctx, t)
	metrics.TransactionsTotal.WithLabelValues(string(t.Op), "committed").Inc()
	metrics.TransactionDuration.WithLabelValues(string(t.Op)).Observe(time.Since(start).Seconds())
	return true
}

// canCommitPhase fans canCommit(t) out to every live participant in
// parallel and joins all of them; aggregated YES requires every joined
// task to have returned YES, with a transport failure counted as NO. An
// empty participant roster has nothing to agree to commit and votes NO,
// rather than vacuously succeeding.
func (d *Driver) canCommitPhase(ctx context.Context, t txn.Transaction) bool {
	ctx, span := tracer.Start(ctx, "2pc.can_commit")
	defer span.End()

	participants := d.roster.DataParticipants()
	span.SetAttributes(attribute.Int("chatmesh.txn.participants", len(participants)))
	if len(participants) == 0 {
		return false
	}

	var wg sync.WaitGroup
	acks := make([]txn.Ack, len(participants))
	for i, p := range participants {
		wg.Add(1)
		go func(i int, p DataNodeRef) {
			defer wg.Done()
			acks[i] = d.callCanCommit(ctx, p, t)
		}(i, p)
	}
	wg.Wait()

	for _, ack := range acks {
		if ack != txn.AckYes {
			return false
		}
	}
	return true
}

func (d *Driver) callCanCommit(ctx context.Context, p DataNodeRef, t txn.Transaction) txn.Ack {
	client := d.participantClient(p)
	req := struct {
		Transaction txn.Transaction `json:"transaction"`
		Self        string          `json:"self"`
	}{Transaction: t, Self: p.Host}

	var resp txn.AckResponse
	if err := client.PostJSON(ctx, "/dataParticipant/canCommit", req, &resp); err != nil {
		logging.Warn(ctx, "canCommit unreachable, voting NO", zap.String("participant", p.Host), zap.Error(err))
		return txn.AckNo
	}
	return resp.Ack
}

// commitPhase sets the decision, fans out doCommit to every live
// participant, registers the commit-wait entry, and blocks up to
// commitWaitTimeout for every haveCommitted report.
func (d *Driver) commitPhase(ctx context.Context, t txn.Transaction) {
	ctx, span := tracer.Start(ctx, "2pc.do_commit")
	defer span.End()

	d.setDecision(t.Index, txn.AckYes)

	participants := d.roster.DataParticipants()
	entry := &commitWaitEntry{remaining: int32(len(participants)), wake: make(chan struct{})}
	if len(participants) == 0 {
		entry.signalDone()
	}

	d.waitMu.Lock()
	d.waits[t.Index] = entry
	d.waitMu.Unlock()

	for _, p := range participants {
		go d.callDoCommit(ctx, p, t)
	}

	timer := time.NewTimer(d.commitWaitTimeout)
	defer timer.Stop()
	select {
	case <-entry.wake:
	case <-timer.C:
		logging.Warn(ctx, "commit wait timed out", zap.Int64("txn_index", t.Index))
	}

	d.waitMu.Lock()
	delete(d.waits, t.Index)
	d.waitMu.Unlock()

	d.clearDecision(t.Index)
}

func (d *Driver) callDoCommit(ctx context.Context, p DataNodeRef, t txn.Transaction) {
	client := d.participantClient(p)
	req := struct {
		Transaction txn.Transaction `json:"transaction"`
		Self        string          `json:"self"`
	}{Transaction: t, Self: p.Host}

	if err := client.PostJSON(ctx, "/dataParticipant/doCommit", req, nil); err != nil {
		logging.Warn(ctx, "doCommit delivery failed, participant will recover via decision poll",
			zap.String("participant", p.Host), zap.Error(err))
	}
}

// abortPhase fans doAbort out to every live participant, best-effort.
func (d *Driver) abortPhase(ctx context.Context, t txn.Transaction) {
	participants := d.roster.DataParticipants()
	var wg sync.WaitGroup
	for _, p := range participants {
		wg.Add(1)
		go func(p DataNodeRef) {
			defer wg.Done()
			client := d.participantClient(p)
			req := struct {
				Transaction txn.Transaction `json:"transaction"`
				Self        string          `json:"self"`
			}{Transaction: t, Self: p.Host}
			if err := client.PostJSON(ctx, "/dataParticipant/doAbort", req, nil); err != nil {
				logging.Warn(ctx, "doAbort delivery failed", zap.String("participant", p.Host), zap.Error(err))
			}
		}(p)
	}
	wg.Wait()
}

func (d *Driver) setDecision(index int64, ack txn.Ack) {
	d.decisionMu.Lock()
	d.decisions[index] = ack
	d.decisionMu.Unlock()
}

func (d *Driver) clearDecision(index int64) {
	d.decisionMu.Lock()
	delete(d.decisions, index)
	d.decisionMu.Unlock()
}

// GetDecision implements the DecisionOps surface's getDecision: returns NA
// if the index is absent from the decision table.
func (d *Driver) GetDecision(index int64) txn.Ack {
	d.decisionMu.Lock()
	defer d.decisionMu.Unlock()
	ack, ok := d.decisions[index]
	if !ok {
		return txn.AckNA
	}
	return ack
}

// HaveCommitted implements the DecisionOps surface's haveCommitted:
// decrements the remaining count in the commit-wait table, signaling the
// wake handle when it reaches zero.
func (d *Driver) HaveCommitted(index int64) {
	d.waitMu.Lock()
	entry, ok := d.waits[index]
	d.waitMu.Unlock()
	if !ok {
		return
	}

	if atomic.AddInt32(&entry.remaining, -1) <= 0 {
		entry.signalDone()
	}
}
