// Package commands owns every mutation of the tree. A single goroutine runs
// the Processor; callers submit envelopes and wait for a CommandResult.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"arbor/internal/application"
	"arbor/internal/application/lifecycle"
	"arbor/internal/application/workingcopy"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

// Options wires a Processor
type Options struct {
	Store         ports.NodeStore
	Ephemeral     ports.EphemeralStore
	WorkingCopies *workingcopy.Manager
	Entities      *lifecycle.Manager
	Publisher     Publisher

	// HistoryLimit bounds the undo and redo stacks, DefaultHistoryLimit when zero
	HistoryLimit int
	// QueueSize is the number of submissions that may wait for the processor
	QueueSize int
	Logger    *slog.Logger
}

// Processor serializes all mutation. Reads go straight to the store and see
// committed state only.
type Processor struct {
	store     ports.NodeStore
	wcs       *workingcopy.Manager
	mutations *TreeMutations
	history   *History
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	requests chan request
	stopped  chan struct{}
	running  atomic.Bool
	seq      atomic.Int64
}

type request struct {
	ctx   context.Context
	env   domain.CommandEnvelope
	reply chan CommandResult

	// exclusive work runs between commands instead of an envelope
	fn   func(context.Context) error
	errc chan error
}

// NewProcessor creates a processor. Call Run to start applying commands.
func NewProcessor(opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 64
	}
	return &Processor{
		store:     opts.Store,
		wcs:       opts.WorkingCopies,
		mutations: NewTreeMutations(opts.Entities, opts.Ephemeral, logger),
		history:   NewHistory(opts.HistoryLimit),
		publisher: opts.Publisher,
		logger:    logger.With("component", "processor"),
		now:       func() time.Time { return time.Now().UTC() },
		requests:  make(chan request, queue),
		stopped:   make(chan struct{}),
	}
}

// Run applies submitted commands one at a time until ctx is done
func (p *Processor) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("command processor already running")
	}
	defer close(p.stopped)

	p.logger.Info("command processor started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("command processor stopped")
			return nil
		case req := <-p.requests:
			if req.fn != nil {
				req.errc <- req.fn(req.ctx)
				continue
			}
			req.reply <- p.apply(req.ctx, req.env)
		}
	}
}

// Submit queues env and waits for its result. A command whose caller gives
// up after it was queued still runs.
func (p *Processor) Submit(ctx context.Context, env domain.CommandEnvelope) CommandResult {
	reply := make(chan CommandResult, 1)
	select {
	case p.requests <- request{ctx: context.WithoutCancel(ctx), env: env, reply: reply}:
	case <-ctx.Done():
		return failure(env, ctx.Err())
	case <-p.stopped:
		return failure(env, ErrProcessorStopped)
	}

	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return failure(env, ctx.Err())
	case <-p.stopped:
		select {
		case res := <-reply:
			return res
		default:
			return failure(env, ErrProcessorStopped)
		}
	}
}

// Exclusive runs fn on the processor goroutine between two commands. No
// command commits while fn runs.
func (p *Processor) Exclusive(ctx context.Context, fn func(context.Context) error) error {
	errc := make(chan error, 1)
	select {
	case p.requests <- request{ctx: ctx, fn: fn, errc: errc}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return ErrProcessorStopped
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		select {
		case err := <-errc:
			return err
		default:
			return ErrProcessorStopped
		}
	}
}

// Seq returns the sequence number of the last committed command
func (p *Processor) Seq() int64 {
	return p.seq.Load()
}

// History exposes the undo and redo stacks
func (p *Processor) History() *History {
	return p.history
}

// SweepWorkingCopies discards working copies older than ttl and announces
// each one. It runs between commands.
func (p *Processor) SweepWorkingCopies(ctx context.Context, ttl time.Duration) (int, error) {
	var swept int
	err := p.Exclusive(ctx, func(ctx context.Context) error {
		expired, err := p.wcs.Sweep(ctx, ttl)
		if err != nil {
			return err
		}
		swept = len(expired)
		if swept == 0 {
			return nil
		}
		seq := p.seq.Add(1)
		now := p.now()
		events := make([]domain.TreeChangeEvent, len(expired))
		for i := range expired {
			events[i] = workingCopyEvent(domain.EventWorkingCopyDiscarded, &expired[i], seq, "", now)
		}
		p.publish(ctx, events)
		return nil
	})
	return swept, err
}

func (p *Processor) apply(ctx context.Context, env domain.CommandEnvelope) (res CommandResult) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "arbor.command", trace.WithAttributes(
		attribute.String("command.kind", string(env.Kind)),
		attribute.String("command.id", env.CommandID),
	))
	defer func() {
		recordCommand(ctx, env.Kind, res.Code, time.Since(start))
		if !res.Success {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
	}()

	if env.Payload == nil {
		return failure(env, &application.ValidationError{Field: "payload", Message: "payload is required"})
	}
	if env.Kind != env.Payload.Kind() {
		return failure(env, &application.ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("envelope kind %s does not match payload %s", env.Kind, env.Payload.Kind()),
		})
	}
	if err := application.ValidatePayload(env.Payload); err != nil {
		return failure(env, err)
	}

	switch pl := env.Payload.(type) {
	case domain.CreateWorkingCopyPayload:
		return p.createWorkingCopy(ctx, env, pl)
	case domain.UpdateWorkingCopyPayload:
		wc, err := p.wcs.Update(ctx, pl.WorkingCopyID, pl.Patch)
		return p.workingCopyResult(ctx, env, domain.EventWorkingCopyUpdated, wc, err)
	case domain.DiscardWorkingCopyPayload:
		wc, err := p.wcs.Discard(ctx, pl.WorkingCopyID)
		return p.workingCopyResult(ctx, env, domain.EventWorkingCopyDiscarded, wc, err)
	case domain.UndoPayload:
		return p.undo(ctx, env, historyGroup(pl.GroupID, env))
	case domain.RedoPayload:
		return p.redo(ctx, env, historyGroup(pl.GroupID, env))
	}

	cmd, err := p.txCommand(env)
	if err != nil {
		return failure(env, err)
	}
	return p.runTx(ctx, env, cmd)
}

func (p *Processor) txCommand(env domain.CommandEnvelope) (txCommand, error) {
	switch pl := env.Payload.(type) {
	case domain.CommitWorkingCopyPayload:
		return NewCommitWorkingCopyCommand(p.wcs, pl), nil
	case domain.MoveNodesPayload:
		return NewMoveNodesCommand(p.mutations, pl), nil
	case domain.DuplicateNodesPayload:
		return NewDuplicateNodesCommand(p.mutations, pl), nil
	case domain.PasteNodesPayload:
		return NewPasteNodesCommand(p.mutations, pl), nil
	case domain.ImportNodesPayload:
		return NewImportNodesCommand(p.mutations, pl), nil
	case domain.MoveToTrashPayload:
		return NewMoveToTrashCommand(p.mutations, pl), nil
	case domain.RecoverFromTrashPayload:
		return NewRecoverFromTrashCommand(p.mutations, pl), nil
	case domain.PermanentDeletePayload:
		return NewPermanentDeleteCommand(p.mutations, pl), nil
	}
	return nil, &application.ValidationError{Field: "payload", Message: fmt.Sprintf("unsupported payload %T", env.Payload)}
}

// runTx applies cmd in one transaction. Counters are refreshed before the
// commit; history and events only follow a successful commit.
func (p *Processor) runTx(ctx context.Context, env domain.CommandEnvelope, cmd txCommand) CommandResult {
	if err := cmd.Validate(); err != nil {
		return failure(env, err)
	}

	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return failure(env, fmt.Errorf("begin transaction: %w", err))
	}
	rec := newRecorder(tx)
	out, err := cmd.Execute(ctx, rec)
	if err == nil {
		err = recount(ctx, rec, rec.changeset())
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.Error("rollback failed", "command", env.CommandID, "error", rbErr)
		}
		p.logger.Debug("command rejected", "kind", env.Kind, "command", env.CommandID, "error", err)
		return failure(env, err)
	}
	if err := tx.Commit(); err != nil {
		return failure(env, fmt.Errorf("commit: %w", err))
	}

	cs := rec.changeset()
	seq := p.seq.Add(1)
	now := p.now()
	if env.Kind.Undoable() {
		p.history.Push(UndoRecord{CommandID: env.CommandID, GroupID: env.GroupID, Kind: env.Kind, Changes: cs, At: now})
	}

	if out.finalize != nil {
		if err := out.finalize(ctx); err != nil {
			p.logger.Warn("finalize after commit failed", "command", env.CommandID, "error", err)
		}
	}
	events := changeEvents(cs, seq, env.CommandID, now)
	if out.WorkingCopy != nil {
		events = append(events, workingCopyEvent(domain.EventWorkingCopyCommitted, out.WorkingCopy, seq, env.CommandID, now))
	}
	p.publish(ctx, events)

	p.logger.Debug("command applied", "kind", env.Kind, "command", env.CommandID, "seq", seq, "rows", len(cs.Nodes))
	res := CommandResult{
		Success:   true,
		CommandID: env.CommandID,
		Seq:       seq,
		NodeID:    out.NodeID,
		NodeIDs:   out.NodeIDs,
		IDMap:     out.IDMap,
	}
	if out.WorkingCopy != nil {
		res.WorkingCopyID = out.WorkingCopy.ID
	}
	return res
}

func (p *Processor) createWorkingCopy(ctx context.Context, env domain.CommandEnvelope, pl domain.CreateWorkingCopyPayload) CommandResult {
	var (
		wc  *domain.WorkingCopy
		err error
	)
	if pl.NodeID != "" {
		wc, err = p.wcs.CreateFromNode(ctx, pl.NodeID)
	} else {
		wc, err = p.wcs.CreateDraft(ctx, pl.ParentID, pl.NodeType, pl.Name, pl.Data)
	}
	return p.workingCopyResult(ctx, env, domain.EventWorkingCopyCreated, wc, err)
}

func (p *Processor) workingCopyResult(ctx context.Context, env domain.CommandEnvelope, t domain.EventType, wc *domain.WorkingCopy, err error) CommandResult {
	if err != nil {
		return failure(env, err)
	}
	seq := p.seq.Add(1)
	p.publish(ctx, []domain.TreeChangeEvent{workingCopyEvent(t, wc, seq, env.CommandID, p.now())})
	return CommandResult{
		Success:       true,
		CommandID:     env.CommandID,
		Seq:           seq,
		NodeID:        wc.NodeID,
		WorkingCopyID: wc.ID,
	}
}

// historyGroup picks the group an undo or redo targets: the payload's, else
// the envelope's
func historyGroup(payloadGroup string, env domain.CommandEnvelope) string {
	if payloadGroup != "" {
		return payloadGroup
	}
	return env.GroupID
}

func (p *Processor) undo(ctx context.Context, env domain.CommandEnvelope, groupID string) CommandResult {
	i, rec, ok := p.history.peekUndo(groupID)
	if !ok {
		return failure(env, application.ErrNothingToUndo)
	}
	inverse, err := p.revertTx(ctx, rec.Changes)
	if err != nil {
		return failure(env, err)
	}
	p.history.completeUndo(i, inverse)
	return p.revertResult(ctx, env, inverse)
}

func (p *Processor) redo(ctx context.Context, env domain.CommandEnvelope, groupID string) CommandResult {
	i, rec, ok := p.history.peekRedo(groupID)
	if !ok {
		return failure(env, application.ErrNothingToRedo)
	}
	inverse, err := p.revertTx(ctx, rec.Changes)
	if err != nil {
		return failure(env, err)
	}
	p.history.completeRedo(i, inverse)
	return p.revertResult(ctx, env, inverse)
}

// revertTx applies the before images of cs and returns what it wrote, which
// is the changeset that reverses the revert
func (p *Processor) revertTx(ctx context.Context, cs Changeset) (Changeset, error) {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return Changeset{}, fmt.Errorf("begin transaction: %w", err)
	}
	rec := newRecorder(tx)
	err = revert(ctx, rec, cs, p.now())
	if err == nil {
		err = recount(ctx, rec, rec.changeset())
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.Error("rollback failed", "error", rbErr)
		}
		return Changeset{}, err
	}
	if err := tx.Commit(); err != nil {
		return Changeset{}, fmt.Errorf("commit: %w", err)
	}
	return rec.changeset(), nil
}

func (p *Processor) revertResult(ctx context.Context, env domain.CommandEnvelope, cs Changeset) CommandResult {
	seq := p.seq.Add(1)
	p.publish(ctx, changeEvents(cs, seq, env.CommandID, p.now()))

	ids := make([]string, len(cs.Nodes))
	for i, c := range cs.Nodes {
		ids[i] = c.ID
	}
	return CommandResult{Success: true, CommandID: env.CommandID, Seq: seq, NodeID: firstOf(ids), NodeIDs: ids}
}

func (p *Processor) publish(ctx context.Context, events []domain.TreeChangeEvent) {
	undoDepth, _ := p.history.Depth()
	recordEvents(ctx, len(events), undoDepth)
	if p.publisher == nil || len(events) == 0 {
		return
	}
	p.publisher.Publish(events)
}
