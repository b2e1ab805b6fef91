package command

import (
	"fmt"
	"log/slog"

	"github.com/tmacphail/suzerain/internal/sim"
)

// LogEntry is one accepted, executed command in the deterministic log.
// Replaying the entries in order against an identically loaded context
// reproduces the state bit-for-bit.
type LogEntry struct {
	Tick    uint32
	Seq     int64
	Kind    Kind
	Payload []byte
}

// Rejection records a command that failed execution-time validation in a
// tick, for diagnostics and the tick report.
type Rejection struct {
	Kind   Kind
	Reason string
}

// TickReport summarizes one EndTick.
type TickReport struct {
	Tick     uint32
	Executed int
	Rejected []Rejection
	Events   int
}

// Pipeline is the gatekeeper for all state mutation on one context.
//
// Commands are submitted at any time during a tick; they are validated
// speculatively at submission (cheap caller feedback) and again at
// execution time in deterministic order, because an earlier command in the
// same tick may have changed the state under them. Only execution-time
// validation decides whether a command enters the log.
//
// Single writer: Submit and EndTick must be called from the simulation
// goroutine that owns the context.
type Pipeline struct {
	ctx     *sim.Context
	clock   *Clock
	pending []pendingEntry
	log     []LogEntry
}

type pendingEntry struct {
	cmd Command
	seq int64
}

// NewPipeline creates a pipeline over a finalized context.
func NewPipeline(ctx *sim.Context) (*Pipeline, error) {
	if !ctx.Finalized() {
		return nil, fmt.Errorf("new pipeline: context not finalized")
	}
	return &Pipeline{ctx: ctx, clock: NewClock()}, nil
}

// Submit validates a command against current state and queues it for the
// tick. A *RejectError return means "rejected, here is why": routine,
// not exceptional. Accepted commands still revalidate at execution time.
func (p *Pipeline) Submit(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("submit: nil command")
	}
	if err := cmd.Validate(p.ctx); err != nil {
		slog.Debug("command rejected at submission",
			"kind", KindName(cmd.Kind()),
			"reason", err,
		)
		return err
	}
	p.pending = append(p.pending, pendingEntry{cmd: cmd, seq: p.clock.Next()})
	return nil
}

// EndTick executes the tick's pending commands in deterministic order
// (priority descending, submission sequence, kind id), drains the event
// bus after each command so its events are fully delivered before the
// next command runs, appends accepted commands to the log, and advances
// the tick.
//
// A command that fails execution-time validation is skipped with a logged
// warning and reported; a skipped command never partially applies.
func (p *Pipeline) EndTick() TickReport {
	sortPending(p.pending)

	report := TickReport{Tick: p.ctx.Tick()}
	for _, entry := range p.pending {
		cmd := entry.cmd
		if err := cmd.Validate(p.ctx); err != nil {
			slog.Warn("command rejected at execution",
				"tick", p.ctx.Tick(),
				"kind", KindName(cmd.Kind()),
				"seq", entry.seq,
				"reason", err,
			)
			report.Rejected = append(report.Rejected, Rejection{
				Kind:   cmd.Kind(),
				Reason: err.Error(),
			})
			continue
		}

		cmd.Execute(p.ctx)
		report.Events += p.ctx.Bus.Drain()
		report.Executed++

		p.log = append(p.log, LogEntry{
			Tick:    p.ctx.Tick(),
			Seq:     entry.seq,
			Kind:    cmd.Kind(),
			Payload: cmd.EncodePayload(),
		})
	}

	p.pending = p.pending[:0]
	p.ctx.AdvanceTick()
	return report
}

// Pending returns the number of commands queued for the current tick.
func (p *Pipeline) Pending() int {
	return len(p.pending)
}

// Log returns the accepted command log, oldest first. Read-only view.
func (p *Pipeline) Log() []LogEntry {
	return p.log
}

// Clock returns the submission clock, used by replay to resume sequence
// numbering at the persisted position.
func (p *Pipeline) Clock() *Clock {
	return p.clock
}

// Replay decodes and applies a persisted log against a freshly loaded
// context. Entries are grouped by recorded tick: all commands of one tick
// are queued, then the tick ends, preserving the original boundaries.
//
// Logged sequence numbers are preserved, not reissued: the replayed log
// is byte-for-byte the persisted log, and the clock resumes past the
// highest replayed seq. The log was produced in execution order, so the
// ordering rules reproduce it exactly.
func (p *Pipeline) Replay(log []LogEntry) error {
	if len(p.log) > 0 || len(p.pending) > 0 {
		return fmt.Errorf("replay: pipeline already has commands")
	}
	i := 0
	for i < len(log) {
		tick := log[i].Tick
		if tick < p.ctx.Tick() {
			return fmt.Errorf("replay: log tick %d behind context tick %d", tick, p.ctx.Tick())
		}
		// Run empty ticks up to the entry's recorded tick so tick-stamped
		// state (ownership history) matches the original run.
		for p.ctx.Tick() < tick {
			p.EndTick()
		}
		for i < len(log) && log[i].Tick == tick {
			cmd, err := Decode(log[i].Kind, log[i].Payload)
			if err != nil {
				return fmt.Errorf("replay seq %d: %w", log[i].Seq, err)
			}
			if err := cmd.Validate(p.ctx); err != nil {
				return fmt.Errorf("replay seq %d (%s): logged command rejected: %w",
					log[i].Seq, KindName(log[i].Kind), err)
			}
			p.pending = append(p.pending, pendingEntry{cmd: cmd, seq: log[i].Seq})
			p.clock.AdvanceTo(log[i].Seq)
			i++
		}
		p.EndTick()
	}
	return nil
}
