// Package engage decides, for every inbound message, whether to withhold,
// deliver a scripted line or call the completion provider, and keeps the
// quota, appointment and history records consistent while doing so.
package engage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-companion/internal/appointment"
	"github.com/celerix-dev/celerix-companion/internal/clock"
	"github.com/celerix-dev/celerix-companion/internal/engine"
	"github.com/celerix-dev/celerix-companion/internal/history"
	"github.com/celerix-dev/celerix-companion/internal/llm"
	"github.com/celerix-dev/celerix-companion/internal/persona"
	"github.com/celerix-dev/celerix-companion/internal/quota"
)

// Fixed lines returned without calling the provider.
const (
	ExhaustedLine = "Bugunluk bu kadar konusabildik... yarin yine yaz bana, olur mu?"
	FallbackLine  = "Bir anlik dalginlik oldu... tekrar yazar misin?"
)

// DefaultContextWindow is the number of prior turns sent to the provider.
const DefaultContextWindow = 20

var (
	// ErrMissingClientKey rejects a message without a client key.
	ErrMissingClientKey = errors.New("client key is required")
	// ErrEmptyMessage rejects a blank message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrUnknownPersona rejects a persona id missing from the catalogue.
	ErrUnknownPersona = persona.ErrUnknown
)

// Outcome names the branch a message took.
type Outcome string

const (
	OutcomeWithheld  Outcome = "withheld"
	OutcomeEscape    Outcome = "escape"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeReply     Outcome = "reply"
	OutcomeFallback  Outcome = "fallback"
)

// Message is one inbound user message.
type Message struct {
	ClientKey string
	PersonaID string
	Text      string
	// History, when non-empty, replaces the stored turns as generation
	// context for this call.
	History []history.Turn
}

// Response is what the caller shows for a message.
type Response struct {
	Outcome     Outcome
	Reply       string
	Remaining   int
	LockedUntil time.Time
	Silent      bool
	Phase       string
}

// Status is the read-only view of an identity.
type Status struct {
	Remaining   int
	LockedUntil time.Time
	Phase       string
}

// Config tunes the engine. Zero values take package defaults.
type Config struct {
	DailyLimit    int
	HistoryLimit  int
	ContextWindow int
}

// Deps are the collaborators the engine does not own.
type Deps struct {
	Personas  *persona.Catalog
	Generator llm.Generator
	Clock     clock.Clock
	Zone      *clock.Zone
	Rand      persona.Rand
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Engine runs the engagement policy. All per-identity state lives in stores
// owned by the engine instance.
type Engine struct {
	personas  *persona.Catalog
	generator llm.Generator
	rng       persona.Rand
	log       *zap.Logger
	metrics   *Metrics
	window    int

	ledger    *quota.Ledger
	scheduler *appointment.Scheduler
	history   *history.Buffer
	exchanges engine.Store[int]
	locks     *engine.KeyedMutex
}

// New wires an engine with in-memory stores.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Personas == nil {
		return nil, errors.New("engage: persona catalogue is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("engage: generator is required")
	}
	if deps.Zone == nil {
		return nil, errors.New("engage: zone is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Rand == nil {
		now := uint64(time.Now().UnixNano())
		deps.Rand = persona.NewRand(now, now>>17)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		deps.Metrics = m
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}

	return &Engine{
		personas:  deps.Personas,
		generator: deps.Generator,
		rng:       deps.Rand,
		log:       deps.Logger,
		metrics:   deps.Metrics,
		window:    cfg.ContextWindow,

		ledger:    quota.NewLedger(engine.NewTable[quota.Record](), deps.Clock, deps.Zone, cfg.DailyLimit),
		scheduler: appointment.NewScheduler(engine.NewTable[appointment.Record](), deps.Clock, deps.Zone),
		history:   history.NewBuffer(engine.NewTable[[]history.Turn](), cfg.HistoryLimit),
		exchanges: engine.NewTable[int](),
		locks:     engine.NewKeyedMutex(),
	}, nil
}

// Personas exposes the catalogue the engine serves.
func (e *Engine) Personas() *persona.Catalog { return e.personas }

// Limit returns the daily message budget.
func (e *Engine) Limit() int { return e.ledger.Limit() }

func (e *Engine) resolve(clientKey, personaID string) (engine.Identity, *persona.Persona, error) {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		return engine.Identity{}, nil, ErrMissingClientKey
	}
	personaID = strings.TrimSpace(personaID)
	if personaID == "" {
		personaID = e.personas.DefaultID()
	}
	p, err := e.personas.Get(personaID)
	if err != nil {
		return engine.Identity{}, nil, err
	}
	return engine.Identity{ClientKey: clientKey, PersonaID: p.ID}, p, nil
}

// Handle runs one message through the policy. The only errors returned are
// validation errors raised before any state is touched; provider failures
// come back as an OutcomeFallback response.
func (e *Engine) Handle(ctx context.Context, msg Message) (Response, error) {
	id, p, err := e.resolve(msg.ClientKey, msg.PersonaID)
	if err != nil {
		return Response{}, err
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Response{}, ErrEmptyMessage
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	var resp Response
	switch st, due := e.scheduler.State(id); st {
	case appointment.Locked:
		resp = Response{
			Outcome:     OutcomeWithheld,
			Remaining:   e.ledger.Remaining(id),
			LockedUntil: due,
			Silent:      true,
		}
	case appointment.Due:
		resp = e.escape(ctx, id, p)
	default:
		resp = e.converse(ctx, id, p, text, msg.History)
	}
	resp.Phase = e.phase(id, p).Name

	e.metrics.outcome(ctx, resp.Outcome, p.ID)
	e.log.Debug("message handled",
		zap.Stringer("identity", id),
		zap.String("outcome", string(resp.Outcome)),
		zap.Int("remaining", resp.Remaining),
		zap.Time("locked_until", resp.LockedUntil),
	)
	return resp, nil
}

// escape consumes a due appointment: it is always cleared and re-armed, and
// the scripted line is delivered only if quota remains.
func (e *Engine) escape(ctx context.Context, id engine.Identity, p *persona.Persona) Response {
	e.scheduler.Clear(id)
	due := e.scheduler.Arm(id, p.Schedule())
	e.metrics.armed(ctx, p.ID, "rearm")

	if e.ledger.Remaining(id) == 0 {
		return Response{Outcome: OutcomeExhausted, Reply: ExhaustedLine, LockedUntil: due}
	}
	return Response{
		Outcome:     OutcomeEscape,
		Reply:       p.EscapeLine(e.rng),
		Remaining:   e.ledger.Consume(id),
		LockedUntil: due,
	}
}

func (e *Engine) converse(ctx context.Context, id engine.Identity, p *persona.Persona, text string, supplied []history.Turn) Response {
	remaining := e.ledger.Remaining(id)
	if remaining == 0 {
		return Response{Outcome: OutcomeExhausted, Reply: ExhaustedLine}
	}

	req := llm.Request{
		System:  p.SystemPrompt(e.phase(id, p)),
		History: e.contextTurns(id, supplied),
		User:    text,
	}

	start := time.Now()
	raw, err := e.generator.Generate(ctx, req)
	e.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		e.generationFailed(ctx, id, err)
		return Response{Outcome: OutcomeFallback, Reply: FallbackLine, Remaining: remaining}
	}

	reply := llm.Sanitize(raw)
	if reply == "" {
		e.generationFailed(ctx, id, fmt.Errorf("sanitized reply is empty: %w", llm.ErrEmptyReply))
		return Response{Outcome: OutcomeFallback, Reply: FallbackLine, Remaining: remaining}
	}

	var locked time.Time
	if e.rng.Float64() < p.HookProbability && !e.scheduler.Armed(id) {
		locked = e.scheduler.Arm(id, p.Schedule())
		reply += "\n\n" + p.TeaseLine(e.rng)
		e.metrics.armed(ctx, p.ID, "hook")
	}

	e.history.Append(id,
		history.Turn{Role: history.RoleUser, Content: text},
		history.Turn{Role: history.RoleAssistant, Content: reply},
	)
	left := e.ledger.Consume(id)
	e.exchanges.Update(id, func(n int, _ bool) int { return n + 1 })

	return Response{Outcome: OutcomeReply, Reply: reply, Remaining: left, LockedUntil: locked}
}

func (e *Engine) generationFailed(ctx context.Context, id engine.Identity, err error) {
	kind := "generic"
	if llm.IsRateLimited(err) {
		kind = "rate_limited"
		e.log.Warn("completion provider rate limited", zap.Stringer("identity", id), zap.Error(err))
	} else {
		e.log.Error("completion provider failed", zap.Stringer("identity", id), zap.Error(err))
	}
	e.metrics.GenerationFailures.Add(ctx, 1, metricKind(kind))
}

// contextTurns picks the turns sent to the provider.
func (e *Engine) contextTurns(id engine.Identity, supplied []history.Turn) []history.Turn {
	if len(supplied) == 0 {
		return e.history.Recent(id, e.window)
	}
	turns := make([]history.Turn, 0, len(supplied))
	for _, t := range supplied {
		if (t.Role == history.RoleUser || t.Role == history.RoleAssistant) && strings.TrimSpace(t.Content) != "" {
			turns = append(turns, t)
		}
	}
	return history.Tail(turns, e.window)
}

func (e *Engine) phase(id engine.Identity, p *persona.Persona) persona.Phase {
	n, _ := e.exchanges.Get(id)
	return p.PhaseFor(n)
}

// Status reports remaining quota, the due instant while locked and the
// phase, without consuming quota.
func (e *Engine) Status(clientKey, personaID string) (Status, error) {
	id, p, err := e.resolve(clientKey, personaID)
	if err != nil {
		return Status{}, err
	}

	st := Status{Remaining: e.ledger.Remaining(id), Phase: e.phase(id, p).Name}
	if s, due := e.scheduler.State(id); s == appointment.Locked {
		st.LockedUntil = due
	}
	return st, nil
}
