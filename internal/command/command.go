// Package command models undoable scheme mutations. Each concrete command is
// a small struct holding its arguments and the prior state it captured on
// first execution; the shared wrapper adds identity, timing, cancellation,
// panic recovery, logging and metrics. History keeps the undo and redo
// stacks.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/schematic/internal/logging"
	"github.com/mesh-intelligence/schematic/internal/metrics"
	"github.com/mesh-intelligence/schematic/internal/registry"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

// Phases reported to logs and metrics.
const (
	PhaseExecute = "execute"
	PhaseUndo    = "undo"
	PhaseRedo    = "redo"
)

// Command is an undoable unit of mutation. CanUndo is false until Execute
// (or Redo) has succeeded and becomes false again after a successful Undo.
type Command interface {
	ID() uuid.UUID
	Name() string
	Description() string
	CanUndo() bool
	Execute(ctx context.Context) error
	Undo(ctx context.Context) error
	Redo(ctx context.Context) error
}

// Env is what commands run against.
type Env struct {
	Registry *registry.Registry
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

func (e *Env) scope() types.Scope {
	if e == nil || e.Registry == nil {
		return types.Scope{}
	}
	return e.Registry.Scope()
}

func (e *Env) logger() *zap.Logger {
	if e == nil {
		return zap.NewNop()
	}
	return logging.OrNop(e.Logger)
}

func (e *Env) observe(name, phase string, d time.Duration, err error) {
	if e == nil {
		return
	}
	e.Metrics.ObserveCommand(name, phase, d, err)
}

// action is the domain half of a command.
type action interface {
	name() string
	describe() string
	execute(ctx context.Context, env *Env) error
	undo(ctx context.Context, env *Env) error
}

// redoer is implemented by actions whose redo differs from execute.
type redoer interface {
	redo(ctx context.Context, env *Env) error
}

type command struct {
	id       uuid.UUID
	env      *Env
	act      action
	executed bool
}

func wrap(env *Env, act action) *command {
	return &command{id: newID(), env: env, act: act}
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func (c *command) ID() uuid.UUID       { return c.id }
func (c *command) Name() string        { return c.act.name() }
func (c *command) Description() string { return c.act.describe() }
func (c *command) CanUndo() bool       { return c.executed }

func (c *command) Execute(ctx context.Context) error {
	if err := c.run(ctx, PhaseExecute, c.act.execute); err != nil {
		return err
	}
	c.executed = true
	return nil
}

func (c *command) Undo(ctx context.Context) error {
	if !c.executed {
		return types.Errorf(types.KindInvariant, c.Name()+" undo", c.env.scope(), "%w", types.ErrNotExecuted)
	}
	if err := c.run(ctx, PhaseUndo, c.act.undo); err != nil {
		return err
	}
	c.executed = false
	return nil
}

func (c *command) Redo(ctx context.Context) error {
	fn := c.act.execute
	if r, ok := c.act.(redoer); ok {
		fn = r.redo
	}
	if err := c.run(ctx, PhaseRedo, fn); err != nil {
		return err
	}
	c.executed = true
	return nil
}

// run calls fn with timing, cancellation checks and panic recovery, then logs
// and records the outcome. A panic becomes an invariant error.
func (c *command) run(ctx context.Context, phase string, fn func(context.Context, *Env) error) (err error) {
	op := c.Name() + " " + phase
	scope := c.env.scope()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.Cancelled(op, scope, ctxErr)
	}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = types.Errorf(types.KindInvariant, op, scope, "%w: %v", types.ErrPanic, p)
		}
		if err != nil && !types.IsCancelled(err) && ctx.Err() != nil {
			err = types.Cancelled(op, scope, err)
		}
		d := time.Since(start)
		c.env.observe(c.Name(), phase, d, err)
		fields := []zap.Field{
			zap.String("command", c.Name()),
			zap.String("id", c.id.String()),
			zap.String("phase", phase),
			zap.Duration("duration", d),
			zap.String("outcome", metrics.Outcome(err)),
		}
		switch {
		case err == nil:
			c.env.logger().Debug(c.Description(), fields...)
		case types.IsCancelled(err):
			c.env.logger().Info(c.Description(), fields...)
		default:
			c.env.logger().Warn(c.Description(), append(fields, logging.ErrorFields(err)...)...)
		}
	}()
	return fn(ctx, c.env)
}

func requireScheme(op string, s *types.DataScheme) error {
	if s == nil {
		return types.Errorf(types.KindInvariant, op, types.Scope{}, "%w: scheme", types.ErrNilArgument)
	}
	return nil
}

func entryLabel(s *types.DataScheme, e *types.DataEntry) string {
	return fmt.Sprintf("%s[%d]", s.SchemeName, s.IndexOfEntry(e))
}
