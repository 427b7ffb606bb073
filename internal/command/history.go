package command

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mesh-intelligence/schematic/internal/logging"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

// DefaultMaxHistory is the history bound used when none is configured.
const DefaultMaxHistory = 100

// History is a bounded linear undo/redo log. Execute, Undo and Redo are
// admitted one at a time; callers queue on the semaphore and give up when
// their context ends.
type History struct {
	sem    *semaphore.Weighted
	max    int
	logger *zap.Logger

	mu      sync.RWMutex
	history []Command
	undo    []Command
	redo    []Command
}

// NewHistory returns an empty history holding at most max commands.
func NewHistory(max int, logger *zap.Logger) (*History, error) {
	if max <= 0 {
		return nil, types.Errorf(types.KindValidation, "new history", types.Scope{}, "%w: %d", types.ErrInvalidHistorySize, max)
	}
	return &History{
		sem:    semaphore.NewWeighted(1),
		max:    max,
		logger: logging.OrNop(logger),
	}, nil
}

// MaxSize returns the history bound.
func (h *History) MaxSize() int { return h.max }

func (h *History) acquire(ctx context.Context, op string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return types.Cancelled(op, types.Scope{}, err)
	}
	return nil
}

// Execute runs c. On success an undoable command is pushed on the undo
// stack and the redo stack is cleared. A failed command leaves both stacks
// untouched.
func (h *History) Execute(ctx context.Context, c Command) error {
	if c == nil {
		return types.Errorf(types.KindInvariant, "history execute", types.Scope{}, "%w: command", types.ErrNilArgument)
	}
	if err := h.acquire(ctx, "history execute"); err != nil {
		return err
	}
	defer h.sem.Release(1)

	if err := c.Execute(ctx); err != nil {
		return err
	}
	if !c.CanUndo() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = append(h.undo, c)
	h.redo = nil
	h.history = append(h.history, c)
	if len(h.history) > h.max {
		h.evict()
	}
	return nil
}

// evict drops the oldest command from the history and from wherever it sits
// in the undo stack.
func (h *History) evict() {
	oldest := h.history[0]
	h.history[0] = nil
	h.history = h.history[1:]
	if i := slices.Index(h.undo, oldest); i >= 0 {
		h.undo = slices.Delete(h.undo, i, i+1)
	}
	h.logger.Debug("history evicted", zap.String("command", oldest.Name()), zap.String("id", oldest.ID().String()))
}

// Undo reverts the most recent command and moves it to the redo stack. When
// the undo fails the command stays on the undo stack.
func (h *History) Undo(ctx context.Context) error {
	if err := h.acquire(ctx, "history undo"); err != nil {
		return err
	}
	defer h.sem.Release(1)

	h.mu.Lock()
	c, ok := pop(&h.undo)
	h.mu.Unlock()
	if !ok {
		return types.Errorf(types.KindInvariant, "history undo", types.Scope{}, "%w", types.ErrNothingToUndo)
	}
	err := c.Undo(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.undo = append(h.undo, c)
		return err
	}
	h.redo = append(h.redo, c)
	return nil
}

// Redo re-applies the most recently undone command.
func (h *History) Redo(ctx context.Context) error {
	if err := h.acquire(ctx, "history redo"); err != nil {
		return err
	}
	defer h.sem.Release(1)

	h.mu.Lock()
	c, ok := pop(&h.redo)
	h.mu.Unlock()
	if !ok {
		return types.Errorf(types.KindInvariant, "history redo", types.Scope{}, "%w", types.ErrNothingToRedo)
	}
	err := c.Redo(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.redo = append(h.redo, c)
		return err
	}
	h.undo = append(h.undo, c)
	return nil
}

func pop(stack *[]Command) (Command, bool) {
	s := *stack
	if len(s) == 0 {
		return nil, false
	}
	c := s[len(s)-1]
	s[len(s)-1] = nil
	*stack = s[:len(s)-1]
	return c, true
}

// Clear empties every stack. It waits for an in-flight operation.
func (h *History) Clear(ctx context.Context) error {
	if err := h.acquire(ctx, "history clear"); err != nil {
		return err
	}
	defer h.sem.Release(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history, h.undo, h.redo = nil, nil, nil
	return nil
}

// History returns every retained command, oldest first.
func (h *History) History() []Command { return h.read(&h.history) }

// UndoHistory returns the undo stack, bottom first.
func (h *History) UndoHistory() []Command { return h.read(&h.undo) }

// RedoHistory returns the redo stack, bottom first.
func (h *History) RedoHistory() []Command { return h.read(&h.redo) }

func (h *History) read(s *[]Command) []Command {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(*s)
}

// Count is the number of retained commands.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.history)
}

func (h *History) CanUndo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.redo) > 0
}
