package command

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/schematic/internal/fileio"
	"github.com/mesh-intelligence/schematic/internal/metrics"
	"github.com/mesh-intelligence/schematic/internal/registry"
	"github.com/mesh-intelligence/schematic/internal/storage"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

const manifestPath = "Content/Manifest.json"

func newEnv(t *testing.T) (*Env, *fileio.Memory) {
	t.Helper()
	fs := fileio.NewMemory()
	r, err := registry.New(registry.Options{FS: fs})
	require.NoError(t, err)
	_, err = r.CreateManifest(manifestPath)
	require.NoError(t, err)
	return &Env{Registry: r}, fs
}

func newPeople(t *testing.T, names ...string) *types.DataScheme {
	t.Helper()
	s := types.NewDataScheme("People")
	name := types.NewAttribute("Name", types.TextType{})
	name.IsIdentifier = true
	require.NoError(t, s.AddAttribute(name))
	require.NoError(t, s.AddAttribute(types.NewAttribute("Age", types.TextType{})))
	for _, n := range names {
		e := s.CreateEntry()
		require.NoError(t, s.SetDataOnEntry(types.Scope{}, e, "Name", n))
		require.NoError(t, s.SetDataOnEntry(types.Scope{}, e, "Age", "30"))
	}
	return s
}

func TestSetDataOnEntryUndoRestoresPriorValue(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		prior any
	}{
		{"text", "alice"},
		{"nil", nil},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newPeople(t, "alice")
			e, err := s.EntryAt(0)
			require.NoError(t, err)
			require.NoError(t, s.SetRawDataOnEntry(e, "Name", tt.prior))

			c := NewSetDataOnEntry(nil, s, e, "Name", "bob")
			assert.False(t, c.CanUndo())
			require.NoError(t, c.Execute(ctx))
			assert.True(t, c.CanUndo())
			assert.Equal(t, "bob", e.Value("Name"))

			require.NoError(t, c.Undo(ctx))
			v, ok := e.Get("Name")
			assert.True(t, ok)
			assert.Equal(t, tt.prior, v)
			assert.False(t, c.CanUndo())

			require.NoError(t, c.Redo(ctx))
			assert.Equal(t, "bob", e.Value("Name"))
			require.NoError(t, c.Undo(ctx))
			assert.Equal(t, tt.prior, e.Value("Name"), "second undo keeps the first capture")
		})
	}
}

func TestSetDataOnEntryConversionFailure(t *testing.T) {
	s := newPeople(t, "alice")
	_, err := s.CreateAttribute("Level", types.IntegerType{})
	require.NoError(t, err)
	e, _ := s.EntryAt(0)

	c := NewSetDataOnEntry(nil, s, e, "Level", "high")
	err = c.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.KindConversion, types.KindOf(err))
	assert.False(t, c.CanUndo())
	assert.Equal(t, int64(0), e.Value("Level"))
}

func TestAddAndDeleteEntry(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t, "alice", "bob", "carol")

	add := NewAddEntry(nil, s, nil, 1)
	require.NoError(t, add.Execute(ctx))
	e, ok := Entry(add)
	require.True(t, ok)
	assert.Equal(t, 1, s.IndexOfEntry(e))
	assert.Equal(t, "", e.Value("Name"))
	require.NoError(t, add.Undo(ctx))
	assert.Equal(t, 3, s.EntryCount())

	bob, _ := s.EntryAt(1)
	del := NewDeleteEntry(nil, s, bob)
	require.NoError(t, del.Execute(ctx))
	assert.Equal(t, 2, s.EntryCount())
	assert.Equal(t, -1, s.IndexOfEntry(bob))
	require.NoError(t, del.Undo(ctx))
	assert.Equal(t, 1, s.IndexOfEntry(bob))

	_, ok = Entry(del)
	assert.False(t, ok)
}

func TestMoveEntry(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t, "alice", "bob", "carol")
	alice, _ := s.EntryAt(0)

	c := NewMoveEntry(nil, s, alice, 2)
	require.NoError(t, c.Execute(ctx))
	assert.Equal(t, 2, s.IndexOfEntry(alice))
	require.NoError(t, c.Undo(ctx))
	assert.Equal(t, 0, s.IndexOfEntry(alice))
}

func TestUndoBeforeExecute(t *testing.T) {
	s := newPeople(t, "alice")
	e, _ := s.EntryAt(0)
	c := NewMoveEntry(nil, s, e, 0)
	err := c.Undo(context.Background())
	require.ErrorIs(t, err, types.ErrNotExecuted)
	assert.Equal(t, types.KindInvariant, types.KindOf(err))
}

func TestDeleteManifestRecordUnloadsScheme(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)
	people := newPeople(t, "alice")
	require.NoError(t, NewCreateDataScheme(env, people, "People.json").Execute(ctx))

	manifest, ok := env.Registry.Manifest()
	require.True(t, ok)
	_, rec, found := types.FindManifestRecord(manifest, "People")
	require.True(t, found)
	index := manifest.IndexOfEntry(rec)

	del := NewDeleteEntry(env, manifest, rec)
	require.NoError(t, del.Execute(ctx))
	_, ok = env.Registry.LookupScheme("People")
	assert.False(t, ok)

	require.NoError(t, del.Undo(ctx))
	got, ok := env.Registry.LookupScheme("People")
	require.True(t, ok)
	assert.Same(t, people, got)
	assert.Equal(t, index, manifest.IndexOfEntry(rec))
}

func TestDeleteManifestSelfRecordRefused(t *testing.T) {
	env, _ := newEnv(t)
	manifest, _ := env.Registry.Manifest()
	_, self, found := types.FindManifestRecord(manifest, types.ManifestSchemeName)
	require.True(t, found)

	c := NewDeleteEntry(env, manifest, self)
	err := c.Execute(context.Background())
	require.ErrorIs(t, err, types.ErrManifestSchemeTarget)
	assert.True(t, types.HasSelfRecord(manifest))
	assert.False(t, c.CanUndo())
}

func TestAttributeCommands(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t, "alice", "bob")

	t.Run("add", func(t *testing.T) {
		c := NewAddAttribute(nil, s, types.NewAttribute("Score", types.IntegerType{}), 1)
		require.NoError(t, c.Execute(ctx))
		assert.Equal(t, []string{"Name", "Score", "Age"}, s.AttributeNames())
		for _, e := range s.Entries() {
			assert.Equal(t, int64(0), e.Value("Score"))
		}
		require.NoError(t, c.Undo(ctx))
		assert.Equal(t, []string{"Name", "Age"}, s.AttributeNames())
		for _, e := range s.Entries() {
			assert.False(t, e.Has("Score"))
		}
	})

	t.Run("delete", func(t *testing.T) {
		c := NewDeleteAttribute(nil, s, "Name")
		require.NoError(t, c.Execute(ctx))
		assert.Equal(t, []string{"Age"}, s.AttributeNames())
		require.NoError(t, c.Undo(ctx))
		assert.Equal(t, []string{"Name", "Age"}, s.AttributeNames())
		first, _ := s.EntryAt(0)
		assert.Equal(t, "alice", first.Value("Name"))
		attr, err := s.GetAttribute("Name")
		require.NoError(t, err)
		assert.True(t, attr.IsIdentifier)
	})

	t.Run("delete missing", func(t *testing.T) {
		c := NewDeleteAttribute(nil, s, "Nope")
		require.ErrorIs(t, c.Execute(ctx), types.ErrAttributeNotFound)
		assert.False(t, c.CanUndo())
	})

	t.Run("rename", func(t *testing.T) {
		c := NewRenameAttribute(nil, s, "Age", "Years")
		require.NoError(t, c.Execute(ctx))
		first, _ := s.EntryAt(0)
		assert.Equal(t, "30", first.Value("Years"))
		require.NoError(t, c.Undo(ctx))
		assert.Equal(t, "30", first.Value("Age"))
		assert.False(t, first.Has("Years"))
	})

	t.Run("move", func(t *testing.T) {
		c := NewMoveAttribute(nil, s, "Age", 0)
		require.NoError(t, c.Execute(ctx))
		assert.Equal(t, []string{"Age", "Name"}, s.AttributeNames())
		require.NoError(t, c.Undo(ctx))
		assert.Equal(t, []string{"Name", "Age"}, s.AttributeNames())
	})

	t.Run("update type", func(t *testing.T) {
		c := NewUpdateAttributeType(nil, s, "Age", types.IntegerType{})
		require.NoError(t, c.Execute(ctx))
		first, _ := s.EntryAt(0)
		assert.Equal(t, int64(30), first.Value("Age"))
		require.NoError(t, c.Undo(ctx))
		attr, _ := s.GetAttribute("Age")
		assert.Equal(t, types.TypeNameText, attr.DataType.TypeName())
		assert.Equal(t, "30", first.Value("Age"))
	})

	t.Run("update type fails atomically", func(t *testing.T) {
		c := NewUpdateAttributeType(nil, s, "Name", types.IntegerType{})
		require.Error(t, c.Execute(ctx))
		attr, _ := s.GetAttribute("Name")
		assert.Equal(t, types.TypeNameText, attr.DataType.TypeName())
		first, _ := s.EntryAt(0)
		assert.Equal(t, "alice", first.Value("Name"))
	})
}

func TestCreateDataScheme(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)
	people := newPeople(t)

	c := NewCreateDataScheme(env, people, "People.json")
	require.NoError(t, c.Execute(ctx))
	assert.True(t, people.IsDirty())
	manifest, _ := env.Registry.Manifest()
	rec, _, found := types.FindManifestRecord(manifest, "People")
	require.True(t, found)
	assert.Equal(t, "People.json", rec.FilePath)

	dup := NewCreateDataScheme(env, newPeople(t), "")
	require.ErrorIs(t, dup.Execute(ctx), types.ErrSchemeExists)

	require.NoError(t, c.Undo(ctx))
	_, ok := env.Registry.LookupScheme("People")
	assert.False(t, ok)
	_, _, found = types.FindManifestRecord(manifest, "People")
	assert.False(t, found)

	err := NewCreateDataScheme(env, types.NewManifestScheme(), "").Execute(ctx)
	require.ErrorIs(t, err, types.ErrManifestSchemeTarget)
}

func TestLoadDataScheme(t *testing.T) {
	ctx := context.Background()
	env, fs := newEnv(t)
	text, err := storage.NewJSON().Serialize(types.Scope{}, newPeople(t, "alice", "bob"))
	require.NoError(t, err)
	require.NoError(t, fs.WriteAllText(ctx, "Content/People.json", text))

	c := NewLoadDataScheme(env, "", "People.json", false)
	require.NoError(t, c.Execute(ctx))
	loaded, err := env.Registry.Scheme("People")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.EntryCount())
	manifest, _ := env.Registry.Manifest()
	_, _, found := types.FindManifestRecord(manifest, "People")
	assert.True(t, found)

	require.NoError(t, c.Undo(ctx))
	_, ok := env.Registry.LookupScheme("People")
	assert.False(t, ok)
	_, _, found = types.FindManifestRecord(manifest, "People")
	assert.False(t, found)
}

func TestLoadDataSchemeUndoRestoresPrevious(t *testing.T) {
	ctx := context.Background()
	env, fs := newEnv(t)
	previous := newPeople(t, "zed")
	require.NoError(t, NewCreateDataScheme(env, previous, "Old.json").Execute(ctx))

	text, err := storage.NewJSON().Serialize(types.Scope{}, newPeople(t, "alice", "bob"))
	require.NoError(t, err)
	require.NoError(t, fs.WriteAllText(ctx, "Content/People.json", text))

	c := NewLoadDataScheme(env, "People", "People.json", true)
	require.NoError(t, c.Execute(ctx))
	got, _ := env.Registry.LookupScheme("People")
	assert.NotSame(t, previous, got)

	require.NoError(t, c.Undo(ctx))
	got, _ = env.Registry.LookupScheme("People")
	assert.Same(t, previous, got)
	manifest, _ := env.Registry.Manifest()
	rec, _, _ := types.FindManifestRecord(manifest, "People")
	assert.Equal(t, "Old.json", rec.FilePath)
}

func TestLoadDataSchemeMissingFile(t *testing.T) {
	env, _ := newEnv(t)
	c := NewLoadDataScheme(env, "", "Nope.json", false)
	err := c.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.KindIO, types.KindOf(err))
	assert.False(t, c.CanUndo())
}

func TestUnloadDataScheme(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)
	people := newPeople(t, "alice")
	require.NoError(t, NewCreateDataScheme(env, people, "People.json").Execute(ctx))
	manifest, _ := env.Registry.Manifest()
	_, rec, _ := types.FindManifestRecord(manifest, "People")
	index := manifest.IndexOfEntry(rec)

	c := NewUnloadDataScheme(env, "People", true)
	require.NoError(t, c.Execute(ctx))
	_, ok := env.Registry.LookupScheme("People")
	assert.False(t, ok)
	_, _, found := types.FindManifestRecord(manifest, "People")
	assert.False(t, found)

	require.NoError(t, c.Undo(ctx))
	got, _ := env.Registry.LookupScheme("People")
	assert.Same(t, people, got)
	assert.Equal(t, index, manifest.IndexOfEntry(rec))

	err := NewUnloadDataScheme(env, types.ManifestSchemeName, false).Execute(ctx)
	require.ErrorIs(t, err, types.ErrManifestSchemeTarget)
	err = NewUnloadDataScheme(env, "Nope", false).Execute(ctx)
	require.ErrorIs(t, err, types.ErrSchemeNotFound)
}

type panicAction struct{}

func (panicAction) name() string                       { return "Panic" }
func (panicAction) describe() string                   { return "panics" }
func (panicAction) execute(context.Context, *Env) error { panic("boom") }
func (panicAction) undo(context.Context, *Env) error    { return nil }

func TestPanicBecomesInvariantError(t *testing.T) {
	c := wrap(nil, panicAction{})
	err := c.Execute(context.Background())
	require.ErrorIs(t, err, types.ErrPanic)
	assert.Equal(t, types.KindInvariant, types.KindOf(err))
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, c.CanUndo())
}

type cancellingAction struct{ cancel context.CancelFunc }

func (cancellingAction) name() string     { return "Cancelling" }
func (cancellingAction) describe() string { return "cancels mid-flight" }
func (a cancellingAction) execute(context.Context, *Env) error {
	a.cancel()
	return errors.New("interrupted")
}
func (cancellingAction) undo(context.Context, *Env) error { return nil }

func TestCancellation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	env := &Env{Metrics: m}

	t.Run("before execute", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := newPeople(t, "alice")
		e, _ := s.EntryAt(0)
		c := NewSetDataOnEntry(env, s, e, "Name", "bob")
		err := c.Execute(ctx)
		require.Error(t, err)
		assert.True(t, types.IsCancelled(err))
		assert.Equal(t, "alice", e.Value("Name"))
		assert.False(t, c.CanUndo())
	})

	t.Run("mid flight", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c := wrap(env, cancellingAction{cancel: cancel})
		err := c.Execute(ctx)
		require.Error(t, err)
		assert.Equal(t, types.KindCancelled, types.KindOf(err))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("Cancelling", PhaseExecute, metrics.OutcomeCancelled)))
	})
}

func TestCommandMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	env := &Env{Metrics: m}
	ctx := context.Background()

	s := newPeople(t, "alice")
	e, _ := s.EntryAt(0)
	c := NewSetDataOnEntry(env, s, e, "Name", "bob")
	require.NoError(t, c.Execute(ctx))
	require.NoError(t, c.Undo(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("SetDataOnEntry", PhaseExecute, metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("SetDataOnEntry", PhaseUndo, metrics.OutcomeOK)))
	assert.NotEqual(t, c.ID(), NewSetDataOnEntry(env, s, e, "Name", "x").ID())
	assert.Contains(t, c.Description(), "People[0].Name")
}
