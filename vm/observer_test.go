package vm

import (
	"context"
	"testing"

	"github.com/deepnoodle-ai/rehydra/ast"
	"github.com/deepnoodle-ai/rehydra/builder"
	"github.com/deepnoodle-ai/rehydra/op"
	"github.com/stretchr/testify/require"
)

// TestObserver is a test observer that records events.
type TestObserver struct {
	NoOpObserver
	Steps   []StepEvent
	Calls   []CallEvent
	Returns []ReturnEvent
}

func (o *TestObserver) OnStep(event StepEvent) bool {
	o.Steps = append(o.Steps, event)
	return true
}

func (o *TestObserver) OnCall(event CallEvent) bool {
	o.Calls = append(o.Calls, event)
	return true
}

func (o *TestObserver) OnReturn(event ReturnEvent) bool {
	o.Returns = append(o.Returns, event)
	return true
}

func TestObserverOnStep(t *testing.T) {
	program := compile(t, "main", &ast.Text{Value: "hi"})
	observer := &TestObserver{}
	doc, root := newPage()
	_, err := Render(context.Background(), program, builder.NewCreate(doc, root, builder.Config{}), WithObserver(observer))
	require.NoError(t, err)

	require.Len(t, observer.Steps, program.InstructionCount())
	require.Equal(t, op.Header, observer.Steps[0].Opcode)
	require.Equal(t, "TEXT", observer.Steps[1].OpcodeName)
	require.Equal(t, op.Cleanup, observer.Steps[2].Opcode)
	for i, step := range observer.Steps {
		require.Equal(t, i, step.PC)
		require.Equal(t, "main", step.Program)
		require.Equal(t, 1, step.FrameDepth)
	}
}

func TestObserverCallsAndReturns(t *testing.T) {
	l := &lifecycle{}
	program := cardTemplate(t)
	observer := &TestObserver{}
	doc, root := newPage()
	_, err := Render(context.Background(), program, builder.NewCreate(doc, root, builder.Config{}),
		WithRegistry(l.registry(t)), WithSelf(map[string]any{"title": "x"}), WithObserver(observer))
	require.NoError(t, err)

	require.Equal(t, []CallEvent{
		{Name: "Card", ArgCount: 1, FrameDepth: 2},
		{Name: "block", ArgCount: 1, FrameDepth: 3},
	}, observer.Calls)
	require.Equal(t, []ReturnEvent{
		{Name: "block", FrameDepth: 2},
		{Name: "Card", FrameDepth: 1},
	}, observer.Returns)
}

type haltingObserver struct {
	NoOpObserver
	after int
	steps int
}

func (o *haltingObserver) OnStep(StepEvent) bool {
	o.steps++
	return o.steps <= o.after
}

func TestObserverHalts(t *testing.T) {
	program := compile(t, "main", &ast.Text{Value: "a"}, &ast.Text{Value: "b"})
	doc, root := newPage()
	_, err := Render(context.Background(), program, builder.NewCreate(doc, root, builder.Config{}),
		WithObserver(&haltingObserver{after: 1}))
	require.ErrorIs(t, err, ErrObserverHalt)
}

type configuredObserver struct {
	TestObserver
	cfg ObserverConfig
}

func (o *configuredObserver) Config() ObserverConfig {
	return o.cfg
}

func TestObserverStepModes(t *testing.T) {
	program := compile(t, "main",
		&ast.Text{Value: "a"}, &ast.Text{Value: "b"}, &ast.Text{Value: "c"}, &ast.Text{Value: "d"})

	tests := []struct {
		name  string
		cfg   ObserverConfig
		steps int
	}{
		{"all", NewObserverConfig(StepAll), program.InstructionCount()},
		{"none", NewObserverConfig(StepNone), 0},
		{"sampled", ObserverConfig{StepMode: StepSampled, SampleInterval: 2}, program.InstructionCount() / 2},
		// Nodes built in code carry no locations, so no step starts a new line
		{"on line", NewObserverConfig(StepOnLine), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &configuredObserver{cfg: tt.cfg}
			doc, root := newPage()
			_, err := Render(context.Background(), program, builder.NewCreate(doc, root, builder.Config{}), WithObserver(observer))
			require.NoError(t, err)
			require.Len(t, observer.Steps, tt.steps)
		})
	}
}

func TestObserverCallsDisabled(t *testing.T) {
	l := &lifecycle{}
	cfg := NewObserverConfig(StepNone)
	cfg.ObserveCalls = false
	observer := &configuredObserver{cfg: cfg}
	doc, root := newPage()
	_, err := Render(context.Background(), cardTemplate(t), builder.NewCreate(doc, root, builder.Config{}),
		WithRegistry(l.registry(t)), WithSelf(map[string]any{"title": "x"}), WithObserver(observer))
	require.NoError(t, err)
	require.Empty(t, observer.Calls)
	require.Len(t, observer.Returns, 2)
}

func TestNormalizeConfig(t *testing.T) {
	cfg := NormalizeConfig(ObserverConfig{StepMode: StepSampled, SampleInterval: 0})
	require.Equal(t, 1, cfg.SampleInterval)
	cfg = NormalizeConfig(ObserverConfig{StepMode: StepAll, SampleInterval: 0})
	require.Equal(t, 0, cfg.SampleInterval)
}
