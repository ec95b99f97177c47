package render_graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleOrdersByBlockingReads(t *testing.T) {
	s := newShadowScene(t, 1)
	require.NoError(t, s.g.Compile())

	assert.Equal(t, [][]string{{"shadow"}, {"main"}}, stageNames(s.g.ExecutionGroups()))
	assert.Equal(t, 0, s.g.PhysicalStage(s.shadowStage).Group())
	assert.Equal(t, 1, s.g.PhysicalStage(s.mainStage).Group())
}

func TestScheduleNonBlockingReadsDoNotOrder(t *testing.T) {
	g, _, _ := newTestGraph(t, 1)
	particles := g.AddBuffer("particles", BufferUsageVertex)
	a := g.AddTexture("a", TextureUsageColor)
	b := g.AddTexture("b", TextureUsageColor)

	g.AddGraphicsStage("consumer").ReadsFrom(particles).WritesTo(b, wgpu.LoadOpClear)
	g.AddGraphicsStage("producer").WritesTo(particles, wgpu.LoadOpLoad).WritesTo(a, wgpu.LoadOpClear)

	require.NoError(t, g.Compile())
	assert.Equal(t, [][]string{{"consumer", "producer"}}, stageNames(g.ExecutionGroups()))
}

func TestScheduleReadWithoutProducerIsReady(t *testing.T) {
	g, _, _ := newTestGraph(t, 1)
	unwritten := g.AddTexture("unwritten", TextureUsageColor)
	out := g.AddTexture("out", TextureUsageColor)
	g.AddGraphicsStage("only").ReadsFrom(unwritten).WritesTo(out, wgpu.LoadOpClear)

	require.NoError(t, g.Compile())
	assert.Equal(t, [][]string{{"only"}}, stageNames(g.ExecutionGroups()))
}

func TestScheduleCycle(t *testing.T) {
	g, dev, _ := newTestGraph(t, 1)
	ta := g.AddTexture("ta", TextureUsageColor)
	tb := g.AddTexture("tb", TextureUsageColor)
	tc := g.AddTexture("tc", TextureUsageColor)
	g.AddGraphicsStage("free").WritesTo(tc, wgpu.LoadOpClear)
	g.AddGraphicsStage("a").ReadsFrom(tb).WritesTo(ta, wgpu.LoadOpClear)
	g.AddGraphicsStage("b").ReadsFrom(ta).WritesTo(tb, wgpu.LoadOpClear)

	err := g.Compile()
	require.ErrorIs(t, err, ErrConfiguration)

	var cfg *ConfigError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, KindCycle, cfg.Kind)
	assert.Equal(t, []string{"a", "b"}, cfg.Stages)
	assert.Empty(t, dev.Calls(), "a failing schedule must not touch the device")
	assert.Nil(t, g.ExecutionGroups())
}

func TestScheduleSelfReadIsCycle(t *testing.T) {
	g, dev, _ := newTestGraph(t, 1)
	tex := g.AddTexture("feedback", TextureUsageColor)
	g.AddGraphicsStage("loop").ReadsFrom(tex).WritesTo(tex, wgpu.LoadOpLoad)

	err := g.Compile()
	var cfg *ConfigError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, KindCycle, cfg.Kind)
	assert.Equal(t, []string{"loop"}, cfg.Stages)
	assert.Empty(t, dev.Calls())
}

// TestScheduleRandomDAGs registers random acyclic graphs in shuffled order and checks that every stage is scheduled
// exactly once, after the producers of everything it blocking-reads.
func TestScheduleRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		g, _, _ := newTestGraph(t, 1)
		n := 2 + rng.Intn(10)

		outputs := make([]*TextureResource, n)
		for i := range outputs {
			outputs[i] = g.AddTexture(fmt.Sprintf("t%d", i), TextureUsageColor)
		}
		deps := make([][]int, n)
		for i := 1; i < n; i++ {
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps[i] = append(deps[i], j)
				}
			}
		}

		stageOf := make(map[string]int, n)
		for _, i := range rng.Perm(n) {
			name := fmt.Sprintf("s%d", i)
			stageOf[name] = i
			s := g.AddGraphicsStage(name)
			for _, j := range deps[i] {
				s.ReadsFrom(outputs[j])
			}
			s.WritesTo(outputs[i], wgpu.LoadOpClear)
		}

		require.NoError(t, g.Compile())

		groupOf := make(map[int]int, n)
		for gi, group := range g.ExecutionGroups() {
			require.NotEmpty(t, group)
			for _, s := range group {
				_, dup := groupOf[stageOf[s.Name()]]
				require.False(t, dup, "stage %s scheduled twice", s.Name())
				groupOf[stageOf[s.Name()]] = gi
			}
		}
		require.Len(t, groupOf, n)
		for i := 0; i < n; i++ {
			for _, j := range deps[i] {
				assert.Less(t, groupOf[j], groupOf[i], "s%d reads the output of s%d", i, j)
			}
		}
	}
}
