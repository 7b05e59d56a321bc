// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/config"
	"github.com/ik5/audroute/formats/wav"
	"github.com/ik5/audroute/graph"
	"github.com/ik5/audroute/hw"
	"github.com/ik5/audroute/internal/audiotest"
)

func testConfig(nodes []config.Node, conns ...config.Connection) *config.Config {
	cfg := config.Default()
	cfg.BufferSize = 64
	cfg.Nodes = nodes
	cfg.Connections = conns
	return cfg
}

func gain(name, value string) config.Node {
	return config.Node{Name: name, Type: "processor", Params: map[string]string{"filter_description": "volume=" + value}}
}

// manualDevice is a virtual device that only ticks when told to.
func manualDevice() *hw.Virtual {
	return hw.NewVirtual(hw.VirtualOptions{Inputs: 2, Outputs: 2, Format: audio.Float32, Frequency: 1000})
}

func peak(samples []float64) float64 {
	p := 0.0
	for _, s := range samples {
		p = math.Max(p, math.Abs(s))
	}
	return p
}

func TestEngine_HardwarePassThrough(t *testing.T) {
	t.Parallel()

	dev := manualDevice()
	cfg := testConfig([]config.Node{
		{Name: "speakers", Type: "hardware_sink", Params: map[string]string{"channel_names": "virtual out 1,virtual out 2"}},
		gain("gain", "0.5"),
		{Name: "mic", Type: "asio_source", Params: map[string]string{"channels": "0,1"}},
	},
		config.Connection{Source: "mic", Sink: "gain"},
		config.Connection{Source: "gain", Sink: "speakers"},
	)

	e := New(cfg, Options{Device: dev})
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if got := e.ProcessOrder(); !slices.Equal(got, []string{"mic", "gain", "speakers"}) {
		t.Errorf("ProcessOrder() = %v", got)
	}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}

	for range 8 {
		dev.Tick()
	}
	for ch := range 2 {
		if p := peak(dev.LastOutput(ch)); p < 0.2 || p > 0.26 {
			t.Errorf("channel %d peak = %v, want about 0.25", ch, p)
		}
	}

	if err := e.UpdateParameter("gain", "volume", "gain", "0.25"); err != nil {
		t.Fatal(err)
	}
	for range 6 {
		dev.Tick()
	}
	if p := peak(dev.LastOutput(0)); p < 0.1 || p > 0.13 {
		t.Errorf("peak after UpdateParameter = %v, want about 0.125", p)
	}

	if err := e.UpdateParameter("mic", "volume", "gain", "1"); !errors.Is(err, ErrNotProcessor) {
		t.Errorf("UpdateParameter(mic) error = %v", err)
	}
	if err := e.UpdateParameter("nope", "volume", "gain", "1"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("UpdateParameter(nope) error = %v", err)
	}

	st := e.Status()
	if st.State != Running || st.Ticks != 14 || len(st.Nodes) != 3 {
		t.Errorf("Status() = %+v", st)
	}
	for _, n := range st.Nodes {
		if n.State != graph.Running {
			t.Errorf("node %s is %v", n.Name, n.State)
		}
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	dev.Tick()
	if e.Status().Ticks != 14 {
		t.Error("device tick after Stop reached the graph")
	}
}

func TestEngine_FilePipeline(t *testing.T) {
	t.Parallel()

	in := audiotest.WriteWAV(t, "in.wav", 8000, 1, audiotest.Ramp(1000, 1))
	out := filepath.Join(t.TempDir(), "out.wav")

	cfg := testConfig([]config.Node{
		{Name: "player", Type: "file_source", Params: map[string]string{"file_path": in}},
		gain("fx", "0.5"),
		{Name: "recorder", Type: "file_sink", Params: map[string]string{"file_path": out}},
	},
		config.Connection{Source: "player", Sink: "fx"},
		config.Connection{Source: "fx", Sink: "recorder"},
	)
	cfg.SampleRate = 8000
	cfg.BufferSize = 100
	cfg.ChannelLayout = "mono"

	e := New(cfg, Options{})
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}

	rec, ok := e.Node("recorder").(*graph.FileSink)
	if !ok {
		t.Fatalf("Node(recorder) = %T", e.Node("recorder"))
	}
	deadline := time.Now().Add(5 * time.Second)
	for rec.Written() < 1000 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if rec.Written() != 1000 {
		t.Fatalf("recorder wrote %d frames, want 1000", rec.Written())
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	src, err := wav.Decoder{}.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]float32, 1200)
	n, _ := src.ReadSamples(got)
	if n != 1000 {
		t.Fatalf("file holds %d samples, want 1000", n)
	}
	for i := 0; i < n; i += 97 {
		want := 0.5 * float32(i) / 1000
		if math.Abs(float64(got[i]-want)) > 2e-4 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	t.Parallel()

	e := New(testConfig([]config.Node{gain("fx", "1")}), Options{Device: manualDevice()})

	if err := e.Run(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Run() before Initialize error = %v", err)
	}
	if err := e.ProcessBlock(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("ProcessBlock() before Run error = %v", err)
	}

	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Initialize() error = %v", err)
	}

	steps := []struct {
		name string
		do   func() error
		want State
	}{
		{"run", e.Run, Running},
		{"run again", e.Run, Running},
		{"tick", e.ProcessBlock, Running},
		{"stop", e.Stop, Stopped},
		{"stop again", e.Stop, Stopped},
		{"run from stopped", e.Run, Running},
		{"cleanup", e.Cleanup, Initialized},
		{"cleanup again", e.Cleanup, Initialized},
		{"run after cleanup", e.Run, Running},
		{"close", e.Close, Uninitialized},
		{"close again", e.Close, Uninitialized},
	}
	for _, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
		if got := e.State(); got != s.want {
			t.Fatalf("%s: state = %v, want %v", s.name, got, s.want)
		}
	}

	if e.Status().Ticks != 1 {
		t.Errorf("Ticks = %d, want 1", e.Status().Ticks)
	}
	if e.Node("fx") != nil {
		t.Error("Node() found a node after Close")
	}

	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() after Close error = %v", err)
	}
	if e.Node("fx") == nil {
		t.Error("Node(fx) = nil after re-initialize")
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_SoftwareClock(t *testing.T) {
	t.Parallel()

	cfg := testConfig([]config.Node{gain("fx", "1")})
	cfg.SampleRate = 48000
	cfg.BufferSize = 480

	e := New(cfg, Options{})
	if e.Period() != 10*time.Millisecond {
		t.Errorf("Period() = %v, want 10ms", e.Period())
	}
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.Status().Ticks < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	ticks := e.Status().Ticks
	if ticks < 3 {
		t.Fatalf("clock produced %d ticks in 2s", ticks)
	}
	time.Sleep(30 * time.Millisecond)
	if got := e.Status().Ticks; got != ticks {
		t.Errorf("ticks advanced from %d to %d after Stop", ticks, got)
	}
}

func TestEngine_InitializeErrors(t *testing.T) {
	t.Parallel()

	// a port nobody listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := l.Addr().String()
	l.Close()

	tests := []struct {
		name    string
		cfg     func() *config.Config
		wantErr error
	}{
		{
			name:    "no nodes",
			cfg:     func() *config.Config { return testConfig(nil) },
			wantErr: config.ErrNoNodes,
		},
		{
			name: "cycle",
			cfg: func() *config.Config {
				return testConfig([]config.Node{gain("a", "1"), gain("b", "1")},
					config.Connection{Source: "a", Sink: "b"},
					config.Connection{Source: "b", Sink: "a"})
			},
			wantErr: ErrCycle,
		},
		{
			name: "unknown type",
			cfg: func() *config.Config {
				return testConfig([]config.Node{{Name: "x", Type: "mixer"}})
			},
			wantErr: graph.ErrUnknownType,
		},
		{
			name: "hardware without device",
			cfg: func() *config.Config {
				return testConfig([]config.Node{{Name: "mic", Type: "hardware_source", Params: map[string]string{"channels": "0,1"}}})
			},
			wantErr: graph.ErrNoDevice,
		},
		{
			name: "missing parameter",
			cfg: func() *config.Config {
				return testConfig([]config.Node{{Name: "fx", Type: "processor"}})
			},
			wantErr: graph.ErrMissingParam,
		},
		{
			name: "pad in use",
			cfg: func() *config.Config {
				return testConfig([]config.Node{gain("a", "1"), gain("b", "1"), gain("c", "1")},
					config.Connection{Source: "a", Sink: "c"},
					config.Connection{Source: "b", Sink: "c"})
			},
			wantErr: ErrPadInUse,
		},
		{
			name: "bad pad",
			cfg: func() *config.Config {
				return testConfig([]config.Node{gain("a", "1"), gain("b", "1")},
					config.Connection{Source: "a", SourcePad: 1, Sink: "b"})
			},
			wantErr: graph.ErrInvalidPad,
		},
		{
			name: "unknown driver",
			cfg: func() *config.Config {
				cfg := testConfig([]config.Node{gain("a", "1")})
				cfg.Driver = "no-such-driver"
				return cfg
			},
			wantErr: hw.ErrUnknownDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := New(tt.cfg(), Options{})
			var events recorded
			e.AddStatusCallback(events.add)

			if err := e.Initialize(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Initialize() error = %v, want %v", err, tt.wantErr)
			}
			if e.State() != Uninitialized || e.Node("a") != nil {
				t.Errorf("engine kept state after a failed Initialize: %v", e.State())
			}
			if !slices.ContainsFunc(events.all(), func(ev string) bool {
				return strings.HasPrefix(ev, "Error: initialize")
			}) {
				t.Errorf("no Error event reported, got %v", events.all())
			}
		})
	}

	t.Run("unreachable controller", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig([]config.Node{gain("a", "1")})
		cfg.Control = config.Control{URL: "ws://" + deadAddr + "/", Timeout: config.Duration(time.Second)}
		e := New(cfg, Options{})
		if err := e.Initialize(context.Background()); err == nil {
			e.Close()
			t.Fatal("Initialize() with an unreachable controller succeeded")
		}
		if e.State() != Uninitialized {
			t.Errorf("state = %v", e.State())
		}
	})
}

type fakeController struct {
	mu     sync.Mutex
	sent   []string
	fail   string
	closed bool
}

func (f *fakeController) Send(_ context.Context, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cmd == f.fail {
		return fmt.Errorf("device rejected %s", cmd)
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeController) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestEngine_ControllerReplay(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{fail: "/bad"}
	cfg := testConfig([]config.Node{gain("a", "1")})
	cfg.Commands = []string{"/a", "/bad", "/c"}

	e := New(cfg, Options{Controller: ctrl})
	var events recorded
	e.AddStatusCallback(events.add)

	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(ctrl.sent, []string{"/a", "/c"}) {
		t.Errorf("sent = %v", ctrl.sent)
	}
	if ctrl.closed {
		t.Error("engine closed a controller it did not open")
	}
	all := events.all()
	if !slices.ContainsFunc(all, func(ev string) bool { return strings.HasPrefix(ev, "Warning:") && strings.Contains(ev, "/bad") }) {
		t.Errorf("no warning for the failed command in %v", all)
	}
	if !slices.Contains(all, "Info: replayed 2 of 3 controller commands") {
		t.Errorf("no replay summary in %v", all)
	}
}

// panicky wraps a processor whose Process always panics.
type panicky struct{ *graph.Processor }

func (panicky) Process() error { panic("filter exploded") }

func TestEngine_FailingNodeDoesNotStallTick(t *testing.T) {
	t.Parallel()

	in := audiotest.WriteWAV(t, "in.wav", 8000, 1, audiotest.Ramp(1000, 1))
	cfg := testConfig([]config.Node{
		{Name: "player", Type: "file_source", Params: map[string]string{"file_path": in}},
		gain("broken", "1"),
		{Name: "recorder", Type: "file_sink", Params: map[string]string{"file_path": filepath.Join(t.TempDir(), "out.wav")}},
	},
		config.Connection{Source: "player", Sink: "recorder"},
	)
	cfg.SampleRate = 8000
	cfg.BufferSize = 100
	cfg.ChannelLayout = "mono"

	e := New(cfg, Options{Device: manualDevice()})
	var events recorded
	e.AddStatusCallback(events.add)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	for i, n := range e.order {
		if p, ok := n.(*graph.Processor); ok {
			e.order[i] = panicky{p}
		}
	}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	for range 15 {
		if err := e.ProcessBlock(); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}

	rec := e.Node("recorder").(*graph.FileSink)
	if rec.Written() != 1000 {
		t.Errorf("recorder wrote %d frames, want 1000", rec.Written())
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	panics := 0
	for _, ev := range events.all() {
		if strings.HasPrefix(ev, "Warning: node broken panicked") {
			panics++
		}
	}
	if panics != 15 {
		t.Errorf("reported %d panics, want 15", panics)
	}
}

func TestEngine_CallbackCallsBackIntoEngine(t *testing.T) {
	t.Parallel()

	within := func(t *testing.T, what string, fn func()) {
		t.Helper()
		done := make(chan struct{})
		go func() {
			fn()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatalf("%s did not return", what)
		}
	}

	t.Run("close", func(t *testing.T) {
		t.Parallel()

		e := New(testConfig([]config.Node{gain("fx", "1")}), Options{Manual: true})
		var states recorded
		e.AddStatusCallback(func(c Category, _ string) {
			states.add(c, e.State().String())
			_ = e.Status()
		})
		if err := e.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
		within(t, "Close", func() { _ = e.Close() })
		if len(states.all()) == 0 {
			t.Error("callback never ran")
		}
	})

	t.Run("failed initialize", func(t *testing.T) {
		t.Parallel()

		e := New(testConfig([]config.Node{{Name: "x", Type: "mixer"}}), Options{Manual: true})
		var events recorded
		e.AddStatusCallback(func(c Category, msg string) {
			_ = e.State()
			events.add(c, msg)
		})
		var err error
		within(t, "Initialize", func() { err = e.Initialize(context.Background()) })
		if !errors.Is(err, graph.ErrUnknownType) {
			t.Errorf("Initialize() error = %v, want ErrUnknownType", err)
		}
		if !slices.ContainsFunc(events.all(), func(ev string) bool { return strings.HasPrefix(ev, "Error: initialize") }) {
			t.Errorf("no Error event reported, got %v", events.all())
		}
	})
}

// scripted replaces a processor's output with a fixed buffer, or nothing.
type scripted struct {
	*graph.Processor
	out *audio.Buffer
}

func (s *scripted) Output(int) *audio.Buffer { return s.out }

// collector records every buffer delivered to it.
type collector struct {
	*graph.Processor
	mu  sync.Mutex
	got []*audio.Buffer
}

func (c *collector) SetInput(buf *audio.Buffer, _ int) error {
	c.mu.Lock()
	c.got = append(c.got, buf)
	c.mu.Unlock()
	return nil
}

func (c *collector) delivered() []*audio.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.got)
}

func TestEngine_TransferSkipsNilOutput(t *testing.T) {
	t.Parallel()

	cfg := testConfig([]config.Node{gain("a", "1"), gain("b", "1")}, config.Connection{Source: "a", Sink: "b"})
	e := New(cfg, Options{Manual: true})
	var events recorded
	e.AddStatusCallback(events.add)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	src := &scripted{Processor: e.Node("a").(*graph.Processor)}
	dst := &collector{Processor: e.Node("b").(*graph.Processor)}
	e.conns[0] = graph.Connection{Source: src, Sink: dst}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}

	for range 5 {
		if err := e.ProcessBlock(); err != nil {
			t.Fatalf("ProcessBlock() with no output error = %v", err)
		}
	}
	if got := dst.delivered(); len(got) != 0 {
		t.Fatalf("SetInput called %d times while the source had no output", len(got))
	}

	x, err := audio.NewBuffer(64, 48000, audio.Float32Planar, audio.LayoutStereo)
	if err != nil {
		t.Fatal(err)
	}
	defer x.Release()
	src.out = x
	if err := e.ProcessBlock(); err != nil {
		t.Fatal(err)
	}
	if got := dst.delivered(); len(got) != 1 || got[0] != x {
		t.Errorf("delivered %v, want exactly the source buffer", got)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if slices.ContainsFunc(events.all(), func(ev string) bool { return strings.HasPrefix(ev, "Warning:") }) {
		t.Errorf("unexpected warnings: %v", events.all())
	}
}

// slow wraps a processor whose Process outlasts the tick period.
type slow struct {
	*graph.Processor
	work time.Duration
}

func (s slow) Process() error {
	time.Sleep(s.work)
	return s.Processor.Process()
}

func TestEngine_ClockOverrun(t *testing.T) {
	t.Parallel()

	cfg := testConfig([]config.Node{gain("fx", "1")})
	cfg.SampleRate = 48000
	cfg.BufferSize = 480

	e := New(cfg, Options{})
	var events recorded
	e.AddStatusCallback(events.add)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	const work = 25 * time.Millisecond
	for i, n := range e.order {
		if p, ok := n.(*graph.Processor); ok {
			e.order[i] = slow{p, work}
		}
	}

	start := time.Now()
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	st := e.Status()
	if st.Ticks == 0 || st.Overruns == 0 {
		t.Fatalf("ticks = %d, overruns = %d, want both above zero", st.Ticks, st.Overruns)
	}
	if limit := int64(elapsed/work) + 1; st.Ticks > limit {
		t.Errorf("ran %d ticks in %v, at most %d fit without a catch-up burst", st.Ticks, elapsed, limit)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if !slices.ContainsFunc(events.all(), func(ev string) bool { return strings.HasPrefix(ev, "Warning: tick overran") }) {
		t.Errorf("no overrun warning in %v", events.all())
	}
}
