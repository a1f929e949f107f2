package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/actuator"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/light"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/robot"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/sysinfo"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockLights struct {
	mu    sync.Mutex
	mode  light.Mode
	color light.Color
}

func (l *mockLights) set(m light.Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = m
	return nil
}

func (l *mockLights) Police() error { return l.set(light.ModePolice) }
func (l *mockLights) Breath(c light.Color) error {
	l.color = c
	return l.set(light.ModeBreath)
}
func (l *mockLights) Rainbow() error             { return l.set(light.ModeRainbow) }
func (l *mockLights) Firefly() error             { return l.set(light.ModeFirefly) }
func (l *mockLights) SetColor(light.Color) error { return l.set(light.ModeNone) }
func (l *mockLights) Pause() error               { return l.set(light.ModeNone) }
func (l *mockLights) Mode() light.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

type mockSwitches struct {
	mu     sync.Mutex
	state  map[int]bool
	allOff int
}

func (s *mockSwitches) Set(port int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if port < 1 || port > 3 {
		return errors.New("switches: bad port")
	}
	if s.state == nil {
		s.state = make(map[int]bool)
	}
	s.state[port] = on
	return nil
}

func (s *mockSwitches) AllOff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allOff++
	for k := range s.state {
		s.state[k] = false
	}
}

func (s *mockSwitches) State() map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]bool, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

type mockCalibration struct {
	mu     sync.Mutex
	writes map[string]int
	resets int
}

func (c *mockCalibration) Write(section, key string, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writes == nil {
		c.writes = make(map[string]int)
	}
	c.writes[section+"."+key] = value
	return nil
}

func (c *mockCalibration) Section(string) map[string]int { return nil }

func (c *mockCalibration) InitPositions() [servo.NumChannels]int {
	var out [servo.NumChannels]int
	for i := range out {
		out[i] = servo.DefaultInitPosition
	}
	return out
}

func (c *mockCalibration) SetInitPositions([servo.NumChannels]int) error { return nil }

func (c *mockCalibration) ResetInitPositions() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return nil
}

type mockInfo struct {
	info sysinfo.Info
	err  error
}

func (m mockInfo) Read(context.Context) (sysinfo.Info, error) { return m.info, m.err }

type fixture struct {
	d        *Dispatcher
	rig      *robot.Rig
	ports    map[string]*actuator.Recorder
	lights   *mockLights
	switches *mockSwitches
	cal      *mockCalibration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ports:    make(map[string]*actuator.Recorder),
		lights:   &mockLights{mode: light.ModeNone},
		switches: &mockSwitches{},
		cal:      &mockCalibration{},
	}
	engine := func(name string) *servo.Engine {
		port := actuator.NewRecorder(0, quietLogger())
		f.ports[name] = port
		e, err := servo.NewEngine(name, port, servo.WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}
		return e
	}
	f.rig = robot.NewRig(engine(robot.GroupGear), engine(robot.GroupPan), engine(robot.GroupTilt),
		robot.WithLights(f.lights),
		robot.WithSwitches(f.switches),
		robot.WithCalibration(f.cal),
		robot.WithRigLogger(quietLogger()),
	)
	f.d = New(f.rig,
		WithInfo(mockInfo{info: sysinfo.Info{CPUTemp: 48.3, CPUPercent: 12.5, RAMPercent: 40}}),
		WithLogger(quietLogger()),
	)
	return f
}

func (f *fixture) send(t *testing.T, cmd string) protocol.Response {
	t.Helper()
	return f.d.Handle(context.Background(), &protocol.Request{Command: cmd})
}

func (f *fixture) sendTitle(t *testing.T, title, data string) protocol.Response {
	t.Helper()
	return f.d.Handle(context.Background(), &protocol.Request{Title: title, Data: []byte(data)})
}

func expectOK(t *testing.T, resp protocol.Response) {
	t.Helper()
	if resp.Status != protocol.StatusOK {
		t.Fatalf("%s: status %s, data %v", resp.Title, resp.Status, resp.Data)
	}
}

func expectError(t *testing.T, resp protocol.Response, contains string) {
	t.Helper()
	if resp.Status != protocol.StatusError {
		t.Fatalf("%s: expected error, got %s", resp.Title, resp.Status)
	}
	msg, _ := resp.Data.(string)
	if !strings.Contains(msg, contains) {
		t.Errorf("%s: error %q does not mention %q", resp.Title, msg, contains)
	}
}

func TestLookCommands(t *testing.T) {
	f := newFixture(t)

	expectOK(t, f.send(t, "lookleft"))
	pan := f.rig.Pan().Snapshot()
	if !pan.Running || pan.Mode != servo.ModeWiggle {
		t.Errorf("pan after lookleft: running=%v mode=%s", pan.Running, pan.ModeName)
	}
	if pan.Channels[robot.PanChannel].Speed != lookSpeed {
		t.Errorf("pan speed: got %v", pan.Channels[robot.PanChannel].Speed)
	}

	expectOK(t, f.send(t, "LRstop"))
	if f.rig.Pan().Snapshot().Running {
		t.Error("pan still running after LRstop")
	}

	expectOK(t, f.send(t, "down"))
	if !f.rig.Tilt().Snapshot().Running {
		t.Error("tilt not running after down")
	}
	if f.rig.Pan().Snapshot().Running {
		t.Error("down moved the pan group")
	}
	expectOK(t, f.send(t, "UDstop"))
	if f.rig.Tilt().Snapshot().Running {
		t.Error("tilt still running after UDstop")
	}
}

func TestCalibrationCommands(t *testing.T) {
	f := newFixture(t)

	expectOK(t, f.send(t, "SiLeft 3"))
	expectOK(t, f.send(t, "SiLeft 3"))
	resp := f.send(t, "SiRight 3")
	expectOK(t, resp)
	if resp.Data != 299 {
		t.Errorf("SiRight data: got %v, want 299", resp.Data)
	}
	if got := f.rig.Gear().InitPositions()[3]; got != 299 {
		t.Errorf("gear init 3: got %d, want 299", got)
	}
	if got, _ := f.ports[robot.GroupGear].Last(3); got != 299 {
		t.Errorf("gear channel 3 output: got %d, want 299", got)
	}

	expectOK(t, f.send(t, "PWMMS 3"))
	if got := f.cal.writes["pwm.init_pwm3"]; got != 299 {
		t.Errorf("stored init_pwm3: got %d, want 299", got)
	}

	expectOK(t, f.send(t, "PWMD"))
	if f.cal.resets != 1 {
		t.Errorf("resets: got %d", f.cal.resets)
	}
	if got := f.rig.Gear().InitPositions()[3]; got != 299 {
		t.Errorf("PWMD changed the running engine: init 3 = %d", got)
	}

	expectOK(t, f.send(t, "PWMINIT"))
	for ch := 0; ch < servo.NumChannels; ch++ {
		want := servo.DefaultInitPosition
		if ch == 3 {
			want = 299
		}
		if got, ok := f.ports[robot.GroupGear].Last(ch); !ok || got != want {
			t.Errorf("PWMINIT channel %d: got %d (sent %v), want %d", ch, got, ok, want)
		}
	}

	expectError(t, f.send(t, "SiLeft 16"), "out of range")
	expectError(t, f.send(t, "SiLeft"), "missing argument")
	expectError(t, f.send(t, "PWMMS x"), "argument 1")
}

func TestSwitchCommands(t *testing.T) {
	f := newFixture(t)

	expectOK(t, f.send(t, "Switch_1_on"))
	expectOK(t, f.send(t, "Switch_3_on"))
	expectOK(t, f.send(t, "Switch_1_off"))
	state := f.switches.State()
	if state[1] || !state[3] {
		t.Errorf("switch state: %v", state)
	}

	expectError(t, f.send(t, "Switch_4_on"), "bad port")
	expectError(t, f.send(t, "Switch_1_maybe"), "unknown command")

	expectOK(t, f.send(t, "stopCV"))
	if f.switches.allOff != 1 || f.switches.State()[3] {
		t.Errorf("stopCV did not turn switches off: %v", f.switches.State())
	}
}

func TestLightCommands(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		cmd  string
		want light.Mode
	}{
		{"police", light.ModePolice},
		{"policeOff", light.ModeNone},
		{"breath", light.ModeBreath},
		{"rainbow", light.ModeRainbow},
		{"firefly", light.ModeFirefly},
		{"lightsOff", light.ModeNone},
	}
	for _, tc := range cases {
		resp := f.send(t, tc.cmd)
		expectOK(t, resp)
		if f.lights.Mode() != tc.want || resp.Data != tc.want {
			t.Errorf("%s: mode %s, data %v", tc.cmd, f.lights.Mode(), resp.Data)
		}
	}
	if f.lights.color != breathColor {
		t.Errorf("breath color: %+v", f.lights.color)
	}

	bare := New(robot.NewRig(f.rig.Gear(), f.rig.Pan(), f.rig.Tilt(), robot.WithRigLogger(quietLogger())),
		WithLogger(quietLogger()))
	resp := bare.Handle(context.Background(), &protocol.Request{Command: "police"})
	expectError(t, resp, "unavailable")
	resp = bare.Handle(context.Background(), &protocol.Request{Command: "get_info"})
	expectError(t, resp, "unavailable")
}

func TestInfoAndSettings(t *testing.T) {
	f := newFixture(t)

	resp := f.send(t, "get_info")
	expectOK(t, resp)
	if resp.Title != "get_info" {
		t.Errorf("title: %q", resp.Title)
	}
	info, ok := resp.Data.([3]string)
	if !ok || info != [3]string{"48.3", "12.5", "40.0"} {
		t.Errorf("get_info data: %#v", resp.Data)
	}

	if got := f.d.Settings(); got.Speed != DefaultSpeed || got.Mode != DefaultMode {
		t.Errorf("default settings: %+v", got)
	}
	expectOK(t, f.send(t, "wsB 55"))
	expectOK(t, f.send(t, "AR"))
	if got := f.d.Settings(); got.Speed != 55 || got.Mode != "AR" {
		t.Errorf("settings: %+v", got)
	}
	expectError(t, f.send(t, "wsB fast"), "wsB")
}

func TestInfoPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.d.info = mockInfo{info: sysinfo.Info{CPUPercent: 3}, err: errors.New("no thermal zone")}

	resp := f.send(t, "get_info")
	expectOK(t, resp)
	if info := resp.Data.([3]string); info[1] != "3.0" {
		t.Errorf("cpu: %q", info[1])
	}
}

func TestUnsupportedAndUnknown(t *testing.T) {
	f := newFixture(t)

	for _, cmd := range []string{"forward", "DS", "automatic", "findColor", "CVFLL1 40", "trackLine"} {
		resp := f.send(t, cmd)
		expectError(t, resp, "unsupported")
	}
	expectError(t, f.sendTitle(t, protocol.TitleFindColorSet, `[1,2,3]`), "unsupported")
	expectError(t, f.send(t, "dance"), "unknown command")
	expectError(t, f.sendTitle(t, "servo_fly", `{}`), "unknown command")
}

func TestStructuredServoCommands(t *testing.T) {
	f := newFixture(t)

	expectOK(t, f.sendTitle(t, protocol.TitleServoGoal, `{"group":"gear","ids":[0,1],"angles":[60,-60]}`))
	gear := f.rig.Gear().Snapshot()
	if !gear.Running || gear.Mode != servo.ModeTimedAuto {
		t.Errorf("gear after servo_goal: running=%v mode=%s", gear.Running, gear.ModeName)
	}
	if gear.Channels[0].Goal != 440 || gear.Channels[1].Goal != 160 {
		t.Errorf("goals: %d, %d", gear.Channels[0].Goal, gear.Channels[1].Goal)
	}

	expectError(t, f.sendTitle(t, protocol.TitleServoGoal, `{"group":"gear","ids":[0,1],"angles":[60]}`), "counts differ")
	expectError(t, f.sendTitle(t, protocol.TitleServoGoal, `{"group":"arm","ids":[0],"angles":[1]}`), "unknown servo group")
	expectError(t, f.sendTitle(t, protocol.TitleServoGoal, ``), "missing data")

	expectOK(t, f.sendTitle(t, protocol.TitleServoSpeed, `{"group":"pan","ids":[12],"angles":[30],"speeds":[45]}`))
	if got := f.rig.Pan().Snapshot(); got.Mode != servo.ModeConstantSpeed || got.Channels[12].Speed != 45 {
		t.Errorf("pan after servo_speed: mode=%s speed=%v", got.ModeName, got.Channels[12].Speed)
	}

	expectOK(t, f.sendTitle(t, protocol.TitleServoStop, `{"group":"pan"}`))
	if f.rig.Pan().Snapshot().Running {
		t.Error("pan running after servo_stop")
	}
	expectOK(t, f.sendTitle(t, protocol.TitleServoResume, `{"group":"pan"}`))
	if !f.rig.Pan().Snapshot().Running {
		t.Error("pan not running after servo_resume")
	}

	expectOK(t, f.sendTitle(t, protocol.TitleServoWiggle, `{"group":"tilt","id":13,"direction":-1,"speed":10}`))
	expectError(t, f.sendTitle(t, protocol.TitleServoWiggle, `{"group":"tilt","id":13,"direction":0,"speed":10}`), "direction")

	expectOK(t, f.sendTitle(t, protocol.TitleServoRaw, `{"group":"tilt","id":2,"value":250}`))
	if got, _ := f.ports[robot.GroupTilt].Last(2); got != 250 {
		t.Errorf("raw output: got %d", got)
	}
	expectError(t, f.sendTitle(t, protocol.TitleServoRaw, `{"group":"tilt","id":2,"value":600}`), "out of range")

	expectOK(t, f.sendTitle(t, protocol.TitleServoInitPos, `{"group":"gear","id":4,"value":320,"move":true}`))
	if got, _ := f.ports[robot.GroupGear].Last(4); got != 320 {
		t.Errorf("init_pos output: got %d", got)
	}

	expectOK(t, f.sendTitle(t, protocol.TitleServoInit, `{"group":"tilt","ids":[2]}`))
	if got, _ := f.ports[robot.GroupTilt].Last(2); got != servo.DefaultInitPosition {
		t.Errorf("servo_init channel 2: got %d", got)
	}
	expectOK(t, f.sendTitle(t, protocol.TitleServoInit, `{"group":"gear"}`))
	if got := f.rig.Gear().Snapshot(); !got.Running || got.Mode != servo.ModeInit {
		t.Errorf("gear after servo_init: running=%v mode=%s", got.Running, got.ModeName)
	}
}

func TestDispatchRaw(t *testing.T) {
	f := newFixture(t)

	resp := f.d.Dispatch(context.Background(), []byte(`"Switch_2_on"`))
	expectOK(t, resp)
	if resp.Title != "Switch_2_on" {
		t.Errorf("title: %q", resp.Title)
	}

	// Plain text from older clients.
	expectOK(t, f.d.Dispatch(context.Background(), []byte("Switch_2_off")))

	resp = f.d.Dispatch(context.Background(), []byte(`null`))
	if resp.Status != protocol.StatusError {
		t.Errorf("null request: status %s", resp.Status)
	}
	expectError(t, f.d.Dispatch(context.Background(), []byte(`{"data":1}`)), "without title")
}
