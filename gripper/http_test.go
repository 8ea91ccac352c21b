package gripper

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
)

// fakeTelemetry records torque and halt commands and answers health reads
// with canned values
type fakeTelemetry struct {
	temp   int
	volts  float64
	load   map[int]bool
	halted []int
}

func (f *fakeTelemetry) Temperature(id int) (int, error) { return f.temp, nil }
func (f *fakeTelemetry) Voltage(id int) (float64, error) { return f.volts, nil }
func (f *fakeTelemetry) SetLoad(id int, on bool) error {
	f.load[id] = on
	return nil
}
func (f *fakeTelemetry) Halt(id int) error {
	f.halted = append(f.halted, id)
	return nil
}

func testServer(t *testing.T) (*Controller, *fakeTelemetry, *httptest.Server) {
	t.Helper()
	c := New(&plantTransport{})
	tel := &fakeTelemetry{temp: 26, volts: 7.4, load: make(map[int]bool)}
	w := NewHTTPGripper(c, tel)
	mux := chi.NewRouter()
	w.RT().Bind(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return c, tel, srv
}

func TestHTTPStatusRoundTrip(t *testing.T) {
	_, _, srv := testServer(t)
	resp, err := http.Get(srv.URL + "/gripper/1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.ID != 1 || st.State != Idle {
		t.Errorf("decoded status %+v, want id 1 IDLE", st)
	}
}

func TestHTTPTargetThenStop(t *testing.T) {
	c, _, srv := testServer(t)
	body := bytes.NewBufferString(`{"percent": 40, "durationMs": 2000}`)
	resp, err := http.Post(srv.URL+"/gripper/0/target", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("target: status code %d", resp.StatusCode)
	}
	st, _ := c.Status(0)
	if st.State != Moving || st.TargetPercent != 40 {
		t.Errorf("after target: %+v", st)
	}

	resp, err = http.Post(srv.URL+"/gripper/0/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: status code %d", resp.StatusCode)
	}
	st, _ = c.Status(0)
	if st.Moving {
		t.Error("still moving after stop")
	}
}

func TestHTTPRejectsBadInput(t *testing.T) {
	_, _, srv := testServer(t)
	cases := []struct {
		path string
		body string
	}{
		{"/gripper/0/target", `{"percent": 150}`},
		{"/gripper/9/target", `{"percent": 50}`},
		{"/gripper/0/mode", `{"str": "sideways"}`},
		{"/gripper/0/mapping", `{"closedAngle": 300, "openAngle": 90, "minStep": 5}`},
	}
	for _, tc := range cases {
		resp, err := http.Post(srv.URL+tc.path, "application/json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %s %s: status %d, want 400", tc.path, tc.body, resp.StatusCode)
		}
	}
}

func TestHTTPModeRoundTrip(t *testing.T) {
	c, _, srv := testServer(t)
	resp, err := http.Post(srv.URL+"/gripper/2/mode", "application/json",
		strings.NewReader(`{"str": "closed-loop"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set mode: status %d", resp.StatusCode)
	}
	st, _ := c.Status(2)
	if st.Mode != ClosedLoop {
		t.Errorf("mode = %v, want CLOSED_LOOP", st.Mode)
	}

	resp, err = http.Get(srv.URL + "/gripper/2/mode")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var s struct {
		Str string `json:"str"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Str != "CLOSED_LOOP" {
		t.Errorf("got mode %q over http, want CLOSED_LOOP", s.Str)
	}
}

func TestHTTPTelemetryReads(t *testing.T) {
	_, _, srv := testServer(t)
	var f struct {
		F64 float64 `json:"f64"`
	}

	resp, err := http.Get(srv.URL + "/gripper/1/temperature")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if f.F64 != 26 {
		t.Errorf("temperature = %v, want 26", f.F64)
	}

	resp, err = http.Get(srv.URL + "/gripper/1/voltage")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if f.F64 != 7.4 {
		t.Errorf("voltage = %v, want 7.4", f.F64)
	}
}

func TestHTTPTorqueAndHalt(t *testing.T) {
	c, tel, srv := testServer(t)

	resp, err := http.Post(srv.URL+"/gripper/1/torque", "application/json",
		strings.NewReader(`{"bool": false}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("torque: status %d", resp.StatusCode)
	}
	if on, ok := tel.load[1]; !ok || on {
		t.Errorf("torque command not forwarded: load[1]=%v ok=%v", on, ok)
	}

	if err := c.SmoothMove(2, 50, time.Second); err != nil {
		t.Fatal(err)
	}
	resp, err = http.Post(srv.URL+"/gripper/2/halt", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("halt: status %d", resp.StatusCode)
	}
	if len(tel.halted) != 1 || tel.halted[0] != 2 {
		t.Errorf("halt command not forwarded: %v", tel.halted)
	}
	st, _ := c.Status(2)
	if st.Moving {
		t.Error("still moving after halt")
	}
}

func TestHTTPMovingFlag(t *testing.T) {
	c, _, srv := testServer(t)
	get := func() bool {
		t.Helper()
		resp, err := http.Get(srv.URL + "/gripper/0/moving")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var b struct {
			Bool bool `json:"bool"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
			t.Fatal(err)
		}
		return b.Bool
	}

	if get() {
		t.Error("idle actuator reported moving")
	}
	if err := c.SmoothMove(0, 30, time.Second); err != nil {
		t.Fatal(err)
	}
	if !get() {
		t.Error("commanded actuator not reported moving")
	}
}

func TestHTTPTelemetryRoutesOptional(t *testing.T) {
	c := New(&plantTransport{})
	w := NewHTTPGripper(c, nil)
	mux := chi.NewRouter()
	w.RT().Bind(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/gripper/0/temperature")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("temperature without telemetry: status %d, want 404", resp.StatusCode)
	}
}

func TestHTTPStatusText(t *testing.T) {
	_, _, srv := testServer(t)
	resp, err := http.Get(srv.URL + "/gripper/3/status-text")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "IDLE") {
		t.Errorf("rendering missing state name: %q", buf.String())
	}
}
