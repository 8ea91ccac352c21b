package gripper

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"github.com/skyswordx/gripperd/generichttp"
)

// Telemetry exposes the servo health and torque controls a bus offers
// beyond position transport.  Both the physical bus and the simulator
// satisfy it.
type Telemetry interface {
	// Temperature reads one servo's internal temperature in degrees C
	Temperature(id int) (int, error)

	// Voltage reads one servo's input voltage in volts
	Voltage(id int) (float64, error)

	// SetLoad enables or disables one servo's output torque
	SetLoad(id int, on bool) error

	// Halt stops an in-flight move at the present position
	Halt(id int) error
}

// HTTPGripper wraps a Controller in an HTTP interface
type HTTPGripper struct {
	// C is the wrapped controller
	C *Controller

	// RouteTable maps methods and paths to handlers
	RouteTable generichttp.RouteTable

	tel Telemetry
}

// NewHTTPGripper binds the public operations to a route table.  When tel is
// not nil the per-servo health and torque routes are bound as well.
func NewHTTPGripper(c *Controller, tel Telemetry) HTTPGripper {
	h := HTTPGripper{C: c, tel: tel}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/status"}:        h.GetStatus,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/status-text"}:   h.GetStatusText,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/gripper/{id}/target"}:       h.SmoothMove,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/gripper/{id}/stop"}:         h.Stop,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/mode"}:          h.GetMode,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/gripper/{id}/mode"}:         h.SetMode,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/moving"}:        h.Moving,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/mapping"}:       h.GetMapping,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/gripper/{id}/mapping"}:      h.SetMapping,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/params"}:        h.GetParams,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/gripper/{id}/params"}:       h.SetParams,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/error-history"}: h.ErrorHistory,
	}
	if tel != nil {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/temperature"}] = h.Temperature
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/gripper/{id}/voltage"}] = h.Voltage
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/gripper/{id}/torque"}] = h.SetTorque
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/gripper/{id}/halt"}] = h.Halt
	}
	h.RouteTable = rt
	return h
}

// RT satisfies generichttp.HTTPer
func (h HTTPGripper) RT() generichttp.RouteTable {
	return h.RouteTable
}

func popID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// moveRequest is the json body of a target command.  A zero or missing
// durationMs auto-computes the duration from the mapping's max speed.
type moveRequest struct {
	Percent    float64 `json:"percent"`
	DurationMs int     `json:"durationMs"`
}

// GetStatus returns the json status snapshot of one actuator
func (h HTTPGripper) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	st, err := h.C.Status(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetStatusText returns the human rendering of one actuator's status
func (h HTTPGripper) GetStatusText(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	st, err := h.C.Status(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(st.Render()))
}

// SmoothMove starts a ramped move from a json body of
// {'percent': value, 'durationMs': value}
func (h HTTPGripper) SmoothMove(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	req := moveRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.C.SmoothMove(id, req.Percent, time.Duration(req.DurationMs)*time.Millisecond)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Stop freezes one actuator where it is
func (h HTTPGripper) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	err := h.C.Stop(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetMode returns the control mode as json {'str': value}
func (h HTTPGripper) GetMode(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	generichttp.GetString(func() (string, error) {
		st, err := h.C.Status(id)
		return st.Mode.String(), err
	})(w, r)
}

// Moving reports whether one actuator is executing a move, as json
// {'bool': value}
func (h HTTPGripper) Moving(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	generichttp.GetBool(func() (bool, error) {
		st, err := h.C.Status(id)
		return st.Moving, err
	})(w, r)
}

// SetMode parses json {'str': value} and selects the control mode
func (h HTTPGripper) SetMode(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	s := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := ParseMode(s.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.C.SetMode(id, mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetMapping returns one actuator's angle mapping as json
func (h HTTPGripper) GetMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	m, err := h.C.Mapping(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(m)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetMapping parses a json Mapping and installs it
func (h HTTPGripper) SetMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	m := Mapping{}
	err := json.NewDecoder(r.Body).Decode(&m)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.C.ConfigureMapping(id, m)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetParams returns one actuator's tuning as json
func (h HTTPGripper) GetParams(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	p, err := h.C.ControlParams(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetParams parses json ControlParams and installs them
func (h HTTPGripper) SetParams(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	p := ControlParams{}
	err := json.NewDecoder(r.Body).Decode(&p)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.C.SetControlParams(id, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ErrorHistory returns recent closed-loop position errors, oldest first
func (h HTTPGripper) ErrorHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	hist, err := h.C.ErrorHistory(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(hist)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Temperature returns one servo's internal temperature in degrees C as
// json {'f64': value}
func (h HTTPGripper) Temperature(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	generichttp.GetFloat(func() (float64, error) {
		t, err := h.tel.Temperature(id)
		return float64(t), err
	})(w, r)
}

// Voltage returns one servo's input voltage in volts as json {'f64': value}
func (h HTTPGripper) Voltage(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	generichttp.GetFloat(func() (float64, error) {
		return h.tel.Voltage(id)
	})(w, r)
}

// SetTorque enables or disables one servo's output torque from json
// {'bool': value}
func (h HTTPGripper) SetTorque(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	b := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.tel.SetLoad(id, b.Bool); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Halt freezes one actuator's plan and commands the servo itself to stop
// where it is, rather than waiting for the next loop cycle to hold it
func (h HTTPGripper) Halt(w http.ResponseWriter, r *http.Request) {
	id, ok := popID(w, r)
	if !ok {
		return
	}
	if err := h.C.Stop(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.tel.Halt(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
