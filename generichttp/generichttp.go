// Package generichttp wraps devices in extensible HTTP interfaces.  Device
// packages expose a RouteTable; binaries bind the tables onto chi routers
// and mount them wherever the config says.
package generichttp

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is a tuple of HTTP method and URL path
type MethodPath struct {
	// Method is the HTTP method, e.g. http.MethodGet
	Method string

	// Path is the URL path, e.g. /status
	Path string
}

// RouteTable maps methods and paths to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Bind attaches the routes in the table to a chi router
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.MethodFunc(mp.Method, mp.Path, handler)
	}
}

// HTTPer is an object exposing a RouteTable
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize ensures a mount point begins with a slash and does not end
// with one, the format chi wants
func SubMuxSanitize(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}

// HumanPayload is a struct containing the basic types HTTP responses may
// hold, and a type tag saying which field is live
type HumanPayload struct {
	// T holds the type of the payload
	T types.BasicKind

	// Int holds an int
	Int int

	// Float holds a float64
	Float float64

	// Bool holds a bool
	Bool bool

	// String holds a string
	String string
}

// EncodeAndRespond writes the payload to w as the json envelope matching
// its type
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	switch hp.T {
	case types.Float64:
		err = json.NewEncoder(w).Encode(FloatT{F64: hp.Float})
	case types.Int:
		err = json.NewEncoder(w).Encode(IntT{Int: hp.Int})
	case types.Bool:
		err = json.NewEncoder(w).Encode(BoolT{Bool: hp.Bool})
	case types.String:
		err = json.NewEncoder(w).Encode(StrT{Str: hp.String})
	default:
		err = fmt.Errorf("unsupported payload type %v", hp.T)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// FloatT is a float64 json envelope
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is an int json envelope
type IntT struct {
	Int int `json:"int"`
}

// StrT is a string json envelope
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a bool json envelope
type BoolT struct {
	Bool bool `json:"bool"`
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}
