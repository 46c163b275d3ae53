/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package status aggregates the health of every component registered by the
// supervisor (protocol servers, connection pools, shutdown orchestrators)
// into a single JSON-serializable report, and exposes a gin middleware
// handler for a health endpoint.
package status

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Mode controls how a registered Component affects the overall status:
// Must-mode unhealthy components fail the whole report; Should-mode ones
// only degrade it. Grounded on nabbar-golib/status/control's Must/Should
// mode split (observed via status/control_modes_test.go).
type Mode uint8

const (
	Should Mode = iota
	Must
)

// Component is a single health contributor: a protocol server, a connection
// pool, or a shutdown orchestrator.
type Component struct {
	Name    string `json:"name"`
	Mode    Mode   `json:"-"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// FuncCheck reports the current health of one named component.
type FuncCheck func() Component

// Info is the static application identity reported alongside health.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Hash    string `json:"hash"`
}

// Report is the JSON body produced by the health endpoint.
type Report struct {
	Info       Info        `json:"info"`
	Healthy    bool        `json:"healthy"`
	Components []Component `json:"components"`
}

// Status aggregates component checks and renders a Report. Grounded on
// nabbar-golib/status.Status's SetInfo/RegisterPool/MonitorWalk/MiddleWare
// shape (observed via info_test.go, pool_test.go, route_test.go — this
// subpackage has no retrievable .go source, only tests).
type Status struct {
	mu    sync.RWMutex
	info  Info
	funcs map[string]FuncCheck
}

func New() *Status {
	return &Status{funcs: make(map[string]FuncCheck)}
}

func (s *Status) SetInfo(name, version, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = Info{Name: name, Version: version, Hash: hash}
}

// Register adds or replaces the check function for a named component.
func (s *Status) Register(name string, check FuncCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[name] = check
}

func (s *Status) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.funcs, name)
}

// ComponentList returns the registered component names.
func (s *Status) ComponentList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		out = append(out, name)
	}
	return out
}

// Walk calls fct for every registered check result; stops early if fct
// returns false.
func (s *Status) Walk(fct func(c Component) bool) {
	s.mu.RLock()
	checks := make([]FuncCheck, 0, len(s.funcs))
	for _, f := range s.funcs {
		checks = append(checks, f)
	}
	s.mu.RUnlock()

	for _, f := range checks {
		if !fct(f()) {
			return
		}
	}
}

// Check builds the full Report, failing overall health when any Must-mode
// component is unhealthy.
func (s *Status) Check() Report {
	s.mu.RLock()
	info := s.info
	checks := make([]FuncCheck, 0, len(s.funcs))
	for _, f := range s.funcs {
		checks = append(checks, f)
	}
	s.mu.RUnlock()

	r := Report{Info: info, Healthy: true}
	for _, f := range checks {
		c := f()
		r.Components = append(r.Components, c)
		if !c.Healthy && c.Mode == Must {
			r.Healthy = false
		}
	}
	return r
}

// MiddleWare is a gin.HandlerFunc rendering the health Report as JSON, with
// HTTP 503 when unhealthy. Grounded on the teacher's
// status.Status.MiddleWare(c *gin.Context) signature.
func (s *Status) MiddleWare(c *gin.Context) {
	r := s.Check()

	code := http.StatusOK
	if !r.Healthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, r)
}

// MarshalJSON lets a *Status be passed directly to json.Marshal/gin.JSON,
// matching the teacher's behavior of marshaling Status itself.
func (s *Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Check())
}
