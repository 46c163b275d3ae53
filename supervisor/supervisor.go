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

// Package supervisor is the Multi-Protocol Supervisor (component C8): it
// owns a set of protocol servers keyed by (protocol, port), starts and
// stops them concurrently, and supports swapping one server's listening
// options at runtime.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/protoserver"
	"github.com/nabbar/netserve/semaphore"
	"github.com/nabbar/netserve/status"
)

// Key identifies one supervised server (spec §4.4's "keyed by
// (protocol, port)").
type Key struct {
	Protocol protoserver.Protocol
	Port     uint16
}

func keyOf(opt protoserver.Options) Key {
	return Key{Protocol: opt.Protocol, Port: opt.Port}
}

// Factory rebuilds a protoserver.Server from a fresh Options value.
// UpdateConfig uses it to replace a server whose hostname or port
// changed, since the supervisor has no way to reconstruct a server's
// bound handler on its own.
type Factory func(opt protoserver.Options) protoserver.Server

type entry struct {
	srv     protoserver.Server
	factory Factory
}

// Supervisor is the C8 component itself.
type Supervisor struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	status  *status.Status
	log     logger.Logger
}

func New(log logger.Logger) *Supervisor {
	s := &Supervisor{
		entries: make(map[Key]*entry),
		status:  status.New(),
		log:     log,
	}
	return s
}

// Status exposes the aggregated health report for every registered
// server, suitable for mounting behind one of the supervised HTTP
// servers' own routes.
func (s *Supervisor) Status() *status.Status {
	return s.status
}

// Add registers a server under its own (protocol, port) key. factory is
// kept so UpdateConfig can later rebuild this entry; it may be nil if the
// caller never intends to call UpdateConfig for this key.
func (s *Supervisor) Add(srv protoserver.Server, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(srv.Options())
	s.entries[key] = &entry{srv: srv, factory: factory}

	name := fmt.Sprintf("%s:%d", key.Protocol, key.Port)
	s.status.Register(name, func() status.Component {
		return status.Component{Name: name, Mode: status.Must, Healthy: srv.Native() != nil}
	})
}

// Start concurrently starts every registered server (spec §4.4); on the
// first bind error the servers already started are stopped and the error
// is returned.
func (s *Supervisor) Start() error {
	s.mu.RLock()
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.RUnlock()

	var (
		mu      sync.Mutex
		started []protoserver.Server
		firstErr error
	)

	sem := semaphore.New(0)
	for _, e := range list {
		e := e
		_ = sem.Run(context.Background(), func() {
			if err := e.srv.Start(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			started = append(started, e.srv)
			mu.Unlock()
		})
	}
	_ = sem.WaitAll(context.Background())

	if firstErr != nil {
		for _, srv := range started {
			_ = srv.Stop()
		}
		return firstErr
	}

	return nil
}

// Stop fans out to every registered server's own shutdown sequence (spec
// §4.4/§4.5) and returns once every result is terminal.
func (s *Supervisor) Stop() error {
	s.mu.RLock()
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.RUnlock()

	var (
		mu     sync.Mutex
		aggErr *multierror.Error
	)

	sem := semaphore.New(0)
	for _, e := range list {
		e := e
		_ = sem.Run(context.Background(), func() {
			if err := e.srv.Stop(); err != nil {
				mu.Lock()
				aggErr = multierror.Append(aggErr, err)
				mu.Unlock()
			}
		})
	}
	_ = sem.WaitAll(context.Background())

	if aggErr != nil {
		return aggErr.ErrorOrNil()
	}
	return nil
}

// GetNativeServer returns the underlying listener/server object for one
// supervised server, or nil if no entry matches (spec §4.4).
func (s *Supervisor) GetNativeServer(protocol protoserver.Protocol, port uint16) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[Key{Protocol: protocol, Port: port}]
	if !ok {
		return nil
	}
	return e.srv.Native()
}

// UpdateConfig compares newOpts against the registered server's current
// Options; if Hostname or Port changed, it stops the current server,
// rebuilds one via the stored Factory, starts it, and re-registers it
// under the new key. Returns true if any change was applied (spec §4.4).
func (s *Supervisor) UpdateConfig(key Key, newOpts protoserver.Options) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("supervisor: no server registered for %s:%d", key.Protocol, key.Port)
	}

	cur := e.srv.Options()
	if cur.Hostname == newOpts.Hostname && cur.Port == newOpts.Port {
		return false, nil
	}

	if e.factory == nil {
		return false, fmt.Errorf("supervisor: no factory registered to rebuild %s:%d", key.Protocol, key.Port)
	}

	if err := e.srv.Stop(); err != nil {
		return false, err
	}

	next := e.factory(newOpts)
	if err := next.Start(); err != nil {
		return false, err
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.entries[keyOf(next.Options())] = &entry{srv: next, factory: e.factory}
	s.mu.Unlock()

	name := fmt.Sprintf("%s:%d", newOpts.Protocol, newOpts.Port)
	s.status.Unregister(fmt.Sprintf("%s:%d", key.Protocol, key.Port))
	s.status.Register(name, func() status.Component {
		return status.Component{Name: name, Mode: status.Must, Healthy: next.Native() != nil}
	})

	return true, nil
}
