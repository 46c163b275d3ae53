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

package supervisor

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/protoserver"
)

// Config is one batch of Listening Options (spec §6), one per supervised
// server, walked the same way the teacher's pool.Config walks its own
// per-server config slice.
type Config []protoserver.Options

type FuncWalkConfig func(opt protoserver.Options) bool

func (c Config) Walk(fct FuncWalkConfig) {
	if fct == nil {
		return
	}
	for _, o := range c {
		if !fct(o) {
			return
		}
	}
}

// Validate rejects a Config with a missing port, a duplicate
// (protocol, port) pair, or an https or wss entry lacking TLSMaterial
// (TLS is optional for http2).
func (c Config) Validate() error {
	var agg *multierror.Error
	seen := make(map[Key]bool, len(c))

	c.Walk(func(o protoserver.Options) bool {
		if o.Port == 0 {
			agg = multierror.Append(agg, fmt.Errorf("supervisor: %s listening option missing a port", o.Protocol))
		}

		key := keyOf(o)
		if seen[key] {
			agg = multierror.Append(agg, fmt.Errorf("supervisor: duplicate listening option for %s:%d", o.Protocol, o.Port))
		}
		seen[key] = true

		switch o.Protocol {
		case protoserver.ProtocolHTTPS, protoserver.ProtocolWSS:
			if o.TLSMaterial == nil || o.TLSMaterial.IsEmpty() {
				agg = multierror.Append(agg, fmt.Errorf("supervisor: %s:%d requires TLS material", o.Protocol, o.Port))
			}
		}

		return true
	})

	if agg == nil {
		return nil
	}
	return agg.ErrorOrNil()
}

// FactoryByProtocol maps a Protocol to the Factory that builds its
// protoserver.Server, so Build can construct one Supervisor entry per
// Config element without the caller repeating a protocol switch.
type FactoryByProtocol map[protoserver.Protocol]Factory

// Build validates c, then constructs and registers one Supervisor entry
// per element via factories, keyed by protocol. It does not start any
// server; call Supervisor.Start for that.
func Build(c Config, factories FactoryByProtocol, log logger.Logger) (*Supervisor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	sup := New(log)

	var agg *multierror.Error
	c.Walk(func(o protoserver.Options) bool {
		f, ok := factories[o.Protocol]
		if !ok || f == nil {
			agg = multierror.Append(agg, fmt.Errorf("supervisor: no factory registered for protocol %s", o.Protocol))
			return true
		}
		sup.Add(f(o), f)
		return true
	})

	if agg != nil {
		if err := agg.ErrorOrNil(); err != nil {
			return nil, err
		}
	}

	return sup, nil
}
