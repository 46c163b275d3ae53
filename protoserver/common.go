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

// Package protoserver is the Protocol Servers layer (component C7): one
// listener per supported protocol (HTTP/1.1, HTTPS, HTTP/2, gRPC, WS/WSS),
// each wiring a connpool adapter (C4), the tracing/dispatch wrapper (C6),
// and a standard shutdown step sequence (C5/§4.5) around the protocol's
// own listen/accept loop.
package protoserver

import (
	"sync/atomic"
	"time"

	"github.com/nabbar/netserve/certificates"
)

// Protocol names a supported listener kind (spec §6's Listening Options).
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolHTTP2 Protocol = "http2"
	ProtocolGRPC  Protocol = "grpc"
	ProtocolWS    Protocol = "ws"
	ProtocolWSS   Protocol = "wss"
)

// Options is one Listening Options value (spec §6).
type Options struct {
	Protocol          Protocol
	Hostname          string
	Port              uint16
	TLSMaterial       *certificates.Config
	MaxConnections    int
	ConnectionTimeout time.Duration
	KeepAliveTimeout  time.Duration
	ProtocolSpecific  map[string]interface{}
}

const (
	DefaultMaxConnections    = 1000
	DefaultConnectionTimeout = 30 * time.Second
	DefaultKeepAliveTimeout  = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.ConnectionTimeout <= 0 {
		o.ConnectionTimeout = DefaultConnectionTimeout
	}
	if o.KeepAliveTimeout <= 0 {
		o.KeepAliveTimeout = DefaultKeepAliveTimeout
	}
	return o
}

// drainFlag is the server-draining gate consulted by the tracing wrapper
// (spec §4.3's drain code) and flipped by the first shutdown step.
type drainFlag struct {
	v atomic.Bool
}

func (d *drainFlag) set()        { d.v.Store(true) }
func (d *drainFlag) isDraining() bool { return d.v.Load() }

// Server is the uniform contract the supervisor (C8) drives across every
// protocol (spec §4.4).
type Server interface {
	Start() error
	Stop() error
	Options() Options
	Native() interface{}
}
