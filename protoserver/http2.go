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

package protoserver

import (
	"net/http"

	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/metrics"
)

// NewHTTP2 is NewHTTP with opt.Protocol forced to http2: with TLS material
// Start configures golang.org/x/net/http2 on top of the TLS listener
// (spec §6), grounded on nabbar-golib/httpserver/server.go's
// http2.ConfigureServer call; without it Start serves cleartext HTTP/2
// (h2c) alongside HTTP/1.1.
func NewHTTP2(opt Options, handler http.Handler, reg *metrics.Registry, log logger.Logger) *HTTPServer {
	opt.Protocol = ProtocolHTTP2
	return NewHTTP(opt, handler, reg, log)
}
