/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package errors

import "strconv"

// CodeError is a numeric error classification, similar in spirit to an
// HTTP status code. Each package of this module reserves a contiguous
// range of codes (see the Min* constants below) and registers its own
// message function via RegisterIdFctMessage.
type CodeError uint16

const (
	UnknownError CodeError = 0
	UnknownMsg             = "unknown error"
)

// Per-package code ranges. Only the ranges this module actually uses are
// declared; the scheme leaves room to grow without colliding.
const (
	MinPkgConnPool   CodeError = 100
	MinPkgShutdown   CodeError = 200
	MinPkgTrace      CodeError = 300
	MinPkgProtoSrv   CodeError = 400
	MinPkgSupervisor CodeError = 500
	MinPkgParamSrc   CodeError = 600
	MinPkgMetrics    CodeError = 700
	MinPkgCerts      CodeError = 800
)

var idMsgFct = make(map[CodeError]func(CodeError) string)

// RegisterIdFctMessage registers the message function for every code in the
// half-open range [start, next-package-start) — callers pass the first
// (lowest) constant of their own block as start; the function itself decides
// what to return per code via a switch.
func RegisterIdFctMessage(start CodeError, f func(CodeError) string) {
	idMsgFct[start] = f
}

func (c CodeError) Uint16() uint16 {
	return uint16(c)
}

func (c CodeError) String() string {
	return strconv.Itoa(int(c))
}

// Message resolves the human-readable text for this code by scanning
// registered package ranges in descending order and delegating to the
// first one at or below this code.
func (c CodeError) Message() string {
	if c == UnknownError {
		return UnknownMsg
	}

	var (
		best  CodeError
		found bool
	)

	for start := range idMsgFct {
		if c >= start && (!found || start > best) {
			best = start
			found = true
		}
	}

	if !found {
		return UnknownMsg
	}

	if m := idMsgFct[best](c); m != "" {
		return m
	}

	return UnknownMsg
}

// Error builds a new Error carrying this code, its registered message, and
// the given parents.
func (c CodeError) Error(parent ...error) Error {
	return New(c.Uint16(), c.Message(), parent...)
}

// Errorf is like Error but formats the registered message with args.
func (c CodeError) Errorf(args ...interface{}) Error {
	return New(c.Uint16(), sprintfSafe(c.Message(), args...))
}
