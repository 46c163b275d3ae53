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

package paramsource

import (
	"github.com/gin-gonic/gin"
)

// GinCarrier adapts a *gin.Context into a Carrier for the HTTP protocol
// server. The decoded body is resolved lazily, once, via bodyFn so routes
// that never declare a Body/Combined Descriptor pay nothing for it.
type GinCarrier struct {
	c      *gin.Context
	bodyFn func(*gin.Context) (map[string]interface{}, error)

	decoded    map[string]interface{}
	decodeDone bool
	decodeErr  error
}

// NewGinCarrier wraps c. bodyFn decodes the request body into a field map;
// pass nil when no route behind this carrier ever binds from Body/Combined.
func NewGinCarrier(c *gin.Context, bodyFn func(*gin.Context) (map[string]interface{}, error)) *GinCarrier {
	return &GinCarrier{c: c, bodyFn: bodyFn}
}

func (g *GinCarrier) Header(name string) (string, bool) {
	v := g.c.GetHeader(name)
	return v, v != ""
}

func (g *GinCarrier) Path(name string) (string, bool) {
	return g.c.Params.Get(name)
}

func (g *GinCarrier) Query(name string) (string, bool) {
	return g.c.GetQuery(name)
}

func (g *GinCarrier) body() (map[string]interface{}, bool) {
	if g.decodeDone {
		return g.decoded, g.decodeErr == nil
	}
	g.decodeDone = true
	if g.bodyFn == nil {
		return nil, false
	}
	g.decoded, g.decodeErr = g.bodyFn(g.c)
	return g.decoded, g.decodeErr == nil
}

func (g *GinCarrier) BodyField(name string) (interface{}, bool) {
	m, ok := g.body()
	if !ok {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}

func (g *GinCarrier) BodyAll() (interface{}, bool) {
	m, ok := g.body()
	if !ok {
		return nil, false
	}
	return m, true
}

func (g *GinCarrier) File(name string) (interface{}, bool) {
	fh, err := g.c.FormFile(name)
	if err != nil || fh == nil {
		return nil, false
	}
	return fh, true
}
