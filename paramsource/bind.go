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
	"strings"

	liberr "github.com/nabbar/netserve/errors"
)

// Carrier abstracts the inbound call enough for Bind to pull values out of
// it without depending on any one protocol. A protocol server adapts its
// native request type (gin.Context, gRPC metadata + unmarshalled body, a WS
// upgrade request) into a Carrier once per call.
type Carrier interface {
	Header(name string) (string, bool)
	Path(name string) (string, bool)
	Query(name string) (string, bool)
	// BodyField resolves a single named field out of the decoded body,
	// used by Descriptors with Source == Body and a non-empty Name.
	BodyField(name string) (interface{}, bool)
	// BodyAll returns the whole decoded body, used by Source == Body /
	// Combined Descriptors with an empty Name.
	BodyAll() (interface{}, bool)
	File(name string) (interface{}, bool)
}

// Result is the positional, resolved argument list for one route's
// Descriptor list, in declaration order.
type Result struct {
	Values []interface{}
}

// Bind resolves and validates every Descriptor against carrier, in order.
// It returns on the first failing Descriptor: the re-architected dispatcher
// has no use for partially bound arguments.
func Bind(carrier Carrier, descriptors []Descriptor) (Result, liberr.Error) {
	res := Result{Values: make([]interface{}, 0, len(descriptors))}

	for _, d := range descriptors {
		v, found, err := resolve(carrier, d)
		if err != nil {
			return Result{}, err
		}

		if !found {
			if d.Required || (d.Validator != "" && requiresPresence(d.Validator)) {
				return Result{}, ErrorMissingRequired.Error(nil)
			}
			res.Values = append(res.Values, nil)
			continue
		}

		if verr := d.validate(v); verr != nil {
			return Result{}, verr
		}

		res.Values = append(res.Values, v)
	}

	return res, nil
}

func resolve(carrier Carrier, d Descriptor) (interface{}, bool, liberr.Error) {
	switch d.Source {
	case Header:
		v, ok := carrier.Header(d.Name)
		return v, ok, nil
	case Path:
		v, ok := carrier.Path(d.Name)
		return v, ok, nil
	case Query:
		v, ok := carrier.Query(d.Name)
		return v, ok, nil
	case Body:
		if d.Name == "" {
			v, ok := carrier.BodyAll()
			return v, ok, nil
		}
		v, ok := carrier.BodyField(d.Name)
		return v, ok, nil
	case File:
		v, ok := carrier.File(d.Name)
		return v, ok, nil
	case Combined:
		return resolveCombined(carrier, d)
	default:
		return nil, false, ErrorUnknownSource.Error(nil)
	}
}

// resolveCombined merges path, query, and body under one key. Path always
// wins (it identifies the resource, not a value the caller is free to
// repeat elsewhere). Between query and body, the default is post-wins
// (body overrides query), per spec §9 Open Question #1; d.QueryOverridesBody
// flips that precedence for routes that need it.
func resolveCombined(carrier Carrier, d Descriptor) (interface{}, bool, liberr.Error) {
	if d.Name == "" {
		all, ok := carrier.BodyAll()
		return all, ok, nil
	}
	if v, ok := carrier.Path(d.Name); ok {
		return v, true, nil
	}

	query, hasQuery := carrier.Query(d.Name)
	body, hasBody := carrier.BodyField(d.Name)

	if d.QueryOverridesBody {
		if hasQuery {
			return query, true, nil
		}
		if hasBody {
			return body, true, nil
		}
		return nil, false, nil
	}

	if hasBody {
		return body, true, nil
	}
	if hasQuery {
		return query, true, nil
	}
	return nil, false, nil
}

func requiresPresence(tag string) bool {
	for _, part := range strings.Split(tag, ",") {
		if part == "required" {
			return true
		}
	}
	return false
}
