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

// Package paramsource is the exposed extension point between a protocol
// dispatcher and the external handler pipeline (component C9): each route
// declares an ordered list of parameter Descriptors; Bind resolves and
// validates their values from a Carrier at request time. There is no
// reflection-based, decorator-style registration: descriptors are plain
// data, registered explicitly by whoever wires the route.
package paramsource

import (
	"fmt"

	libval "github.com/go-playground/validator/v10"

	liberr "github.com/nabbar/netserve/errors"
)

const (
	ErrorMissingRequired liberr.CodeError = iota + liberr.MinPkgParamSrc
	ErrorUnknownSource
	ErrorValidation
	ErrorConvert
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgParamSrc, func(code liberr.CodeError) string {
		switch code {
		case ErrorMissingRequired:
			return "required parameter is missing"
		case ErrorUnknownSource:
			return "descriptor names an unknown source"
		case ErrorValidation:
			return "parameter value fails validation"
		case ErrorConvert:
			return "parameter value cannot be converted to the requested type"
		}
		return ""
	})
}

// Source is where a Descriptor's value is read from on the inbound call.
type Source uint8

const (
	Header Source = iota
	Path
	Query
	Body
	File
	// Combined merges Path, Query and Body under one key: Path always
	// wins; between Query and Body the default is post-wins (Body
	// overrides Query), overridable per Descriptor via
	// QueryOverridesBody.
	Combined
)

func (s Source) String() string {
	switch s {
	case Header:
		return "HEADER"
	case Path:
		return "PATH"
	case Query:
		return "QUERY"
	case Body:
		return "BODY"
	case File:
		return "FILE"
	case Combined:
		return "COMBINED"
	default:
		return "UNKNOWN"
	}
}

// Descriptor is one parameter a handler declares, in the order the handler
// expects its arguments (spec §9's re-architecture of decorator-based
// parameter binding into explicit, reflection-free registration).
type Descriptor struct {
	Source Source
	// Name is the header/path/query key or body field name; empty for
	// Body and Combined where the whole payload is bound.
	Name string
	// Validator is a validator/v10 tag string ("required,email") applied
	// to the resolved value. Empty means no validation beyond presence.
	Validator string
	// DTOType is a zero-value instance of the target Go type, carried for
	// the caller; Bind does not read it (presence is decided by Required
	// and by a "required" entry in Validator only).
	DTOType interface{}
	// Required, when true, fails binding if the source yields no value,
	// independent of any validator tag.
	Required bool
	// QueryOverridesBody flips a Combined descriptor's query/body
	// collision precedence from the default post-wins (body overrides
	// query) to query-wins, per route (spec §9 Open Question #1).
	QueryOverridesBody bool
}

func (d Descriptor) validate(value interface{}) liberr.Error {
	if d.Validator == "" {
		return nil
	}

	e := libval.New().Var(value, d.Validator)
	if e == nil {
		return nil
	}

	err := ErrorValidation.Error(nil)
	if ve, ok := e.(libval.ValidationErrors); ok {
		for _, fe := range ve {
			//nolint goerr113
			err.Add(fmt.Errorf("parameter '%s' fails constraint '%s'", d.Name, fe.ActualTag()))
		}
	} else {
		err.Add(e)
	}
	return err
}
