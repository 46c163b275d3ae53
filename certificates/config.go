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

// Package certificates models the `tlsMaterial` of a Listening Options
// value (spec §3/§6): an in-memory PEM key/cert pair plus optional client
// CAs, turned into a *tls.Config at server construction time.
package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	libval "github.com/go-playground/validator/v10"

	liberr "github.com/nabbar/netserve/errors"
)

const (
	ErrorValidate liberr.CodeError = iota + liberr.MinPkgCerts
	ErrorKeyPairLoad
	ErrorRootCAAppend
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgCerts, func(code liberr.CodeError) string {
		switch code {
		case ErrorValidate:
			return "tls material config is not valid"
		case ErrorKeyPairLoad:
			return "cannot load PEM key/cert pair"
		case ErrorRootCAAppend:
			return "cannot append root CA to pool"
		}
		return ""
	})
}

// Config is the PEM-encoded material for a single listener, read once at
// construction and treated as immutable thereafter (spec §5).
type Config struct {
	Key  []byte `mapstructure:"key" json:"key" yaml:"key" toml:"key" validate:"required"`
	Cert []byte `mapstructure:"cert" json:"cert" yaml:"cert" toml:"cert" validate:"required"`

	// RootCA, when set, is loaded into a new, otherwise empty cert pool
	// used to validate client certificates (mutual TLS).
	RootCA []byte `mapstructure:"rootCA" json:"rootCA" yaml:"rootCA" toml:"rootCA"`

	// ClientAuth controls whether/how client certificates are requested.
	ClientAuth tls.ClientAuthType `mapstructure:"clientAuth" json:"clientAuth" yaml:"clientAuth" toml:"clientAuth"`

	MinVersion uint16 `mapstructure:"minVersion" json:"minVersion" yaml:"minVersion" toml:"minVersion"`
}

func (c *Config) IsEmpty() bool {
	return c == nil || len(c.Key) == 0 || len(c.Cert) == 0
}

func (c *Config) Validate() liberr.Error {
	if c.IsEmpty() {
		return nil
	}

	err := ErrorValidate.Error(nil)

	if e := libval.New().Struct(c); e != nil {
		if ve, ok := e.(libval.ValidationErrors); ok {
			for _, fe := range ve {
				//nolint goerr113
				err.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", fe.StructNamespace(), fe.ActualTag()))
			}
		} else {
			err.Add(e)
		}
	}

	if err.HasParent() {
		return err
	}
	return nil
}

// TLSConfig builds a *tls.Config from this material. Returns nil, nil when
// the material is empty (the caller should then run the listener in
// plaintext, e.g. a "ws" instead of "wss" listener).
func (c *Config) TLSConfig() (*tls.Config, liberr.Error) {
	if c.IsEmpty() {
		return nil, nil
	}

	pair, e := tls.X509KeyPair(c.Cert, c.Key)
	if e != nil {
		return nil, ErrorKeyPairLoad.Error(e)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{pair},
		ClientAuth:   c.ClientAuth,
		MinVersion:   c.MinVersion,
	}

	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}

	if len(c.RootCA) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(c.RootCA) {
			return nil, ErrorRootCAAppend.Error(nil)
		}
		cfg.ClientCAs = pool
	}

	return cfg, nil
}
