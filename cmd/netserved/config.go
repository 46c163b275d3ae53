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

package main

import (
	"fmt"
	"time"

	"github.com/nabbar/netserve/certificates"
	"github.com/nabbar/netserve/protoserver"
)

// ListenConfig is one file/flag-bound entry of the application's
// "listen" list, the on-disk shape viper decodes before it is turned
// into a protoserver.Options.
type ListenConfig struct {
	Protocol          string               `mapstructure:"protocol" json:"protocol" yaml:"protocol" toml:"protocol" validate:"required,oneof=http https http2 grpc ws wss"`
	Hostname          string               `mapstructure:"hostname" json:"hostname" yaml:"hostname" toml:"hostname"`
	Port              uint16               `mapstructure:"port" json:"port" yaml:"port" toml:"port" validate:"required"`
	MaxConnections    int                  `mapstructure:"maxConnections" json:"maxConnections" yaml:"maxConnections" toml:"maxConnections"`
	ConnectionTimeout time.Duration        `mapstructure:"connectionTimeout" json:"connectionTimeout" yaml:"connectionTimeout" toml:"connectionTimeout"`
	KeepAliveTimeout  time.Duration        `mapstructure:"keepAliveTimeout" json:"keepAliveTimeout" yaml:"keepAliveTimeout" toml:"keepAliveTimeout"`
	TLS               *certificates.Config `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`
}

// AppConfig is the full on-disk/flag-bound configuration this binary
// loads via viper (spec's "config-file loading" non-goal names the
// application's own DI/config framework as out of scope, not this
// demo binary's own bootstrap).
type AppConfig struct {
	Name   string         `mapstructure:"name" json:"name" yaml:"name" toml:"name"`
	Listen []ListenConfig `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen"`
}

func (l ListenConfig) toOptions() (protoserver.Options, error) {
	p := protoserver.Protocol(l.Protocol)

	opt := protoserver.Options{
		Protocol:          p,
		Hostname:          l.Hostname,
		Port:              l.Port,
		MaxConnections:    l.MaxConnections,
		ConnectionTimeout: l.ConnectionTimeout,
		KeepAliveTimeout:  l.KeepAliveTimeout,
		TLSMaterial:       l.TLS,
	}

	switch p {
	case protoserver.ProtocolHTTPS, protoserver.ProtocolWSS:
		if opt.TLSMaterial.IsEmpty() {
			return opt, fmt.Errorf("listen entry %s:%d requires tls material", l.Protocol, l.Port)
		}
	}

	return opt, nil
}
