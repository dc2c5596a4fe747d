// Copyright 2016 The regionmaster Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ServerName identifies one incarnation of a RegionServer process:
// host:port:startCode. A restarted process at the same host:port is a
// different ServerName because its startCode changes.
type ServerName struct {
	Host      string
	Port      int
	StartCode int64
}

// NewServerName builds a ServerName from its parts.
func NewServerName(host string, port int, startCode int64) ServerName {
	return ServerName{Host: host, Port: port, StartCode: startCode}
}

// String renders "host:port:startCode", the canonical coord-store
// child name under /rs.
func (s ServerName) String() string {
	return fmt.Sprintf("%s:%d:%d", s.Host, s.Port, s.StartCode)
}

// ParseServerName parses the String() form back into a ServerName.
func ParseServerName(s string) (ServerName, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ServerName{}, errors.Errorf("malformed server name %q", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return ServerName{}, errors.Wrapf(err, "malformed port in server name %q", s)
	}
	startCode, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ServerName{}, errors.Wrapf(err, "malformed start code in server name %q", s)
	}
	return ServerName{Host: parts[0], Port: port, StartCode: startCode}, nil
}

// IsZero reports whether s is the zero value (no server named).
func (s ServerName) IsZero() bool {
	return s == ServerName{}
}
