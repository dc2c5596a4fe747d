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

// Package errs holds the sentinel error taxonomy shared by every
// package in the assignment core. Components wrap these with
// github.com/pkg/errors at the call site so callers can both switch on
// the sentinel (errors.Is / errors.Cause) and read a human trail.
package errs

import "github.com/pkg/errors"

// Sentinel errors from the error-handling design (spec §7). Public
// APIs in this module return one of these, or wrap one, for the
// conditions below; other failures (for example a missing Prepare
// call or no live servers) are reported with plain errors.
var (
	// ErrCoordStoreUnavailable means the coordination store could not
	// be reached. Callers retry with backoff; persistent failure means
	// the Master yields its master node and exits.
	ErrCoordStoreUnavailable = errors.New("coord-store unavailable")

	// ErrCatalogUnavailable means the catalog tables could not be
	// read or written. Retried; surfaces as an operation timeout to
	// the admin caller if retries are exhausted.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrRegionServerUnreachable means an RPC to a RegionServer could
	// not be delivered. Treated as possibly-dead; a transition timeout
	// will re-drive assignment.
	ErrRegionServerUnreachable = errors.New("region server unreachable")

	// ErrBadVersion is returned by a CAS write whose expected version
	// no longer matches. The caller must reconcile from the current
	// state and must never blindly overwrite it.
	ErrBadVersion = errors.New("bad version")

	// ErrNotFound is returned when a coord-store path or catalog row
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNodeExists is returned by create() when the path already
	// exists.
	ErrNodeExists = errors.New("node exists")

	// ErrInvalidTransition means a caller attempted a state
	// transition the authoritative rules do not allow (for example a
	// RegionServer other than the Master forcing CLOSED -> OPENING).
	// It is a hard error; the offending operation is abandoned.
	ErrInvalidTransition = errors.New("invalid region state transition")

	// ErrSessionExpired means the coord-store session backing this
	// component's ephemeral nodes and watches was lost. The component
	// must stop touching the coord-store and restart once a new
	// session is established.
	ErrSessionExpired = errors.New("coord-store session expired")

	// ErrSplitPointInvalid means a requested split row was not
	// strictly inside the parent region's range.
	ErrSplitPointInvalid = errors.New("split row not strictly inside region range")

	// ErrPastPointOfNoReturn means a split transaction failed after
	// its catalog commit step; rollback is impossible and the caller
	// must abort the process instead of retrying locally.
	ErrPastPointOfNoReturn = errors.New("split failed past point of no return")
)

// IsBadVersion reports whether err is, or wraps, ErrBadVersion.
func IsBadVersion(err error) bool {
	return errors.Is(err, ErrBadVersion)
}

// IsSessionExpired reports whether err is, or wraps, ErrSessionExpired.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
