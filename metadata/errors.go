// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package metadata

import (
	"fmt"
	"net/http"
	"time"
)

// ErrRepository is the umbrella for every error that reflects a rejected
// remote claim rather than a local/programmer mistake. updater.go matches
// against it with errors.Is to decide "was this a trust-state rejection, or
// something else" without enumerating every concrete case.
type ErrRepository struct {
	Msg string
}

func (e ErrRepository) Error() string { return e.Msg }
func (e ErrRepository) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrValue signals a malformed or internally inconsistent value, e.g. a
// reference to a role or key that does not exist.
type ErrValue struct {
	Msg string
}

func (e ErrValue) Error() string { return e.Msg }

// ErrType signals that an operation was invoked on the wrong concrete type
// (e.g. VerifyDelegate called on a non-delegator metadata instance).
type ErrType struct {
	Msg string
}

func (e ErrType) Error() string { return e.Msg }

// ErrInvalidInitialRoot means the operator-supplied trusted root bytes failed
// self-verification at init time.
type ErrInvalidInitialRoot struct {
	Msg string
}

func (e ErrInvalidInitialRoot) Error() string { return fmt.Sprintf("invalid initial root: %s", e.Msg) }
func (e ErrInvalidInitialRoot) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrCanonicalEncoding means a value could not be serialized deterministically
// (non-finite number, non-UTF-8 string, non-string object key).
type ErrCanonicalEncoding struct {
	Msg string
}

func (e ErrCanonicalEncoding) Error() string { return fmt.Sprintf("canonical encoding: %s", e.Msg) }

// ErrUnsupportedKey means the (keytype, scheme) pair of a Key is not one this
// client knows how to verify.
type ErrUnsupportedKey struct {
	KeyType string
	Scheme  string
}

func (e ErrUnsupportedKey) Error() string {
	return fmt.Sprintf("unsupported key: keytype=%s scheme=%s", e.KeyType, e.Scheme)
}

// ErrUnsignedMetadata means a payload did not carry a quorum of valid
// signatures for its role; see also ErrInsufficientSignatures for the
// structured variant used by the trusted-set state machine.
type ErrUnsignedMetadata struct {
	Msg string
}

func (e ErrUnsignedMetadata) Error() string { return e.Msg }
func (e ErrUnsignedMetadata) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrInsufficientSignatures carries the threshold accounting for a rejected
// quorum check.
type ErrInsufficientSignatures struct {
	Role     string
	Got      int
	Required int
}

func (e ErrInsufficientSignatures) Error() string {
	return fmt.Sprintf("%s: got %d valid signatures, require %d", e.Role, e.Got, e.Required)
}
func (e ErrInsufficientSignatures) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrExpiredMetadata means a role's Expires is not after the refresh's
// reference time.
type ErrExpiredMetadata struct {
	Role      string
	ExpiredAt time.Time
}

func (e ErrExpiredMetadata) Error() string {
	return fmt.Sprintf("%s expired at %s", e.Role, e.ExpiredAt.Format(time.RFC3339))
}
func (e ErrExpiredMetadata) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrRollbackAttack means a role was offered at a version lower than the one
// already trusted.
type ErrRollbackAttack struct {
	Role            string
	TrustedVersion  int64
	OfferedVersion  int64
}

func (e ErrRollbackAttack) Error() string {
	return fmt.Sprintf("rollback attack on %s: trusted version %d, offered version %d", e.Role, e.TrustedVersion, e.OfferedVersion)
}
func (e ErrRollbackAttack) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrMixAndMatchViolation means two pieces of metadata referencing each other
// (e.g. timestamp/snapshot, snapshot/targets) disagree on which version is
// bound to which.
type ErrMixAndMatchViolation struct {
	Msg string
}

func (e ErrMixAndMatchViolation) Error() string { return e.Msg }
func (e ErrMixAndMatchViolation) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrVersionMismatch means a downloaded role's version did not equal the
// version its parent's meta entry declared.
type ErrVersionMismatch struct {
	Role     string
	Expected int64
	Got      int64
}

func (e ErrVersionMismatch) Error() string {
	return fmt.Sprintf("%s: expected version %d, got %d", e.Role, e.Expected, e.Got)
}
func (e ErrVersionMismatch) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrLengthOrHashMismatch means downloaded bytes did not match the recorded
// length or hash for a MetaFiles/TargetFiles entry.
type ErrLengthOrHashMismatch struct {
	Msg string
}

func (e ErrLengthOrHashMismatch) Error() string { return e.Msg }
func (e ErrLengthOrHashMismatch) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrTargetHashMismatch is the TargetFiles-specific variant carrying both
// digests for diagnostics.
type ErrTargetHashMismatch struct {
	Path     string
	Expected string
	Got      string
}

func (e ErrTargetHashMismatch) Error() string {
	return fmt.Sprintf("target %s hash mismatch: expected %s, got %s", e.Path, e.Expected, e.Got)
}
func (e ErrTargetHashMismatch) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrTargetLengthMismatch is the TargetFiles-specific variant carrying both
// lengths for diagnostics.
type ErrTargetLengthMismatch struct {
	Path     string
	Expected int64
	Got      int64
}

func (e ErrTargetLengthMismatch) Error() string {
	return fmt.Sprintf("target %s length mismatch: expected %d, got %d", e.Path, e.Expected, e.Got)
}
func (e ErrTargetLengthMismatch) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrOversizedResponse means a fetch would exceed the configured byte cap for
// its role.
type ErrOversizedResponse struct {
	Limit int64
}

func (e ErrOversizedResponse) Error() string {
	return fmt.Sprintf("response exceeded %d byte limit", e.Limit)
}

// ErrTargetNotFound means the delegation walk completed without finding a
// TargetFiles entry for the requested path.
type ErrTargetNotFound struct {
	Path string
}

func (e ErrTargetNotFound) Error() string { return fmt.Sprintf("target not found: %s", e.Path) }

// ErrMaxDelegationsExceeded means the pre-order walk's visited-role budget was
// exhausted before the target was found.
type ErrMaxDelegationsExceeded struct {
	Max int
}

func (e ErrMaxDelegationsExceeded) Error() string {
	return fmt.Sprintf("max delegations (%d) exceeded", e.Max)
}

// ErrDelegationLoop means the walk found a role delegating to a role name
// that is already in its own chain of ancestors. A role reached a second time
// through an unrelated parent is skipped, not reported with this error.
type ErrDelegationLoop struct {
	Role string
}

func (e ErrDelegationLoop) Error() string { return fmt.Sprintf("delegation loop detected at %s", e.Role) }
func (e ErrDelegationLoop) Is(target error) bool {
	_, ok := target.(ErrRepository)
	return ok
}

// ErrDownloadHTTP wraps a non-2xx HTTP response from a fetch.
type ErrDownloadHTTP struct {
	StatusCode int
	URL        string
}

func (e *ErrDownloadHTTP) Error() string {
	return fmt.Sprintf("failed to download %s, status %d (%s)", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// ErrFetchFailed wraps a fetcher error that exhausted its retry budget.
type ErrFetchFailed struct {
	URL   string
	Cause error
}

func (e *ErrFetchFailed) Error() string { return fmt.Sprintf("fetch %s failed: %v", e.URL, e.Cause) }
func (e *ErrFetchFailed) Unwrap() error { return e.Cause }

// ErrCancelled means the caller's cancellation signal fired before the
// operation completed.
type ErrCancelled struct {
	Msg string
}

func (e ErrCancelled) Error() string { return e.Msg }

// ErrConfigInvalid means a field of UpdaterConfig failed validation.
type ErrConfigInvalid struct {
	Field  string
	Reason string
}

func (e ErrConfigInvalid) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Reason)
}

// ErrEqualVersionNumber is a benign "no-op" signal, not a ErrRepository: it
// tells the caller a freshly downloaded timestamp matched the already
// trusted version and should be discarded silently.
type ErrEqualVersionNumber struct {
	Role    string
	Version int64
}

func (e ErrEqualVersionNumber) Error() string {
	return fmt.Sprintf("%s version %d is equal to the trusted version", e.Role, e.Version)
}
