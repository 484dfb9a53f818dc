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
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Roles is the generic type constraint satisfied by the four Signed payload
// types that can appear inside a Metadata envelope.
type Roles interface {
	RootType | SnapshotType | TimestampType | TargetsType
}

// SPECIFICATION_VERSION is the version of the TUF specification this client
// implements. Only the major component is checked for compatibility.
const SPECIFICATION_VERSION = "1.0.31"

// Top level role names.
const (
	ROOT      = "root"
	SNAPSHOT  = "snapshot"
	TARGETS   = "targets"
	TIMESTAMP = "timestamp"
	MIRRORS   = "mirrors"
)

// Key type/scheme pairs this client knows how to verify.
const (
	KeyTypeEd25519   = "ed25519"
	KeyTypeRSA       = "rsa"
	KeyTypeECDSA     = "ecdsa"
	KeySchemeEd25519 = "ed25519"
	KeySchemeRSAPSS  = "rsassa-pss-sha256"
	KeySchemeECDSA   = "ecdsa-sha2-nistp256"
)

// Hash algorithm names accepted in MetaFiles/TargetFiles hashes maps.
const (
	HashAlgoSHA256 = "sha256"
	HashAlgoSHA512 = "sha512"
)

// Default resource caps (spec.md §5), in bytes unless noted.
const (
	DefaultRootMaxLength      = 512 * 1024
	DefaultTimestampMaxLength = 16 * 1024
	DefaultSnapshotMaxLength  = 2 * 1024 * 1024
	DefaultTargetsMaxLength   = 5 * 1024 * 1024
	DefaultMaxRootRotations   = 32
	DefaultMaxDelegations     = 32
)

// Metadata represents a signed TUF metadata file: a Signed payload of one of
// the four role types, plus the detached Signatures that cover its canonical
// encoding.
type Metadata[T Roles] struct {
	Signed             T              `json:"signed"`
	Signatures         []Signature    `json:"signatures"`
	UnrecognizedFields map[string]any `json:"-"`
}

// MarshalJSON re-emits Signed/Signatures plus whatever UnrecognizedFields
// were captured at parse time, so a value round-trips byte-for-byte through
// re-serialization even when the wire object carried members this client
// doesn't model (spec.md §4.1).
func (meta Metadata[T]) MarshalJSON() ([]byte, error) {
	type alias Metadata[T]
	known, err := json.Marshal(alias(meta))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, meta.UnrecognizedFields)
}

// UnmarshalJSON decodes the known signed/signatures fields and stashes every
// other top-level member into UnrecognizedFields.
func (meta *Metadata[T]) UnmarshalJSON(data []byte) error {
	type alias Metadata[T]
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*meta = Metadata[T](a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	meta.UnrecognizedFields = extra
	return nil
}

// Signature is one entry of a metadata envelope's signatures list.
type Signature struct {
	KeyID              string         `json:"keyid"`
	Signature          HexBytes       `json:"sig"`
	UnrecognizedFields map[string]any `json:"-"`
}

// MarshalJSON re-emits KeyID/Signature plus any captured UnrecognizedFields.
func (s Signature) MarshalJSON() ([]byte, error) {
	type alias Signature
	known, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, s.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields.
func (s *Signature) UnmarshalJSON(data []byte) error {
	type alias Signature
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Signature(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	s.UnrecognizedFields = extra
	return nil
}

// RootType is the Signed portion of root metadata.
type RootType struct {
	Type               string           `json:"_type"`
	SpecVersion        string           `json:"spec_version"`
	ConsistentSnapshot bool             `json:"consistent_snapshot"`
	Version            int64            `json:"version"`
	Expires            time.Time        `json:"expires"`
	Keys               map[string]*Key  `json:"keys"`
	Roles              map[string]*Role `json:"roles"`
	UnrecognizedFields map[string]any   `json:"-"`
}

// MarshalJSON re-emits the known root fields plus any captured
// UnrecognizedFields.
func (r RootType) MarshalJSON() ([]byte, error) {
	type alias RootType
	known, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, r.UnrecognizedFields)
}

// UnmarshalJSON decodes the known root fields and stashes the rest into
// UnrecognizedFields.
func (r *RootType) UnmarshalJSON(data []byte) error {
	type alias RootType
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = RootType(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	r.UnrecognizedFields = extra
	return nil
}

// SnapshotType is the Signed portion of snapshot metadata.
type SnapshotType struct {
	Type               string               `json:"_type"`
	SpecVersion        string               `json:"spec_version"`
	Version            int64                `json:"version"`
	Expires            time.Time            `json:"expires"`
	Meta               map[string]MetaFiles `json:"meta"`
	UnrecognizedFields map[string]any       `json:"-"`
}

// MarshalJSON re-emits the known snapshot fields plus any captured
// UnrecognizedFields.
func (s SnapshotType) MarshalJSON() ([]byte, error) {
	type alias SnapshotType
	known, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, s.UnrecognizedFields)
}

// UnmarshalJSON decodes the known snapshot fields and stashes the rest into
// UnrecognizedFields.
func (s *SnapshotType) UnmarshalJSON(data []byte) error {
	type alias SnapshotType
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = SnapshotType(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	s.UnrecognizedFields = extra
	return nil
}

// TargetsType is the Signed portion of targets (and delegated targets)
// metadata.
type TargetsType struct {
	Type               string                 `json:"_type"`
	SpecVersion        string                 `json:"spec_version"`
	Version            int64                  `json:"version"`
	Expires            time.Time              `json:"expires"`
	Targets            map[string]TargetFiles `json:"targets"`
	Delegations        *Delegations           `json:"delegations,omitempty"`
	UnrecognizedFields map[string]any         `json:"-"`
}

// MarshalJSON re-emits the known targets fields plus any captured
// UnrecognizedFields.
func (t TargetsType) MarshalJSON() ([]byte, error) {
	type alias TargetsType
	known, err := json.Marshal(alias(t))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, t.UnrecognizedFields)
}

// UnmarshalJSON decodes the known targets fields and stashes the rest into
// UnrecognizedFields.
func (t *TargetsType) UnmarshalJSON(data []byte) error {
	type alias TargetsType
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = TargetsType(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	t.UnrecognizedFields = extra
	return nil
}

// TimestampType is the Signed portion of timestamp metadata.
type TimestampType struct {
	Type               string               `json:"_type"`
	SpecVersion        string               `json:"spec_version"`
	Version            int64                `json:"version"`
	Expires            time.Time            `json:"expires"`
	Meta               map[string]MetaFiles `json:"meta"`
	UnrecognizedFields map[string]any       `json:"-"`
}

// MarshalJSON re-emits the known timestamp fields plus any captured
// UnrecognizedFields.
func (t TimestampType) MarshalJSON() ([]byte, error) {
	type alias TimestampType
	known, err := json.Marshal(alias(t))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, t.UnrecognizedFields)
}

// UnmarshalJSON decodes the known timestamp fields and stashes the rest into
// UnrecognizedFields.
func (t *TimestampType) UnmarshalJSON(data []byte) error {
	type alias TimestampType
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = TimestampType(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	t.UnrecognizedFields = extra
	return nil
}

// Key represents a public key object as it appears in root/targets metadata.
// KeyID is derived lazily from the canonical encoding of (Type, Scheme,
// Value) and cached.
type Key struct {
	Type               string         `json:"keytype"`
	Scheme             string         `json:"scheme"`
	Value              KeyVal         `json:"keyval"`
	id                 string
	idOnce             sync.Once
	UnrecognizedFields map[string]any `json:"-"`
}

// MarshalJSON re-emits the known key fields plus any captured
// UnrecognizedFields. A pointer receiver is used (unlike the other types in
// this file) so marshaling never copies the idOnce cache.
func (k *Key) MarshalJSON() ([]byte, error) {
	type alias Key
	known, err := json.Marshal((*alias)(k))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, k.UnrecognizedFields)
}

// UnmarshalJSON decodes the known key fields and stashes the rest into
// UnrecognizedFields. Field-by-field assignment, rather than a whole-struct
// alias conversion, keeps the id/idOnce cache untouched by any prior state of
// k and never copies it.
func (k *Key) UnmarshalJSON(data []byte) error {
	var a struct {
		Type   string `json:"keytype"`
		Scheme string `json:"scheme"`
		Value  KeyVal `json:"keyval"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	k.Type = a.Type
	k.Scheme = a.Scheme
	k.Value = a.Value
	extra, err := extractUnrecognized(data, map[string]bool{"keytype": true, "scheme": true, "keyval": true})
	if err != nil {
		return err
	}
	k.UnrecognizedFields = extra
	return nil
}

// KeyVal carries the key material. Public is PEM for RSA/ECDSA and hex for
// ed25519, matching the upstream TUF metadata convention.
type KeyVal struct {
	PublicKey          string         `json:"public"`
	UnrecognizedFields map[string]any `json:"-"`
}

// MarshalJSON re-emits PublicKey plus any captured UnrecognizedFields.
func (v KeyVal) MarshalJSON() ([]byte, error) {
	type alias KeyVal
	known, err := json.Marshal(alias(v))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, v.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields.
func (v *KeyVal) UnmarshalJSON(data []byte) error {
	type alias KeyVal
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*v = KeyVal(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	v.UnrecognizedFields = extra
	return nil
}

// Role names the keys and threshold authorized to sign for a top-level role.
type Role struct {
	KeyIDs             []string       `json:"keyids"`
	Threshold          int            `json:"threshold"`
	UnrecognizedFields map[string]any `json:"-"`
}

// MarshalJSON re-emits KeyIDs/Threshold plus any captured
// UnrecognizedFields.
func (r Role) MarshalJSON() ([]byte, error) {
	type alias Role
	known, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, r.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields.
func (r *Role) UnmarshalJSON(data []byte) error {
	type alias Role
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Role(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	r.UnrecognizedFields = extra
	return nil
}

// HexBytes is a byte slice that marshals to/from lowercase hex JSON strings.
type HexBytes []byte

// Hashes maps a hash algorithm name to its hex digest.
type Hashes map[string]HexBytes

// MetaFiles is the value type of snapshot/timestamp "meta" maps: version plus
// optional length and hashes used to bound and verify the next download.
type MetaFiles struct {
	Length             int64          `json:"length,omitempty"`
	Hashes             Hashes         `json:"hashes,omitempty"`
	Version            int64          `json:"version"`
	UnrecognizedFields map[string]any `json:"-"`
}

// MarshalJSON re-emits the known fields plus any captured
// UnrecognizedFields. A value receiver is required here: MetaFiles is always
// stored by value in SnapshotType/TimestampType's Meta map, and map values
// are never addressable, so a pointer-receiver MarshalJSON would silently be
// skipped by encoding/json in favor of the default struct encoding.
func (f MetaFiles) MarshalJSON() ([]byte, error) {
	type alias MetaFiles
	known, err := json.Marshal(alias(f))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, f.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields.
func (f *MetaFiles) UnmarshalJSON(data []byte) error {
	type alias MetaFiles
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = MetaFiles(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	f.UnrecognizedFields = extra
	return nil
}

// TargetFiles is the value type of a targets role's "targets" map: length and
// hashes the client must verify downloaded bytes against, plus opaque custom
// metadata.
type TargetFiles struct {
	Length             int64            `json:"length"`
	Hashes             Hashes           `json:"hashes"`
	Custom             *json.RawMessage `json:"custom,omitempty"`
	Path               string           `json:"-"`
	UnrecognizedFields map[string]any   `json:"-"`
}

// MarshalJSON re-emits the known fields plus any captured
// UnrecognizedFields. A value receiver is required here for the same reason
// as MetaFiles.MarshalJSON: TargetFiles is stored by value in TargetsType's
// Targets map, whose values are never addressable.
func (f TargetFiles) MarshalJSON() ([]byte, error) {
	type alias TargetFiles
	known, err := json.Marshal(alias(f))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, f.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields. Path is deliberately left untouched: it is filled in by
// the delegation walk from the targets map key, never from the wire.
func (f *TargetFiles) UnmarshalJSON(data []byte) error {
	type alias TargetFiles
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	path := f.Path
	*f = TargetFiles(a)
	f.Path = path
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	f.UnrecognizedFields = extra
	return nil
}

// Delegations holds the keys and ordered list of delegated roles a targets
// metadata file authorizes.
type Delegations struct {
	Keys               map[string]*Key `json:"keys"`
	Roles              []DelegatedRole `json:"roles,omitempty"`
	UnrecognizedFields map[string]any  `json:"-"`
}

// MarshalJSON re-emits Keys/Roles plus any captured UnrecognizedFields.
func (d Delegations) MarshalJSON() ([]byte, error) {
	type alias Delegations
	known, err := json.Marshal(alias(d))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, d.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields.
func (d *Delegations) UnmarshalJSON(data []byte) error {
	type alias Delegations
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = Delegations(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	d.UnrecognizedFields = extra
	return nil
}

// DelegatedRole names a role a parent targets file delegates to, along with
// the path rule that governs which target paths it may speak for.
type DelegatedRole struct {
	Name               string         `json:"name"`
	KeyIDs             []string       `json:"keyids"`
	Threshold          int            `json:"threshold"`
	Terminating        bool           `json:"terminating"`
	PathHashPrefixes   []string       `json:"path_hash_prefixes,omitempty"`
	Paths              []string       `json:"paths,omitempty"`
	UnrecognizedFields map[string]any `json:"-"`
}

// MarshalJSON re-emits the known fields plus any captured
// UnrecognizedFields.
func (r DelegatedRole) MarshalJSON() ([]byte, error) {
	type alias DelegatedRole
	known, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, r.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields.
func (r *DelegatedRole) UnmarshalJSON(data []byte) error {
	type alias DelegatedRole
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = DelegatedRole(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	r.UnrecognizedFields = extra
	return nil
}

// Mirror describes one entry of an (optional) mirrors role.
type Mirror struct {
	URLBase            string         `json:"url_base"`
	MetaPath           string         `json:"metapath"`
	TargetsPath        string         `json:"targetspath"`
	MetaContent        []string       `json:"metacontent"`
	TargetsContent     []string       `json:"targetscontent"`
	Custom             *json.RawMessage `json:"custom,omitempty"`
	UnrecognizedFields map[string]any   `json:"-"`
}

// MarshalJSON re-emits the known fields plus any captured
// UnrecognizedFields.
func (m Mirror) MarshalJSON() ([]byte, error) {
	type alias Mirror
	known, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, m.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields.
func (m *Mirror) UnmarshalJSON(data []byte) error {
	type alias Mirror
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Mirror(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	m.UnrecognizedFields = extra
	return nil
}

// MirrorsType is the Signed portion of an (optional) mirrors metadata file.
// The refresh protocol does not consume it; it is modeled for completeness
// per spec.md §1 (mirror-role support is data-model-only, see DESIGN.md).
type MirrorsType struct {
	Type               string         `json:"_type"`
	SpecVersion        string         `json:"spec_version"`
	Version            int64          `json:"version"`
	Expires            time.Time      `json:"expires"`
	Mirrors            []Mirror       `json:"mirrors"`
	UnrecognizedFields map[string]any `json:"-"`
}

// MarshalJSON re-emits the known fields plus any captured
// UnrecognizedFields.
func (m MirrorsType) MarshalJSON() ([]byte, error) {
	type alias MirrorsType
	known, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	return mergeUnrecognized(known, m.UnrecognizedFields)
}

// UnmarshalJSON decodes the known fields and stashes the rest into
// UnrecognizedFields.
func (m *MirrorsType) UnmarshalJSON(data []byte) error {
	type alias MirrorsType
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = MirrorsType(a)
	extra, err := extractUnrecognized(data, jsonFieldNames(reflect.TypeOf(a)))
	if err != nil {
		return err
	}
	m.UnrecognizedFields = extra
	return nil
}

// IsValidRelativePath reports whether p satisfies the RelativePath contract
// of spec.md §3.1: non-empty, forward-slash separated, never rooted, and
// free of ".." segments.
func IsValidRelativePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
