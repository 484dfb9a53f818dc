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
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/sigstore/sigstore/pkg/signature"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Root returns a new Metadata[RootType] with sensible zero values: empty key
// and role maps, threshold 1 for every top-level role, consistent snapshots
// on.
func Root(expires ...time.Time) *Metadata[RootType] {
	if len(expires) == 0 {
		expires = []time.Time{time.Now().UTC()}
	}
	roles := map[string]*Role{}
	for _, r := range []string{ROOT, SNAPSHOT, TARGETS, TIMESTAMP} {
		roles[r] = &Role{
			KeyIDs:    []string{},
			Threshold: 1,
		}
	}
	log.Debugf("Created a metadata of type %s expiring at %s\n", ROOT, expires[0])
	return &Metadata[RootType]{
		Signed: RootType{
			Type:               ROOT,
			SpecVersion:        SPECIFICATION_VERSION,
			Version:            1,
			Expires:            expires[0],
			Keys:               map[string]*Key{},
			Roles:              roles,
			ConsistentSnapshot: true,
		},
		Signatures: []Signature{},
	}
}

// Snapshot returns a new Metadata[SnapshotType] with a targets.json meta
// entry at version 1.
func Snapshot(expires ...time.Time) *Metadata[SnapshotType] {
	if len(expires) == 0 {
		expires = []time.Time{time.Now().UTC()}
	}
	log.Debugf("Created a metadata of type %s expiring at %s\n", SNAPSHOT, expires[0])
	return &Metadata[SnapshotType]{
		Signed: SnapshotType{
			Type:        SNAPSHOT,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires[0],
			Meta: map[string]MetaFiles{
				"targets.json": {Version: 1},
			},
		},
		Signatures: []Signature{},
	}
}

// Timestamp returns a new Metadata[TimestampType] with a snapshot.json meta
// entry at version 1.
func Timestamp(expires ...time.Time) *Metadata[TimestampType] {
	if len(expires) == 0 {
		expires = []time.Time{time.Now().UTC()}
	}
	log.Debugf("Created a metadata of type %s expiring at %s\n", TIMESTAMP, expires[0])
	return &Metadata[TimestampType]{
		Signed: TimestampType{
			Type:        TIMESTAMP,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires[0],
			Meta: map[string]MetaFiles{
				"snapshot.json": {Version: 1},
			},
		},
		Signatures: []Signature{},
	}
}

// Targets returns a new Metadata[TargetsType] with no targets or delegations.
func Targets(expires ...time.Time) *Metadata[TargetsType] {
	if len(expires) == 0 {
		expires = []time.Time{time.Now().UTC()}
	}
	log.Debugf("Created a metadata of type %s expiring at %s\n", TARGETS, expires[0])
	return &Metadata[TargetsType]{
		Signed: TargetsType{
			Type:        TARGETS,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires[0],
			Targets:     map[string]TargetFiles{},
		},
		Signatures: []Signature{},
	}
}

// TargetFile returns a zero-value TargetFiles, for callers building one up
// field by field.
func TargetFile() *TargetFiles {
	return &TargetFiles{
		Length: 0,
		Hashes: Hashes{},
	}
}

// MetaFile returns a zero-value MetaFiles at the given version (coerced to 1
// if version is not positive).
func MetaFile(version int64) *MetaFiles {
	if version < 1 {
		log.Debugf("Attempting to set incorrect version of %d for MetaFile\n", version)
		version = 1
	}
	return &MetaFiles{
		Length:  0,
		Hashes:  Hashes{},
		Version: version,
	}
}

// FromFile loads metadata from a local file.
func (meta *Metadata[T]) FromFile(name string) (*Metadata[T], error) {
	in, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	m, err := fromBytes[T](data)
	if err != nil {
		return nil, err
	}
	*meta = *m
	log.Debugf("Loaded metadata from file %s\n", name)
	return meta, nil
}

// FromBytes deserializes metadata from bytes, rejecting a type mismatch and
// dropping duplicate-keyid signatures (the first one for each keyid is kept).
func (meta *Metadata[T]) FromBytes(data []byte) (*Metadata[T], error) {
	m, err := fromBytes[T](data)
	if err != nil {
		return nil, err
	}
	*meta = *m
	log.Debug("Loaded metadata from bytes")
	return meta, nil
}

// ToBytes serializes metadata to (non-canonical, general-purpose) JSON bytes
// suitable for writing to the cache or the wire.
func (meta *Metadata[T]) ToBytes(pretty bool) ([]byte, error) {
	log.Debug("Writing metadata to bytes")
	if pretty {
		return json.MarshalIndent(*meta, "", "\t")
	}
	return json.Marshal(*meta)
}

// ToFile saves metadata to a local file.
func (meta *Metadata[T]) ToFile(name string, pretty bool) error {
	log.Debugf("Writing metadata to file %s\n", name)
	data, err := meta.ToBytes(pretty)
	if err != nil {
		return err
	}
	return os.WriteFile(name, data, 0644)
}

// Sign computes a signature over the canonical encoding of Signed using
// signer, appends it to Signatures, and returns it.
func (meta *Metadata[T]) Sign(signer signature.Signer) (*Signature, error) {
	payload, err := CanonicalBytes(meta.Signed)
	if err != nil {
		return nil, err
	}
	sb, err := signer.SignMessage(bytes.NewReader(payload))
	if err != nil {
		return nil, ErrUnsignedMetadata{Msg: "problem signing metadata"}
	}
	publ, err := signer.PublicKey()
	if err != nil {
		return nil, err
	}
	key, err := KeyFromPublicKey(publ)
	if err != nil {
		return nil, err
	}
	sig := &Signature{
		KeyID:     key.ID(),
		Signature: sb,
	}
	meta.Signatures = append(meta.Signatures, *sig)
	log.Infof("Signed metadata with key ID: %s\n", key.ID())
	return sig, nil
}

// signedBytesOf returns the canonical encoding of delegatedMetadata's Signed
// field and its signatures list, regardless of concrete role type.
func signedBytesOf(delegatedMetadata any) ([]byte, []Signature, error) {
	switch d := delegatedMetadata.(type) {
	case *Metadata[RootType]:
		b, err := CanonicalBytes(d.Signed)
		return b, d.Signatures, err
	case *Metadata[SnapshotType]:
		b, err := CanonicalBytes(d.Signed)
		return b, d.Signatures, err
	case *Metadata[TimestampType]:
		b, err := CanonicalBytes(d.Signed)
		return b, d.Signatures, err
	case *Metadata[TargetsType]:
		b, err := CanonicalBytes(d.Signed)
		return b, d.Signatures, err
	default:
		return nil, nil, ErrType{Msg: "unknown delegated metadata type"}
	}
}

// VerifyDelegate verifies that delegatedMetadata carries a quorum of valid
// signatures for delegatedRole, where meta is the delegator (root, for
// top-level roles; a targets metadata, for delegated roles).
func (meta *Metadata[T]) VerifyDelegate(delegatedRole string, delegatedMetadata any) error {
	var keys map[string]*Key
	var roleKeyIDs []string
	var roleThreshold int
	i := any(meta)
	log.Debugf("Verifying %s\n", delegatedRole)
	switch i := i.(type) {
	case *Metadata[RootType]:
		keys = i.Signed.Keys
		if role, ok := i.Signed.Roles[delegatedRole]; ok {
			roleKeyIDs = role.KeyIDs
			roleThreshold = role.Threshold
		} else {
			return ErrValue{Msg: fmt.Sprintf("no delegation found for %s", delegatedRole)}
		}
	case *Metadata[TargetsType]:
		if i.Signed.Delegations == nil {
			return ErrValue{Msg: fmt.Sprintf("no delegation found for %s", delegatedRole)}
		}
		keys = i.Signed.Delegations.Keys
		for _, v := range i.Signed.Delegations.Roles {
			if v.Name == delegatedRole {
				roleKeyIDs = v.KeyIDs
				roleThreshold = v.Threshold
				break
			}
		}
	default:
		return ErrType{Msg: "call is valid only on delegator metadata (should be either root or targets)"}
	}
	if len(roleKeyIDs) == 0 {
		return ErrValue{Msg: fmt.Sprintf("no delegation found for %s", delegatedRole)}
	}

	payload, sigs, err := signedBytesOf(delegatedMetadata)
	if err != nil {
		return err
	}
	sigByKeyID := map[string]Signature{}
	for _, s := range sigs {
		sigByKeyID[s.KeyID] = s
	}

	signingKeys := map[string]bool{}
	for _, keyID := range roleKeyIDs {
		key, ok := keys[keyID]
		if !ok {
			log.Debugf("Role %s lists unknown keyID %s\n", delegatedRole, keyID)
			continue
		}
		sig, ok := sigByKeyID[keyID]
		if !ok {
			continue
		}
		if err := VerifySignature(key, payload, sig.Signature); err != nil {
			log.Debugf("Failed to verify %s with key ID %s: %v\n", delegatedRole, keyID, err)
			continue
		}
		signingKeys[keyID] = true
		log.Debugf("Verified %s with key ID %s\n", delegatedRole, keyID)
	}
	if len(signingKeys) < roleThreshold {
		log.Infof("Verifying %s failed, not enough signatures, got %d, want %d\n", delegatedRole, len(signingKeys), roleThreshold)
		return ErrInsufficientSignatures{Role: delegatedRole, Got: len(signingKeys), Required: roleThreshold}
	}
	log.Infof("Verified %s successfully\n", delegatedRole)
	return nil
}

// IsExpired returns true if Signed.Expires is not after referenceTime.
func (signed *RootType) IsExpired(referenceTime time.Time) bool {
	return !signed.Expires.After(referenceTime)
}

// IsExpired returns true if Signed.Expires is not after referenceTime.
func (signed *SnapshotType) IsExpired(referenceTime time.Time) bool {
	return !signed.Expires.After(referenceTime)
}

// IsExpired returns true if Signed.Expires is not after referenceTime.
func (signed *TimestampType) IsExpired(referenceTime time.Time) bool {
	return !signed.Expires.After(referenceTime)
}

// IsExpired returns true if Signed.Expires is not after referenceTime.
func (signed *TargetsType) IsExpired(referenceTime time.Time) bool {
	return !signed.Expires.After(referenceTime)
}

// VerifyLengthHashes checks that data matches f's recorded length and hashes.
// Both are optional for MetaFiles: an absent field is not checked.
func (f *MetaFiles) VerifyLengthHashes(data []byte) error {
	if len(f.Hashes) > 0 {
		if err := verifyHashes(data, f.Hashes); err != nil {
			return err
		}
	}
	if f.Length != 0 {
		if err := verifyLength(data, f.Length); err != nil {
			return err
		}
	}
	return nil
}

// VerifyLengthHashes checks that data matches f's recorded length and
// hashes. Both are mandatory for TargetFiles. Unlike MetaFiles'
// VerifyLengthHashes, a mismatch here returns the TargetFiles-specific,
// path-carrying ErrTargetLengthMismatch/ErrTargetHashMismatch rather than the
// generic ErrLengthOrHashMismatch, so callers can pattern-match on which
// dimension failed (spec.md §7, §8 scenario 5).
func (f *TargetFiles) VerifyLengthHashes(data []byte) error {
	if int64(len(data)) != f.Length {
		return ErrTargetLengthMismatch{Path: f.Path, Expected: f.Length, Got: int64(len(data))}
	}
	var hasher hash.Hash
	for algo, want := range f.Hashes {
		switch algo {
		case HashAlgoSHA256:
			hasher = sha256.New()
		case HashAlgoSHA512:
			hasher = sha512.New()
		default:
			return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("hash verification failed - unknown hashing algorithm - %s", algo)}
		}
		hasher.Write(data)
		got := hasher.Sum(nil)
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return ErrTargetHashMismatch{Path: f.Path, Expected: hex.EncodeToString(want), Got: hex.EncodeToString(got)}
		}
	}
	return nil
}

// FromFile populates a TargetFiles by hashing the content of localPath.
func (t *TargetFiles) FromFile(localPath string, hashes ...string) (*TargetFiles, error) {
	log.Debugf("Generating target file from file %s\n", localPath)
	in, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	return t.FromBytes(localPath, data, hashes...)
}

// FromBytes populates a TargetFiles by hashing data.
func (t *TargetFiles) FromBytes(localPath string, data []byte, hashes ...string) (*TargetFiles, error) {
	log.Debugf("Generating target file from bytes %s\n", localPath)
	var hasher hash.Hash
	targetFile := &TargetFiles{
		Hashes: map[string]HexBytes{},
	}
	if len(hashes) == 0 {
		hashes = []string{HashAlgoSHA256}
	}
	targetFile.Length = int64(len(data))
	for _, v := range hashes {
		switch v {
		case HashAlgoSHA256:
			hasher = sha256.New()
		case HashAlgoSHA512:
			hasher = sha512.New()
		default:
			return nil, ErrValue{Msg: fmt.Sprintf("failed generating TargetFile - unsupported hashing algorithm - %s", v)}
		}
		if _, err := hasher.Write(data); err != nil {
			return nil, err
		}
		targetFile.Hashes[v] = hasher.Sum(nil)
	}
	targetFile.Path = localPath
	return targetFile, nil
}

// ClearSignatures empties Signatures, e.g. before re-signing after an edit.
func (meta *Metadata[T]) ClearSignatures() {
	log.Debug("Cleared signatures")
	meta.Signatures = []Signature{}
}

// IsDelegatedPath reports whether targetFilepath matches any of role's Paths
// patterns. Patterns are shell-style, '/'-separated; "*" matches within one
// segment, "**" matches across segments, "?" matches a single character
// (spec.md §4.6). path_hash_prefixes roles are matched by the caller via
// MatchesPathHashPrefix instead.
func (role *DelegatedRole) IsDelegatedPath(targetFilepath string) (bool, error) {
	for _, pathPattern := range role.Paths {
		g, err := glob.Compile(pathPattern, '/')
		if err != nil {
			return false, ErrValue{Msg: fmt.Sprintf("invalid path pattern %q: %v", pathPattern, err)}
		}
		if g.Match(targetFilepath) {
			return true, nil
		}
	}
	return false, nil
}

// MatchesPathHashPrefix reports whether the SHA-256 hex digest of
// targetFilepath starts with any of role's PathHashPrefixes.
func (role *DelegatedRole) MatchesPathHashPrefix(targetFilepath string) bool {
	if len(role.PathHashPrefixes) == 0 {
		return false
	}
	digest := PathHexDigest(targetFilepath)
	for _, prefix := range role.PathHashPrefixes {
		if len(digest) >= len(prefix) && digest[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Matches reports whether role is responsible for targetFilepath, using
// whichever of Paths/PathHashPrefixes is populated (exactly one is, per
// spec.md §3.2).
func (role *DelegatedRole) Matches(targetFilepath string) (bool, error) {
	if len(role.PathHashPrefixes) > 0 {
		return role.MatchesPathHashPrefix(targetFilepath), nil
	}
	return role.IsDelegatedPath(targetFilepath)
}

// GetRolesForTarget returns, in declared order, every delegated role whose
// path rule matches targetFilepath.
func (d *Delegations) GetRolesForTarget(targetFilepath string) []DelegatedRole {
	res := []DelegatedRole{}
	for _, r := range d.Roles {
		ok, err := r.Matches(targetFilepath)
		if err == nil && ok {
			res = append(res, r)
		}
	}
	return res
}

// fromBytes unmarshals data into a Metadata[T], verifying the wire "_type"
// field matches T and deduplicating signatures by keyid.
func fromBytes[T Roles](data []byte) (*Metadata[T], error) {
	meta := &Metadata[T]{}
	if err := checkType[T](data); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, err
	}
	checkUniqueSignatures(meta)
	return meta, nil
}

// checkUniqueSignatures drops duplicate signature entries for the same
// KeyID, keeping the first. Per spec.md §9 open question (a), this client
// dedups rather than rejects outright: some publishers re-sign without
// removing a stale entry, and interop leniency wins over strictness for a
// non-security-relevant duplicate (a dup can never let an attacker count one
// key twice toward a threshold either way).
func checkUniqueSignatures[T Roles](meta *Metadata[T]) {
	seen := map[string]bool{}
	deduped := make([]Signature, 0, len(meta.Signatures))
	for _, sig := range meta.Signatures {
		if seen[sig.KeyID] {
			log.Debugf("Duplicate signature for key ID %s, discarding\n", sig.KeyID)
			continue
		}
		seen[sig.KeyID] = true
		deduped = append(deduped, sig)
	}
	meta.Signatures = deduped
}

// checkType verifies that data's "signed._type" field matches the role type
// T the caller is deserializing into.
func checkType[T Roles](data []byte) error {
	var m map[string]any
	i := any(new(T))
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	signedRaw, ok := m["signed"].(map[string]any)
	if !ok {
		return ErrValue{Msg: "metadata missing \"signed\" object"}
	}
	signedType, ok := signedRaw["_type"].(string)
	if !ok {
		return ErrValue{Msg: "metadata missing \"signed._type\" string"}
	}
	switch i.(type) {
	case *RootType:
		if ROOT != signedType {
			return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got - %s", ROOT, signedType)}
		}
	case *SnapshotType:
		if SNAPSHOT != signedType {
			return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got - %s", SNAPSHOT, signedType)}
		}
	case *TimestampType:
		if TIMESTAMP != signedType {
			return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got - %s", TIMESTAMP, signedType)}
		}
	case *TargetsType:
		if TARGETS != signedType {
			return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got - %s", TARGETS, signedType)}
		}
	default:
		return ErrValue{Msg: fmt.Sprintf("unrecognized metadata type - %s", signedType)}
	}
	specVersion, ok := signedRaw["spec_version"].(string)
	if !ok {
		return ErrValue{Msg: "metadata missing \"signed.spec_version\" string"}
	}
	return checkSpecVersionCompatible(specVersion)
}

// checkSpecVersionCompatible compares only the major component, per spec.md
// §3.1: a client built against one major TUF spec version can read metadata
// from any minor/patch release of that major version.
func checkSpecVersionCompatible(specVersion string) error {
	got, err := semver.NewVersion(specVersion)
	if err != nil {
		return ErrValue{Msg: fmt.Sprintf("invalid spec_version %q: %v", specVersion, err)}
	}
	want, err := semver.NewVersion(SPECIFICATION_VERSION)
	if err != nil {
		return ErrValue{Msg: fmt.Sprintf("invalid local spec_version %q: %v", SPECIFICATION_VERSION, err)}
	}
	if got.Major() != want.Major() {
		return ErrValue{Msg: fmt.Sprintf("incompatible spec_version %s, client supports major version %d", specVersion, want.Major())}
	}
	return nil
}

// verifyLength verifies that data's byte length equals length.
func verifyLength(data []byte, length int64) error {
	if int64(len(data)) != length {
		return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("length verification failed - expected %d, got %d", length, len(data))}
	}
	return nil
}

// verifyHashes verifies data's digest under every algorithm named in hashes,
// comparing in constant time since the data being checked may be
// attacker-influenced target content.
func verifyHashes(data []byte, hashes Hashes) error {
	var hasher hash.Hash
	for algo, want := range hashes {
		switch algo {
		case HashAlgoSHA256:
			hasher = sha256.New()
		case HashAlgoSHA512:
			hasher = sha512.New()
		default:
			return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("hash verification failed - unknown hashing algorithm - %s", algo)}
		}
		hasher.Write(data)
		got := hasher.Sum(nil)
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("hash verification failed - mismatch for algorithm %s: want %s got %s", algo, hex.EncodeToString(want), hex.EncodeToString(got))}
		}
	}
	return nil
}

// AddKey adds key as a signer for role, which must be one of root's own
// top-level roles.
func (signed *RootType) AddKey(key *Key, role string) error {
	if _, ok := signed.Roles[role]; !ok {
		return ErrValue{Msg: fmt.Sprintf("role %s doesn't exist", role)}
	}
	if !slices.Contains(signed.Roles[role].KeyIDs, key.ID()) {
		signed.Roles[role].KeyIDs = append(signed.Roles[role].KeyIDs, key.ID())
	}
	signed.Keys[key.ID()] = key
	return nil
}

// RevokeKey removes keyID as a signer of role, and drops it from Keys if no
// other role still lists it.
func (signed *RootType) RevokeKey(keyID, role string) error {
	if _, ok := signed.Roles[role]; !ok {
		return ErrValue{Msg: fmt.Sprintf("role %s doesn't exist", role)}
	}
	if !slices.Contains(signed.Roles[role].KeyIDs, keyID) {
		return ErrValue{Msg: fmt.Sprintf("key with id %s is not used by %s", keyID, role)}
	}
	filtered := []string{}
	for _, k := range signed.Roles[role].KeyIDs {
		if k != keyID {
			filtered = append(filtered, k)
		}
	}
	signed.Roles[role].KeyIDs = filtered
	for _, r := range signed.Roles {
		if slices.Contains(r.KeyIDs, keyID) {
			return nil
		}
	}
	delete(signed.Keys, keyID)
	return nil
}

// AddKey adds key as a signer of the delegated role named role.
func (signed *TargetsType) AddKey(key *Key, role string) error {
	if signed.Delegations == nil {
		return ErrValue{Msg: fmt.Sprintf("delegated role %s doesn't exist", role)}
	}
	for i, d := range signed.Delegations.Roles {
		if d.Name == role {
			if !slices.Contains(d.KeyIDs, key.ID()) {
				signed.Delegations.Roles[i].KeyIDs = append(signed.Delegations.Roles[i].KeyIDs, key.ID())
				signed.Delegations.Keys[key.ID()] = key
			} else {
				log.Debugf("Delegated role %s already has keyID %s\n", role, key.ID())
			}
			return nil
		}
	}
	return ErrValue{Msg: fmt.Sprintf("delegated role %s doesn't exist", role)}
}

// RevokeKey removes keyID as a signer of the delegated role named role, and
// drops it from the delegations key store if no other delegated role still
// lists it.
func (signed *TargetsType) RevokeKey(keyID string, role string) error {
	if signed.Delegations == nil {
		return ErrValue{Msg: fmt.Sprintf("delegated role %s doesn't exist", role)}
	}
	for i, d := range signed.Delegations.Roles {
		if d.Name == role {
			if !slices.Contains(d.KeyIDs, keyID) {
				return ErrValue{Msg: fmt.Sprintf("key with id %s is not used by %s", keyID, role)}
			}
			filtered := []string{}
			for _, k := range signed.Delegations.Roles[i].KeyIDs {
				if k != keyID {
					filtered = append(filtered, k)
				}
			}
			signed.Delegations.Roles[i].KeyIDs = filtered
			for _, r := range signed.Delegations.Roles {
				if slices.Contains(r.KeyIDs, keyID) {
					return nil
				}
			}
			delete(signed.Delegations.Keys, keyID)
			return nil
		}
	}
	return ErrValue{Msg: fmt.Sprintf("delegated role %s doesn't exist", role)}
}
