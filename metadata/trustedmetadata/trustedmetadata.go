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

// Package trustedmetadata implements the TUF trusted metadata set: the
// in-memory verification kernel that owns the client's current root,
// timestamp, snapshot, and (possibly delegated) targets metadata, and
// mutates them only through transitions that enforce every invariant in
// spec.md §4.4. No field of TrustedMetadata is ever set directly by a
// caller outside this package; every assignment is gated by a successful
// verification.
package trustedmetadata

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rdimitrov/go-tuf-metadata-client/metadata"
)

// TrustedMetadata is the verified in-memory model described in spec.md §3.3.
// referenceTime is snapshotted once, when the instance is constructed for a
// refresh cycle, so every expiry check within that cycle judges against the
// same instant.
type TrustedMetadata struct {
	Root      *metadata.Metadata[metadata.RootType]
	Timestamp *metadata.Metadata[metadata.TimestampType]
	Snapshot  *metadata.Metadata[metadata.SnapshotType]
	Targets   map[string]*metadata.Metadata[metadata.TargetsType]

	referenceTime time.Time
}

// New constructs a TrustedMetadata from the bytes of an operator-supplied,
// out-of-band-trusted initial root. It verifies that the root is signed by a
// quorum of the keys listed in its own roles.root entry (spec.md §4.4.1). It
// does not check expiry: an old trusted root is still a valid starting point
// for a refresh, which will fetch newer roots before anything is used.
func New(rootData []byte) (*TrustedMetadata, error) {
	root := &metadata.Metadata[metadata.RootType]{}
	if _, err := root.FromBytes(rootData); err != nil {
		return nil, metadata.ErrInvalidInitialRoot{Msg: err.Error()}
	}
	trusted := &TrustedMetadata{
		Root:          root,
		Targets:       map[string]*metadata.Metadata[metadata.TargetsType]{},
		referenceTime: time.Now().UTC(),
	}
	if err := root.VerifyDelegate(metadata.ROOT, root); err != nil {
		return nil, metadata.ErrInvalidInitialRoot{Msg: err.Error()}
	}
	log.Infof("Initialized trusted metadata with root version %d\n", root.Signed.Version)
	return trusted, nil
}

// ReferenceTime returns the instant this refresh cycle's expiry checks are
// evaluated against.
func (trusted *TrustedMetadata) ReferenceTime() time.Time {
	return trusted.referenceTime
}

// UpdateRoot verifies and, on success, installs candidate root N+1 where N is
// the currently trusted root's version (spec.md §4.4.2). It enforces the
// chain-of-trust: the old root must authorize the new one, the new root must
// self-authorize, and the version must advance by exactly one. Expiry of the
// final root in a rotation chain is the caller's responsibility (checked
// once the loop that drives repeated UpdateRoot calls terminates).
func (trusted *TrustedMetadata) UpdateRoot(data []byte) (*metadata.Metadata[metadata.RootType], error) {
	if trusted.Timestamp != nil {
		return nil, metadata.ErrValue{Msg: "cannot update root after timestamp has been loaded"}
	}
	newRoot := &metadata.Metadata[metadata.RootType]{}
	if _, err := newRoot.FromBytes(data); err != nil {
		return nil, err
	}
	if newRoot.Signed.Type != metadata.ROOT {
		return nil, metadata.ErrValue{Msg: fmt.Sprintf("expected type %s, got %s", metadata.ROOT, newRoot.Signed.Type)}
	}

	// old authorizes new
	if err := trusted.Root.VerifyDelegate(metadata.ROOT, newRoot); err != nil {
		return nil, err
	}
	// new self-authorizes, preventing an orphan root from ever being installed
	if err := newRoot.VerifyDelegate(metadata.ROOT, newRoot); err != nil {
		return nil, err
	}

	if newRoot.Signed.Version != trusted.Root.Signed.Version+1 {
		return nil, metadata.ErrVersionMismatch{
			Role:     metadata.ROOT,
			Expected: trusted.Root.Signed.Version + 1,
			Got:      newRoot.Signed.Version,
		}
	}

	trusted.Root = newRoot
	log.Infof("Updated root to version %d\n", newRoot.Signed.Version)
	return newRoot, nil
}

// RootExpired reports whether the currently trusted root is expired relative
// to referenceTime. Callers invoke this once the root-rotation loop of
// spec.md §4.5 step 1 has terminated.
func (trusted *TrustedMetadata) RootExpired() bool {
	return trusted.Root.Signed.IsExpired(trusted.referenceTime)
}

// UpdateTimestamp verifies and, on success, installs a new timestamp
// (spec.md §4.4.3). A strictly-lower version than the currently trusted one
// is a rollback attack. An equal version is a deliberate no-op signaled via
// ErrEqualVersionNumber so callers can distinguish "nothing changed" from a
// real failure.
func (trusted *TrustedMetadata) UpdateTimestamp(data []byte) (*metadata.Metadata[metadata.TimestampType], error) {
	if trusted.Snapshot != nil {
		return nil, metadata.ErrValue{Msg: "cannot update timestamp after snapshot has been loaded"}
	}
	if trusted.RootExpired() {
		return nil, metadata.ErrExpiredMetadata{Role: metadata.ROOT, ExpiredAt: trusted.Root.Signed.Expires}
	}

	newTimestamp := &metadata.Metadata[metadata.TimestampType]{}
	if _, err := newTimestamp.FromBytes(data); err != nil {
		return nil, err
	}
	if newTimestamp.Signed.Type != metadata.TIMESTAMP {
		return nil, metadata.ErrValue{Msg: fmt.Sprintf("expected type %s, got %s", metadata.TIMESTAMP, newTimestamp.Signed.Type)}
	}

	if err := trusted.Root.VerifyDelegate(metadata.TIMESTAMP, newTimestamp); err != nil {
		return nil, err
	}

	if trusted.Timestamp != nil {
		if newTimestamp.Signed.Version < trusted.Timestamp.Signed.Version {
			return nil, metadata.ErrRollbackAttack{
				Role:           metadata.TIMESTAMP,
				TrustedVersion: trusted.Timestamp.Signed.Version,
				OfferedVersion: newTimestamp.Signed.Version,
			}
		}
		newMeta := newTimestamp.Signed.Meta["snapshot.json"]
		oldMeta := trusted.Timestamp.Signed.Meta["snapshot.json"]
		if newMeta.Version < oldMeta.Version {
			return nil, metadata.ErrRollbackAttack{
				Role:           "timestamp.meta[snapshot.json]",
				TrustedVersion: oldMeta.Version,
				OfferedVersion: newMeta.Version,
			}
		}
		if newTimestamp.Signed.Version == trusted.Timestamp.Signed.Version {
			return nil, metadata.ErrEqualVersionNumber{Role: metadata.TIMESTAMP, Version: newTimestamp.Signed.Version}
		}
	}

	if newTimestamp.Signed.IsExpired(trusted.referenceTime) {
		return nil, metadata.ErrExpiredMetadata{Role: metadata.TIMESTAMP, ExpiredAt: newTimestamp.Signed.Expires}
	}

	trusted.Timestamp = newTimestamp
	log.Infof("Updated timestamp to version %d\n", newTimestamp.Signed.Version)
	return newTimestamp, nil
}

// UpdateSnapshot verifies and, on success, installs a new snapshot (spec.md
// §4.4.4): it checks that the timestamp's pinned version matches, that no
// role's version has regressed since the previously trusted snapshot, and
// that the snapshot is not expired. trustedOnly is set when data comes from
// local cache rather than a fresh download; in that case the length/hash
// check against the timestamp's snapshot.json entry is skipped, since the
// cached copy may predate the timestamp currently trusted.
func (trusted *TrustedMetadata) UpdateSnapshot(data []byte, trustedOnly bool) (*metadata.Metadata[metadata.SnapshotType], error) {
	if trusted.Timestamp == nil {
		return nil, metadata.ErrValue{Msg: "cannot update snapshot before timestamp has been loaded"}
	}
	if trusted.RootExpired() {
		return nil, metadata.ErrExpiredMetadata{Role: metadata.ROOT, ExpiredAt: trusted.Root.Signed.Expires}
	}

	// A snapshot loaded from local cache may predate the timestamp we
	// currently trust, so its bytes need not match that timestamp's pinned
	// hash; the version check below still catches a stale or tampered copy.
	snapshotMeta := trusted.Timestamp.Signed.Meta["snapshot.json"]
	if !trustedOnly && (snapshotMeta.Length != 0 || len(snapshotMeta.Hashes) > 0) {
		if err := snapshotMeta.VerifyLengthHashes(data); err != nil {
			return nil, err
		}
	}

	newSnapshot := &metadata.Metadata[metadata.SnapshotType]{}
	if _, err := newSnapshot.FromBytes(data); err != nil {
		return nil, err
	}
	if newSnapshot.Signed.Type != metadata.SNAPSHOT {
		return nil, metadata.ErrValue{Msg: fmt.Sprintf("expected type %s, got %s", metadata.SNAPSHOT, newSnapshot.Signed.Type)}
	}

	if err := trusted.Root.VerifyDelegate(metadata.SNAPSHOT, newSnapshot); err != nil {
		return nil, err
	}

	if newSnapshot.Signed.Version != snapshotMeta.Version {
		return nil, metadata.ErrMixAndMatchViolation{Msg: fmt.Sprintf(
			"snapshot version %d does not match timestamp's pinned version %d",
			newSnapshot.Signed.Version, snapshotMeta.Version)}
	}

	if trusted.Snapshot != nil {
		for role, oldFileMeta := range trusted.Snapshot.Signed.Meta {
			newFileMeta, ok := newSnapshot.Signed.Meta[role]
			if !ok {
				continue
			}
			if newFileMeta.Version < oldFileMeta.Version {
				return nil, metadata.ErrRollbackAttack{
					Role:           role,
					TrustedVersion: oldFileMeta.Version,
					OfferedVersion: newFileMeta.Version,
				}
			}
		}
	}

	if newSnapshot.Signed.IsExpired(trusted.referenceTime) {
		return nil, metadata.ErrExpiredMetadata{Role: metadata.SNAPSHOT, ExpiredAt: newSnapshot.Signed.Expires}
	}

	// invalidate cached delegated targets that are now behind the new
	// snapshot's claim; they will be refetched on demand
	for role, targets := range trusted.Targets {
		fileMeta, ok := newSnapshot.Signed.Meta[role+".json"]
		if !ok || targets.Signed.Version < fileMeta.Version {
			delete(trusted.Targets, role)
		}
	}

	trusted.Snapshot = newSnapshot
	log.Infof("Updated snapshot to version %d\n", newSnapshot.Signed.Version)
	return newSnapshot, nil
}

// UpdateDelegatedTargets verifies and, on success, installs a targets (or
// delegated targets) metadata file (spec.md §4.4.5). delegatorName is
// "root" for the top-level "targets" role, and the name of the parent
// targets role otherwise.
func (trusted *TrustedMetadata) UpdateDelegatedTargets(data []byte, roleName, delegatorName string) (*metadata.Metadata[metadata.TargetsType], error) {
	if trusted.Snapshot == nil {
		return nil, metadata.ErrValue{Msg: "cannot update targets before snapshot has been loaded"}
	}
	if trusted.RootExpired() {
		return nil, metadata.ErrExpiredMetadata{Role: metadata.ROOT, ExpiredAt: trusted.Root.Signed.Expires}
	}

	meta, ok := trusted.Snapshot.Signed.Meta[roleName+".json"]
	if !ok {
		return nil, metadata.ErrValue{Msg: fmt.Sprintf("no entry for %s in snapshot", roleName)}
	}
	if meta.Length != 0 || len(meta.Hashes) > 0 {
		if err := meta.VerifyLengthHashes(data); err != nil {
			return nil, err
		}
	}

	var delegator any
	if delegatorName == metadata.ROOT {
		delegator = trusted.Root
	} else {
		d, ok := trusted.Targets[delegatorName]
		if !ok {
			return nil, metadata.ErrValue{Msg: fmt.Sprintf("delegator %s is not loaded", delegatorName)}
		}
		delegator = d
	}

	newTargets := &metadata.Metadata[metadata.TargetsType]{}
	if _, err := newTargets.FromBytes(data); err != nil {
		return nil, err
	}
	if newTargets.Signed.Type != metadata.TARGETS {
		return nil, metadata.ErrValue{Msg: fmt.Sprintf("expected type %s, got %s", metadata.TARGETS, newTargets.Signed.Type)}
	}

	switch d := delegator.(type) {
	case *metadata.Metadata[metadata.RootType]:
		if err := d.VerifyDelegate(roleName, newTargets); err != nil {
			return nil, err
		}
	case *metadata.Metadata[metadata.TargetsType]:
		if err := d.VerifyDelegate(roleName, newTargets); err != nil {
			return nil, err
		}
	}

	if newTargets.Signed.Version != meta.Version {
		return nil, metadata.ErrVersionMismatch{Role: roleName, Expected: meta.Version, Got: newTargets.Signed.Version}
	}

	if newTargets.Signed.IsExpired(trusted.referenceTime) {
		return nil, metadata.ErrExpiredMetadata{Role: roleName, ExpiredAt: newTargets.Signed.Expires}
	}

	trusted.Targets[roleName] = newTargets
	log.Infof("Updated %s to version %d\n", roleName, newTargets.Signed.Version)
	return newTargets, nil
}
