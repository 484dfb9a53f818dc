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

package trustedmetadata_test

import (
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdimitrov/go-tuf-metadata-client/metadata"
	"github.com/rdimitrov/go-tuf-metadata-client/metadata/trustedmetadata"
)

// testKeyring mints an ed25519 keypair and signs arbitrary role payloads with
// it, standing in for a repository's signing infrastructure in these tests.
type testKeyring struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
	key  *metadata.Key
}

func newTestKeyring(t *testing.T) testKeyring {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key, err := metadata.KeyFromPublicKey(pub)
	require.NoError(t, err)
	return testKeyring{pub: pub, priv: priv, key: key}
}

func signRoot(t *testing.T, kr testKeyring, root *metadata.Metadata[metadata.RootType]) {
	t.Helper()
	payload, err := metadata.CanonicalBytes(root.Signed)
	require.NoError(t, err)
	root.Signatures = []metadata.Signature{{
		KeyID:     kr.key.ID(),
		Signature: ed25519.Sign(kr.priv, payload),
	}}
}

func signTimestamp(t *testing.T, kr testKeyring, ts *metadata.Metadata[metadata.TimestampType]) {
	t.Helper()
	payload, err := metadata.CanonicalBytes(ts.Signed)
	require.NoError(t, err)
	ts.Signatures = []metadata.Signature{{
		KeyID:     kr.key.ID(),
		Signature: ed25519.Sign(kr.priv, payload),
	}}
}

func signSnapshot(t *testing.T, kr testKeyring, ss *metadata.Metadata[metadata.SnapshotType]) {
	t.Helper()
	payload, err := metadata.CanonicalBytes(ss.Signed)
	require.NoError(t, err)
	ss.Signatures = []metadata.Signature{{
		KeyID:     kr.key.ID(),
		Signature: ed25519.Sign(kr.priv, payload),
	}}
}

func signTargets(t *testing.T, kr testKeyring, tg *metadata.Metadata[metadata.TargetsType]) {
	t.Helper()
	payload, err := metadata.CanonicalBytes(tg.Signed)
	require.NoError(t, err)
	tg.Signatures = []metadata.Signature{{
		KeyID:     kr.key.ID(),
		Signature: ed25519.Sign(kr.priv, payload),
	}}
}

// newTrustedRoot builds a self-contained root where a single ed25519 key
// signs all four top-level roles, at threshold 1.
func newTrustedRoot(t *testing.T, kr testKeyring, expires time.Time) *metadata.Metadata[metadata.RootType] {
	t.Helper()
	root := metadata.Root(expires)
	root.Signed.Keys[kr.key.ID()] = kr.key
	for _, role := range []string{metadata.ROOT, metadata.SNAPSHOT, metadata.TARGETS, metadata.TIMESTAMP} {
		root.Signed.Roles[role].KeyIDs = []string{kr.key.ID()}
	}
	signRoot(t, kr, root)
	return root
}

func rootBytes(t *testing.T, root *metadata.Metadata[metadata.RootType]) []byte {
	t.Helper()
	b, err := root.ToBytes(false)
	require.NoError(t, err)
	return b
}

func TestNewValidatesSelfSignature(t *testing.T) {
	kr := newTestKeyring(t)
	root := newTrustedRoot(t, kr, time.Now().Add(24*time.Hour))

	trusted, err := trustedmetadata.New(rootBytes(t, root))
	require.NoError(t, err)
	assert.Equal(t, int64(1), trusted.Root.Signed.Version)
}

func TestNewRejectsUnsignedRoot(t *testing.T) {
	kr := newTestKeyring(t)
	root := newTrustedRoot(t, kr, time.Now().Add(24*time.Hour))
	root.Signatures = nil // strip the signature after it was computed

	_, err := trustedmetadata.New(rootBytes(t, root))
	require.Error(t, err)
	var invalidRoot metadata.ErrInvalidInitialRoot
	assert.ErrorAs(t, err, &invalidRoot)
}

func TestUpdateTimestampRejectsRollback(t *testing.T) {
	kr := newTestKeyring(t)
	root := newTrustedRoot(t, kr, time.Now().Add(24*time.Hour))
	trusted, err := trustedmetadata.New(rootBytes(t, root))
	require.NoError(t, err)

	ts1 := metadata.Timestamp(time.Now().Add(time.Hour))
	ts1.Signed.Version = 2
	signTimestamp(t, kr, ts1)
	b1, err := ts1.ToBytes(false)
	require.NoError(t, err)
	_, err = trusted.UpdateTimestamp(b1)
	require.NoError(t, err)

	ts2 := metadata.Timestamp(time.Now().Add(time.Hour))
	ts2.Signed.Version = 1
	signTimestamp(t, kr, ts2)
	b2, err := ts2.ToBytes(false)
	require.NoError(t, err)

	_, err = trusted.UpdateTimestamp(b2)
	require.Error(t, err)
	var rollback metadata.ErrRollbackAttack
	assert.ErrorAs(t, err, &rollback)
	// the previously trusted version must remain in place
	assert.Equal(t, int64(2), trusted.Timestamp.Signed.Version)
}

func TestUpdateTimestampEqualVersionIsANoOp(t *testing.T) {
	kr := newTestKeyring(t)
	root := newTrustedRoot(t, kr, time.Now().Add(24*time.Hour))
	trusted, err := trustedmetadata.New(rootBytes(t, root))
	require.NoError(t, err)

	ts := metadata.Timestamp(time.Now().Add(time.Hour))
	signTimestamp(t, kr, ts)
	b, err := ts.ToBytes(false)
	require.NoError(t, err)
	_, err = trusted.UpdateTimestamp(b)
	require.NoError(t, err)

	_, err = trusted.UpdateTimestamp(b)
	require.Error(t, err)
	var equalVersion metadata.ErrEqualVersionNumber
	assert.ErrorAs(t, err, &equalVersion)
	assert.False(t, errors.Is(err, metadata.ErrRepository{}), "an equal-version signal must not count as a repository error")
}

func TestUpdateTimestampRejectsExpired(t *testing.T) {
	kr := newTestKeyring(t)
	root := newTrustedRoot(t, kr, time.Now().Add(24*time.Hour))
	trusted, err := trustedmetadata.New(rootBytes(t, root))
	require.NoError(t, err)

	ts := metadata.Timestamp(time.Now().Add(-time.Hour))
	signTimestamp(t, kr, ts)
	b, err := ts.ToBytes(false)
	require.NoError(t, err)

	_, err = trusted.UpdateTimestamp(b)
	require.Error(t, err)
	var expired metadata.ErrExpiredMetadata
	assert.ErrorAs(t, err, &expired)
}

// fullRefreshFixture advances trusted through timestamp and snapshot so
// UpdateDelegatedTargets tests don't have to repeat the setup.
func fullRefreshFixture(t *testing.T) (*trustedmetadata.TrustedMetadata, testKeyring, *metadata.Metadata[metadata.SnapshotType]) {
	t.Helper()
	kr := newTestKeyring(t)
	root := newTrustedRoot(t, kr, time.Now().Add(24*time.Hour))
	trusted, err := trustedmetadata.New(rootBytes(t, root))
	require.NoError(t, err)

	snapshot := metadata.Snapshot(time.Now().Add(time.Hour))
	snapshot.Signed.Meta["targets.json"] = metadata.MetaFiles{Version: 1}
	signSnapshot(t, kr, snapshot)
	snapshotBytes, err := snapshot.ToBytes(false)
	require.NoError(t, err)

	ts := metadata.Timestamp(time.Now().Add(time.Hour))
	ts.Signed.Meta["snapshot.json"] = metadata.MetaFiles{Version: 1}
	signTimestamp(t, kr, ts)
	tsBytes, err := ts.ToBytes(false)
	require.NoError(t, err)
	_, err = trusted.UpdateTimestamp(tsBytes)
	require.NoError(t, err)

	_, err = trusted.UpdateSnapshot(snapshotBytes, false)
	require.NoError(t, err)

	return trusted, kr, snapshot
}

func TestUpdateDelegatedTargetsHappyPath(t *testing.T) {
	trusted, kr, _ := fullRefreshFixture(t)

	targets := metadata.Targets(time.Now().Add(time.Hour))
	targets.Signed.Targets["foo.txt"] = metadata.TargetFiles{Length: 3, Hashes: metadata.Hashes{}}
	signTargets(t, kr, targets)
	data, err := targets.ToBytes(false)
	require.NoError(t, err)

	loaded, err := trusted.UpdateDelegatedTargets(data, metadata.TARGETS, metadata.ROOT)
	require.NoError(t, err)
	assert.Contains(t, loaded.Signed.Targets, "foo.txt")
	assert.Same(t, loaded, trusted.Targets[metadata.TARGETS])
}

func TestUpdateDelegatedTargetsRejectsVersionMismatch(t *testing.T) {
	trusted, kr, _ := fullRefreshFixture(t)

	targets := metadata.Targets(time.Now().Add(time.Hour))
	targets.Signed.Version = 2 // snapshot pins targets.json at version 1
	signTargets(t, kr, targets)
	data, err := targets.ToBytes(false)
	require.NoError(t, err)

	_, err = trusted.UpdateDelegatedTargets(data, metadata.TARGETS, metadata.ROOT)
	require.Error(t, err)
	var mismatch metadata.ErrVersionMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestUpdateSnapshotRejectsMixAndMatch(t *testing.T) {
	kr := newTestKeyring(t)
	root := newTrustedRoot(t, kr, time.Now().Add(24*time.Hour))
	trusted, err := trustedmetadata.New(rootBytes(t, root))
	require.NoError(t, err)

	ts := metadata.Timestamp(time.Now().Add(time.Hour))
	ts.Signed.Meta["snapshot.json"] = metadata.MetaFiles{Version: 2}
	signTimestamp(t, kr, ts)
	tsBytes, err := ts.ToBytes(false)
	require.NoError(t, err)
	_, err = trusted.UpdateTimestamp(tsBytes)
	require.NoError(t, err)

	snapshot := metadata.Snapshot(time.Now().Add(time.Hour)) // defaults to version 1
	signSnapshot(t, kr, snapshot)
	snapshotBytes, err := snapshot.ToBytes(false)
	require.NoError(t, err)

	_, err = trusted.UpdateSnapshot(snapshotBytes, false)
	require.Error(t, err)
	var mismatch metadata.ErrMixAndMatchViolation
	assert.ErrorAs(t, err, &mismatch)
}
