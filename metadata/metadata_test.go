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
	"crypto/ed25519"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootDefaultValues(t *testing.T) {
	// without setting expiration
	meta := Root()
	assert.NotNil(t, meta)
	assert.GreaterOrEqual(t, []time.Time{time.Now().UTC()}[0], meta.Signed.Expires)

	// setting expiration
	expire := time.Now().AddDate(0, 0, 2).UTC()
	meta = Root(expire)
	assert.NotNil(t, meta)
	assert.Equal(t, expire, meta.Signed.Expires)

	// Type
	assert.Equal(t, ROOT, meta.Signed.Type)

	// SpecVersion
	assert.Equal(t, SPECIFICATION_VERSION, meta.Signed.SpecVersion)

	// Version
	assert.Equal(t, int64(1), meta.Signed.Version)

	// Threshold and KeyIDs for Roles
	for _, role := range []string{ROOT, SNAPSHOT, TARGETS, TIMESTAMP} {
		assert.Equal(t, 1, meta.Signed.Roles[role].Threshold)
		assert.Equal(t, []string{}, meta.Signed.Roles[role].KeyIDs)
	}

	// Keys
	assert.Equal(t, map[string]*Key{}, meta.Signed.Keys)

	// Consistent snapshot
	assert.True(t, meta.Signed.ConsistentSnapshot)

	// Signatures
	assert.Equal(t, []Signature{}, meta.Signatures)
}

func TestSnapshotDefaultValues(t *testing.T) {
	// without setting expiration
	meta := Snapshot()
	assert.NotNil(t, meta)
	assert.GreaterOrEqual(t, []time.Time{time.Now().UTC()}[0], meta.Signed.Expires)

	// setting expiration
	expire := time.Now().AddDate(0, 0, 2).UTC()
	meta = Snapshot(expire)
	assert.NotNil(t, meta)
	assert.Equal(t, expire, meta.Signed.Expires)

	// Type
	assert.Equal(t, SNAPSHOT, meta.Signed.Type)

	// SpecVersion
	assert.Equal(t, SPECIFICATION_VERSION, meta.Signed.SpecVersion)

	// Version
	assert.Equal(t, int64(1), meta.Signed.Version)

	// Targets meta
	assert.Equal(t, map[string]MetaFiles{"targets.json": {Version: 1}}, meta.Signed.Meta)

	// Signatures
	assert.Equal(t, []Signature{}, meta.Signatures)
}

func TestTimestampDefaultValues(t *testing.T) {
	// without setting expiration
	meta := Timestamp()
	assert.NotNil(t, meta)
	assert.GreaterOrEqual(t, []time.Time{time.Now().UTC()}[0], meta.Signed.Expires)

	// setting expiration
	expire := time.Now().AddDate(0, 0, 2).UTC()
	meta = Timestamp(expire)
	assert.NotNil(t, meta)
	assert.Equal(t, expire, meta.Signed.Expires)

	// Type
	assert.Equal(t, TIMESTAMP, meta.Signed.Type)

	// SpecVersion
	assert.Equal(t, SPECIFICATION_VERSION, meta.Signed.SpecVersion)

	// Version
	assert.Equal(t, int64(1), meta.Signed.Version)

	// Snapshot meta
	assert.Equal(t, map[string]MetaFiles{"snapshot.json": {Version: 1}}, meta.Signed.Meta)

	// Signatures
	assert.Equal(t, []Signature{}, meta.Signatures)
}

// TestCanonicalBytesRoundTrip exercises the round-trip property spec.md §8
// requires of the canonical serializer: re-encoding a value parsed back out
// of its own canonical bytes must produce byte-identical output.
func TestCanonicalBytesRoundTrip(t *testing.T) {
	root := Root(time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
	key, err := KeyFromPublicKey(mustEd25519PublicKey(t))
	require.NoError(t, err)
	root.Signed.Keys[key.ID()] = key
	root.Signed.Roles[ROOT].KeyIDs = []string{key.ID()}

	first, err := CanonicalBytes(root.Signed)
	require.NoError(t, err)

	var roundTripped RootType
	require.NoError(t, jsonUnmarshal(first, &roundTripped))

	second, err := CanonicalBytes(roundTripped)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestUnrecognizedFieldsSurviveRoundTrip pins spec.md §4.1's contract that an
// object member this client does not model is preserved unchanged through
// parse-then-reserialize, rather than silently dropped - which would change
// the bytes a signature was computed over and turn valid metadata into
// something that fails verification.
func TestUnrecognizedFieldsSurviveRoundTrip(t *testing.T) {
	wire := []byte(`{
		"_type": "root",
		"spec_version": "1.0.31",
		"version": 1,
		"expires": "2099-01-01T00:00:00Z",
		"keys": {},
		"roles": {
			"root": {"keyids": [], "threshold": 1},
			"snapshot": {"keyids": [], "threshold": 1},
			"targets": {"keyids": [], "threshold": 1},
			"timestamp": {"keyids": [], "threshold": 1}
		},
		"consistent_snapshot": true,
		"x-future-field": {"nested": ["value", 1]}
	}`)

	var root RootType
	require.NoError(t, json.Unmarshal(wire, &root))
	require.NotNil(t, root.UnrecognizedFields)
	assert.Contains(t, root.UnrecognizedFields, "x-future-field")

	out, err := json.Marshal(root)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "x-future-field")

	canonicalFirst, err := CanonicalBytes(root)
	require.NoError(t, err)

	var reparsed RootType
	require.NoError(t, json.Unmarshal(out, &reparsed))
	canonicalSecond, err := CanonicalBytes(reparsed)
	require.NoError(t, err)
	assert.Equal(t, canonicalFirst, canonicalSecond, "a field this client doesn't model must still canonicalize identically across a parse/reserialize cycle")
}

// TestKeyIDIsStableAndSensitiveToContent pins two properties spec.md §8
// requires of KeyId: it is 64 lowercase hex characters, and it changes when
// any byte of the canonical key encoding changes.
func TestKeyIDIsStableAndSensitiveToContent(t *testing.T) {
	key, err := KeyFromPublicKey(mustEd25519PublicKey(t))
	require.NoError(t, err)

	id1 := key.ID()
	id2 := key.ID()
	assert.Equal(t, id1, id2, "KeyID must be stable across repeated calls")
	assert.Len(t, id1, 64)
	for _, c := range id1 {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'), "KeyID must be lowercase hex")
	}

	mutated := &Key{Type: key.Type, Scheme: key.Scheme, Value: KeyVal{PublicKey: key.Value.PublicKey + "00"}}
	assert.NotEqual(t, id1, mutated.ID())
}

// TestDelegatedRoleMatching exercises IsDelegatedPath, MatchesPathHashPrefix,
// and the ordering contract of GetRolesForTarget (spec.md §4.6, §8 scenario
// 6): every matching role is returned in declared order, terminating or not;
// pruning the roles after a terminating one is left to the delegation walk.
func TestDelegatedRoleMatching(t *testing.T) {
	roleA := DelegatedRole{Name: "role-a", Paths: []string{"libs/*"}, Terminating: false}
	roleB := DelegatedRole{Name: "role-b", Paths: []string{"**"}, Terminating: true}

	matchA, err := roleA.Matches("libs/foo")
	require.NoError(t, err)
	assert.True(t, matchA)

	matchANested, err := roleA.Matches("libs/nested/foo")
	require.NoError(t, err)
	assert.False(t, matchANested, "single '*' must not cross a path segment boundary")

	matchB, err := roleB.Matches("apps/bar")
	require.NoError(t, err)
	assert.True(t, matchB, "'**' must cross path segment boundaries")

	delegations := &Delegations{Roles: []DelegatedRole{roleA, roleB}}
	got := delegations.GetRolesForTarget("libs/foo")
	require.Len(t, got, 2, "both role-a and role-b (a catch-all) match libs/foo, by declared order")
	assert.Equal(t, "role-a", got[0].Name)
	assert.Equal(t, "role-b", got[1].Name)

	gotOther := delegations.GetRolesForTarget("apps/bar")
	require.Len(t, gotOther, 1, "only the catch-all role-b matches a path outside libs/")
	assert.Equal(t, "role-b", gotOther[0].Name)
}

func TestMatchesPathHashPrefix(t *testing.T) {
	role := DelegatedRole{Name: "by-hash", PathHashPrefixes: []string{PathHexDigest("foo.txt")[:4]}}
	assert.True(t, role.MatchesPathHashPrefix("foo.txt"))
	assert.False(t, role.MatchesPathHashPrefix("bar.txt"))
}

func TestTargetsDefaultValues(t *testing.T) {
	// without setting expiration
	meta := Targets()
	assert.NotNil(t, meta)
	assert.GreaterOrEqual(t, []time.Time{time.Now().UTC()}[0], meta.Signed.Expires)

	// setting expiration
	expire := time.Now().AddDate(0, 0, 2).UTC()
	meta = Targets(expire)
	assert.NotNil(t, meta)
	assert.Equal(t, expire, meta.Signed.Expires)

	// Type
	assert.Equal(t, TARGETS, meta.Signed.Type)

	// SpecVersion
	assert.Equal(t, SPECIFICATION_VERSION, meta.Signed.SpecVersion)

	// Version
	assert.Equal(t, int64(1), meta.Signed.Version)

	// Target files
	assert.Equal(t, map[string]TargetFiles{}, meta.Signed.Targets)

	// Signatures
	assert.Equal(t, []Signature{}, meta.Signatures)
}

func mustEd25519PublicKey(t *testing.T) ed25519.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
