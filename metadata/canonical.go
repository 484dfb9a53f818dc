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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
)

// CanonicalBytes returns the byte-deterministic encoding of v: sorted object
// keys, minimal escaping, no insignificant whitespace. This is the only
// encoding signatures are ever computed or verified over (spec.md §4.1).
//
// cjson.EncodeCanonical already implements OLPC/securesystemslib canonical
// JSON, which is exactly the contract spec.md §4.1 describes; a bespoke
// encoder here would just be a worse reimplementation of the same algorithm.
//
// v is first round-tripped through encoding/json into a generic
// map[string]any rather than handed to cjson directly. That detour matters:
// it forces every type's own MarshalJSON (including the UnrecognizedFields
// side-channel merge on the role/primitive types in types.go) to run before
// canonicalization, so a value parsed from metadata that carries fields this
// client doesn't model still canonicalizes to the bytes its signer actually
// signed, rather than to a lossy reinterpretation of just the fields this
// client recognizes.
func CanonicalBytes(v any) ([]byte, error) {
	asJSON, err := json.Marshal(v)
	if err != nil {
		return nil, ErrCanonicalEncoding{Msg: err.Error()}
	}
	var generic any
	if err := json.Unmarshal(asJSON, &generic); err != nil {
		return nil, ErrCanonicalEncoding{Msg: err.Error()}
	}
	b, err := cjson.EncodeCanonical(generic)
	if err != nil {
		return nil, ErrCanonicalEncoding{Msg: err.Error()}
	}
	return b, nil
}

// sha256Hex returns the lowercase hex SHA-256 digest of data.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
