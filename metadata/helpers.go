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
	"encoding/hex"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
)

// UnmarshalJSON decodes a lowercase-hex JSON string into raw bytes.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || len(data)%2 != 0 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("tuf: invalid JSON hex bytes")
	}
	res := make([]byte, hex.DecodedLen(len(data)-2))
	if _, err := hex.Decode(res, data[1:len(data)-1]); err != nil {
		return err
	}
	*b = res
	return nil
}

// MarshalJSON encodes raw bytes as a lowercase-hex JSON string.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	res := make([]byte, hex.EncodedLen(len(b))+2)
	res[0] = '"'
	res[len(res)-1] = '"'
	hex.Encode(res[1:], b)
	return res, nil
}

// String returns the lowercase-hex form of b.
func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// PathHexDigest returns the lowercase hex SHA-256 digest of s, used to match
// a target path against a delegated role's path_hash_prefixes.
func PathHexDigest(s string) string {
	return sha256Hex([]byte(s))
}

// fromFile reads name and decodes it as a Metadata[T].
func fromFile[T Roles](name string) (*Metadata[T], error) {
	return new(Metadata[T]).FromFile(name)
}

// jsonFieldNames returns the set of JSON object keys t's own tagged, exported
// fields serialize to. It skips the UnrecognizedFields side-channel itself
// (tagged `json:"-"`), so the result is exactly the set of keys a value of t
// recognizes on its own.
func jsonFieldNames(t reflect.Type) map[string]bool {
	names := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.SplitN(tag, ",", 2)[0]
		if name == "" {
			name = t.Field(i).Name
		}
		names[name] = true
	}
	return names
}

// extractUnrecognized returns the members of data's top-level JSON object
// whose keys are not in known, so a type's UnmarshalJSON can stash them into
// its UnrecognizedFields side-channel and have them round-trip through
// re-serialization unchanged, per spec.md §4.1.
func extractUnrecognized(data []byte, known map[string]bool) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]any
	for k, v := range all {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra, nil
}

// mergeUnrecognized re-adds extra's members into the JSON object encoded in
// known, the inverse of extractUnrecognized. If extra is empty known is
// returned unchanged.
func mergeUnrecognized(known []byte, extra map[string]any) ([]byte, error) {
	if len(extra) == 0 {
		return known, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = b
	}
	return json.Marshal(merged)
}
