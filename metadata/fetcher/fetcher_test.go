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

package fetcher_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdimitrov/go-tuf-metadata-client/metadata"
	"github.com/rdimitrov/go-tuf-metadata-client/metadata/fetcher"
)

func TestDownloadFileHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello world"))
	}))
	defer server.Close()

	f := &fetcher.DefaultFetcher{RetryMax: 0}
	data, err := f.DownloadFile(context.Background(), server.URL, 1024)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownloadFileRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this response is far too long for the configured cap"))
	}))
	defer server.Close()

	f := &fetcher.DefaultFetcher{RetryMax: 0}
	_, err := f.DownloadFile(context.Background(), server.URL, 4)
	require.Error(t, err)
	var oversized metadata.ErrOversizedResponse
	assert.ErrorAs(t, err, &oversized)
}

func TestDownloadFileRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := &fetcher.DefaultFetcher{RetryMax: 0}
	_, err := f.DownloadFile(context.Background(), server.URL, 1024)
	require.Error(t, err)
	var httpErr *metadata.ErrDownloadHTTP
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestDownloadFileRetriesTransientFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	f := &fetcher.DefaultFetcher{RetryMax: 3}
	data, err := f.DownloadFile(context.Background(), server.URL, 1024)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, 3, attempts)
}

func TestDownloadFileHonorsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	f := &fetcher.DefaultFetcher{RetryMax: 0}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.DownloadFile(ctx, server.URL, 1024)
	require.Error(t, err)
	var cancelled metadata.ErrCancelled
	assert.ErrorAs(t, err, &cancelled)
}
