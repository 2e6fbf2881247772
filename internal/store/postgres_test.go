// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pronoia/pronoia/pkg/errutil"
)

type fakePinger struct {
	failures int
	calls    int
}

func (p *fakePinger) Ping(_ context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first time", func(t *testing.T) {
		p := &fakePinger{}
		require.NoError(t, pingWithRetry(ctx, p, 3))
		assert.Equal(t, 1, p.calls)
	})

	t.Run("retries until the database answers", func(t *testing.T) {
		p := &fakePinger{failures: 2}
		require.NoError(t, pingWithRetry(ctx, p, 3))
		assert.Equal(t, 3, p.calls)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		p := &fakePinger{failures: 10}
		err := pingWithRetry(ctx, p, 2)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
		assert.Equal(t, 2, p.calls)
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		p := &fakePinger{}
		require.NoError(t, pingWithRetry(ctx, p, 0))
		assert.Equal(t, 1, p.calls)
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "://not a url", 1)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}
