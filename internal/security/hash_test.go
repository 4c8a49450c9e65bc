// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	h := fastHasher()

	digest, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, h.Verify("correct horse battery staple", digest))
	assert.False(t, h.Verify("correct horse battery stapl", digest))
	assert.False(t, h.Verify("", digest))
}

func TestHashUsesFreshSaltPerCall(t *testing.T) {
	h := fastHasher()

	first, err := h.Hash("same secret")
	require.NoError(t, err)
	second, err := h.Hash("same secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("same secret", first))
	assert.True(t, h.Verify("same secret", second))
}

func TestVerifyMalformedDigestFailsClosed(t *testing.T) {
	h := fastHasher()

	for _, digest := range []string{
		"",
		"not a bcrypt digest",
		"$2a$12$truncated",
		"\x00\x01\x02",
	} {
		assert.False(t, h.Verify("anything", digest), "digest %q", digest)
	}
}

func TestProductionCostIsFixed(t *testing.T) {
	assert.Equal(t, 12, BcryptCost)
	assert.Equal(t, BcryptCost, NewHasher().cost)
}
