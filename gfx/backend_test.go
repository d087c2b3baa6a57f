// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx_test

import (
	"testing"

	"github.com/devblok/hellotri/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	name    string
	version int
}

func (b stubBackend) Name() string                              { return b.name }
func (b stubBackend) Adapters() ([]gfx.AdapterInfo, error)      { return nil, nil }
func (b stubBackend) Open(gfx.DeviceConfig) (gfx.Device, error) { return nil, gfx.ErrNoAdapter }

func TestRegisterReplacesByName(t *testing.T) {
	gfx.Register(stubBackend{name: "stub-registry", version: 1})
	before := len(gfx.Backends())
	gfx.Register(stubBackend{name: "stub-registry", version: 2})
	require.Len(t, gfx.Backends(), before)

	b, err := gfx.Lookup("stub-registry")
	require.NoError(t, err)
	assert.Equal(t, 2, b.(stubBackend).version)
}

func TestLookupUnknown(t *testing.T) {
	_, err := gfx.Lookup("no-such-backend")
	assert.ErrorIs(t, err, gfx.ErrUnknownBackend)
}

func TestBackendsNamesUnique(t *testing.T) {
	bs := gfx.Backends()
	for i := range bs {
		for j := 0; j < i; j++ {
			assert.NotEqual(t, bs[i].Name(), bs[j].Name())
		}
	}
}
