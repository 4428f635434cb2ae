/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulatorFillsAndDrains(t *testing.T) {
	a := NewAccumulator(Channels, 256)
	require.False(t, a.Ready())

	chunk := makeBlock(64)
	require.Equal(t, 64, a.Push(chunk, 64))
	require.False(t, a.Ready())

	require.Equal(t, 128, a.Push(chunk, 64))
	require.Equal(t, 192, a.Push(chunk, 64))
	require.False(t, a.Ready())

	require.Equal(t, 256, a.Push(chunk, 64))
	require.True(t, a.Ready())

	samples, length := a.Drain()
	require.Equal(t, 256, length)
	for ch := 0; ch < Channels; ch++ {
		require.Len(t, samples[ch], 256)
	}
	require.False(t, a.Ready())
}

func TestAccumulatorPushClampsAtCapacity(t *testing.T) {
	a := NewAccumulator(Channels, 100)
	chunk := makeBlock(64)
	require.Equal(t, 64, a.Push(chunk, 64))
	// Only 36 more samples fit; Push must clamp rather than overrun.
	require.Equal(t, 100, a.Push(chunk, 64))
	require.True(t, a.Ready())
}

func TestAccumulatorDrainResetsFill(t *testing.T) {
	a := NewAccumulator(Channels, 64)
	chunk := makeBlock(64)
	a.Push(chunk, 64)
	require.True(t, a.Ready())
	a.Drain()
	require.False(t, a.Ready())
	require.Equal(t, 64, a.Push(chunk, 64))
}
