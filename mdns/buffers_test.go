// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBuffers(t *testing.T) {
	t.Run("accepts buffers at the minimum size", func(t *testing.T) {
		bufs, err := newBuffers(make([]byte, MinBufferSize), make([]byte, MinBufferSize))
		require.NoError(t, err)
		require.Equal(t, MinBufferSize, len(bufs.recvAll()))
		require.Equal(t, MinBufferSize, bufs.sendCapacity())
	})

	t.Run("rejects an undersized receive buffer", func(t *testing.T) {
		_, err := newBuffers(make([]byte, MinBufferSize-1), make([]byte, 1500))
		require.ErrorIs(t, err, ErrBufferTooSmall)
	})

	t.Run("rejects an undersized send buffer", func(t *testing.T) {
		_, err := newBuffers(make([]byte, 1500), make([]byte, MinBufferSize-1))
		require.ErrorIs(t, err, ErrBufferTooSmall)
	})
}
