package torrent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalPeers(t *testing.T) {
	peersBin := []byte{127, 0, 0, 1, 0x00, 0x50, 1, 1, 1, 1, 0x01, 0xbb}
	peers, err := UnmarshalPeers(peersBin)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "127.0.0.1:80", peers[0].String())
	assert.Equal(t, "1.1.1.1:443", peers[1].String())
}

func TestUnmarshalPeersEmpty(t *testing.T) {
	peers, err := UnmarshalPeers(nil)
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestUnmarshalPeersMalformed(t *testing.T) {
	_, err := UnmarshalPeers([]byte{127, 0, 0, 1, 0x00})
	assert.Error(t, err)

	_, err = UnmarshalPeers([]byte{127, 0, 0, 1, 0x00, 0x50, 1})
	assert.Error(t, err)
}

func TestGeneratePeerID(t *testing.T) {
	a, err := GeneratePeerID()
	require.NoError(t, err)
	b, err := GeneratePeerID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
