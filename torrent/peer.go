package torrent

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
)

// Peer is a remote endpoint announced by a tracker.
type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), fmt.Sprintf("%d", p.Port))
}

// UnmarshalPeers parses a compact peer list: concatenated 6-byte records,
// 4 bytes IPv4 followed by a big-endian port.
func UnmarshalPeers(peersBin []byte) ([]Peer, error) {
	const peerSize = 6
	if len(peersBin)%peerSize != 0 {
		return nil, fmt.Errorf("malformed peers: %d bytes is not a multiple of %d", len(peersBin), peerSize)
	}
	numPeers := len(peersBin) / peerSize
	peers := make([]Peer, numPeers)
	for i := 0; i < numPeers; i++ {
		offset := i * peerSize
		peers[i].IP = net.IP(peersBin[offset : offset+4])
		peers[i].Port = binary.BigEndian.Uint16(peersBin[offset+4 : offset+6])
	}
	return peers, nil
}

// GeneratePeerID returns a random 20 byte peer id for this session.
func GeneratePeerID() ([20]byte, error) {
	var id [20]byte
	_, err := rand.Read(id[:])
	if err != nil {
		return id, fmt.Errorf("failed to generate peer id: %w", err)
	}
	return id, nil
}
