package torrent

import (
	"crypto/sha1"
	"encoding/binary"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTestContent builds deterministic file contents and the matching
// per-piece hashes.
func makeTestContent(length, pieceLength int) ([]byte, [][20]byte) {
	content := make([]byte, length)
	for i := range content {
		content[i] = byte(i * 7)
	}

	numPieces := (length + pieceLength - 1) / pieceLength
	hashes := make([][20]byte, numPieces)
	for i := 0; i < numPieces; i++ {
		begin := i * pieceLength
		end := begin + pieceLength
		if end > length {
			end = length
		}
		hashes[i] = sha1.Sum(content[begin:end])
	}
	return content, hashes
}

// serveContent speaks enough of the peer protocol to seed the given
// contents: handshake, full bitfield, unchoke, then answer every request.
func serveContent(content []byte, pieceLength int, numPieces int) func(conn net.Conn) {
	return func(conn net.Conn) {
		if err := answerHandshake(conn, testInfoHash); err != nil {
			return
		}

		bf := make(Bitfield, (numPieces+7)/8)
		for i := 0; i < numPieces; i++ {
			bf.SetPiece(i)
		}
		conn.Write((&Message{Type: MsgBitfield, Payload: bf}).Serialize())
		conn.Write((&Message{Type: MsgUnchoke}).Serialize())

		for {
			msg, err := ReadMessage(conn)
			if err != nil {
				return
			}
			if msg.Type != MsgRequest || len(msg.Payload) != 12 {
				continue
			}
			index := int(binary.BigEndian.Uint32(msg.Payload[0:4]))
			begin := int(binary.BigEndian.Uint32(msg.Payload[4:8]))
			length := int(binary.BigEndian.Uint32(msg.Payload[8:12]))

			offset := index*pieceLength + begin
			block := content[offset : offset+length]
			payload := make([]byte, 8+len(block))
			binary.BigEndian.PutUint32(payload[0:4], uint32(index))
			binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
			copy(payload[8:], block)
			conn.Write((&Message{Type: MsgPiece, Payload: payload}).Serialize())
		}
	}
}

func TestCheckIntegrity(t *testing.T) {
	buf := []byte("some piece data")
	pw := &pieceWork{index: 3, hash: sha1.Sum(buf), length: len(buf)}
	assert.NoError(t, checkIntegrity(pw, buf))

	corrupted := append([]byte(nil), buf...)
	corrupted[0] ^= 0xff
	assert.Error(t, checkIntegrity(pw, corrupted))
}

func TestAttemptDownloadPiece(t *testing.T) {
	pieceLength := 40000 // three blocks, last one short
	content, hashes := makeTestContent(pieceLength, pieceLength)

	peer := startFakePeer(t, serveContent(content, pieceLength, 1))
	c, err := NewClient(peer, testPeerID, testInfoHash)
	require.NoError(t, err)
	defer c.Close()
	c.Choked = false

	pw := &pieceWork{index: 0, hash: hashes[0], length: pieceLength}
	buf, err := attemptDownloadPiece(c, pw)
	require.NoError(t, err)
	assert.Equal(t, content, buf)
	assert.NoError(t, checkIntegrity(pw, buf))
}

func TestSwarmDownload(t *testing.T) {
	pieceLength := 16384
	length := 40000 // three pieces, final one 7232 bytes
	content, hashes := makeTestContent(length, pieceLength)

	tor := &TorrentFile{
		InfoHash:    testInfoHash,
		PieceHashes: hashes,
		PieceLength: pieceLength,
		Length:      length,
		Name:        "swarm-test",
	}

	peer := startFakePeer(t, serveContent(content, pieceLength, tor.NumPieces()))

	var mu sync.Mutex
	seen := map[int]bool{}
	swarm := &Swarm{
		Peers:   []Peer{peer},
		PeerID:  testPeerID,
		Torrent: tor,
		OnPiece: func(index, completed, total int) {
			mu.Lock()
			seen[index] = true
			mu.Unlock()
			assert.Equal(t, 3, total)
		},
	}

	buf, err := swarm.Download()
	require.NoError(t, err)
	assert.Equal(t, content, buf)
	assert.Len(t, seen, 3)

	// Every piece-sized window of the output hashes to its expected value
	for i := 0; i < tor.NumPieces(); i++ {
		begin, end := tor.pieceBounds(i)
		assert.Equal(t, hashes[i], sha1.Sum(buf[begin:end]))
	}
}

func TestSwarmDownloadMultiplePeers(t *testing.T) {
	pieceLength := 8192
	length := 50000 // seven pieces
	content, hashes := makeTestContent(length, pieceLength)

	tor := &TorrentFile{
		InfoHash:    testInfoHash,
		PieceHashes: hashes,
		PieceLength: pieceLength,
		Length:      length,
		Name:        "swarm-multi",
	}

	peers := []Peer{
		startFakePeer(t, serveContent(content, pieceLength, tor.NumPieces())),
		startFakePeer(t, serveContent(content, pieceLength, tor.NumPieces())),
		startFakePeer(t, serveContent(content, pieceLength, tor.NumPieces())),
	}

	swarm := &Swarm{Peers: peers, PeerID: testPeerID, Torrent: tor}
	buf, err := swarm.Download()
	require.NoError(t, err)
	assert.Equal(t, content, buf)
}

func TestSwarmNoPeersRemaining(t *testing.T) {
	_, hashes := makeTestContent(100, 100)
	tor := &TorrentFile{
		InfoHash:    testInfoHash,
		PieceHashes: hashes,
		PieceLength: 100,
		Length:      100,
		Name:        "swarm-dead",
	}

	// A peer that hangs up before the handshake completes
	peer := startFakePeer(t, func(conn net.Conn) {})

	swarm := &Swarm{Peers: []Peer{peer}, PeerID: testPeerID, Torrent: tor}
	_, err := swarm.Download()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no peers remaining")
}
