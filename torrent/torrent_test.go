package torrent

import (
	"bytes"
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMetainfo(t *testing.T, pieces []byte) (torrentData, infoData []byte) {
	t.Helper()
	var info bytes.Buffer
	info.WriteString("d6:lengthi40000e4:name8:test.txt12:piece lengthi16384e6:pieces")
	info.WriteString("60:")
	info.Write(pieces)
	info.WriteString("e")

	var data bytes.Buffer
	data.WriteString("d8:announce41:http://bttracker.debian.org:6969/announce4:info")
	data.Write(info.Bytes())
	data.WriteString("e")
	return data.Bytes(), info.Bytes()
}

func TestParseMetainfo(t *testing.T) {
	pieces := make([]byte, 60)
	for i := range pieces {
		pieces[i] = byte(i)
	}
	data, infoBytes := buildMetainfo(t, pieces)

	tor, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "http://bttracker.debian.org:6969/announce", tor.Announce)
	assert.Equal(t, "test.txt", tor.Name)
	assert.Equal(t, 40000, tor.Length)
	assert.Equal(t, 16384, tor.PieceLength)
	require.Equal(t, 3, tor.NumPieces())
	assert.Equal(t, pieces[0:20], tor.PieceHashes[0][:])
	assert.Equal(t, pieces[20:40], tor.PieceHashes[1][:])
	assert.Equal(t, pieces[40:60], tor.PieceHashes[2][:])

	// The info hash is the SHA-1 of the bencoded info dictionary, raw bytes
	assert.Equal(t, sha1.Sum(infoBytes), tor.InfoHash)
}

func TestParseMetainfoMalformedPieces(t *testing.T) {
	data := []byte("d8:announce41:http://bttracker.debian.org:6969/announce" +
		"4:infod6:lengthi40000e4:name8:test.txt12:piece lengthi16384e6:pieces10:0123456789ee")
	_, err := Parse(bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed pieces")
}

func TestParseMetainfoGarbage(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte("not bencode at all")))
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.torrent"))
	assert.Error(t, err)
}

func TestPieceSize(t *testing.T) {
	tor := &TorrentFile{
		PieceHashes: make([][20]byte, 3),
		PieceLength: 16384,
		Length:      40000,
	}
	assert.Equal(t, 16384, tor.PieceSize(0))
	assert.Equal(t, 16384, tor.PieceSize(1))
	assert.Equal(t, 7232, tor.PieceSize(2)) // final piece is short

	begin, end := tor.pieceBounds(2)
	assert.Equal(t, 32768, begin)
	assert.Equal(t, 40000, end)
}

func TestPieceSizeExactMultiple(t *testing.T) {
	tor := &TorrentFile{
		PieceHashes: make([][20]byte, 2),
		PieceLength: 16384,
		Length:      32768,
	}
	assert.Equal(t, 16384, tor.PieceSize(1)) // final piece is full-length
}

func TestVerifyContent(t *testing.T) {
	pieceLength := 16384
	length := 40000
	content, hashes := makeTestContent(length, pieceLength)

	tor := &TorrentFile{
		PieceHashes: hashes,
		PieceLength: pieceLength,
		Length:      length,
		Name:        "verify.bin",
	}

	path := filepath.Join(t.TempDir(), tor.Name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	assert.NoError(t, tor.VerifyContent(path))

	// Flip one byte in the middle piece
	corrupted := append([]byte(nil), content...)
	corrupted[20000] ^= 0xff
	require.NoError(t, os.WriteFile(path, corrupted, 0644))
	err := tor.VerifyContent(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "piece 1")

	// Truncated file is rejected before hashing
	require.NoError(t, os.WriteFile(path, content[:30000], 0644))
	assert.Error(t, tor.VerifyContent(path))
}
