package torrent

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"btget/utils"

	"github.com/jackpal/bencode-go"
)

// TorrentFile holds the metainfo of a single-file torrent.
type TorrentFile struct {
	Announce    string
	InfoHash    [20]byte
	PieceHashes [][20]byte
	PieceLength int
	Length      int
	Name        string
}

type bencodeInfo struct {
	Pieces      string `bencode:"pieces"`
	PieceLength int    `bencode:"piece length"`
	Length      int    `bencode:"length"`
	Name        string `bencode:"name"`
}

type bencodeTorrent struct {
	Announce string      `bencode:"announce"`
	Info     bencodeInfo `bencode:"info"`
}

// Open reads and parses a metainfo file from disk.
func Open(path string) (*TorrentFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse decodes a bencoded metainfo stream into a TorrentFile.
func Parse(r io.Reader) (*TorrentFile, error) {
	bto := bencodeTorrent{}
	err := bencode.Unmarshal(r, &bto)
	if err != nil {
		return nil, fmt.Errorf("error decoding torrent file: %w", err)
	}
	return bto.toTorrentFile()
}

// hash computes the SHA-1 of the bencoded info dictionary. The raw digest
// identifies the torrent on the wire and at the tracker.
func (i *bencodeInfo) hash() ([20]byte, error) {
	var buf bytes.Buffer
	err := bencode.Marshal(&buf, *i)
	if err != nil {
		return [20]byte{}, err
	}
	return sha1.Sum(buf.Bytes()), nil
}

func (i *bencodeInfo) splitPieceHashes() ([][20]byte, error) {
	const hashLen = 20
	buf := []byte(i.Pieces)
	if len(buf)%hashLen != 0 {
		return nil, fmt.Errorf("malformed pieces of length %d", len(buf))
	}
	hashes := make([][20]byte, len(buf)/hashLen)
	for j := 0; j < len(hashes); j++ {
		copy(hashes[j][:], buf[j*hashLen:(j+1)*hashLen])
	}
	return hashes, nil
}

func (bto *bencodeTorrent) toTorrentFile() (*TorrentFile, error) {
	infoHash, err := bto.Info.hash()
	if err != nil {
		return nil, err
	}
	pieceHashes, err := bto.Info.splitPieceHashes()
	if err != nil {
		return nil, err
	}
	return &TorrentFile{
		Announce:    bto.Announce,
		InfoHash:    infoHash,
		PieceHashes: pieceHashes,
		PieceLength: bto.Info.PieceLength,
		Length:      bto.Info.Length,
		Name:        bto.Info.Name,
	}, nil
}

// InfoHashString returns the info hash in hex for logs and the database.
func (t *TorrentFile) InfoHashString() string {
	return hex.EncodeToString(t.InfoHash[:])
}

// NumPieces returns the number of pieces in the torrent.
func (t *TorrentFile) NumPieces() int {
	return len(t.PieceHashes)
}

func (t *TorrentFile) pieceBounds(index int) (begin, end int) {
	begin = index * t.PieceLength
	end = begin + t.PieceLength
	if end > t.Length {
		end = t.Length
	}
	return begin, end
}

// PieceSize returns the actual length of a piece; only the final piece may
// be shorter than the nominal piece length.
func (t *TorrentFile) PieceSize(index int) int {
	begin, end := t.pieceBounds(index)
	return end - begin
}

func (t *TorrentFile) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  Name: %s\n", t.Name))
	sb.WriteString(fmt.Sprintf("  InfoHash: %s\n", t.InfoHashString()))
	sb.WriteString(fmt.Sprintf("  Length: %s\n", utils.FormatBytes(int64(t.Length))))
	sb.WriteString(fmt.Sprintf("  Announce: %s\n", t.Announce))
	sb.WriteString(fmt.Sprintf("  PieceLength: %s\n", utils.FormatBytes(int64(t.PieceLength))))
	sb.WriteString(fmt.Sprintf("  Pieces: %d\n", t.NumPieces()))
	return sb.String()
}

// VerifyContent re-hashes an already downloaded file piece by piece and
// compares each window against the metainfo hashes.
func (t *TorrentFile) VerifyContent(contentPath string) error {
	file, err := os.Open(contentPath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() != int64(t.Length) {
		return fmt.Errorf("content is %d bytes, torrent expects %d", info.Size(), t.Length)
	}

	buf := make([]byte, t.PieceLength)
	for index := 0; index < t.NumPieces(); index++ {
		piece := buf[:t.PieceSize(index)]
		if _, err := io.ReadFull(file, piece); err != nil {
			return fmt.Errorf("reading piece %d: %w", index, err)
		}
		hash := sha1.Sum(piece)
		if !bytes.Equal(hash[:], t.PieceHashes[index][:]) {
			return fmt.Errorf("piece %d failed integrity check", index)
		}
	}
	return nil
}
