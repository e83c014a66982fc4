package torrent

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Constants for the BitTorrent peer wire protocol
const (
	ProtocolIdentifier = "BitTorrent protocol"
	BlockSize          = 16 * 1024 // 16 KiB block size for requests
	MaxBacklog         = 5         // Number of block requests to keep pipelined
)

// MessageType identifies the type of a BitTorrent message.
type MessageType uint8

// Message types defined by the BitTorrent protocol.
const (
	MsgChoke         MessageType = 0
	MsgUnchoke       MessageType = 1
	MsgInterested    MessageType = 2
	MsgNotInterested MessageType = 3
	MsgHave          MessageType = 4
	MsgBitfield      MessageType = 5
	MsgRequest       MessageType = 6
	MsgPiece         MessageType = 7
	MsgCancel        MessageType = 8
	MsgKeepAlive     MessageType = 9 // In-memory only, never written as an id
)

// Message represents a generic BitTorrent message.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Handshake represents the initial handshake message.
type Handshake struct {
	Pstrlen  uint8
	Pstr     string
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake creates a new Handshake message with the canonical pstr.
func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{
		Pstrlen:  uint8(len(ProtocolIdentifier)),
		Pstr:     ProtocolIdentifier,
		InfoHash: infoHash,
		PeerID:   peerID,
	}
}

// Serialize converts the Handshake struct into a byte slice.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, 49+len(h.Pstr))
	buf[0] = h.Pstrlen
	copy(buf[1:], h.Pstr)
	copy(buf[1+len(h.Pstr):], h.Reserved[:])
	copy(buf[1+len(h.Pstr)+8:], h.InfoHash[:])
	copy(buf[1+len(h.Pstr)+8+20:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and parses a Handshake message from the reader.
// Any pstrlen >= 1 is accepted; only a zero pstrlen is malformed.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	lengthBuf := make([]byte, 1)
	_, err := io.ReadFull(r, lengthBuf)
	if err != nil {
		return nil, err
	}
	pstrlen := int(lengthBuf[0])
	if pstrlen == 0 {
		return nil, fmt.Errorf("malformed handshake: pstrlen cannot be 0")
	}

	handshakeBuf := make([]byte, 48+pstrlen)
	_, err = io.ReadFull(r, handshakeBuf)
	if err != nil {
		return nil, err
	}

	var infoHash, peerID [20]byte
	pstr := string(handshakeBuf[:pstrlen])
	copy(infoHash[:], handshakeBuf[pstrlen+8:pstrlen+8+20])
	copy(peerID[:], handshakeBuf[pstrlen+8+20:])

	h := &Handshake{
		Pstrlen:  uint8(pstrlen),
		Pstr:     pstr,
		InfoHash: infoHash,
		PeerID:   peerID,
	}
	copy(h.Reserved[:], handshakeBuf[pstrlen:pstrlen+8])

	return h, nil
}

// Serialize converts a Message struct into a byte slice for sending.
// Format: <length prefix (4 bytes)><message ID (1 byte)><payload>
// KeepAlive messages serialize to a bare zero length prefix.
func (m *Message) Serialize() []byte {
	if m.Type == MsgKeepAlive && len(m.Payload) == 0 {
		return make([]byte, 4) // Length prefix of 0
	}
	length := uint32(1 + len(m.Payload)) // Message ID + Payload length
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.Type)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads a single framed message from the connection. A zero
// length prefix decodes to a KeepAlive message.
func ReadMessage(r io.Reader) (*Message, error) {
	lengthBuf := make([]byte, 4)
	_, err := io.ReadFull(r, lengthBuf)
	if err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	if length == 0 {
		return &Message{Type: MsgKeepAlive}, nil
	}

	messageBuf := make([]byte, length)
	_, err = io.ReadFull(r, messageBuf)
	if err != nil {
		return nil, err
	}

	m := &Message{
		Type:    MessageType(messageBuf[0]),
		Payload: messageBuf[1:],
	}
	return m, nil
}

// FormatRequest creates the payload for a Request message.
func FormatRequest(index, begin, length int) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return payload
}

// FormatHave creates the payload for a Have message.
func FormatHave(index int) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return payload
}

// ParsePiece validates a Piece message against the piece being downloaded
// and copies its block into buf at the offset the peer sent. It returns the
// number of block bytes written.
func ParsePiece(index int, buf []byte, msg *Message) (int, error) {
	if msg.Type != MsgPiece {
		return 0, fmt.Errorf("expected piece (id %d), got id %d", MsgPiece, msg.Type)
	}
	if len(msg.Payload) < 8 {
		return 0, fmt.Errorf("piece payload too short: %d bytes", len(msg.Payload))
	}
	parsedIndex := int(binary.BigEndian.Uint32(msg.Payload[0:4]))
	if parsedIndex != index {
		return 0, fmt.Errorf("unexpected piece index: expected %d, got %d", index, parsedIndex)
	}
	begin := int(binary.BigEndian.Uint32(msg.Payload[4:8]))
	if begin >= len(buf) {
		return 0, fmt.Errorf("begin offset too high: %d >= %d", begin, len(buf))
	}
	data := msg.Payload[8:]
	if begin+len(data) > len(buf) {
		return 0, fmt.Errorf("data too long for offset: %d bytes at %d", len(data), begin)
	}
	copy(buf[begin:], data)
	return len(data), nil
}

// ParseHave extracts the piece index from a Have message payload.
func ParseHave(msg *Message) (int, error) {
	if msg.Type != MsgHave {
		return 0, fmt.Errorf("expected have (id %d), got id %d", MsgHave, msg.Type)
	}
	if len(msg.Payload) != 4 {
		return 0, fmt.Errorf("have payload invalid length: %d", len(msg.Payload))
	}
	return int(binary.BigEndian.Uint32(msg.Payload)), nil
}

// Bitfield represents the pieces a peer has, one bit per piece index,
// most significant bit first within each byte.
type Bitfield []byte

// HasPiece checks if the bitfield indicates the peer has a specific piece.
// Indices past the end of the bitfield read as not present.
func (bf Bitfield) HasPiece(index int) bool {
	byteIndex := index / 8
	offset := index % 8
	if byteIndex < 0 || byteIndex >= len(bf) {
		return false
	}
	return bf[byteIndex]>>(7-offset)&1 != 0
}

// SetPiece marks a piece as available in the bitfield. Indices past the end
// are ignored.
func (bf Bitfield) SetPiece(index int) {
	byteIndex := index / 8
	offset := index % 8
	if byteIndex < 0 || byteIndex >= len(bf) {
		return
	}
	bf[byteIndex] |= 1 << (7 - offset)
}
