package torrent

import (
	"bytes"
	"fmt"
	"net"
	"time"
)

// Session deadlines. Handshake and the initial bitfield get short deadlines
// so dead peers are dropped quickly; the steady state is effectively
// unbounded and per-piece downloads tighten it again.
const (
	dialTimeout      = 3 * time.Second
	handshakeTimeout = 3 * time.Second
	bitfieldTimeout  = 5 * time.Second
	idleTimeout      = 1000 * time.Second
	pieceTimeout     = 30 * time.Second
)

// Client is one TCP session with a peer. A client is owned by a single
// worker; none of its methods may be called concurrently.
type Client struct {
	Conn     net.Conn
	Choked   bool
	Bitfield Bitfield
	peer     Peer
	infoHash [20]byte
	peerID   [20]byte
}

func completeHandshake(conn net.Conn, infoHash, peerID [20]byte) (*Handshake, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))

	req := NewHandshake(infoHash, peerID)
	_, err := conn.Write(req.Serialize())
	if err != nil {
		return nil, fmt.Errorf("failed to send handshake: %w", err)
	}

	res, err := ReadHandshake(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}
	if !bytes.Equal(res.InfoHash[:], infoHash[:]) {
		return nil, fmt.Errorf("unexpected infohash %x", res.InfoHash)
	}
	return res, nil
}

// receiveBitfield reads the peer's first message, which must be a bitfield.
// Peers that lead with anything else are dropped here.
func receiveBitfield(conn net.Conn) (Bitfield, error) {
	conn.SetDeadline(time.Now().Add(bitfieldTimeout))

	msg, err := ReadMessage(conn)
	if err != nil {
		return nil, err
	}
	if msg.Type != MsgBitfield {
		return nil, fmt.Errorf("expected bitfield (id %d), got id %d", MsgBitfield, msg.Type)
	}
	return Bitfield(msg.Payload), nil
}

// NewClient dials a peer, completes the handshake and receives the initial
// bitfield. The returned session starts out choked.
func NewClient(peer Peer, peerID, infoHash [20]byte) (*Client, error) {
	conn, err := net.DialTimeout("tcp", peer.String(), dialTimeout)
	if err != nil {
		return nil, err
	}

	_, err = completeHandshake(conn, infoHash, peerID)
	if err != nil {
		conn.Close()
		return nil, err
	}

	bf, err := receiveBitfield(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(idleTimeout))

	return &Client{
		Conn:     conn,
		Choked:   true,
		Bitfield: bf,
		peer:     peer,
		infoHash: infoHash,
		peerID:   peerID,
	}, nil
}

// Read reads and consumes one message from the session.
func (c *Client) Read() (*Message, error) {
	return ReadMessage(c.Conn)
}

// SendRequest asks the peer for a block of a piece.
func (c *Client) SendRequest(index, begin, length int) error {
	msg := Message{Type: MsgRequest, Payload: FormatRequest(index, begin, length)}
	_, err := c.Conn.Write(msg.Serialize())
	return err
}

// SendInterested tells the peer we want to download from it.
func (c *Client) SendInterested() error {
	msg := Message{Type: MsgInterested}
	_, err := c.Conn.Write(msg.Serialize())
	return err
}

// SendNotInterested tells the peer we have nothing to ask of it.
func (c *Client) SendNotInterested() error {
	msg := Message{Type: MsgNotInterested}
	_, err := c.Conn.Write(msg.Serialize())
	return err
}

// SendUnchoke tells the peer it may request from us.
func (c *Client) SendUnchoke() error {
	msg := Message{Type: MsgUnchoke}
	_, err := c.Conn.Write(msg.Serialize())
	return err
}

// SendChoke tells the peer to stop requesting from us.
func (c *Client) SendChoke() error {
	msg := Message{Type: MsgChoke}
	_, err := c.Conn.Write(msg.Serialize())
	return err
}

// SendHave announces a piece we just verified.
func (c *Client) SendHave(index int) error {
	msg := Message{Type: MsgHave, Payload: FormatHave(index)}
	_, err := c.Conn.Write(msg.Serialize())
	return err
}

// Close tears down the session connection.
func (c *Client) Close() error {
	return c.Conn.Close()
}
