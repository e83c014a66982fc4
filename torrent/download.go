package torrent

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Swarm downloads one torrent from a fixed set of peers. One worker
// goroutine is spawned per peer; workers pull piece work units from a shared
// queue and post verified pieces to a result channel the scheduler drains.
type Swarm struct {
	Peers   []Peer
	PeerID  [20]byte
	Torrent *TorrentFile

	// OnPiece, if set, is called from the scheduler goroutine after each
	// piece has been verified and copied into the output buffer.
	OnPiece func(index, completed, total int)
}

type pieceWork struct {
	index  int
	hash   [20]byte
	length int
}

type pieceResult struct {
	index int
	buf   []byte
}

type pieceProgress struct {
	index      int
	client     *Client
	buf        []byte
	downloaded int
	requested  int
	backlog    int
}

// readMessage consumes one message and folds it into the piece state.
// Messages other than choke/unchoke/have/piece are ignored.
func (state *pieceProgress) readMessage() error {
	msg, err := state.client.Read()
	if err != nil {
		return err
	}

	switch msg.Type {
	case MsgUnchoke:
		state.client.Choked = false
	case MsgChoke:
		state.client.Choked = true
	case MsgHave:
		index, err := ParseHave(msg)
		if err != nil {
			return err
		}
		state.client.Bitfield.SetPiece(index)
	case MsgPiece:
		n, err := ParsePiece(state.index, state.buf, msg)
		if err != nil {
			return err
		}
		state.downloaded += n
		state.backlog--
	}
	return nil
}

// attemptDownloadPiece fetches one piece over one session, keeping up to
// MaxBacklog block requests in flight while unchoked.
func attemptDownloadPiece(c *Client, pw *pieceWork) ([]byte, error) {
	state := pieceProgress{
		index:  pw.index,
		client: c,
		buf:    make([]byte, pw.length),
	}

	// A tighter deadline during the transfer gets unresponsive peers
	// unstuck; 30 seconds is plenty for a single piece.
	c.Conn.SetDeadline(time.Now().Add(pieceTimeout))
	defer c.Conn.SetDeadline(time.Now().Add(idleTimeout))

	for state.downloaded < pw.length {
		if !state.client.Choked {
			for state.backlog < MaxBacklog && state.requested < pw.length {
				blockSize := BlockSize
				if pw.length-state.requested < blockSize {
					blockSize = pw.length - state.requested
				}

				err := c.SendRequest(pw.index, state.requested, blockSize)
				if err != nil {
					return nil, err
				}
				state.backlog++
				state.requested += blockSize
			}
		}

		err := state.readMessage()
		if err != nil {
			return nil, err
		}
	}

	return state.buf, nil
}

func checkIntegrity(pw *pieceWork, buf []byte) error {
	hash := sha1.Sum(buf)
	if !bytes.Equal(hash[:], pw.hash[:]) {
		return fmt.Errorf("piece %d failed integrity check", pw.index)
	}
	return nil
}

// downloadWorker drains the work queue over a single peer session. Work the
// peer cannot serve goes back on the queue; any session error recycles the
// current unit and kills the worker.
func (s *Swarm) downloadWorker(peer Peer, workQueue chan *pieceWork, results chan *pieceResult) {
	c, err := NewClient(peer, s.PeerID, s.Torrent.InfoHash)
	if err != nil {
		log.Warn().Err(err).Str("peer", peer.String()).Msg("Could not handshake, disconnecting")
		return
	}
	defer c.Close()
	log.Debug().Str("peer", peer.String()).Msg("Completed handshake")

	c.SendUnchoke()
	c.SendInterested()

	for pw := range workQueue {
		if !c.Bitfield.HasPiece(pw.index) {
			workQueue <- pw
			continue
		}

		buf, err := attemptDownloadPiece(c, pw)
		if err != nil {
			log.Debug().Err(err).Str("peer", peer.String()).Int("piece", pw.index).Msg("Worker exiting")
			workQueue <- pw
			return
		}

		if err := checkIntegrity(pw, buf); err != nil {
			log.Warn().Err(err).Str("peer", peer.String()).Msg("Discarding corrupt piece")
			workQueue <- pw
			continue
		}

		c.SendHave(pw.index)
		results <- &pieceResult{index: pw.index, buf: buf}
	}
}

// Download runs the swarm until every piece has been verified and returns
// the assembled file buffer. It fails if every worker dies while pieces are
// still outstanding.
func (s *Swarm) Download() ([]byte, error) {
	t := s.Torrent
	numPieces := t.NumPieces()
	log.Info().Str("torrent", t.Name).Int("pieces", numPieces).Int("peers", len(s.Peers)).Msg("Starting download")

	// Both channels are sized so that sends never block: the queue holds at
	// most one unit per piece and each piece produces at most one result.
	workQueue := make(chan *pieceWork, numPieces)
	results := make(chan *pieceResult, numPieces)
	for index, hash := range t.PieceHashes {
		workQueue <- &pieceWork{index: index, hash: hash, length: t.PieceSize(index)}
	}

	var workers sync.WaitGroup
	workersDone := make(chan struct{})
	for _, peer := range s.Peers {
		workers.Add(1)
		go func(peer Peer) {
			defer workers.Done()
			s.downloadWorker(peer, workQueue, results)
		}(peer)
	}
	go func() {
		workers.Wait()
		close(workersDone)
	}()

	bar := progressbar.Default(int64(numPieces), "downloading")
	buf := make([]byte, t.Length)
	completed := 0
	for completed < numPieces {
		select {
		case res := <-results:
			begin, end := t.pieceBounds(res.index)
			copy(buf[begin:end], res.buf)
			completed++
			bar.Add(1)

			percent := float64(completed) / float64(numPieces) * 100
			log.Info().Int("piece", res.index).Msgf("(%0.2f%%) downloaded piece #%d", percent, res.index)
			if s.OnPiece != nil {
				s.OnPiece(res.index, completed, numPieces)
			}
		case <-workersDone:
			// Drain results posted before the last worker exited.
			for completed < numPieces {
				select {
				case res := <-results:
					begin, end := t.pieceBounds(res.index)
					copy(buf[begin:end], res.buf)
					completed++
					bar.Add(1)
					if s.OnPiece != nil {
						s.OnPiece(res.index, completed, numPieces)
					}
				default:
					return nil, fmt.Errorf("no peers remaining, %d of %d pieces downloaded", completed, numPieces)
				}
			}
		}
	}
	close(workQueue)

	log.Info().Str("torrent", t.Name).Msg("Download complete")
	return buf, nil
}
