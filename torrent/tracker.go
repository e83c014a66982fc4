package torrent

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jackpal/bencode-go"
	"github.com/rs/zerolog/log"
)

// trackerTimeout bounds the whole announce round trip.
const trackerTimeout = 15 * time.Second

type trackerResponse struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int    `bencode:"interval"`
	Peers         string `bencode:"peers"`
}

// BuildTrackerURL assembles the announce URL. info_hash and peer_id carry
// their raw bytes, percent-encoded byte for byte.
func (t *TorrentFile) BuildTrackerURL(peerID [20]byte, port uint16) (string, error) {
	base, err := url.Parse(t.Announce)
	if err != nil {
		return "", fmt.Errorf("invalid announce url %q: %w", t.Announce, err)
	}
	params := url.Values{
		"info_hash":  []string{string(t.InfoHash[:])},
		"peer_id":    []string{string(peerID[:])},
		"port":       []string{strconv.Itoa(int(port))},
		"uploaded":   []string{"0"},
		"downloaded": []string{"0"},
		"compact":    []string{"1"},
		"left":       []string{strconv.Itoa(t.Length)},
	}
	base.RawQuery = params.Encode()
	return base.String(), nil
}

// RequestPeers announces to the tracker and returns the peer endpoints it
// replied with.
func RequestPeers(t *TorrentFile, peerID [20]byte, port uint16) ([]Peer, error) {
	trackerURL, err := t.BuildTrackerURL(peerID, port)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("url", t.Announce).Msg("Announcing to tracker")

	cli := resty.New().SetTimeout(trackerTimeout)
	resp, err := cli.R().Get(trackerURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("tracker returned status %d: %s", resp.StatusCode(), resp.String())
	}

	tr := trackerResponse{}
	err = bencode.Unmarshal(bytes.NewReader(resp.Body()), &tr)
	if err != nil {
		return nil, fmt.Errorf("error decoding tracker response: %w", err)
	}
	if tr.FailureReason != "" {
		return nil, fmt.Errorf("tracker refused announce: %s", tr.FailureReason)
	}
	log.Debug().Int("interval", tr.Interval).Msg("Tracker announce ok")

	return UnmarshalPeers([]byte(tr.Peers))
}
