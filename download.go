package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"btget/config"
	"btget/db/models"
	"btget/torrent"
	"btget/utils"

	"github.com/rs/zerolog/log"
)

// DownloadTorrent runs one complete download: parse the metainfo, record the
// download in the state database, announce to the tracker, drain the swarm
// and write the assembled file to outputPath. An empty outputPath defaults
// to the configured download directory and the torrent's name.
func DownloadTorrent(torrentFile string, outputPath string) error {
	log.Info().Msg("Downloading torrent: " + torrentFile)

	tor, err := torrent.Open(torrentFile)
	if err != nil {
		return err
	}
	log.Info().Msgf("Loaded torrent %s (%s, %d pieces)",
		tor.Name, utils.FormatBytes(int64(tor.Length)), tor.NumPieces())

	if outputPath == "" {
		outputPath = filepath.Join(config.Main.DownloadDir, tor.Name)
	}

	dlModel, err := mainDB.CreateDownload(tor, torrentFile, outputPath)
	if err != nil {
		return err
	}

	peerID, err := torrent.GeneratePeerID()
	if err != nil {
		return err
	}

	trackerModel := &dlModel.Trackers[0]
	peers, err := torrent.RequestPeers(tor, peerID, config.Main.ListenPort)
	trackerModel.LastCheck = time.Now().Unix()
	if err != nil {
		trackerModel.Status = models.TrackerError
		trackerModel.LastError = err.Error()
		mainDB.UpdateTracker(trackerModel)
		return fmt.Errorf("tracker announce failed: %w", err)
	}
	trackerModel.Status = models.TrackerComplete
	trackerModel.PeerCount = len(peers)
	mainDB.UpdateTracker(trackerModel)

	if len(peers) == 0 {
		return fmt.Errorf("tracker returned no peers")
	}

	dlModel.Status = models.DownloadInProgress
	mainDB.UpdateDownload(dlModel)

	swarm := &torrent.Swarm{
		Peers:   peers,
		PeerID:  peerID,
		Torrent: tor,
		OnPiece: func(index, completed, total int) {
			mainDB.MarkPieceDownloaded(dlModel.ID, index)
			dlModel.Progress = completed * 100 / total
		},
	}

	buf, err := swarm.Download()
	if err != nil {
		dlModel.Status = models.DownloadError
		mainDB.UpdateDownload(dlModel)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buf, 0644); err != nil {
		return err
	}

	dlModel.Status = models.DownloadComplete
	dlModel.Progress = 100
	dlModel.CompletedAt = time.Now().Unix()
	mainDB.UpdateDownload(dlModel)

	log.Info().Str("path", outputPath).Msg("Download completed successfully")
	return nil
}
