package db

import (
	"btget/config"
	"btget/db/models"
	"btget/torrent"
	"encoding/hex"

	"github.com/gofrs/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func Init() (*Database, error) {
	db, err := gorm.Open(sqlite.Open(config.Main.DB.Path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&models.Download{}, &models.Piece{}, &models.Tracker{})
	if err != nil {
		return nil, err
	}

	return &Database{
		db: db,
	}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDownload records a torrent in the state database, creating piece and
// tracker rows on first sight. A torrent is identified by its info hash; a
// repeated download reuses the existing record.
func (d *Database) CreateDownload(tor *torrent.TorrentFile, torrentPath, outputPath string) (*models.Download, error) {
	download := &models.Download{}
	tx := d.db.Where("info_hash = ?", tor.InfoHashString()).First(download)
	if tx.Error == nil {
		return d.loadDownload(download)
	}

	sessionID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	download = &models.Download{
		SessionID:       sessionID.String(),
		InfoHash:        tor.InfoHashString(),
		Name:            tor.Name,
		TorrentFilename: torrentPath,
		OutputPath:      outputPath,
		Status:          models.DownloadInProgress,
		TotalSize:       int64(tor.Length),
	}
	if err := d.db.Create(download).Error; err != nil {
		return nil, err
	}

	for index, pieceHash := range tor.PieceHashes {
		piece := &models.Piece{
			DownloadID: download.ID,
			Index:      index,
			Hash:       hex.EncodeToString(pieceHash[:]),
		}
		if err := d.db.Create(piece).Error; err != nil {
			return nil, err
		}
	}

	tracker := &models.Tracker{
		DownloadID: download.ID,
		Announce:   tor.Announce,
		Status:     models.TrackerAnnouncing,
	}
	if err := d.db.Create(tracker).Error; err != nil {
		return nil, err
	}

	return d.loadDownload(download)
}

func (d *Database) loadDownload(download *models.Download) (*models.Download, error) {
	result := d.db.Preload("Trackers").Preload("Pieces").First(download)
	if result.Error != nil {
		return nil, result.Error
	}
	return download, nil
}

func (d *Database) UpdateTracker(tracker *models.Tracker) error {
	return d.db.Save(tracker).Error
}

// MarkPieceDownloaded flips one piece row to done.
func (d *Database) MarkPieceDownloaded(downloadID uint, index int) error {
	return d.db.Model(&models.Piece{}).
		Where("download_id = ? AND `index` = ?", downloadID, index).
		Update("is_downloaded", true).Error
}
