package models

import "gorm.io/gorm"

type Download struct {
	gorm.Model
	SessionID       string `gorm:"uniqueIndex"`
	InfoHash        string `gorm:"uniqueIndex"`
	Name            string
	TorrentFilename string
	OutputPath      string
	Status          DownloadStatus
	Progress        int
	TotalSize       int64
	CompletedAt     int64

	Pieces   []Piece
	Trackers []Tracker
}

type DownloadStatus = string

const (
	DownloadInvalid    DownloadStatus = "invalid"
	DownloadInProgress DownloadStatus = "downloading"
	DownloadComplete   DownloadStatus = "complete"
	DownloadError      DownloadStatus = "error"
)

type Piece struct {
	ID           uint `gorm:"primaryKey"`
	DownloadID   uint
	Index        int
	Hash         string
	IsDownloaded bool
}

type Tracker struct {
	ID         uint `gorm:"primaryKey"`
	DownloadID uint
	Announce   string
	Status     TrackerStatus
	LastCheck  int64
	LastError  string
	Interval   int
	PeerCount  int
}

type TrackerStatus = string

const (
	TrackerInvalid    TrackerStatus = "invalid"
	TrackerAnnouncing TrackerStatus = "announcing"
	TrackerError      TrackerStatus = "error"
	TrackerComplete   TrackerStatus = "complete"
)
