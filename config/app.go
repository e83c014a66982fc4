package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	DownloadDir string
	ListenPort  uint16
	DB          *DBConfig
}

func NewAppConfig() *AppConfig {
	downloadDir := os.Getenv("DOWNLOAD_DIR")
	if downloadDir == "" {
		downloadDir = "storage/downloads"
	}

	listenPort := uint16(6881)
	if portStr := os.Getenv("LISTEN_PORT"); portStr != "" {
		if port, err := strconv.ParseUint(portStr, 10, 16); err == nil {
			listenPort = uint16(port)
		}
	}

	dbConf := NewDBConfig()

	return &AppConfig{
		DownloadDir: downloadDir,
		ListenPort:  listenPort,
		DB:          dbConf,
	}
}

var Main *AppConfig

func init() {
	_ = godotenv.Load()
	Main = NewAppConfig()
}
