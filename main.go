package main

import (
	"os"

	"btget/config"
	"btget/db"
	"btget/torrent"

	"github.com/alecthomas/kong"
	"github.com/mitchellh/colorstring"
	"github.com/rs/zerolog/log"
)

const VERSION = "0.1.0"

var CLI struct {
	Download struct {
		Torrent string `arg:"" help:"Torrent file to download." type:"existingfile"`
		Output  string `arg:"" optional:"" help:"Output file path."`
	} `cmd:"" help:"Download a single-file torrent."`
	Info struct {
		Torrent string `arg:"" help:"Torrent file to inspect." type:"existingfile"`
	} `cmd:"" help:"Print torrent metainfo."`
	Verify struct {
		Torrent string `arg:"" help:"Torrent file to verify." type:"existingfile"`
		Content string `arg:"" help:"Path to the downloaded content." type:"existingfile"`
	} `cmd:"" help:"Verify downloaded content against a torrent file."`
}

var mainDB *db.Database

func main() {
	colorstring.Println("[cyan]btget[reset] v" + VERSION)
	initConfig()
	initLogging()
	defer shutdownLogging()

	ctx := kong.Parse(&CLI)
	switch ctx.Command() {
	case "download <torrent>", "download <torrent> <output>":
		initDB()
		err := DownloadTorrent(CLI.Download.Torrent, CLI.Download.Output)
		if err != nil {
			log.Error().Err(err).Msg("Error downloading torrent")
			os.Exit(1)
		}
	case "info <torrent>":
		tor, err := torrent.Open(CLI.Info.Torrent)
		if err != nil {
			log.Error().Err(err).Msg("Error reading torrent")
			os.Exit(1)
		}
		println(tor.String())
	case "verify <torrent> <content>":
		tor, err := torrent.Open(CLI.Verify.Torrent)
		if err != nil {
			log.Error().Err(err).Msg("Error reading torrent")
			os.Exit(1)
		}
		if err := tor.VerifyContent(CLI.Verify.Content); err != nil {
			log.Error().Err(err).Msg("Error verifying torrent")
			os.Exit(1)
		}
		println("Torrent verified successfully.")
	default:
		ctx.PrintUsage(false)
	}
}

func initConfig() {
	// create the download directory
	if err := os.MkdirAll(config.Main.DownloadDir, os.ModePerm); err != nil {
		log.Fatal().Err(err).Str("path", config.Main.DownloadDir).Msg("Failed to create download directory")
	}
}

func initDB() {
	var err error
	mainDB, err = db.Init()
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
}
