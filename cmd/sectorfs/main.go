package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/fs"
	"github.com/sectorfs/sectorfs/internal/freemap"
	"github.com/sectorfs/sectorfs/internal/frontend"
)

// Config is the on-disk mount configuration, decoded with
// BurntSushi/toml.
type Config struct {
	Sectors    int64  `toml:"sectors"`
	AllowOther bool   `toml:"allow_other"`
	Debug      bool   `toml:"debug"`
	FSName     string `toml:"fs_name"`
}

func defaultConfig() Config {
	return Config{Sectors: freemap.MaxSectors, FSName: "sectorfs"}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

func main() {
	format := flag.Bool("format", false, "format the image before mounting")
	configPath := flag.String("config", "", "path to a sectorfs.toml mount configuration")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Printf("usage: %s IMAGE MOUNTPOINT\n", path.Base(os.Args[0]))
		fmt.Printf("\noptions:\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	imagePath := flag.Arg(0)
	mountpoint := flag.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("sectorfs: loading config: %v", err)
	}

	var dev device.Device
	if *format {
		dev, err = device.CreateFileDevice(imagePath, int(cfg.Sectors))
	} else {
		dev, err = device.OpenFileDevice(imagePath)
	}
	if err != nil {
		log.Fatalf("sectorfs: opening image: %v", err)
	}

	var fsys *fs.Filesystem
	if *format {
		fsys, err = fs.Format(dev)
	} else {
		fsys, err = fs.Open(dev)
	}
	if err != nil {
		log.Fatalf("sectorfs: mounting filesystem: %v", err)
	}

	root := frontend.Root(fsys)
	opts := &gofs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: cfg.AllowOther,
			Name:       cfg.FSName,
			FsName:     cfg.FSName,
			Debug:      cfg.Debug,
		},
	}
	opts.EntryTimeout = durationPtr(time.Second)
	opts.AttrTimeout = durationPtr(time.Second)

	server, err := gofs.Mount(mountpoint, root, opts)
	if err != nil {
		log.Fatalf("sectorfs: mount failed: %v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Printf("sectorfs: unmounting %s", mountpoint)
		server.Unmount()
	}()

	log.Printf("sectorfs: mounted %s at %s (%d free sectors)", imagePath, mountpoint, fsys.Free())
	server.Wait()

	if err := fsys.Shutdown(); err != nil {
		log.Fatalf("sectorfs: shutdown: %v", err)
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
