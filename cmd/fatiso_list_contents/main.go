package main

import (
	"fmt"
	"os"

	"path/filepath"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fatiso"
)

type rootParameters struct {
	Filepath       string `short:"f" long:"filepath" description:"File-path of FAT or ISO image" required:"true"`
	Partition      int    `short:"p" long:"partition" description:"Partition index (0-3)" default:"0"`
	FilenameFilter string `short:"m" long:"pattern" description:"Filename filter"`
	ShowDetail     bool   `short:"d" long:"detail" description:"Show additional entry detail"`
}

var (
	rootArguments = new(rootParameters)
)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	f, err := os.Open(rootArguments.Filepath)
	log.PanicIf(err)

	defer f.Close()

	dev := fatiso.NewFileSectorDevice(f)

	fs, err := fatiso.Mount(dev, rootArguments.Partition)
	log.PanicIf(err)

	cb := func(fullPath string, entry fatiso.DirectoryEntry) (err error) {
		if rootArguments.FilenameFilter != "" {
			// The paths are separated with Windows-standard backward-slashes
			// and won't necessarily split correctly on all platforms, so
			// match on the bare entry name.
			isMatched, err := filepath.Match(rootArguments.FilenameFilter, entry.Name)
			log.PanicIf(err)

			if isMatched != true {
				return nil
			}
		}

		if rootArguments.ShowDetail == true {
			fmt.Printf("## %s\n", fullPath)
			fmt.Printf("\n")

			entry.Dump()
		} else {
			fmt.Printf("%15s %5s %s\n", humanize.Comma(int64(entry.Size)), entry.Kind, fullPath)
		}

		return nil
	}

	err = fs.EnumerateDisk(cb)
	log.PanicIf(err)
}
