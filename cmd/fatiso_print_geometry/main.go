package main

import (
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fatiso"
)

type rootParameters struct {
	Filepath  string `short:"f" long:"filepath" description:"File-path of FAT or ISO image" required:"true"`
	Partition int    `short:"p" long:"partition" description:"Partition index (0-3)" default:"0"`
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

	fs.Geometry().Dump()
}
