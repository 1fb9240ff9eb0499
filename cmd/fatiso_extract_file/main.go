package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fatiso"
)

type rootParameters struct {
	ImageFilepath   string `short:"f" long:"image-filepath" description:"File-path of FAT or ISO image" required:"true"`
	Partition       int    `short:"p" long:"partition" description:"Partition index (0-3)" default:"0"`
	ExtractFilepath string `short:"e" long:"extract-filepath" description:"Path inside the image (use backslashes)" required:"true"`
	OutputFilepath  string `short:"o" long:"output-filepath" description:"File-path to write to ('-' for STDOUT)" required:"true"`
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

	f, err := os.Open(rootArguments.ImageFilepath)
	log.PanicIf(err)

	defer f.Close()

	dev := fatiso.NewFileSectorDevice(f)

	fs, err := fatiso.Mount(dev, rootArguments.Partition)
	log.PanicIf(err)

	file, err := fs.OpenFile(rootArguments.ExtractFilepath)
	if err == fatiso.ErrNotFound {
		fmt.Printf("File not found.\n")
		os.Exit(2)
	}

	log.PanicIf(err)

	defer file.Close()

	var g *os.File

	if rootArguments.OutputFilepath == "-" {
		g = os.Stdout
	} else {
		var err error

		g, err = os.Create(rootArguments.OutputFilepath)
		log.PanicIf(err)

		defer func() {
			g.Close()
		}()
	}

	written := uint32(0)
	buffer := make([]byte, 32*1024)

	for {
		n, err := file.Read(buffer)

		if n > 0 {
			_, writeErr := g.Write(buffer[:n])
			log.PanicIf(writeErr)

			written += uint32(n)
		}

		if err == fatiso.ErrEndOfFile {
			break
		}

		log.PanicIf(err)
	}

	if rootArguments.OutputFilepath != "-" {
		fmt.Printf("(%d) bytes written.\n", written)
	}
}
