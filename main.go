package main

import (
	"github.com/discflux/floppy/adapter"

	_ "github.com/discflux/floppy/greaseweazle"
	_ "github.com/discflux/floppy/kryoflux"
	_ "github.com/discflux/floppy/supercardpro"
)

func main() {
	adapter.Execute()
}
