// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ezrec/sim86/emulator"
	"github.com/ezrec/sim86/x86"
)

func main() {
	var compile string
	var load string
	var output string
	var disassemble bool
	var verbose bool

	flag.StringVar(&compile, "c", "", ".asm file to assemble")
	flag.StringVar(&load, "l", "", "raw instruction stream to load")
	flag.StringVar(&output, "o", "", "Save assembled stream, do not execute")
	flag.BoolVar(&disassemble, "d", false, "Disassemble stream, do not execute")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	emu := emulator.NewEmulator()
	emu.Verbose = verbose

	// Compile a new instruction stream.
	if len(compile) != 0 {
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		err = emu.Assemble(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
	}

	// Load a raw instruction stream.
	if len(load) != 0 {
		stream, err := os.ReadFile(load)
		if err != nil {
			log.Fatalf("%v: %v", load, err)
		}
		emu.Program = &x86.Program{Lines: []x86.Line{{Code: stream}}}
	}

	if len(output) != 0 {
		err := os.WriteFile(output, emu.Program.Binary(), 0o644)
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		return
	}

	if disassemble {
		err := emu.Disassemble(os.Stdout)
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	emu.Reset()
	err := emu.Run()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Print(emu.String())
}
