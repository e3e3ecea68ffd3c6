package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/emu"
)

// cpurunner drives serial-reporting test ROMs (blargg and friends) without a
// window and exits by pass/fail detection.

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	seconds := flag.Float64("seconds", 120, "max simulated seconds to run")
	auto := flag.Bool("auto", false, "auto-detect 'Passed' or 'Failed N tests' in serial output and exit 0/1")
	until := flag.String("until", "Passed", "stop when serial output contains this substring (case-insensitive); empty to disable")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s); 0 disables")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}

	m := emu.New(emu.Config{})
	info, err := m.LoadCartridge(rom)
	if err != nil {
		log.Fatalf("load cart: %v", err)
	}
	log.Printf("ROM: %q hash=%08x", info.Title, info.HeaderHash)

	var ser bytes.Buffer
	m.SetSerialWriter(io.MultiWriter(os.Stdout, &ser))

	failRe := regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}

	// advance in 4 ms slices so serial checks stay responsive
	const sliceMS = 4.0
	slices := int(*seconds * 1000 / sliceMS)
	for i := 0; i < slices; i++ {
		m.StepFor(sliceMS)
		if err := m.Err(); err != nil {
			fmt.Printf("\nExecution fault: %v\n", err)
			os.Exit(1)
		}

		s := ser.String()
		if *auto {
			if strings.Contains(strings.ToLower(s), "passed") {
				fmt.Printf("\nDetected PASS in serial output after %s.\n", time.Since(start).Truncate(time.Millisecond))
				os.Exit(0)
			}
			if mm := failRe.FindStringSubmatch(s); mm != nil {
				fmt.Printf("\nDetected %q in serial output.\n", mm[0])
				os.Exit(1)
			}
		} else if *until != "" {
			if strings.Contains(strings.ToLower(s), strings.ToLower(*until)) {
				fmt.Printf("\nDetected %q in serial output after %s.\n", *until, time.Since(start).Truncate(time.Millisecond))
				return
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			os.Exit(2)
		}
	}
	fmt.Printf("\nDone: simulated %.1fs, elapsed %s\n", *seconds, time.Since(start).Truncate(time.Millisecond))
	if *auto {
		os.Exit(2)
	}
}
