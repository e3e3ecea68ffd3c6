package main

import (
	"archive/zip"
	"bytes"
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/emu"
	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/ui"
)

type cliFlags struct {
	ROMPath string
	Scale   int
	Title   string
	SaveRAM bool

	Headless bool
	Frames   int
	PNGOut   string
	WAVOut   string
	Expect   string // expected framebuffer CRC32 (hex)
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb, or .zip containing one)")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "dmg2025", "window title")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.WAVOut, "outwav", "", "write captured audio to WAV at path (headless)")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

// readROM loads a raw ROM or picks the first .gb/.gbc entry from a zip.
func readROM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".zip") {
		return data, nil
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		low := strings.ToLower(f.Name)
		if !strings.HasSuffix(low, ".gb") && !strings.HasSuffix(low, ".gbc") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("no .gb file inside %s", path)
}

const sampleRate = 48000

func runHeadless(m *emu.Machine, f cliFlags) error {
	frames := f.Frames
	if frames <= 0 {
		frames = 1
	}

	var pcm []int16
	start := time.Now()
	for i := 0; i < frames; i++ {
		m.StepFrame()
		if f.WAVOut != "" {
			pcm = append(pcm, m.AudioPull(sampleRate, sampleRate)...)
		}
	}
	dur := time.Since(start)

	pix := renderRGBA(m)
	crc := crc32.ChecksumIEEE(pix)
	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), float64(frames)/dur.Seconds(), crc)
	if err := m.Err(); err != nil {
		log.Printf("execution fault: %v", err)
	}

	if f.PNGOut != "" {
		if err := savePNG(pix, f.PNGOut); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", f.PNGOut)
	}
	if f.WAVOut != "" {
		if err := saveWAV(pcm, f.WAVOut); err != nil {
			return fmt.Errorf("write WAV: %w", err)
		}
		log.Printf("wrote %s (%d frames)", f.WAVOut, len(pcm)/2)
	}
	if f.Expect != "" {
		want := strings.TrimPrefix(strings.ToLower(f.Expect), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

// renderRGBA maps the packed 2bpp framebuffer through the active palette.
func renderRGBA(m *emu.Machine) []byte {
	fb := m.Framebuffer()
	pal := m.Options().Palette
	pix := make([]byte, 160*144*4)
	for i, b := range fb {
		for p := 0; p < 4; p++ {
			shade := (b >> (p * 2)) & 3
			o := (i*4 + p) * 4
			pix[o+0] = pal[shade][0]
			pix[o+1] = pal[shade][1]
			pix[o+2] = pal[shade][2]
			pix[o+3] = 0xFF
		}
	}
	return pix
}

func savePNG(pix []byte, path string) error {
	img := &image.RGBA{Pix: pix, Stride: 4 * 160, Rect: image.Rect(0, 0, 160, 144)}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func saveWAV(pcm []int16, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(pcm)),
	}
	for i, s := range pcm {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func main() {
	f := parseFlags()
	if f.ROMPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := readROM(f.ROMPath)
	if err != nil {
		log.Fatalf("read %s: %v", f.ROMPath, err)
	}

	m := emu.New(emu.Config{SampleRate: sampleRate})
	info, err := m.LoadCartridge(rom)
	if err != nil {
		log.Fatalf("load cart: %v", err)
	}
	h := m.Header()
	log.Printf("ROM: %q type=%s banks=%d ram=%dB hash=%08x battery=%v",
		info.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes, info.HeaderHash, info.HasBattery)

	// battery RAM lives next to the ROM, keyed by path
	var savPath string
	if f.SaveRAM && info.HasBattery {
		savPath = strings.TrimSuffix(f.ROMPath, ".gb") + ".sav"
		if data, err := os.ReadFile(savPath); err == nil {
			if err := m.LoadRAM(data); err != nil {
				log.Printf("ignoring %s: %v", savPath, err)
			} else {
				log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
			}
		}
	}

	if f.Headless {
		if err := runHeadless(m, f); err != nil {
			log.Fatal(err)
		}
		if savPath != "" {
			if data := m.SaveRAM(); len(data) > 0 {
				if err := os.WriteFile(savPath, data, 0o644); err == nil {
					log.Printf("wrote %s", savPath)
				}
			}
		}
		return
	}

	app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale, SampleRate: sampleRate}, m)
	app.SetStatePath(fmt.Sprintf("%08x.savestate", info.HeaderHash))
	if savPath != "" {
		app.SetBatteryPath(savPath)
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
