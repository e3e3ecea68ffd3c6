package ui

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/emu"
)

const (
	screenW = 160
	screenH = 144
)

// ~16.74 ms of simulated time per 60 Hz host tick (one DMG frame).
const frameMS = 70224.0 / 4194.304

type App struct {
	cfg Config
	m   *emu.Machine

	tex       *ebiten.Image
	pix       []byte // RGBA scratch
	lastFrame uint64

	paused bool
	fast   bool
	muted  bool

	audioPlayer *audio.Player

	showMenu bool
	menuIdx  int

	statePath string
	savPath   string
}

var menuEntries = []string{
	"Save state",
	"Load state",
	"Reset",
	"Next palette",
	"Close",
}

// Built-in palettes the menu cycles through.
var palettes = [][4][3]byte{
	{{0xE0, 0xF8, 0xD0}, {0x88, 0xC0, 0x70}, {0x34, 0x68, 0x56}, {0x08, 0x18, 0x20}},
	{{0xFF, 0xFF, 0xFF}, {0xC0, 0xC0, 0xC0}, {0x60, 0x60, 0x60}, {0x00, 0x00, 0x00}},
	{{0xF8, 0xE8, 0xC8}, {0xD8, 0x90, 0x48}, {0xA0, 0x50, 0x30}, {0x30, 0x18, 0x10}},
	{{0xE0, 0xE8, 0xF8}, {0x88, 0xA0, 0xC8}, {0x40, 0x50, 0x80}, {0x10, 0x10, 0x28}},
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(screenW*cfg.Scale, screenH*cfg.Scale)
	return &App{
		cfg:       cfg,
		m:         m,
		pix:       make([]byte, screenW*screenH*4),
		statePath: "slot0.savestate",
	}
}

// SetStatePath changes where the quick save state lands.
func (a *App) SetStatePath(path string) { a.statePath = path }

// SetBatteryPath tells the app where to flush battery RAM on exit.
func (a *App) SetBatteryPath(path string) { a.savPath = path }

func (a *App) Run() error {
	if err := a.initAudio(); err != nil {
		return err
	}
	err := ebiten.RunGame(a)
	a.flushBattery()
	return err
}

func (a *App) flushBattery() {
	if a.savPath == "" {
		return
	}
	if data := a.m.SaveRAM(); len(data) > 0 {
		_ = os.WriteFile(a.savPath, data, 0o644)
	}
}

func (a *App) Update() error {
	a.m.SetButtons(emu.Buttons{
		Right:  ebiten.IsKeyPressed(ebiten.KeyRight),
		Left:   ebiten.IsKeyPressed(ebiten.KeyLeft),
		Up:     ebiten.IsKeyPressed(ebiten.KeyUp),
		Down:   ebiten.IsKeyPressed(ebiten.KeyDown),
		A:      ebiten.IsKeyPressed(ebiten.KeyZ),
		B:      ebiten.IsKeyPressed(ebiten.KeyX),
		Start:  ebiten.IsKeyPressed(ebiten.KeyEnter),
		Select: ebiten.IsKeyPressed(ebiten.KeyShiftRight),
	})

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
		a.m.SetPaused(a.paused)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		a.muted = !a.muted
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		_ = a.m.Reload()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		_ = a.m.SaveStateToFile(a.statePath)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF7) {
		_ = a.m.LoadStateFromFile(a.statePath)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		_ = a.saveScreenshot()
	}

	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)
	if a.fast {
		a.m.SetSpeed(4.0)
	} else {
		a.m.SetSpeed(1.0)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		a.showMenu = !a.showMenu
	}
	if a.showMenu {
		a.updateMenu()
		return nil
	}

	// frame-step while paused
	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.m.SetPaused(false)
		a.m.StepFrame()
		a.m.SetPaused(true)
	}

	a.m.StepFor(frameMS)
	a.capAudioLatency()
	return nil
}

func (a *App) updateMenu() {
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.menuIdx > 0 {
		a.menuIdx--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.menuIdx < len(menuEntries)-1 {
		a.menuIdx++
	}
	if !inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		return
	}
	switch a.menuIdx {
	case 0:
		_ = a.m.SaveStateToFile(a.statePath)
	case 1:
		_ = a.m.LoadStateFromFile(a.statePath)
	case 2:
		_ = a.m.Reload()
	case 3:
		a.cyclePalette()
	case 4:
		a.showMenu = false
	}
}

func (a *App) cyclePalette() {
	opts := a.m.Options()
	cur := 0
	for i, p := range palettes {
		if p == opts.Palette {
			cur = i
			break
		}
	}
	opts.Palette = palettes[(cur+1)%len(palettes)]
	a.m.UpdateOptions(opts)
}

// blit unpacks the 2bpp framebuffer through the active palette into the
// RGBA scratch buffer.
func (a *App) blit() {
	fb := a.m.Framebuffer()
	pal := a.m.Options().Palette
	for i, b := range fb {
		for p := 0; p < 4; p++ {
			shade := (b >> (p * 2)) & 3
			o := (i*4 + p) * 4
			a.pix[o+0] = pal[shade][0]
			a.pix[o+1] = pal[shade][1]
			a.pix[o+2] = pal[shade][2]
			a.pix[o+3] = 0xFF
		}
	}
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(screenW, screenH)
	}
	if fc := a.m.FrameCount(); fc != a.lastFrame || fc == 0 {
		a.blit()
		a.lastFrame = fc
	}
	a.tex.WritePixels(a.pix)
	screen.DrawImage(a.tex, nil)

	if a.showMenu {
		overlay := ebiten.NewImage(screenW, screenH)
		overlay.Fill(color.RGBA{0, 0, 0, 160})
		screen.DrawImage(overlay, nil)
		ebitenutil.DebugPrintAt(screen, "Menu:", 10, 8)
		for i, s := range menuEntries {
			prefix := "  "
			if i == a.menuIdx {
				prefix = "> "
			}
			ebitenutil.DebugPrintAt(screen, prefix+s, 10, 22+i*14)
		}
	}
	if err := a.m.Err(); err != nil {
		ebitenutil.DebugPrintAt(screen, "CPU halted: "+err.Error(), 4, screenH-16)
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return screenW, screenH }

func (a *App) saveScreenshot() error {
	a.blit()
	img := &image.RGBA{
		Pix:    append([]byte(nil), a.pix...),
		Stride: 4 * screenW,
		Rect:   image.Rect(0, 0, screenW, screenH),
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
