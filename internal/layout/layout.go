// Package layout loads board layout metadata (matrix size, physical key
// layout, LED placement and keymap layers) and derives LampArray attributes
// from it.
package layout

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// NoLED marks a matrix location without an LED.
const NoLED = -1

// LED flag bits as used in board LED configs.
const (
	LEDFlagModifier  uint8 = 0x01
	LEDFlagUnderglow uint8 = 0x02
	LEDFlagKeylight  uint8 = 0x04
	LEDFlagIndicator uint8 = 0x08
)

// MaxLayers is the number of layers a layer state bitmask can address.
const MaxLayers = 32

// Key is one physical key in key units (1u = one key pitch).
type Key struct {
	X float64  `yaml:"x"`
	Y float64  `yaml:"y"`
	W *float64 `yaml:"w"`
	H *float64 `yaml:"h"`
}

func (k Key) right() float64 {
	if k.W == nil {
		return k.X + 1
	}
	return k.X + *k.W
}

func (k Key) bottom() float64 {
	if k.H == nil {
		return k.Y + 1
	}
	return k.Y + *k.H
}

// LED is one addressable LED. X is 0..224 and Y is 0..64 with Y growing
// downwards. Matrix is the [row, col] of the key the LED sits under, empty
// for LEDs that have no key.
type LED struct {
	Matrix []int `yaml:"matrix" json:"matrix,omitempty"`
	X      uint8 `yaml:"x" json:"x"`
	Y      uint8 `yaml:"y" json:"y"`
	Flags  uint8 `yaml:"flags" json:"flags"`
}

// Underglow reports whether the LED is an underglow LED.
func (l LED) Underglow() bool {
	return l.Flags&LEDFlagUnderglow != 0
}

// file is the on-disk layout document. JSON documents are accepted too.
type file struct {
	Name   string `yaml:"name"`
	Matrix struct {
		Rows int `yaml:"rows"`
		Cols int `yaml:"cols"`
	} `yaml:"matrix_size"`
	Keys   []Key        `yaml:"keys"`
	LEDs   []LED        `yaml:"leds"`
	Layers [][][]string `yaml:"layers"`
}

// Layout is a validated board layout.
type Layout struct {
	Name string
	Rows int
	Cols int
	// Width and Height are the estimated board size in key units.
	Width  float64
	Height float64
	LEDs   []LED

	matrixCo [][]int
	keymap   [][][]Keycode
}

// Load reads and parses a layout file.
func Load(path string, logger *slog.Logger) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	logger.Info("layout loaded", "name", l.Name, "matrix", fmt.Sprintf("%dx%d", l.Rows, l.Cols),
		"leds", len(l.LEDs), "layers", len(l.keymap))
	return l, nil
}

// Parse parses and validates a layout document.
func Parse(data []byte) (*Layout, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	if f.Matrix.Rows <= 0 || f.Matrix.Cols <= 0 {
		return nil, fmt.Errorf("matrix_size must be positive, got %dx%d", f.Matrix.Rows, f.Matrix.Cols)
	}
	if len(f.LEDs) > 0xFFFF {
		return nil, fmt.Errorf("too many leds: %d", len(f.LEDs))
	}
	if len(f.Layers) > MaxLayers {
		return nil, fmt.Errorf("too many layers: %d (max %d)", len(f.Layers), MaxLayers)
	}

	l := &Layout{
		Name: f.Name,
		Rows: f.Matrix.Rows,
		Cols: f.Matrix.Cols,
		LEDs: f.LEDs,
	}

	for _, k := range f.Keys {
		if r := k.right(); r > l.Width {
			l.Width = r
		}
		if b := k.bottom(); b > l.Height {
			l.Height = b
		}
	}
	if len(f.Keys) == 0 {
		l.Width = float64(l.Cols)
		l.Height = float64(l.Rows)
	}

	l.matrixCo = make([][]int, l.Rows)
	for r := range l.matrixCo {
		l.matrixCo[r] = make([]int, l.Cols)
		for c := range l.matrixCo[r] {
			l.matrixCo[r][c] = NoLED
		}
	}
	for i, led := range f.LEDs {
		if len(led.Matrix) == 0 {
			continue
		}
		if len(led.Matrix) != 2 {
			return nil, fmt.Errorf("led %d: matrix must be [row, col]", i)
		}
		row, col := led.Matrix[0], led.Matrix[1]
		if row < 0 || row >= l.Rows || col < 0 || col >= l.Cols {
			return nil, fmt.Errorf("led %d: matrix [%d, %d] outside %dx%d", i, row, col, l.Rows, l.Cols)
		}
		if l.matrixCo[row][col] != NoLED {
			return nil, fmt.Errorf("led %d: matrix [%d, %d] already used by led %d", i, row, col, l.matrixCo[row][col])
		}
		l.matrixCo[row][col] = i
	}

	for li, layer := range f.Layers {
		if len(layer) != l.Rows {
			return nil, fmt.Errorf("layer %d: %d rows, want %d", li, len(layer), l.Rows)
		}
		codes := make([][]Keycode, l.Rows)
		for r, row := range layer {
			if len(row) != l.Cols {
				return nil, fmt.Errorf("layer %d row %d: %d keys, want %d", li, r, len(row), l.Cols)
			}
			codes[r] = make([]Keycode, l.Cols)
			for c, name := range row {
				kc, err := ParseKeycode(name)
				if err != nil {
					return nil, fmt.Errorf("layer %d [%d, %d]: %w", li, r, c, err)
				}
				codes[r][c] = kc
			}
		}
		l.keymap = append(l.keymap, codes)
	}
	return l, nil
}

// LampCount returns the number of LEDs.
func (l *Layout) LampCount() uint16 {
	return uint16(len(l.LEDs))
}

// Layers returns the number of keymap layers.
func (l *Layout) Layers() int {
	return len(l.keymap)
}

// MatrixLocation returns the first matrix location, scanning row-major,
// whose LED index equals led.
func (l *Layout) MatrixLocation(led int) (row, col int, ok bool) {
	for r := range l.matrixCo {
		for c, idx := range l.matrixCo[r] {
			if idx == led {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// KeycodeAt returns the keycode at a keymap location. Missing layers and
// locations read as KC_NO.
func (l *Layout) KeycodeAt(layer, row, col int) Keycode {
	if layer < 0 || layer >= len(l.keymap) {
		return KC_NO
	}
	if row < 0 || row >= l.Rows || col < 0 || col >= l.Cols {
		return KC_NO
	}
	return l.keymap[layer][row][col]
}
