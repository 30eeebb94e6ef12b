package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// Keycode is a keymap keycode. Basic and modifier keycodes share their value
// with the HID Keyboard/Keypad usage page.
type Keycode uint16

const (
	KC_NO      Keycode = 0x0000
	KC_TRNS    Keycode = 0x0001
	KC_A       Keycode = 0x0004
	KC_EXSEL   Keycode = 0x00A4
	KC_MS_BTN1 Keycode = 0x00D1
	KC_MS_BTN5 Keycode = 0x00D5
	KC_LCTL    Keycode = 0x00E0
	KC_RGUI    Keycode = 0x00E7
)

// IsBasic reports whether k is in KC_A..KC_EXSEL.
func (k Keycode) IsBasic() bool {
	return k >= KC_A && k <= KC_EXSEL
}

// IsModifier reports whether k is in KC_LCTL..KC_RGUI.
func (k Keycode) IsModifier() bool {
	return k >= KC_LCTL && k <= KC_RGUI
}

// IsMouseButton reports whether k is in KC_MS_BTN1..KC_MS_BTN5.
func (k Keycode) IsMouseButton() bool {
	return k >= KC_MS_BTN1 && k <= KC_MS_BTN5
}

var keycodeNames = map[string]Keycode{
	"KC_NO": KC_NO, "XXXXXXX": KC_NO,
	"KC_TRNS": KC_TRNS, "KC_TRANSPARENT": KC_TRNS, "_______": KC_TRNS,

	"KC_ENTER": 0x28, "KC_ENT": 0x28,
	"KC_ESCAPE": 0x29, "KC_ESC": 0x29,
	"KC_BACKSPACE": 0x2A, "KC_BSPC": 0x2A,
	"KC_TAB":   0x2B,
	"KC_SPACE": 0x2C, "KC_SPC": 0x2C,
	"KC_MINUS": 0x2D, "KC_MINS": 0x2D,
	"KC_EQUAL": 0x2E, "KC_EQL": 0x2E,
	"KC_LEFT_BRACKET": 0x2F, "KC_LBRC": 0x2F,
	"KC_RIGHT_BRACKET": 0x30, "KC_RBRC": 0x30,
	"KC_BACKSLASH": 0x31, "KC_BSLS": 0x31,
	"KC_NONUS_HASH": 0x32, "KC_NUHS": 0x32,
	"KC_SEMICOLON": 0x33, "KC_SCLN": 0x33,
	"KC_QUOTE": 0x34, "KC_QUOT": 0x34,
	"KC_GRAVE": 0x35, "KC_GRV": 0x35,
	"KC_COMMA": 0x36, "KC_COMM": 0x36,
	"KC_DOT":   0x37,
	"KC_SLASH": 0x38, "KC_SLSH": 0x38,
	"KC_CAPS_LOCK": 0x39, "KC_CAPS": 0x39,
	"KC_PRINT_SCREEN": 0x46, "KC_PSCR": 0x46,
	"KC_SCROLL_LOCK": 0x47, "KC_SCRL": 0x47,
	"KC_PAUSE": 0x48, "KC_PAUS": 0x48,
	"KC_INSERT": 0x49, "KC_INS": 0x49,
	"KC_HOME":    0x4A,
	"KC_PAGE_UP": 0x4B, "KC_PGUP": 0x4B,
	"KC_DELETE": 0x4C, "KC_DEL": 0x4C,
	"KC_END":       0x4D,
	"KC_PAGE_DOWN": 0x4E, "KC_PGDN": 0x4E,
	"KC_RIGHT": 0x4F, "KC_RGHT": 0x4F,
	"KC_LEFT": 0x50,
	"KC_DOWN": 0x51,
	"KC_UP":   0x52,
	"KC_NUM_LOCK": 0x53, "KC_NUM": 0x53,
	"KC_KP_SLASH": 0x54, "KC_PSLS": 0x54,
	"KC_KP_ASTERISK": 0x55, "KC_PAST": 0x55,
	"KC_KP_MINUS": 0x56, "KC_PMNS": 0x56,
	"KC_KP_PLUS": 0x57, "KC_PPLS": 0x57,
	"KC_KP_ENTER": 0x58, "KC_PENT": 0x58,
	"KC_KP_DOT": 0x63, "KC_PDOT": 0x63,
	"KC_NONUS_BACKSLASH": 0x64, "KC_NUBS": 0x64,
	"KC_APPLICATION": 0x65, "KC_APP": 0x65,
	"KC_KB_POWER": 0x66,
	"KC_KP_EQUAL": 0x67, "KC_PEQL": 0x67,
	"KC_EXECUTE": 0x74, "KC_EXEC": 0x74,
	"KC_HELP": 0x75,
	"KC_MENU": 0x76,
	"KC_KB_MUTE": 0x7F,
	"KC_KB_VOLUME_UP": 0x80,
	"KC_KB_VOLUME_DOWN": 0x81,
	"KC_INTERNATIONAL_1": 0x87, "KC_INT1": 0x87,
	"KC_LANGUAGE_1": 0x90, "KC_LNG1": 0x90,
	"KC_EXSEL": KC_EXSEL,

	"KC_MS_UP": 0xCD, "KC_MS_U": 0xCD,
	"KC_MS_DOWN": 0xCE, "KC_MS_D": 0xCE,
	"KC_MS_LEFT": 0xCF, "KC_MS_L": 0xCF,
	"KC_MS_RIGHT": 0xD0, "KC_MS_R": 0xD0,
	"KC_MS_BTN1": 0xD1, "KC_BTN1": 0xD1,
	"KC_MS_BTN2": 0xD2, "KC_BTN2": 0xD2,
	"KC_MS_BTN3": 0xD3, "KC_BTN3": 0xD3,
	"KC_MS_BTN4": 0xD4, "KC_BTN4": 0xD4,
	"KC_MS_BTN5": 0xD5, "KC_BTN5": 0xD5,

	"KC_LEFT_CTRL": 0xE0, "KC_LCTL": 0xE0,
	"KC_LEFT_SHIFT": 0xE1, "KC_LSFT": 0xE1,
	"KC_LEFT_ALT": 0xE2, "KC_LALT": 0xE2,
	"KC_LEFT_GUI": 0xE3, "KC_LGUI": 0xE3,
	"KC_RIGHT_CTRL": 0xE4, "KC_RCTL": 0xE4,
	"KC_RIGHT_SHIFT": 0xE5, "KC_RSFT": 0xE5,
	"KC_RIGHT_ALT": 0xE6, "KC_RALT": 0xE6,
	"KC_RIGHT_GUI": 0xE7, "KC_RGUI": 0xE7,
}

func init() {
	for i := 0; i < 26; i++ {
		keycodeNames["KC_"+string(rune('A'+i))] = KC_A + Keycode(i)
	}
	// KC_1..KC_9 then KC_0
	for i := 1; i <= 9; i++ {
		keycodeNames["KC_"+strconv.Itoa(i)] = 0x1E + Keycode(i-1)
		keycodeNames["KC_P"+strconv.Itoa(i)] = 0x59 + Keycode(i-1)
		keycodeNames["KC_KP_"+strconv.Itoa(i)] = 0x59 + Keycode(i-1)
	}
	keycodeNames["KC_0"] = 0x27
	keycodeNames["KC_P0"] = 0x62
	keycodeNames["KC_KP_0"] = 0x62
	for i := 1; i <= 12; i++ {
		keycodeNames["KC_F"+strconv.Itoa(i)] = 0x3A + Keycode(i-1)
	}
	for i := 13; i <= 24; i++ {
		keycodeNames["KC_F"+strconv.Itoa(i)] = 0x68 + Keycode(i-13)
	}
}

// ParseKeycode accepts a keycode name ("KC_A", "KC_LSFT", "_______") or a
// number ("0x04", "4"). Unknown names are an error.
func ParseKeycode(s string) (Keycode, error) {
	s = strings.TrimSpace(s)
	if kc, ok := keycodeNames[strings.ToUpper(s)]; ok {
		return kc, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return KC_NO, fmt.Errorf("unknown keycode %q", s)
	}
	return Keycode(v), nil
}
