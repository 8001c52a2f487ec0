package game

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"
)

const (
	RoomCodeLength = 6
	roomCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxEmojiBytes  = 32
)

func GenerateCode() (string, error) {
	code := make([]byte, RoomCodeLength)
	for i := 0; i < RoomCodeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeChars))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeChars[num.Int64()]
	}
	return string(code), nil
}

// NormalizeCode makes lookups case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidateRoomCode(code string) (string, error) {
	c := NormalizeCode(code)
	if c == "" {
		return "", ErrEmptyRoomCode
	}
	return c, nil
}

func ValidateName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(n) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return n, nil
}

// ValidateEmoji accepts exactly one emoji. Skin tones, ZWJ sequences, flags
// and keycaps each form a single grapheme cluster.
func ValidateEmoji(emoji string) (string, error) {
	e := strings.TrimSpace(emoji)
	if e == "" || len(e) > maxEmojiBytes || !utf8.ValidString(e) {
		return "", ErrInvalidEmoji
	}
	if uniseg.GraphemeClusterCount(e) != 1 {
		return "", ErrInvalidEmoji
	}
	// Bare digits, '#' and '*' carry the Emoji property but are plain text.
	if strings.IndexFunc(e, func(r rune) bool { return r > unicode.MaxASCII }) < 0 {
		return "", ErrInvalidEmoji
	}
	if !gomoji.ContainsEmoji(e) {
		return "", ErrInvalidEmoji
	}
	return e, nil
}
