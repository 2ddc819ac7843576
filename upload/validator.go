// Package upload validates user supplied image files before they are stored.
package upload

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

// MaxFilenameLength is the longest filename accepted
const MaxFilenameLength = 255

// Policy describes what a valid upload looks like
type Policy struct {
	MaxSize           int64
	AllowedMIMETypes  []string
	AllowedExtensions []string
	CheckMagicBytes   bool
}

// DefaultImagePolicy accepts jpeg, png and webp selfies up to maxSize bytes
func DefaultImagePolicy(maxSize int64) Policy {
	return Policy{
		MaxSize:           maxSize,
		AllowedMIMETypes:  []string{"image/jpeg", "image/png", "image/webp"},
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".webp"},
		CheckMagicBytes:   true,
	}
}

// Result is the outcome of ValidateFile
type Result struct {
	Valid          bool
	Reason         string
	SecureFilename string
	DetectedMIME   string
	Size           int64
}

func reject(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ValidateFile runs every upload check against the file at path. The declared
// name and MIME type come from the client and are checked, never trusted.
func ValidateFile(path, originalName, declaredMIME string, policy Policy) Result {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return reject("file not found")
	}
	if info.Size() == 0 {
		return reject("file is empty")
	}
	if policy.MaxSize > 0 && info.Size() > policy.MaxSize {
		return reject("file exceeds maximum size of %d bytes", policy.MaxSize)
	}

	declaredMIME = strings.ToLower(strings.TrimSpace(strings.SplitN(declaredMIME, ";", 2)[0]))
	if !lo.Contains(policy.AllowedMIMETypes, declaredMIME) {
		return reject("file type %q is not allowed", declaredMIME)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if !lo.Contains(policy.AllowedExtensions, ext) {
		return reject("file extension %q is not allowed", ext)
	}

	if ok, reason := IsSafeFilename(originalName); !ok {
		return reject("unsafe filename: %s", reason)
	}

	head, err := readHead(path, 512)
	if err != nil {
		return reject("file could not be read")
	}

	if policy.CheckMagicBytes && !MatchesImageSignature(head) {
		return reject("file content does not match a supported image format")
	}

	detected := mimetype.Detect(head).String()
	detected = strings.SplitN(detected, ";", 2)[0]
	if policy.CheckMagicBytes && detected != declaredMIME {
		return reject("file content is %s but was declared as %s", detected, declaredMIME)
	}

	name, err := SecureFilename(ext)
	if err != nil {
		return reject("could not generate filename")
	}

	return Result{
		Valid:          true,
		SecureFilename: name,
		DetectedMIME:   detected,
		Size:           info.Size(),
	}
}

// SanitizeFilename reduces a client filename to something safe to log:
// directory parts dropped, forbidden characters replaced, length capped.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F || strings.ContainsRune(`<>:"|?*/`, r) {
			return '_'
		}
		return r
	}, name)
	clean = strings.TrimLeft(clean, ". ")
	if runes := []rune(clean); len(runes) > MaxFilenameLength {
		clean = string(runes[:MaxFilenameLength])
	}
	if clean == "" {
		return "unnamed"
	}
	return clean
}

// IsSafeFilename reports whether a client supplied filename is harmless, and
// why not when it isn't.
func IsSafeFilename(name string) (bool, string) {
	switch {
	case name == "":
		return false, "filename is empty"
	case utf8.RuneCountInString(name) > MaxFilenameLength:
		return false, fmt.Sprintf("filename longer than %d characters", MaxFilenameLength)
	case strings.ContainsRune(name, 0):
		return false, "filename contains a null byte"
	case strings.Contains(name, ".."), strings.ContainsAny(name, `/\`):
		return false, "filename contains a path component"
	case strings.HasPrefix(name, "."), strings.HasPrefix(name, " "):
		return false, "filename starts with a dot or space"
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7F || strings.ContainsRune(`<>:"|?*`, r) {
			return false, "filename contains a forbidden character"
		}
	}
	base := strings.ToUpper(strings.SplitN(name, ".", 2)[0])
	if windowsReserved[strings.TrimSpace(base)] {
		return false, "filename is a reserved device name"
	}
	return true, ""
}

// MatchesImageSignature checks the leading bytes against the JPEG, PNG and
// WebP signatures.
func MatchesImageSignature(head []byte) bool {
	switch {
	case bytes.HasPrefix(head, jpegMagic):
		return true
	case bytes.HasPrefix(head, pngMagic):
		return true
	case len(head) >= 12 && bytes.Equal(head[0:4], riffMagic) && bytes.Equal(head[8:12], webpMagic):
		return true
	}
	return false
}

// SecureFilename returns a fresh name made of a millisecond timestamp, 16
// random bytes in hex, and ext.
func SecureFilename(ext string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), hex.EncodeToString(b), strings.ToLower(ext)), nil
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:read], nil
}
