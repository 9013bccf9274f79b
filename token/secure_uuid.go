package token

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RandomStrength selects the entropy source used for UUID generation.
//
// Strong reads crypto/rand directly on every generation. Default reads
// through a buffered crypto/rand reader, trading a small amount of
// freshness for throughput. Both sources are cryptographic; the knob is
// diagnostic. Configured via the SECURE_UUID_MODE environment variable
// ("STRONG" or "DEFAULT"); unknown values fall back to Strong.
type RandomStrength int

const (
	StrengthStrong RandomStrength = iota
	StrengthDefault
)

// String returns the mode name.
func (s RandomStrength) String() string {
	if s == StrengthDefault {
		return "DEFAULT"
	}
	return "STRONG"
}

var (
	modeOnce sync.Once
	mode     RandomStrength

	bufferedMu   sync.Mutex
	bufferedRand *bufio.Reader
)

func strengthFromEnv() RandomStrength {
	switch strings.ToUpper(os.Getenv("SECURE_UUID_MODE")) {
	case "DEFAULT":
		return StrengthDefault
	case "STRONG":
		return StrengthStrong
	default:
		return StrengthStrong
	}
}

// Mode exposes the active random strength, useful for diagnostics.
func Mode() RandomStrength {
	modeOnce.Do(func() { mode = strengthFromEnv() })
	return mode
}

func randomBytes(b []byte) {
	if Mode() == StrengthDefault {
		bufferedMu.Lock()
		defer bufferedMu.Unlock()
		if bufferedRand == nil {
			bufferedRand = bufio.NewReaderSize(rand.Reader, 4096)
		}
		if _, err := io.ReadFull(bufferedRand, b); err == nil {
			return
		}
		// Buffered source failed, fall through to the direct one.
	}
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		// crypto/rand never fails on supported platforms; if it does there
		// is no safe way to hand out a token.
		panic("token: crypto/rand unavailable: " + err.Error())
	}
}

// GenerateV4 generates a random UUID v4 compliant with RFC 4122.
func GenerateV4() uuid.UUID {
	var b [16]byte
	randomBytes(b[:])

	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant

	var u uuid.UUID
	copy(u[:], b[:])
	return u
}

// GenerateV7 generates a time-ordered UUID v7 compliant with RFC 4122:
// a 48-bit millisecond timestamp, version nibble 0x7, variant bits 10 and
// 74 random bits. Millisecond prefixes are non-decreasing across a sequence
// of generated UUIDs.
func GenerateV7() uuid.UUID {
	var b [16]byte

	ms := uint64(time.Now().UnixMilli())
	binary.BigEndian.PutUint64(b[:8], ms<<16)

	randomBytes(b[6:])
	b[6] = (b[6] & 0x0f) | 0x70 // version 7
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant

	var u uuid.UUID
	copy(u[:], b[:])
	return u
}

// GenerateV4AsString returns a UUID v4 in its canonical string form.
func GenerateV4AsString() string {
	return GenerateV4().String()
}

// GenerateV7AsString returns a UUID v7 in its canonical string form.
func GenerateV7AsString() string {
	return GenerateV7().String()
}
