// Package rand produces payloads for transfer fixtures.
package rand

import (
	"bytes"
	"math/rand"
	"sync"
	"time"
)

var (
	onceSource sync.Once
	rgen       *rand.Rand
	randMutex  sync.Mutex
)

// Bytes returns a random slice of bytes
func Bytes(n int) []byte {
	onceSource.Do(seed)
	buf := make([]byte, n)
	randMutex.Lock()
	_, _ = rgen.Read(buf)
	randMutex.Unlock()
	return buf
}

// Pattern fills size bytes by repeating pattern, truncating the last occurrence.
//
// An empty pattern yields zeroes.
func Pattern(pattern []byte, size int) []byte {
	if size <= 0 {
		return []byte{}
	}
	if len(pattern) == 0 {
		return make([]byte, size)
	}
	buf := bytes.Repeat(pattern, size/len(pattern)+1)
	return buf[:size]
}

func seed() {
	src := rand.NewSource(time.Now().UnixNano())
	rgen = rand.New(src) // #nosec
}

