package models

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// NewExecutionID returns a new opaque execution identifier: 12 bytes,
// hex encoded. The leading four bytes are the creation time in seconds
// so that freshly created executions sort roughly by age.
func NewExecutionID() string {
	var raw [12]byte

	binary.BigEndian.PutUint32(raw[0:4], uint32(time.Now().Unix()))

	_, err := rand.Read(raw[4:])
	if err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}

	return hex.EncodeToString(raw[:])
}
