// pkg/core/identity.go
package core

import (
	"crypto/rand"
	"encoding/binary"
)

const (
	PlayerIDPrefix     = "player_"
	ProjectileIDPrefix = "bullet_"

	idSuffixLen = 9
	idAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewPlayerID mints a client-side player identity such as "player_k3j9x0a2m".
// There is no collision detection; the 36^9 keyspace makes clashes unlikely, not impossible.
func NewPlayerID() Identity {
	return Identity(PlayerIDPrefix + randomSuffix())
}

// NewProjectileID mints a projectile identity for one shot.
func NewProjectileID() Identity {
	return Identity(ProjectileIDPrefix + randomSuffix())
}

func randomSuffix() string {
	var raw [idSuffixLen * 8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	out := make([]byte, idSuffixLen)
	for i := range out {
		n := binary.LittleEndian.Uint64(raw[i*8:])
		out[i] = idAlphabet[n%uint64(len(idAlphabet))]
	}
	return string(out)
}
