// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package engine

import (
	"crypto/rand"
	"fmt"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// 36^6 codes make collisions against live rooms rare, but they
	// are still checked and re-rolled on creation.
	maxCodeAttempts = 16
)

// newRoomCode draws a short shareable code from crypto/rand. Bytes at
// or above the largest multiple of the alphabet size are rejected so
// every character is equally likely. Callers must still check the code
// against active rooms before using it.
func newRoomCode() (string, error) {
	// 252 for a 36-character alphabet.
	limit := byte(256 / len(roomCodeAlphabet) * len(roomCodeAlphabet))

	code := make([]byte, 0, roomCodeLength)
	buf := make([]byte, roomCodeLength)
	for len(code) < roomCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("room code entropy: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(code) == roomCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
