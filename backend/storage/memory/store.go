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

// Package memory implements the storage interfaces on plain maps. It
// mirrors the Postgres store's semantics closely enough to back the
// engine in tests and single-node development setups.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

type Store struct {
	mu         sync.RWMutex
	identities map[string]*models.Identity
	rooms      map[string]*models.Room
	roomByCode map[string]string
	members    map[string]map[string]time.Time // roomID -> username -> joinedAt
	messages   map[string]*models.Message
	msgOrder   map[string][]string // roomID -> message ids in insert order

	// FailWrites makes every mutating call fail, for exercising the
	// persistence-failure paths in tests.
	FailWrites error
}

func NewStore() *Store {
	return &Store{
		identities: make(map[string]*models.Identity),
		rooms:      make(map[string]*models.Room),
		roomByCode: make(map[string]string),
		members:    make(map[string]map[string]time.Time),
		messages:   make(map[string]*models.Message),
		msgOrder:   make(map[string][]string),
	}
}

func (s *Store) UpsertIdentity(ctx context.Context, identity models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	if existing, ok := s.identities[identity.Username]; ok {
		existing.PublicKey = identity.PublicKey
		existing.Authenticated = existing.Authenticated || identity.Authenticated
		existing.LastSeen = identity.LastSeen
		return nil
	}
	copied := identity
	s.identities[identity.Username] = &copied
	return nil
}

func (s *Store) GetIdentity(ctx context.Context, username string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *identity
	return &copied, nil
}

func (s *Store) TouchLastSeen(ctx context.Context, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	if identity, ok := s.identities[username]; ok {
		identity.LastSeen = at
	}
	return nil
}

func (s *Store) CreateRoom(ctx context.Context, room models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	if _, taken := s.roomByCode[room.RoomCode]; taken {
		return storage.ErrDuplicateCode
	}
	copied := room
	s.rooms[room.RoomID] = &copied
	s.roomByCode[room.RoomCode] = room.RoomID
	s.members[room.RoomID] = map[string]time.Time{room.Owner: room.CreatedAt}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *room
	return &copied, nil
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.roomByCode[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *s.rooms[roomID]
	return &copied, nil
}

func (s *Store) RoomCodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.roomByCode[code]
	return ok, nil
}

func (s *Store) AddMember(ctx context.Context, roomID, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	if _, ok := s.rooms[roomID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.members[roomID][username]; !ok {
		s.members[roomID][username] = at
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, roomID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	delete(s.members[roomID], username)
	return nil
}

func (s *Store) IsMember(ctx context.Context, roomID, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.members[roomID][username]
	return ok, nil
}

func (s *Store) GetMembers(ctx context.Context, roomID string) ([]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usernames := make([]string, 0, len(s.members[roomID]))
	for username := range s.members[roomID] {
		usernames = append(usernames, username)
	}
	// Stable order: by join time, owner first in practice.
	sort.Slice(usernames, func(i, j int) bool {
		return s.members[roomID][usernames[i]].Before(s.members[roomID][usernames[j]])
	})

	var members []models.Identity
	for _, username := range usernames {
		if identity, ok := s.identities[username]; ok {
			members = append(members, *identity)
		}
	}
	return members, nil
}

func (s *Store) SaveMessage(ctx context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	copied := msg
	s.messages[msg.MessageID] = &copied
	s.msgOrder[msg.RoomID] = append(s.msgOrder[msg.RoomID], msg.MessageID)
	return nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (s *Store) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []models.Message
	for _, id := range s.msgOrder[roomID] {
		if msg, ok := s.messages[id]; ok {
			messages = append(messages, *msg)
			if len(messages) == limit {
				break
			}
		}
	}
	return messages, nil
}

func (s *Store) AdvanceMessageState(ctx context.Context, messageID string, state models.MessageState, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return false, s.FailWrites
	}

	msg, ok := s.messages[messageID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if state.Rank() <= msg.State.Rank() {
		return false, nil
	}
	msg.State = state
	stamp := at
	switch state {
	case models.MessageDelivered:
		msg.DeliveredAt = &stamp
	case models.MessageRead:
		msg.ReadAt = &stamp
	}
	return true, nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	delete(s.messages, messageID)
	return nil
}

func (s *Store) CountRoomMessages(ctx context.Context, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.msgOrder[roomID] {
		if _, ok := s.messages[id]; ok {
			count++
		}
	}
	return count, nil
}

func (s *Store) CascadeOnOwnerLeave(ctx context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}

	if _, ok := s.rooms[roomID]; !ok {
		return nil, storage.ErrNotFound
	}

	for _, id := range s.msgOrder[roomID] {
		delete(s.messages, id)
	}
	delete(s.msgOrder, roomID)

	var members []string
	for username := range s.members[roomID] {
		members = append(members, username)
	}
	delete(s.members, roomID)

	room := s.rooms[roomID]
	delete(s.roomByCode, room.RoomCode)
	delete(s.rooms, roomID)

	for _, username := range members {
		identity, ok := s.identities[username]
		if !ok || identity.Authenticated {
			continue
		}
		orphaned := true
		for _, roomMembers := range s.members {
			if _, still := roomMembers[username]; still {
				orphaned = false
				break
			}
		}
		if orphaned {
			delete(s.identities, username)
		}
	}

	return members, nil
}
