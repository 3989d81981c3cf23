// Package player reads the logged-in character's name, realm, level and
// money.
package player

import (
	"errors"
	"fmt"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/layout"
	"github.com/john/memchat/internal/memory"
)

const (
	nameLen       = 50
	maxObjects    = 500
	maxLevel      = 80
	minValidPtr   = 0x10000
	maxValidPtr   = 0x7FFF0000
	copperPerGold = 10000
)

// Info is a snapshot of the local player.
type Info struct {
	Name   string `json:"name"`
	Realm  string `json:"realm"`
	Level  uint32 `json:"level"`
	Copper uint32 `json:"copper"`
}

func (i Info) Gold() uint32            { return i.Copper / copperPerGold }
func (i Info) Silver() uint32          { return i.Copper % copperPerGold / 100 }
func (i Info) CopperRemainder() uint32 { return i.Copper % 100 }

func (i Info) String() string {
	return fmt.Sprintf("%s-%s (level %d, %dg %ds %dc)", i.Name, i.Realm, i.Level, i.Gold(), i.Silver(), i.CopperRemainder())
}

var (
	errShortRead  = errors.New("short read")
	errBadPointer = errors.New("invalid pointer")
	errNotFound   = errors.New("local player not found")
)

// ReadInfo returns false when nothing useful could be read, which is the
// case at the login screen.
func ReadInfo(r memory.Reader, l layout.Layout) (Info, bool) {
	info := Info{
		Name:  readString(r, l.Player.Name),
		Realm: readString(r, l.Player.Realm),
	}

	if desc, err := descriptors(r, l.Player); err == nil {
		level, _ := readU32(r, desc+l.Player.Level)
		if level >= 1 && level <= maxLevel {
			info.Level = level
		}
		info.Copper, _ = readU32(r, desc+l.Player.Coinage)
	}

	if info.Name == "" && info.Realm == "" && info.Level == 0 {
		return Info{}, false
	}
	return info, true
}

// descriptors walks the object manager's list to the local player's object
// and returns its descriptor block address.
func descriptors(r memory.Reader, p layout.Player) (uint64, error) {
	conn, err := readPtr(r, p.ClientConnection)
	if err != nil {
		return 0, fmt.Errorf("client connection: %w", err)
	}
	mgr, err := readPtr(r, conn+p.ObjectManager)
	if err != nil {
		return 0, fmt.Errorf("object manager: %w", err)
	}
	local, err := readU64(r, mgr+p.LocalGUID)
	if err != nil {
		return 0, err
	}
	if local == 0 {
		return 0, errNotFound
	}

	obj, err := readPtr(r, mgr+p.FirstObject)
	if err != nil {
		return 0, fmt.Errorf("first object: %w", err)
	}
	for range maxObjects {
		if !validPtr(obj) {
			break
		}
		guid, err := readU64(r, obj+p.ObjectGUID)
		if err != nil {
			return 0, err
		}
		if guid == local {
			return readPtr(r, obj+p.Descriptors)
		}
		next, err := readU32(r, obj+p.NextObject)
		if err != nil {
			return 0, err
		}
		obj = uint64(next)
	}
	return 0, errNotFound
}

func validPtr(addr uint64) bool {
	return addr > minValidPtr && addr < maxValidPtr
}

func readU32(r memory.Reader, addr uint64) (uint32, error) {
	b, err := r.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	if len(b) < 4 {
		return 0, errShortRead
	}
	return chat.ReadU32(b, 0), nil
}

func readU64(r memory.Reader, addr uint64) (uint64, error) {
	b, err := r.Read(addr, 8)
	if err != nil {
		return 0, err
	}
	if len(b) < 8 {
		return 0, errShortRead
	}
	return chat.ReadU64(b, 0), nil
}

// readPtr reads a 32-bit pointer and rejects values outside user space.
func readPtr(r memory.Reader, addr uint64) (uint64, error) {
	v, err := readU32(r, addr)
	if err != nil {
		return 0, err
	}
	if !validPtr(uint64(v)) {
		return 0, errBadPointer
	}
	return uint64(v), nil
}

func readString(r memory.Reader, addr uint64) string {
	b, err := r.Read(addr, nameLen)
	if err != nil {
		return ""
	}
	return chat.ReadCString(b, 0, nameLen)
}
