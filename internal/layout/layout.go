// Package layout describes where the game client keeps its chat buffer and
// player data. Every value here is specific to one client build; the defaults
// target 3.3.5a (build 12340) and all of them can be overridden from config.
package layout

import "fmt"

// Layout holds the chat ring buffer geometry and the field offsets inside
// one slot.
type Layout struct {
	BufferBase   uint64 `yaml:"buffer_base"`
	Stride       int    `yaml:"stride"`
	Slots        int    `yaml:"slots"`
	SenderGUID   int    `yaml:"sender_guid"`
	Formatted    int    `yaml:"formatted"`
	PlainText    int    `yaml:"plain_text"`
	StringMaxLen int    `yaml:"string_max_len"`
	Category     int    `yaml:"category"`
	Channel      int    `yaml:"channel"`
	Sequence     int    `yaml:"sequence"`
	Timestamp    int    `yaml:"timestamp"`

	// Count addresses are only read by diagnostics; they are unreliable on
	// some builds so polling never depends on them.
	CountAddrs []uint64 `yaml:"count_addrs"`

	Player Player `yaml:"player"`
}

// Player holds the static addresses and object-manager offsets used to find
// the local player's descriptors.
type Player struct {
	Name             uint64 `yaml:"name"`
	Realm            uint64 `yaml:"realm"`
	ClientConnection uint64 `yaml:"client_connection"`
	ObjectManager    uint64 `yaml:"object_manager"`
	FirstObject      uint64 `yaml:"first_object"`
	LocalGUID        uint64 `yaml:"local_guid"`
	NextObject       uint64 `yaml:"next_object"`
	ObjectGUID       uint64 `yaml:"object_guid"`
	Descriptors      uint64 `yaml:"descriptors"`
	Level            uint64 `yaml:"level"`
	Coinage          uint64 `yaml:"coinage"`
}

// Default returns the layout of the 3.3.5a client.
func Default() Layout {
	return Layout{
		BufferBase:   0x00B75A60,
		Stride:       0x17C0,
		Slots:        60,
		SenderGUID:   0x0000,
		Formatted:    0x003C,
		PlainText:    0x0BF4,
		StringMaxLen: 3000,
		Category:     0x17AC,
		Channel:      0x17B0,
		Sequence:     0x17B4,
		Timestamp:    0x17B8,
		CountAddrs:   []uint64{0x00BCEFEC, 0x00B66EDC},
		Player: Player{
			Name:             0x00C79D18,
			Realm:            0x00C79B9E,
			ClientConnection: 0x00C79CE0,
			ObjectManager:    0x2ED0,
			FirstObject:      0xAC,
			LocalGUID:        0xC0,
			NextObject:       0x3C,
			ObjectGUID:       0x30,
			Descriptors:      0x08,
			Level:            0xD8,
			Coinage:          0x1248,
		},
	}
}

// BufferSize is the number of bytes read by one full poll.
func (l Layout) BufferSize() int {
	return l.Slots * l.Stride
}

// Error reports an invalid layout field.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("layout.%s: %s", e.Field, e.Reason)
}

// MinStride is the smallest stride a poller can fingerprint.
const MinStride = 16

// Validate checks that the geometry is usable and that every field fits
// inside one slot.
func (l Layout) Validate() error {
	if l.Stride < MinStride {
		return &Error{Field: "stride", Reason: fmt.Sprintf("must be at least %d", MinStride)}
	}
	if l.Slots <= 0 {
		return &Error{Field: "slots", Reason: "must be positive"}
	}
	if l.StringMaxLen <= 0 {
		return &Error{Field: "string_max_len", Reason: "must be positive"}
	}

	fields := []struct {
		name   string
		offset int
		size   int
	}{
		{"sender_guid", l.SenderGUID, 8},
		{"formatted", l.Formatted, l.StringMaxLen},
		{"plain_text", l.PlainText, l.StringMaxLen},
		{"category", l.Category, 4},
		{"channel", l.Channel, 4},
		{"sequence", l.Sequence, 4},
		{"timestamp", l.Timestamp, 4},
	}
	for _, f := range fields {
		if f.offset < 0 || f.offset+f.size > l.Stride {
			return &Error{
				Field:  f.name,
				Reason: fmt.Sprintf("offset 0x%X (+%d) exceeds stride 0x%X", f.offset, f.size, l.Stride),
			}
		}
	}
	return nil
}
