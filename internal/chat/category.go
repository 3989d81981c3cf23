package chat

import (
	"fmt"

	"github.com/john/memchat/internal/markup"
)

// Category is the client's chat message type code. Codes the client may
// add later are kept as-is and report Known() == false.
type Category uint32

const (
	Addon Category = iota
	Say
	Party
	Raid
	Guild
	Officer
	Yell
	Whisper
	WhisperMob
	WhisperInform
	Emote
	TextEmote
	MonsterSay
	MonsterParty
	MonsterYell
	MonsterWhisper
	MonsterEmote
	Channel
	ChannelJoin
	ChannelLeave
	ChannelList
	ChannelNotice
	ChannelNoticeUser
	Afk
	Dnd
	Ignored
	Skill
	Loot
	System

	numCategories
)

var categoryNames = [numCategories]string{
	"Addon", "Say", "Party", "Raid", "Guild", "Officer", "Yell", "Whisper",
	"WhisperMob", "WhisperInform", "Emote", "TextEmote", "MonsterSay",
	"MonsterParty", "MonsterYell", "MonsterWhisper", "MonsterEmote", "Channel",
	"ChannelJoin", "ChannelLeave", "ChannelList", "ChannelNotice",
	"ChannelNoticeUser", "Afk", "Dnd", "Ignored", "Skill", "Loot", "System",
}

var categoryLabels = [numCategories]string{
	Addon:             "Addon",
	Say:               "Say",
	Party:             "Party",
	Raid:              "Raid",
	Guild:             "Guild",
	Officer:           "Officer",
	Yell:              "Yell",
	Whisper:           "Whisper",
	WhisperMob:        "Whisper",
	WhisperInform:     "To",
	Emote:             "Emote",
	TextEmote:         "Emote",
	MonsterSay:        "Say",
	MonsterParty:      "Party",
	MonsterYell:       "Yell",
	MonsterWhisper:    "Whisper",
	MonsterEmote:      "Emote",
	Channel:           "Channel",
	ChannelJoin:       "Channel",
	ChannelLeave:      "Channel",
	ChannelList:       "Channel",
	ChannelNotice:     "Channel",
	ChannelNoticeUser: "Channel",
	Afk:               "AFK",
	Dnd:               "DND",
	Ignored:           "Ignored",
	Skill:             "Skill",
	Loot:              "Loot",
	System:            "System",
}

// CategoryFromCode maps a raw type code. Unrecognized codes are preserved.
func CategoryFromCode(code uint32) Category { return Category(code) }

func (c Category) Code() uint32 { return uint32(c) }

// Known reports whether c is one of the enumerated categories.
func (c Category) Known() bool { return c < numCategories }

// Label is the short tag shown in brackets before a message.
func (c Category) Label() string {
	if !c.Known() {
		return "???"
	}
	return categoryLabels[c]
}

func (c Category) String() string {
	if !c.Known() {
		return fmt.Sprintf("Unknown(%d)", uint32(c))
	}
	return categoryNames[c]
}

// IsChannel reports whether c belongs to the numbered-channel family.
func (c Category) IsChannel() bool {
	return c >= Channel && c <= ChannelNoticeUser
}

var gray = markup.Color{R: 0.7, G: 0.7, B: 0.7, A: 1}

// Color is the default chat frame color for c.
func (c Category) Color() markup.Color {
	switch c {
	case Say, MonsterSay:
		return markup.White
	case Yell, MonsterYell:
		return markup.Color{R: 1, G: 0.25, B: 0.25, A: 1}
	case Party, MonsterParty:
		return markup.Color{R: 0.4, G: 0.6, B: 1, A: 1}
	case Raid:
		return markup.Color{R: 1, G: 0.5, B: 0, A: 1}
	case Guild:
		return markup.Color{R: 0.25, G: 1, B: 0.25, A: 1}
	case Officer:
		return markup.Color{R: 0.25, G: 0.75, B: 0.25, A: 1}
	case Whisper, WhisperMob, WhisperInform, MonsterWhisper:
		return markup.Color{R: 1, G: 0.5, B: 1, A: 1}
	case Channel:
		return markup.Color{R: 1, G: 0.75, B: 0.5, A: 1}
	case Emote, TextEmote, MonsterEmote:
		return markup.Color{R: 1, G: 0.5, B: 0.25, A: 1}
	case System, Afk, Dnd:
		return markup.Color{R: 1, G: 1, B: 0, A: 1}
	case Loot:
		return markup.Color{R: 0, G: 0.8, B: 0, A: 1}
	case Skill:
		return markup.Color{R: 0.3, G: 0.3, B: 1, A: 1}
	default:
		return gray
	}
}
