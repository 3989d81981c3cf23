package chat

import (
	"slices"
	"strings"
)

// Tab is a named category filter. A nil Filter matches everything.
type Tab struct {
	Name   string     `yaml:"name"`
	Filter []Category `yaml:"filter"`
}

func (t Tab) Matches(c Category) bool {
	return t.Filter == nil || slices.Contains(t.Filter, c)
}

// DefaultTabs mirrors the stock chat frame. The client keeps its real tab
// setup in Lua state, which is not readable from outside.
func DefaultTabs() []Tab {
	return []Tab{
		{Name: "All"},
		{Name: "General", Filter: []Category{
			Say, Yell, Emote, TextEmote, Whisper, WhisperMob, WhisperInform,
			Channel, Guild, Officer, MonsterSay, MonsterYell, MonsterWhisper,
			MonsterEmote, System, Afk, Dnd,
		}},
		{Name: "Combat Log", Filter: []Category{Skill, Loot, System}},
		{Name: "Group", Filter: []Category{Party, Raid, MonsterParty}},
	}
}

// FindTab returns the tab called name, ignoring case.
func FindTab(tabs []Tab, name string) (Tab, bool) {
	for _, t := range tabs {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Tab{}, false
}
