package markup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// LinkKind is the kind of game object a hyperlink points at.
type LinkKind uint8

const (
	LinkOther LinkKind = iota
	LinkItem
	LinkSpell
	LinkAchievement
	LinkQuest
	LinkTrade
)

func (k LinkKind) String() string {
	switch k {
	case LinkItem:
		return "item"
	case LinkSpell:
		return "spell"
	case LinkAchievement:
		return "achievement"
	case LinkQuest:
		return "quest"
	case LinkTrade:
		return "trade"
	default:
		return "other"
	}
}

// LinkType identifies the object behind a link. ID is zero for LinkOther
// and for links whose id field did not parse.
type LinkType struct {
	Kind LinkKind
	ID   uint32
}

// ClassifyLink parses hyperlink data such as "item:49908:0:0:0".
func ClassifyLink(data string) LinkType {
	kind, rest, _ := strings.Cut(data, ":")
	idText, _, _ := strings.Cut(rest, ":")
	id, err := strconv.ParseUint(idText, 10, 32)
	if err != nil {
		id = 0
	}

	switch kind {
	case "item":
		return LinkType{Kind: LinkItem, ID: uint32(id)}
	case "spell", "enchant":
		return LinkType{Kind: LinkSpell, ID: uint32(id)}
	case "achievement":
		return LinkType{Kind: LinkAchievement, ID: uint32(id)}
	case "quest":
		return LinkType{Kind: LinkQuest, ID: uint32(id)}
	case "trade":
		return LinkType{Kind: LinkTrade, ID: uint32(id)}
	default:
		return LinkType{Kind: LinkOther}
	}
}

const wowhead = "https://www.wowhead.com"

// WowheadURL returns a direct database URL for known kinds with a positive
// id, and a search URL for displayName otherwise.
func (t LinkType) WowheadURL(displayName string) string {
	if t.ID > 0 {
		switch t.Kind {
		case LinkItem:
			return fmt.Sprintf("%s/item=%d", wowhead, t.ID)
		case LinkSpell:
			return fmt.Sprintf("%s/spell=%d", wowhead, t.ID)
		case LinkAchievement:
			return fmt.Sprintf("%s/achievement=%d", wowhead, t.ID)
		case LinkQuest:
			return fmt.Sprintf("%s/wotlk/quest=%d", wowhead, t.ID)
		case LinkTrade:
			return fmt.Sprintf("%s/wotlk/skill=%d", wowhead, t.ID)
		}
	}
	// QueryEscape keeps A-Za-z0-9-_.~, turns space into '+' and the rest into %XX.
	return wowhead + "/search?q=" + url.QueryEscape(displayName)
}
