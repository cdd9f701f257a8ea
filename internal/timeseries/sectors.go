package timeseries

import "strings"

// SectorOther tags tokens that match no keyword group.
const SectorOther = "OTHER"

// SectorKeywords maps a sector to the symbol substrings that place a token in it.
// Groups are evaluated in SectorOrder; a token may land in several sectors.
var SectorKeywords = map[string][]string{
	"AI":        {"ai", "gpt", "agent", "neural", "bot", "brain"},
	"MEME":      {"doge", "shib", "pepe", "meme", "wif", "bonk", "moon", "chad", "wojak"},
	"ANIMAL":    {"cat", "dog", "inu", "frog", "monkey", "ape", "bird", "fish"},
	"POLITICAL": {"trump", "maga", "biden", "elon", "vote", "president"},
	"GAMING":    {"game", "play", "quest", "guild", "arena", "pixel"},
	"DEFI":      {"swap", "dex", "yield", "lend", "stake", "finance"},
	"CELEBRITY": {"celeb", "star", "famous", "kanye", "drake"},
}

// SectorOrder fixes evaluation order of SectorKeywords.
var SectorOrder = []string{"AI", "MEME", "ANIMAL", "POLITICAL", "GAMING", "DEFI", "CELEBRITY"}

// ClassifySectors derives sector tags from a symbol by substring match.
func ClassifySectors(symbol string) []string {
	lower := strings.ToLower(symbol)
	var sectors []string
	for _, sector := range SectorOrder {
		for _, keyword := range SectorKeywords[sector] {
			if strings.Contains(lower, keyword) {
				sectors = append(sectors, sector)
				break
			}
		}
	}
	if len(sectors) == 0 {
		return []string{SectorOther}
	}
	return sectors
}
