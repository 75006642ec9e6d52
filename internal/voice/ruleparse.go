package voice

import (
	"strconv"
	"strings"

	"github.com/stocksense/stocksense/internal/inventory"
)

// numberWords maps spelled-out quantities to digits, including a few common
// Urdu ones since the commands come from a bilingual user base.
var numberWords = map[string]int64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "dozen": 12,
	"ek": 1, "do": 2, "teen": 3, "char": 4, "chaar": 4, "paanch": 5,
	"che": 6, "chay": 6, "saat": 7, "aath": 8, "nau": 9, "das": 10,
}

var unitWords = map[string]bool{
	"kg": true, "kilo": true, "kilogram": true, "g": true, "gram": true,
	"l": true, "liter": true, "litre": true, "ml": true,
	"pack": true, "packs": true, "pcs": true, "piece": true, "pieces": true,
	"dozen": true, "dz": true,
}

// helperWords are filler tokens stripped before the product name is read.
var helperWords = map[string]bool{
	"add": true, "please": true, "plz": true, "karo": true, "kara": true,
	"kar": true, "inventory": true, "me": true, "main": true, "mein": true,
}

// RuleParser handles add commands like "add 5 mango", "dozen eggs" or
// "do kilo chawal" without a model round trip.
type RuleParser struct{}

var _ inventory.AddParser = RuleParser{}

// ParseAdd extracts name, quantity and unit from a spoken add command. The
// boolean is false only for a blank command; an unrecognized phrase falls
// back to the whole text as the product name.
func (RuleParser) ParseAdd(command string) (inventory.AddIntent, bool) {
	raw := strings.TrimSpace(command)
	if raw == "" {
		return inventory.AddIntent{}, false
	}

	tokens := strings.Fields(strings.ToLower(raw))
	for i, tok := range tokens {
		if n, ok := numberWords[tok]; ok {
			tokens[i] = strconv.FormatInt(n, 10)
		}
	}

	quantity := int64(1)
	sawNumber := false
	for _, tok := range tokens {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			quantity = int64(f)
			sawNumber = true
			break
		}
	}
	if !sawNumber {
		for _, tok := range tokens {
			if tok == "dz" {
				quantity = 12
				break
			}
		}
	}

	unit := "pcs"
	for _, tok := range tokens {
		if unitWords[tok] {
			unit = tok
			break
		}
	}

	var nameTokens []string
	for _, tok := range tokens {
		if helperWords[tok] || unitWords[tok] {
			continue
		}
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			continue
		}
		nameTokens = append(nameTokens, tok)
	}

	name := strings.Join(nameTokens, " ")
	if name == "" {
		name = raw
	}

	return inventory.AddIntent{Name: name, Quantity: quantity, Unit: unit}, true
}
