package extractor

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// unitWords are measures, containers and counters that never name the product.
var unitWords = toSet(
	"litro", "litros", "lt", "lts", "l", "ml", "cc",
	"kilo", "kilos", "kg", "kgs", "gramo", "gramos", "gr", "grs", "g",
	"metro", "metros", "mt", "mts", "cm",
	"unidad", "unidades", "u", "un", "uno", "una", "unos", "unas",
	"dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve", "diez", "media", "medio",
	"docena", "docenas", "par", "pares",
	"caja", "cajas", "paquete", "paquetes", "pack", "packs",
	"botella", "botellas", "bidon", "bidón", "bidones", "lata", "latas",
	"frasco", "frascos", "sachet", "sachets", "rollo", "rollos",
)

// connectorWords are dropped only at the edges, so "corte de pelo" survives.
var connectorWords = toSet("de", "del", "la", "el", "los", "las", "x", "por", "a", "con")

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// CleanItemName reduces a spoken item description to a concise keyword:
// quantities, units and containers are stripped and the result is
// capitalised. A name made only of stripped words is returned trimmed.
func CleanItemName(name string) string {
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
	})

	// Casers carry state and are not shared between goroutines.
	lower := cases.Lower(language.Spanish)
	kept := tokens[:0:0]
	for _, tok := range tokens {
		word := lower.String(strings.Trim(tok, ".()\"'"))
		if word == "" || isMeasure(word) {
			continue
		}
		kept = append(kept, word)
	}
	for len(kept) > 0 && isConnector(kept[0]) {
		kept = kept[1:]
	}
	for len(kept) > 0 && isConnector(kept[len(kept)-1]) {
		kept = kept[:len(kept)-1]
	}
	if len(kept) == 0 {
		return strings.TrimSpace(name)
	}

	kept[0] = cases.Title(language.Spanish).String(kept[0])
	return strings.Join(kept, " ")
}

func isConnector(word string) bool {
	_, ok := connectorWords[word]
	return ok
}

// isMeasure matches bare numbers, unit words and glued forms such as "1kg".
func isMeasure(word string) bool {
	rest := strings.TrimLeftFunc(word, func(r rune) bool {
		return unicode.IsDigit(r) || r == '.' || r == ','
	})
	if rest == "" {
		return true
	}
	_, ok := unitWords[rest]
	return ok
}
