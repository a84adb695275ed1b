// Package vocab maps phoneme symbols to the integer token IDs consumed by the
// Kokoro model and back.
package vocab

import "strings"

// Symbol groups, concatenated in this order to assign token IDs.
const (
	padSymbol   = "$"
	punctuation = ";:,.!?¡¿—…\"«»“” "
	letters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	lettersIPA  = "ɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞↓↑→↗↘'̩'ᵻ"
)

// PadToken is the ID of the padding symbol placed around every sequence.
const PadToken int64 = 0

// Codec is an immutable bidirectional symbol table.
type Codec struct {
	toID     map[rune]int64
	toSymbol map[int64]rune
}

// New builds the codec. A symbol listed more than once keeps its last index.
func New() *Codec {
	symbols := []rune(padSymbol + punctuation + letters + lettersIPA)

	toID := make(map[rune]int64, len(symbols))
	for index, symbol := range symbols {
		toID[symbol] = int64(index)
	}

	toSymbol := make(map[int64]rune, len(toID))
	for symbol, id := range toID {
		toSymbol[id] = symbol
	}

	return &Codec{toID: toID, toSymbol: toSymbol}
}

// Size returns the number of distinct symbols.
func (c *Codec) Size() int {
	return len(c.toID)
}

// Tokenize converts phonemes to token IDs, dropping symbols outside the table.
func (c *Codec) Tokenize(phonemes string) []int64 {
	tokens := make([]int64, 0, len(phonemes))

	for _, symbol := range phonemes {
		id, ok := c.toID[symbol]
		if ok {
			tokens = append(tokens, id)
		}
	}

	return tokens
}

// Detokenize converts token IDs back to symbols, skipping unknown IDs.
func (c *Codec) Detokenize(tokens []int64) string {
	var builder strings.Builder

	for _, id := range tokens {
		symbol, ok := c.toSymbol[id]
		if ok {
			builder.WriteRune(symbol)
		}
	}

	return builder.String()
}

// Pad returns tokens with one PadToken added at each end.
func Pad(tokens []int64) []int64 {
	padded := make([]int64, 0, len(tokens)+2)
	padded = append(padded, PadToken)
	padded = append(padded, tokens...)

	return append(padded, PadToken)
}
