// Package voices holds the closed catalog of Kokoro voices and the store that
// loads their embedding tensors from disk.
package voices

import (
	"fmt"
	"path/filepath"

	"github.com/book-expert/kokoro-service/internal/core"
)

// Language codes understood by the phonemizer.
const (
	LanguageAmerican = "en-us"
	LanguageBritish  = "en-gb"
)

// modelDir is the directory below the assets root holding the model and voices.
const modelDir = "Kokoro"

// Dialect groups voices by accent.
type Dialect string

// Supported dialects.
const (
	DialectAmerican Dialect = "american"
	DialectBritish  Dialect = "british"
)

// Gender groups voices by speaker gender.
type Gender string

// Supported genders.
const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Voice identifies one of the twelve catalog voices. The zero value is not a
// valid voice.
type Voice int

// Catalog voices.
const (
	AmericanFemaleBella Voice = iota + 1
	AmericanFemaleNicole
	AmericanFemaleSky
	AmericanMaleFenrir
	AmericanMaleMichael
	AmericanMalePuck
	BritishFemaleEmma
	BritishFemaleIsabella
	BritishFemaleLily
	BritishMaleFable
	BritishMaleGeorge
	BritishMaleLewis
)

type voiceInfo struct {
	name     string
	fileStem string
	dialect  Dialect
	gender   Gender
}

var catalog = map[Voice]voiceInfo{
	AmericanFemaleBella:   {"bella", "af_bella", DialectAmerican, GenderFemale},
	AmericanFemaleNicole:  {"nicole", "af_nicole", DialectAmerican, GenderFemale},
	AmericanFemaleSky:     {"sky", "af_sky", DialectAmerican, GenderFemale},
	AmericanMaleFenrir:    {"fenrir", "am_fenrir", DialectAmerican, GenderMale},
	AmericanMaleMichael:   {"michael", "am_michael", DialectAmerican, GenderMale},
	AmericanMalePuck:      {"puck", "am_puck", DialectAmerican, GenderMale},
	BritishFemaleEmma:     {"emma", "bf_emma", DialectBritish, GenderFemale},
	BritishFemaleIsabella: {"isabella", "bf_isabella", DialectBritish, GenderFemale},
	BritishFemaleLily:     {"lily", "bf_lily", DialectBritish, GenderFemale},
	BritishMaleFable:      {"fable", "bm_fable", DialectBritish, GenderMale},
	BritishMaleGeorge:     {"george", "bm_george", DialectBritish, GenderMale},
	BritishMaleLewis:      {"lewis", "bm_lewis", DialectBritish, GenderMale},
}

var byID = func() map[string]Voice {
	ids := make(map[string]Voice, len(catalog))
	for voice := range catalog {
		ids[voice.ID()] = voice
	}

	return ids
}()

// All returns every catalog voice in declaration order.
func All() []Voice {
	all := make([]Voice, 0, len(catalog))
	for voice := AmericanFemaleBella; voice <= BritishMaleLewis; voice++ {
		all = append(all, voice)
	}

	return all
}

// Parse maps a request identifier such as "american_female_bella" to a voice.
func Parse(id string) (Voice, error) {
	voice, ok := byID[id]
	if !ok {
		return 0, core.Errorf(core.KindValidation, "Unsupported voice: %s", id)
	}

	return voice, nil
}

// Valid reports whether v is a catalog voice.
func (v Voice) Valid() bool {
	_, ok := catalog[v]

	return ok
}

// ID returns the request identifier, e.g. "british_male_george".
func (v Voice) ID() string {
	info, ok := catalog[v]
	if !ok {
		return ""
	}

	return fmt.Sprintf("%s_%s_%s", info.dialect, info.gender, info.name)
}

// String implements fmt.Stringer.
func (v Voice) String() string {
	if !v.Valid() {
		return fmt.Sprintf("Voice(%d)", int(v))
	}

	return v.ID()
}

// FileName returns the embedding file name, which is also the voice's
// cache-key fragment.
func (v Voice) FileName() string {
	return catalog[v].fileStem + ".bin"
}

// Dialect returns the accent group.
func (v Voice) Dialect() Dialect {
	return catalog[v].dialect
}

// Gender returns the speaker gender group.
func (v Voice) Gender() Gender {
	return catalog[v].gender
}

// LanguageCode returns the phonemizer language for the voice's dialect.
func (v Voice) LanguageCode() string {
	if catalog[v].dialect == DialectBritish {
		return LanguageBritish
	}

	return LanguageAmerican
}

// Resolve returns the embedding file path below assetsDir and the language code.
func Resolve(assetsDir string, v Voice) (string, string) {
	return filepath.Join(assetsDir, modelDir, v.FileName()), v.LanguageCode()
}

// ModelPath returns the location of the ONNX model below assetsDir.
func ModelPath(assetsDir string) string {
	return filepath.Join(assetsDir, modelDir, "model.onnx")
}
