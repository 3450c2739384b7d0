// Package lang detects the language of a query so answers can mirror it.
package lang

import (
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Language is a supported query language.
type Language struct {
	// Code is the ISO 639-1 code.
	Code string
	// Name is the English name used in prompt directives.
	Name string

	apology string
}

// Apology is the fixed prefix used when a request could not be answered.
func (l Language) Apology() string {
	if l.apology == "" {
		return English.apology
	}
	return l.apology
}

func (l Language) String() string { return l.Code }

var (
	English    = Language{Code: "en", Name: "English", apology: "Sorry, there was a technical issue while processing your request"}
	Indonesian = Language{Code: "id", Name: "Indonesian", apology: "Maaf, terjadi kendala teknis saat memproses permintaan Anda"}
	Spanish    = Language{Code: "es", Name: "Spanish", apology: "Lo siento, hubo un problema técnico al procesar tu solicitud"}
	French     = Language{Code: "fr", Name: "French", apology: "Désolé, un problème technique est survenu lors du traitement de votre demande"}
	German     = Language{Code: "de", Name: "German", apology: "Entschuldigung, bei der Bearbeitung Ihrer Anfrage ist ein technisches Problem aufgetreten"}
	Dutch      = Language{Code: "nl", Name: "Dutch", apology: "Sorry, er is een technisch probleem opgetreden bij het verwerken van je verzoek"}
	Portuguese = Language{Code: "pt", Name: "Portuguese", apology: "Desculpe, ocorreu um problema técnico ao processar o seu pedido"}
)

var supported = map[string]struct {
	lang   Language
	lingua lingua.Language
}{
	"en": {English, lingua.English},
	"id": {Indonesian, lingua.Indonesian},
	"es": {Spanish, lingua.Spanish},
	"fr": {French, lingua.French},
	"de": {German, lingua.German},
	"nl": {Dutch, lingua.Dutch},
	"pt": {Portuguese, lingua.Portuguese},
}

// Apologies returns every known apology prefix.
func Apologies() []string {
	out := make([]string, 0, len(supported))
	for _, s := range supported {
		out = append(out, s.lang.apology)
	}
	return out
}

// Lookup returns the language with the given ISO 639-1 code.
func Lookup(code string) (Language, bool) {
	s, ok := supported[strings.ToLower(strings.TrimSpace(code))]
	return s.lang, ok
}

// Detector picks the most likely language of a text among a configured set.
type Detector struct {
	detector lingua.LanguageDetector
	byLingua map[lingua.Language]Language
	fallback Language
}

// NewDetector builds a detector for the given codes. The first code is the
// fallback when detection is inconclusive.
func NewDetector(codes ...string) (*Detector, error) {
	if len(codes) == 0 {
		codes = []string{English.Code, Indonesian.Code}
	}

	d := &Detector{byLingua: make(map[lingua.Language]Language, len(codes))}
	languages := make([]lingua.Language, 0, len(codes))
	for i, code := range codes {
		s, ok := supported[strings.ToLower(strings.TrimSpace(code))]
		if !ok {
			return nil, fmt.Errorf("unsupported language %q", code)
		}
		if i == 0 {
			d.fallback = s.lang
		}
		if _, dup := d.byLingua[s.lingua]; dup {
			continue
		}
		d.byLingua[s.lingua] = s.lang
		languages = append(languages, s.lingua)
	}

	if len(languages) == 1 {
		return d, nil
	}

	d.detector = lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()
	return d, nil
}

// Detect returns the language of text, or the fallback language.
func (d *Detector) Detect(text string) Language {
	if d == nil {
		return English
	}
	if d.detector == nil || strings.TrimSpace(text) == "" {
		return d.fallback
	}
	detected, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return d.fallback
	}
	if l, known := d.byLingua[detected]; known {
		return l
	}
	return d.fallback
}
