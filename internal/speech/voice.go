package speech

import (
	"bufio"
	"strings"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type Voice struct {
	Name   string
	Lang   string
	Gender Gender
	ID     string // engine identifier, passed back to the engine to select it
}

// VoicePreference names two preferred voices and the language used for the
// male fallback.
type VoicePreference struct {
	Primary   string
	Secondary string
	Lang      string
}

var DefaultVoicePreference = VoicePreference{
	Primary:   "English_(Great_Britain)",
	Secondary: "English_(America)",
	Lang:      "en",
}

// SelectVoice prefers the primary voice in the language, then the secondary
// voice, then any male voice in the language, then the first voice.
func SelectVoice(voices []Voice, pref VoicePreference) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}

	lang := strings.ToLower(pref.Lang)
	inLang := func(v Voice) bool {
		return lang == "" || strings.HasPrefix(strings.ToLower(v.Lang), lang)
	}

	for _, name := range []string{pref.Primary, pref.Secondary} {
		if name == "" {
			continue
		}
		for _, v := range voices {
			if inLang(v) && strings.Contains(v.Name, name) {
				return v, true
			}
		}
	}

	for _, v := range voices {
		if inLang(v) && v.Gender == GenderMale {
			return v, true
		}
	}

	return voices[0], true
}

// parseVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 2  en-gb           --/M      English_(Great_Britain) gmw/en
func parseVoices(out string) []Voice {
	var voices []Voice

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || fields[0] == "Pty" {
			continue
		}

		v := Voice{Lang: fields[1], Name: fields[3], ID: fields[4]}
		if _, g, ok := strings.Cut(fields[2], "/"); ok {
			switch g {
			case "M":
				v.Gender = GenderMale
			case "F":
				v.Gender = GenderFemale
			}
		}
		voices = append(voices, v)
	}

	return voices
}
