// Package themes labels conversation text against a fixed vocabulary.
// It is a deterministic keyword scan, not a classifier: the same text always
// yields the same themes, in vocabulary order, capped at three.
package themes

import "strings"

const maxThemes = 3

// vocabulary order is the output order. First three themes whose keywords
// appear anywhere in the text win, regardless of frequency.
var vocabulary = []struct {
	Theme    string
	Keywords []string
}{
	{"Anxiety", []string{"anxiety", "anxious", "worried", "worry", "panic", "overwhelmed"}},
	{"Stress", []string{"stress", "stressed", "pressure", "burnout", "exhausted"}},
	{"Work", []string{"work", "job", "boss", "career", "colleague", "deadline"}},
	{"Relationships", []string{"partner", "relationship", "friend", "boyfriend", "girlfriend", "marriage"}},
	{"Family", []string{"family", "mother", "father", "parent", "sibling", "mum", "dad"}},
	{"Loneliness", []string{"lonely", "alone", "isolated", "disconnected"}},
	{"Grief", []string{"grief", "loss", "died", "passed away", "mourning"}},
	{"Growth", []string{"growth", "learning", "progress", "improving", "better than"}},
	{"Gratitude", []string{"grateful", "thankful", "gratitude", "appreciate"}},
	{"Sleep", []string{"sleep", "insomnia", "tired", "restless"}},
	{"Health", []string{"health", "sick", "illness", "doctor", "pain"}},
	{"Hope", []string{"hope", "hopeful", "looking forward", "optimistic"}},
}

// Identify scans text for theme keywords and returns up to three matched
// themes in vocabulary order.
func Identify(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, entry := range vocabulary {
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				found = append(found, entry.Theme)
				break
			}
		}
		if len(found) == maxThemes {
			break
		}
	}
	return found
}
