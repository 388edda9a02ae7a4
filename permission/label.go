package permission

import "strings"

var actionLabels = map[string]string{
	"view":     "View",
	"create":   "Create",
	"edit":     "Edit",
	"delete":   "Delete",
	"manage":   "Manage",
	"export":   "Export",
	"assign":   "Assign",
	"publish":  "Publish",
	"settings": "Configure",
}

var scopeLabels = map[string]string{
	"own": "own",
	"all": "all",
}

// ActionLabel returns a human label for an action. Known verbs map to fixed
// labels and the _own/_all scopes become a suffix, so "delete_own" reads
// "Delete own". Anything else is title-cased word by word.
func ActionLabel(action string) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}
	if i := strings.LastIndexByte(action, '_'); i > 0 {
		verb, scope := action[:i], action[i+1:]
		if label, ok := actionLabels[verb]; ok {
			if s, ok := scopeLabels[scope]; ok {
				return label + " " + s
			}
		}
	}
	return titleWords(action)
}

// Label is the display label of a slug, for example "Cards: Delete own".
func Label(s Slug) string {
	return titleWords(s.Module()) + ": " + ActionLabel(s.Action())
}

func titleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
