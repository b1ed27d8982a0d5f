package classify

import "strings"

// Matcher finds keyword categories in free text.
type Matcher interface {
	// Match returns the names of the categories found in text, in category
	// order.
	Match(text string) []string
	// Categories returns every category name, in order.
	Categories() []string
}

// Category is a named list of substrings. A category matches when any of its
// patterns occurs in the text.
type Category struct {
	Name     string   `json:"name"`
	Patterns []string `json:"patterns"`
}

// KeywordMatcher matches categories by plain substring search. The first
// matching pattern decides a category; remaining patterns are not tried.
type KeywordMatcher struct {
	categories []Category
}

// NewKeywordMatcher builds a matcher over an ordered category list.
func NewKeywordMatcher(categories ...Category) *KeywordMatcher {
	return &KeywordMatcher{categories: categories}
}

// Match implements Matcher.
func (m *KeywordMatcher) Match(text string) []string {
	var out []string
	for _, c := range m.categories {
		for _, p := range c.Patterns {
			if p != "" && strings.Contains(text, p) {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

// Categories implements Matcher.
func (m *KeywordMatcher) Categories() []string {
	names := make([]string, len(m.categories))
	for i, c := range m.categories {
		names[i] = c.Name
	}
	return names
}

// Marker categories.
const (
	MarkerDebug     = "debug"
	MarkerRepair    = "repair"
	MarkerOverdrive = "overdrive"
	MarkerMovefrom  = "movefrom"
)

// DefaultMarkers are the four action markers, each with the Russian name
// first and the English alias second.
var DefaultMarkers = []Category{
	{Name: MarkerDebug, Patterns: []string{"Диод", "LED"}},
	{Name: MarkerRepair, Patterns: []string{"ЧинитьСебя", "Self"}},
	{Name: MarkerOverdrive, Patterns: []string{"СпособностьНаМаксимум", "Overdrive"}},
	{Name: MarkerMovefrom, Patterns: []string{"ДвигатьсяОтЦели", "MoveFromTarget"}},
}

// DefaultModules is the in-game module dictionary.
var DefaultModules = []Category{
	{Name: "navi", Patterns: []string{"МодульДвижения", "Navigation"}},
	{Name: "timer", Patterns: []string{"Таймер", "Timer"}},
	{Name: "counter", Patterns: []string{"Счетчик", "Counter"}},
	{Name: "scaner", Patterns: []string{"Сенсор", "Scaner"}},
	{Name: "analyz", Patterns: []string{"АнализаторЦели", "TargetAnalyser"}},
	{Name: "self", Patterns: []string{"Самодиагностика", "SelfDiagnostics"}},
	{Name: "weapon", Patterns: []string{"ОружиеЦелевое", "Weapon"}},
	{Name: "mass_w", Patterns: []string{"ОружиеМассовое", "MassWeapon"}},
	{Name: "base", Patterns: []string{"СвязьСБазой", "BaseCom"}},
	{Name: "diod", Patterns: []string{"Диод", "LED"}},
	{Name: "repair", Patterns: []string{"СпособностьПочинка", "Repair"}},
	{Name: "overdr", Patterns: []string{"СпособностьНаМаксимум", "Overdrive"}},
	{Name: "smoke", Patterns: []string{"СтруяДыма", "Smoke"}},
	{Name: "charge", Patterns: []string{"Зарядка", "Charger"}},
	{Name: "deton", Patterns: []string{"Самоуничтожение", "Detonation"}},
}

// NameRules classifies state display names.
type NameRules struct {
	// Default is the name the editor gives a freshly created state.
	Default string `json:"default"`
	// Basic are the names used by the stock programs.
	Basic []string `json:"basic"`
}

// DefaultNameRules are the editor's defaults.
var DefaultNameRules = NameRules{
	Default: "Состояние",
	Basic:   []string{"Скан", "Атака", "Сближение", "Бой"},
}

// NameClass is the class of one display name.
type NameClass int

const (
	NameDefault NameClass = iota
	NameEmpty
	NameBasic
	NameNontrivial
)

// Classify returns the class of a display name. Surrounding whitespace is
// ignored.
func (r NameRules) Classify(name string) NameClass {
	name = strings.TrimSpace(name)
	switch {
	case name == r.Default:
		return NameDefault
	case name == "":
		return NameEmpty
	}
	for _, b := range r.Basic {
		if name == b {
			return NameBasic
		}
	}
	return NameNontrivial
}
