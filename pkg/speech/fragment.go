package speech

// Fragment is one recognition result as the speech engine reports it.
// Fragments with the same Index supersede each other until one is Final.
type Fragment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Interim builds a provisional fragment.
func Interim(index int, text string) Fragment { return Fragment{Index: index, Text: text} }

// Final builds a closing fragment.
func Final(index int, text string) Fragment { return Fragment{Index: index, Text: text, Final: true} }
