package domain

// MaxOptions bounds the number of options so every option has a letter label.
const MaxOptions = 26

// OptionLabel returns the letter shown for the option at index i ("A" for 0).
func OptionLabel(i int) string {
	if i < 0 || i >= MaxOptions {
		return "?"
	}
	return string(rune('A' + i))
}

// LetterIndex converts an option letter to its zero-based index. Only a
// single upper-case letter is accepted; anything else yields -1, which never
// equals a valid answer key.
func LetterIndex(letter string) int {
	if len(letter) != 1 {
		return -1
	}
	c := letter[0]
	if c < 'A' || c > 'Z' {
		return -1
	}
	return int(c - 'A')
}
