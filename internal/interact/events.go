package interact

// KeyKind classifies a keyboard event fed into the loop.
type KeyKind int

const (
	// KeyRune is a typed character appended to the input buffer.
	KeyRune KeyKind = iota

	// KeyBackspace removes the last character from the buffer.
	KeyBackspace

	// KeyEnter submits the buffer immediately.
	KeyEnter
)

// KeyEvent is one keyboard action from the terminal frontend.
type KeyEvent struct {
	Kind KeyKind

	// Rune is set when Kind is KeyRune.
	Rune rune
}
