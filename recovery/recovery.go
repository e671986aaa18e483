package recovery

// Strategy decides what happens when a component hits malformed input.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location pinpoints where in the file an error was raised.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota // propagate the error
	ActionSkip               // drop the offending construct and continue
	ActionFix                // accept a best-effort repaired value
	ActionWarn               // record the error, keep the partial value
)
