package mocks

// CallLog records arguments of calls to a mock method.
type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

// Last returns arguments of the latest call. ok is false if never called.
func (l CallLog[T]) Last() (args T, ok bool) {
	if len(l) == 0 {
		return args, false
	}
	return l[len(l)-1], true
}
