// Package try turns (value, error) pairs into a single value.
//
// It is handy in tests and in command entrypoints:
//
//	conf := try.To(fleetd.LoadConfig(path)).OrFatal(t)
package try

// Fataler is something which can stop the process or test with an error.
//
// *testing.T and *log.Logger are Fataler.
type Fataler interface {
	Fatal(...any)
}

// Either holds a value or an error.
type Either[T any] interface {
	// Get returns (value, nil), or (zero value, error).
	Get() (T, error)

	// OrFatal returns the value, or calls ftl.Fatal with the error.
	//
	// If ftl has "Helper()" method (like *testing.T), it is called before Fatal.
	OrFatal(ftl Fataler) T

	// OrDefault returns the value, or d when there is an error.
	OrDefault(d T) T
}

func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return tryOk[T]{ok}
	}
	return tryNg[T]{ng}
}

type tryOk[T any] struct {
	value T
}

func (ok tryOk[T]) Get() (T, error) {
	return ok.value, nil
}

func (ok tryOk[T]) OrDefault(T) T {
	return ok.value
}

func (ok tryOk[T]) OrFatal(Fataler) T {
	return ok.value
}

type tryNg[T any] struct {
	err error
}

func (ng tryNg[T]) Get() (T, error) {
	return *new(T), ng.err
}

func (ng tryNg[T]) OrDefault(d T) T {
	return d
}

func (ng tryNg[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(ng.err)
	return *new(T)
}
