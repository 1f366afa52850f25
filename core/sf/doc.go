// Package sf provides a generic single-flight mechanism for collapsing
// concurrent calls with the same key into one execution.
//
// If multiple goroutines call [Singleflight.Do] with the same key
// concurrently, only the first executes the function; the rest block until
// it completes and receive the same result. This is how the session layer
// serializes connection attempts: any number of commands arriving while
// disconnected share a single dial.
//
//	flight := sf.New[rpc.Conn]()
//
//	conn, err := flight.Do("connect", func() (*rpc.Conn, error) {
//	    return dial(ctx)
//	})
//
// The type parameter T gives type-safe results without casting.
package sf
