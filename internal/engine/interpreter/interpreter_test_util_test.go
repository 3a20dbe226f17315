package interpreter

// capturePanic runs fn and returns whatever it panicked with, or nil if it
// didn't panic.
func capturePanic(fn func()) (recovered interface{}) {
	defer func() {
		recovered = recover()
	}()
	fn()
	return nil
}
