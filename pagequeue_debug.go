//go:build pagequeue_debug

package pagequeue

const debugging = true

func assert(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
