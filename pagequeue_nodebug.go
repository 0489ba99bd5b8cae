//go:build !pagequeue_debug

package pagequeue

const debugging = false

func assert(bool, string) {}
