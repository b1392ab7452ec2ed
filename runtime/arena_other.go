//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package runtime

// reserveArena falls back to an ordinary Go allocation where anonymous
// mappings are not available.
func reserveArena(size uintptr) ([]byte, func() error, error) {
	return make([]byte, 0, size), nil, nil
}
