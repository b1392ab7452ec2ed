package runtime

import (
	"io"
)

// Run is the process lifecycle around a compiled program: it creates a heap,
// calls main, then frees every remaining object. It returns the process exit
// status: 0 after a normal run. A fatal error normally ends the process
// inside main; with an exit hook that returns (see WithExit), Run recovers
// the *FatalError and returns its status instead. The heap's memory is
// still released then, but the objects are not freed one by one.
//
// A nil main stands for a program without an entry routine.
func Run(cfg Config, main func(h *Heap), opts ...Option) (status int, err error) {
	h, err := New(cfg, opts...)
	if err != nil {
		return exitStatus, err
	}

	defer func() {
		if r := recover(); r != nil {
			fatal, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			status = fatal.Status
			if relErr := h.release(); relErr != nil {
				err = relErr
			}
		}
	}()

	if main == nil {
		io.WriteString(h.stderr, "No yoru_main defined\n")
	} else {
		main(h)
	}

	if err := h.Destroy(); err != nil {
		return exitStatus, err
	}
	return 0, nil
}
