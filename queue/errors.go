package queue

type ErrClosed struct{}

func (ErrClosed) Error() string {
	return "queue is closed"
}

// ErrFlushed is returned by Push when the queue was cleared while the
// producer was waiting for space; the chunk is dropped.
type ErrFlushed struct{}

func (ErrFlushed) Error() string {
	return "queue was flushed while waiting for space"
}
