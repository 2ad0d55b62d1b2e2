package egress

type ErrClosed struct{}

func (ErrClosed) Error() string {
	return "the adapter is closed"
}

type ErrStopped struct{}

func (ErrStopped) Error() string {
	return "the adapter is stopped"
}
