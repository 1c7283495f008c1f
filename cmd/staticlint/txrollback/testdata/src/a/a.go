package a

type tx struct{}

type store struct{}

func (store) BeginTransaction() (*tx, error) { return &tx{}, nil }

func (store) CommitTransaction(*tx) error { return nil }

func (store) RollbackTransaction(*tx) error { return nil }

func leaks(s store) error {
	t, err := s.BeginTransaction() // want "transaction opened by BeginTransaction is not rolled back in a defer"
	if err != nil {
		return err
	}
	return s.CommitTransaction(t)
}

func rollsBackInClosure(s store) error {
	t, err := s.BeginTransaction()
	if err != nil {
		return err
	}
	defer func() {
		_ = s.RollbackTransaction(t)
	}()
	return s.CommitTransaction(t)
}

func rollsBackDirectly(s store) error {
	t, err := s.BeginTransaction()
	if err != nil {
		return err
	}
	defer s.RollbackTransaction(t)
	return s.CommitTransaction(t)
}

func rollsBackOutsideDefer(s store) error {
	t, err := s.BeginTransaction() // want "transaction opened by BeginTransaction is not rolled back in a defer"
	if err != nil {
		return err
	}
	if err := s.CommitTransaction(t); err != nil {
		return s.RollbackTransaction(t)
	}
	return nil
}

func nested(s store) func() error {
	return func() error {
		t, err := s.BeginTransaction() // want "transaction opened by BeginTransaction is not rolled back in a defer"
		if err != nil {
			return err
		}
		return s.CommitTransaction(t)
	}
}
