package logic

// FakeSensor is a RawSource test double returning a fixed raw value.
type FakeSensor struct {
	Raw   int
	Err   error
	Reads int
}

// Read returns Raw, or Err when set.
func (f *FakeSensor) Read() (int, error) {
	f.Reads++
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Raw, nil
}

// FakeSwitch records every Set call.
type FakeSwitch struct {
	Calls []bool
	Err   error
}

// Set records on, or returns Err when set.
func (f *FakeSwitch) Set(on bool) error {
	if f.Err != nil {
		return f.Err
	}
	f.Calls = append(f.Calls, on)
	return nil
}
