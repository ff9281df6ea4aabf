package update

// TestObject is the minimal example stream value used by this system's
// own test suite: a single running total.
type TestObject struct {
	Value uint64 `msgpack:"Value"`
}

// TestCommand is the minimal example command family over TestObject.
type TestCommand struct {
	Add uint64 `msgpack:"Add"`
}

// Process adds Add to the object's running total. It never fails: every
// uint64 addition (with wraparound) is a valid transition.
func (c TestCommand) Process(input TestObject) (TestObject, error) {
	return TestObject{Value: input.Value + c.Add}, nil
}
