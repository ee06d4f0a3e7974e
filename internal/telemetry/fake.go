package telemetry

import "context"

// FakeReporter records sent readings for test assertions.
type FakeReporter struct {
	// Sent contains every reading passed to Send, including failed ones.
	Sent []float64

	// Payloads contains the request bodies that would have been posted.
	Payloads [][]byte

	// Status is returned as the HTTP code. Zero means 200.
	Status int

	// SendError, if set, is returned by Send.
	SendError error
}

// NewFakeReporter creates a FakeReporter that accepts everything.
func NewFakeReporter() *FakeReporter {
	return &FakeReporter{}
}

// Send records the reading.
func (f *FakeReporter) Send(ctx context.Context, moisturePct float64) (int, error) {
	f.Sent = append(f.Sent, moisturePct)
	f.Payloads = append(f.Payloads, FormatPayload(moisturePct))
	if f.SendError != nil {
		return f.Status, f.SendError
	}
	if f.Status == 0 {
		return 200, nil
	}
	return f.Status, nil
}
