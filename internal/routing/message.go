package routing

// Message is one complete routing table update: an independent delay and
// gain for every (input, output) pair. Tables are input-major: all
// outputs for input 0, then input 1, and so on. Delays are in samples,
// gains are signed linear amplitudes.
type Message struct {
	NumInputs  int
	NumOutputs int
	Delays     []float32
	Gains      []float32
}

// NewMessage creates a zeroed message for the given dimensions.
func NewMessage(numInputs, numOutputs int) *Message {
	n := numInputs * numOutputs
	return &Message{
		NumInputs:  numInputs,
		NumOutputs: numOutputs,
		Delays:     make([]float32, n),
		Gains:      make([]float32, n),
	}
}

// Index returns the flat table index of pair (input, output).
func (m *Message) Index(input, output int) int {
	return input*m.NumOutputs + output
}

// Set assigns the delay and gain of pair (input, output).
func (m *Message) Set(input, output int, delay, gain float32) {
	i := m.Index(input, output)
	m.Delays[i] = delay
	m.Gains[i] = gain
}

// At returns the delay and gain of pair (input, output).
func (m *Message) At(input, output int) (delay, gain float32) {
	i := m.Index(input, output)
	return m.Delays[i], m.Gains[i]
}
