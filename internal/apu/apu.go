// Package apu implements the Audio Processing Unit for the NES.
package apu

// APU represents the NES Audio Processing Unit
type APU struct {
	// APU channels
	pulse1   PulseChannel
	pulse2   PulseChannel
	triangle TriangleChannel
	noise    NoiseChannel
	dmc      DMCChannel

	// Frame counter
	frameCounter     uint16
	frameMode        bool  // false = 4-step, true = 5-step
	frameIRQEnable   bool  // Frame counter IRQ enable
	frameCounterStep uint8 // Current step in frame counter
	frameIRQFlag     bool  // Frame counter IRQ flag

	// Channel enable flags
	channelEnable [5]bool // pulse1, pulse2, triangle, noise, dmc

	// dmcRead fetches a DMC sample byte through the console bus (work
	// RAM is never a legal DMC source; the cartridge is), so the mapper
	// can still observe the address the way it observes any CPU read.
	dmcRead func(addr uint16) uint8

	// sampleQueue is a fixed-capacity ring buffer of native-rate (one
	// sample per CPU cycle) mixer output. Resampling to a host output
	// rate is the host's job, not the APU's.
	sampleQueue [sampleQueueCapacity]float32
	sampleHead  int
	sampleCount int

	// Timing
	cycles uint64
}

// sampleQueueCapacity bounds the native-rate sample queue. A host that
// stalls longer than this many CPU cycles between drains starts losing
// the oldest, undrained samples.
const sampleQueueCapacity = 1 << 16

// PulseChannel represents a pulse wave channel
type PulseChannel struct {
	// Control registers
	dutyCycle       uint8 // 0-3 (12.5%, 25%, 50%, 75%)
	envelopeLoop    bool  // Length counter halt / envelope loop
	envelopeDisable bool  // Constant volume flag
	volume          uint8 // Volume/envelope (0-15)

	// Sweep unit
	sweepEnable  bool
	sweepPeriod  uint8 // 0-7
	sweepNegate  bool  // Pitch bend direction
	sweepShift   uint8 // 0-7
	sweepReload  bool  // Sweep reload flag
	sweepCounter uint8 // Internal sweep counter

	// Timer
	timer        uint16 // 11-bit timer
	timerCounter uint16 // Current timer value

	// Length counter
	lengthCounter uint8 // Length counter value
	lengthHalt    bool  // Length counter halt flag

	// Envelope
	envelopeStart   bool  // Start flag
	envelopeCounter uint8 // Envelope counter
	envelopeDivider uint8 // Envelope divider

	// Waveform generation
	dutyIndex    uint8 // Current position in duty cycle
	output       uint8 // Current output level
	sequencerPos uint8 // Position in 8-step sequencer
}

// TriangleChannel represents the triangle wave channel
type TriangleChannel struct {
	// Control register
	lengthCounterHalt bool  // Length counter halt / linear counter control
	linearCounterLoad uint8 // Linear counter reload value (0-127)

	// Timer
	timer        uint16 // 11-bit timer
	timerCounter uint16 // Current timer value

	// Length counter
	lengthCounter uint8 // Length counter value

	// Linear counter
	linearCounter       uint8 // Linear counter value
	linearCounterReload bool  // Linear counter reload flag

	// Waveform generation
	sequencerPos uint8 // Position in 32-step triangle sequence
	output       uint8 // Current output level
}

// NoiseChannel represents the noise channel
type NoiseChannel struct {
	// Control registers
	envelopeLoop    bool  // Length counter halt / envelope loop
	envelopeDisable bool  // Constant volume flag
	volume          uint8 // Volume/envelope (0-15)

	// Mode and period
	mode         bool   // false = 32k steps, true = 93 steps
	periodIndex  uint8  // Index into period table (0-15)
	timerCounter uint16 // Current timer value

	// Length counter
	lengthCounter uint8 // Length counter value
	lengthHalt    bool  // Length counter halt flag

	// Envelope
	envelopeStart   bool  // Start flag
	envelopeCounter uint8 // Envelope counter
	envelopeDivider uint8 // Envelope divider

	// Noise generation
	shiftRegister uint16 // 15-bit LFSR
	output        uint8  // Current output level
}

// DMCChannel represents the Delta Modulation Channel
type DMCChannel struct {
	// Control registers
	irqEnable bool  // IRQ enable flag
	loop      bool  // Loop flag
	rateIndex uint8 // Rate index (0-15)

	// Direct load
	outputLevel uint8 // 7-bit DAC value

	// Sample playback
	sampleAddress uint16 // Sample start address ($C000 + 64*A)
	sampleLength  uint16 // Sample length in bytes (16*L + 1)

	// Internal state
	timerCounter     uint16 // Current timer value
	sampleBuffer     uint8  // Current sample byte
	sampleBufferBits uint8  // Remaining bits in sample buffer
	silent           bool   // Output unit has nothing to shift out
	bytesRemaining   uint16 // Bytes remaining in sample
	currentAddress   uint16 // Current read address

	// IRQ flag
	irqFlag bool // DMC IRQ flag
}

// New creates a new APU instance
func New() *APU {
	apu := &APU{
		frameMode:      false, // Default to 4-step mode
		frameIRQEnable: true,  // Frame IRQ enabled by default
	}

	// Initialize noise shift register
	apu.noise.shiftRegister = 1
	apu.dmc.silent = true

	return apu
}

// SetDMCReader installs the callback the DMC channel uses to fetch
// sample bytes through the console bus. Without one, DMC playback
// produces silence instead of panicking: a cartridge-less APU (as in
// most unit tests) is a legitimate configuration.
func (apu *APU) SetDMCReader(read func(addr uint16) uint8) {
	apu.dmcRead = read
}

// Reset resets the APU to its initial state
func (apu *APU) Reset() {
	// Reset all channels
	apu.pulse1 = PulseChannel{}
	apu.pulse2 = PulseChannel{}
	apu.triangle = TriangleChannel{}
	apu.noise = NoiseChannel{shiftRegister: 1} // Initialize LFSR
	apu.dmc = DMCChannel{silent: true}

	// Reset frame counter
	apu.frameCounter = 0
	apu.frameCounterStep = 0
	apu.frameMode = false
	apu.frameIRQEnable = true
	apu.frameIRQFlag = false

	// Reset channel enables
	for i := range apu.channelEnable {
		apu.channelEnable[i] = false
	}

	// Reset timing
	apu.cycles = 0

	// Clear sample queue
	apu.sampleHead = 0
	apu.sampleCount = 0
}

// PulseState is a PulseChannel's serializable state.
type PulseState struct {
	DutyCycle, Volume                      uint8
	EnvelopeLoop, EnvelopeDisable           bool
	SweepEnable, SweepNegate                bool
	SweepPeriod, SweepShift, SweepCounter   uint8
	SweepReload                             bool
	Timer, TimerCounter                     uint16
	LengthCounter                           uint8
	LengthHalt                              bool
	EnvelopeStart                           bool
	EnvelopeCounter, EnvelopeDivider        uint8
	DutyIndex, Output, SequencerPos         uint8
}

func (pc *PulseChannel) snapshot() PulseState {
	return PulseState{
		DutyCycle: pc.dutyCycle, Volume: pc.volume,
		EnvelopeLoop: pc.envelopeLoop, EnvelopeDisable: pc.envelopeDisable,
		SweepEnable: pc.sweepEnable, SweepNegate: pc.sweepNegate,
		SweepPeriod: pc.sweepPeriod, SweepShift: pc.sweepShift, SweepCounter: pc.sweepCounter,
		SweepReload: pc.sweepReload,
		Timer:       pc.timer, TimerCounter: pc.timerCounter,
		LengthCounter: pc.lengthCounter, LengthHalt: pc.lengthHalt,
		EnvelopeStart: pc.envelopeStart, EnvelopeCounter: pc.envelopeCounter, EnvelopeDivider: pc.envelopeDivider,
		DutyIndex: pc.dutyIndex, Output: pc.output, SequencerPos: pc.sequencerPos,
	}
}

func (pc *PulseChannel) restore(s PulseState) {
	pc.dutyCycle, pc.volume = s.DutyCycle, s.Volume
	pc.envelopeLoop, pc.envelopeDisable = s.EnvelopeLoop, s.EnvelopeDisable
	pc.sweepEnable, pc.sweepNegate = s.SweepEnable, s.SweepNegate
	pc.sweepPeriod, pc.sweepShift, pc.sweepCounter = s.SweepPeriod, s.SweepShift, s.SweepCounter
	pc.sweepReload = s.SweepReload
	pc.timer, pc.timerCounter = s.Timer, s.TimerCounter
	pc.lengthCounter, pc.lengthHalt = s.LengthCounter, s.LengthHalt
	pc.envelopeStart, pc.envelopeCounter, pc.envelopeDivider = s.EnvelopeStart, s.EnvelopeCounter, s.EnvelopeDivider
	pc.dutyIndex, pc.output, pc.sequencerPos = s.DutyIndex, s.Output, s.SequencerPos
}

// TriangleState is a TriangleChannel's serializable state.
type TriangleState struct {
	LengthCounterHalt bool
	LinearCounterLoad uint8
	Timer, TimerCounter uint16
	LengthCounter       uint8
	LinearCounter       uint8
	LinearCounterReload bool
	SequencerPos, Output uint8
}

func (tc *TriangleChannel) snapshot() TriangleState {
	return TriangleState{
		LengthCounterHalt: tc.lengthCounterHalt, LinearCounterLoad: tc.linearCounterLoad,
		Timer: tc.timer, TimerCounter: tc.timerCounter,
		LengthCounter:       tc.lengthCounter,
		LinearCounter:       tc.linearCounter,
		LinearCounterReload: tc.linearCounterReload,
		SequencerPos:        tc.sequencerPos, Output: tc.output,
	}
}

func (tc *TriangleChannel) restore(s TriangleState) {
	tc.lengthCounterHalt, tc.linearCounterLoad = s.LengthCounterHalt, s.LinearCounterLoad
	tc.timer, tc.timerCounter = s.Timer, s.TimerCounter
	tc.lengthCounter = s.LengthCounter
	tc.linearCounter = s.LinearCounter
	tc.linearCounterReload = s.LinearCounterReload
	tc.sequencerPos, tc.output = s.SequencerPos, s.Output
}

// NoiseState is a NoiseChannel's serializable state.
type NoiseState struct {
	EnvelopeLoop, EnvelopeDisable    bool
	Volume                           uint8
	Mode                             bool
	PeriodIndex                      uint8
	TimerCounter                     uint16
	LengthCounter                    uint8
	LengthHalt                       bool
	EnvelopeStart                    bool
	EnvelopeCounter, EnvelopeDivider uint8
	ShiftRegister                    uint16
	Output                           uint8
}

func (nc *NoiseChannel) snapshot() NoiseState {
	return NoiseState{
		EnvelopeLoop: nc.envelopeLoop, EnvelopeDisable: nc.envelopeDisable,
		Volume: nc.volume, Mode: nc.mode, PeriodIndex: nc.periodIndex,
		TimerCounter: nc.timerCounter, LengthCounter: nc.lengthCounter, LengthHalt: nc.lengthHalt,
		EnvelopeStart: nc.envelopeStart, EnvelopeCounter: nc.envelopeCounter, EnvelopeDivider: nc.envelopeDivider,
		ShiftRegister: nc.shiftRegister, Output: nc.output,
	}
}

func (nc *NoiseChannel) restore(s NoiseState) {
	nc.envelopeLoop, nc.envelopeDisable = s.EnvelopeLoop, s.EnvelopeDisable
	nc.volume, nc.mode, nc.periodIndex = s.Volume, s.Mode, s.PeriodIndex
	nc.timerCounter, nc.lengthCounter, nc.lengthHalt = s.TimerCounter, s.LengthCounter, s.LengthHalt
	nc.envelopeStart, nc.envelopeCounter, nc.envelopeDivider = s.EnvelopeStart, s.EnvelopeCounter, s.EnvelopeDivider
	nc.shiftRegister, nc.output = s.ShiftRegister, s.Output
}

// DMCState is a DMCChannel's serializable state.
type DMCState struct {
	IRQEnable, Loop             bool
	RateIndex                   uint8
	OutputLevel                 uint8
	SampleAddress, SampleLength uint16
	TimerCounter                uint16
	SampleBuffer                uint8
	SampleBufferBits            uint8
	Silent                      bool
	BytesRemaining              uint16
	CurrentAddress              uint16
	IRQFlag                     bool
}

func (dc *DMCChannel) snapshot() DMCState {
	return DMCState{
		IRQEnable: dc.irqEnable, Loop: dc.loop, RateIndex: dc.rateIndex,
		OutputLevel:   dc.outputLevel,
		SampleAddress: dc.sampleAddress, SampleLength: dc.sampleLength,
		TimerCounter:     dc.timerCounter,
		SampleBuffer:     dc.sampleBuffer,
		SampleBufferBits: dc.sampleBufferBits,
		Silent:           dc.silent,
		BytesRemaining:   dc.bytesRemaining,
		CurrentAddress:   dc.currentAddress,
		IRQFlag:          dc.irqFlag,
	}
}

func (dc *DMCChannel) restore(s DMCState) {
	dc.irqEnable, dc.loop, dc.rateIndex = s.IRQEnable, s.Loop, s.RateIndex
	dc.outputLevel = s.OutputLevel
	dc.sampleAddress, dc.sampleLength = s.SampleAddress, s.SampleLength
	dc.timerCounter = s.TimerCounter
	dc.sampleBuffer = s.SampleBuffer
	dc.sampleBufferBits = s.SampleBufferBits
	dc.silent = s.Silent
	dc.bytesRemaining = s.BytesRemaining
	dc.currentAddress = s.CurrentAddress
	dc.irqFlag = s.IRQFlag
}

// State is the APU's serializable state for a savestate. The sample
// queue is excluded: it is host-output plumbing, not emulated machine
// state, and is naturally empty again a few milliseconds after load.
type State struct {
	Pulse1, Pulse2 PulseState
	Triangle       TriangleState
	Noise          NoiseState
	DMC            DMCState

	FrameCounter     uint16
	FrameMode        bool
	FrameIRQEnable   bool
	FrameCounterStep uint8
	FrameIRQFlag     bool

	ChannelEnable [5]bool

	Cycles uint64
}

// Snapshot captures the APU's state for serialization.
func (apu *APU) Snapshot() State {
	return State{
		Pulse1: apu.pulse1.snapshot(), Pulse2: apu.pulse2.snapshot(),
		Triangle: apu.triangle.snapshot(),
		Noise:    apu.noise.snapshot(),
		DMC:      apu.dmc.snapshot(),

		FrameCounter:     apu.frameCounter,
		FrameMode:        apu.frameMode,
		FrameIRQEnable:   apu.frameIRQEnable,
		FrameCounterStep: apu.frameCounterStep,
		FrameIRQFlag:     apu.frameIRQFlag,

		ChannelEnable: apu.channelEnable,

		Cycles: apu.cycles,
	}
}

// Restore replaces the APU's state with a previously captured snapshot.
func (apu *APU) Restore(s State) {
	apu.pulse1.restore(s.Pulse1)
	apu.pulse2.restore(s.Pulse2)
	apu.triangle.restore(s.Triangle)
	apu.noise.restore(s.Noise)
	apu.dmc.restore(s.DMC)

	apu.frameCounter = s.FrameCounter
	apu.frameMode = s.FrameMode
	apu.frameIRQEnable = s.FrameIRQEnable
	apu.frameCounterStep = s.FrameCounterStep
	apu.frameIRQFlag = s.FrameIRQFlag

	apu.channelEnable = s.ChannelEnable

	apu.cycles = s.Cycles
}

// Step advances the APU by one CPU cycle.
func (apu *APU) Step() {
	apu.cycles++

	// Step frame counter
	apu.stepFrameCounter()

	// Step each channel's timer. Triangle is clocked by the CPU cycle
	// directly; pulse, noise, and DMC are clocked at half that rate
	// (the "APU cycle"), so they only advance on alternating calls.
	apu.stepTriangleTimer(&apu.triangle)
	if apu.cycles%2 == 0 {
		apu.stepChannelTimers()
	}

	// Mix and enqueue a sample at the native CPU rate.
	apu.generateSample()
}

// stepFrameCounter handles frame counter timing
func (apu *APU) stepFrameCounter() {
	apu.frameCounter++

	if apu.frameMode {
		// 5-step mode
		switch apu.frameCounter {
		case 7457:
			apu.clockEnvelopeAndLinear()
		case 14913:
			apu.clockEnvelopeAndLinear()
			apu.clockLengthAndSweep()
		case 22371:
			apu.clockEnvelopeAndLinear()
		case 37281:
			apu.clockEnvelopeAndLinear()
			apu.clockLengthAndSweep()
			apu.frameCounter = 0
			apu.frameCounterStep = 0
		}
	} else {
		// 4-step mode
		switch apu.frameCounter {
		case 7457:
			apu.clockEnvelopeAndLinear()
		case 14913:
			apu.clockEnvelopeAndLinear()
			apu.clockLengthAndSweep()
		case 22371:
			apu.clockEnvelopeAndLinear()
		case 29829:
			apu.clockEnvelopeAndLinear()
			apu.clockLengthAndSweep()
		case 29830:
			// Frame IRQ
			if apu.frameIRQEnable {
				apu.frameIRQFlag = true
			}
			apu.frameCounter = 0
			apu.frameCounterStep = 0
		}
	}
}

// clockEnvelopeAndLinear clocks envelope and linear counter units
func (apu *APU) clockEnvelopeAndLinear() {
	apu.clockPulseEnvelope(&apu.pulse1)
	apu.clockPulseEnvelope(&apu.pulse2)
	apu.clockNoiseEnvelope(&apu.noise)
	apu.clockTriangleLinear(&apu.triangle)
}

// clockLengthAndSweep clocks length counters and sweep units
func (apu *APU) clockLengthAndSweep() {
	apu.clockPulseLength(&apu.pulse1)
	apu.clockPulseSweep(&apu.pulse1, true) // Pulse 1 has different sweep behavior
	apu.clockPulseLength(&apu.pulse2)
	apu.clockPulseSweep(&apu.pulse2, false) // Pulse 2
	apu.clockTriangleLength(&apu.triangle)
	apu.clockNoiseLength(&apu.noise)
}

// stepChannelTimers steps the timer for each APU-rate channel
func (apu *APU) stepChannelTimers() {
	if apu.channelEnable[0] {
		apu.stepPulseTimer(&apu.pulse1)
	}
	if apu.channelEnable[1] {
		apu.stepPulseTimer(&apu.pulse2)
	}
	if apu.channelEnable[3] {
		apu.stepNoiseTimer(&apu.noise)
	}
	if apu.channelEnable[4] {
		apu.stepDMCTimer(&apu.dmc)
	}
}

// pushSample enqueues one mixed sample, dropping the oldest queued
// sample if the host has fallen behind draining GetSamples.
func (apu *APU) pushSample(sample float32) {
	if apu.sampleCount == sampleQueueCapacity {
		apu.sampleHead = (apu.sampleHead + 1) % sampleQueueCapacity
		apu.sampleCount--
	}
	tail := (apu.sampleHead + apu.sampleCount) % sampleQueueCapacity
	apu.sampleQueue[tail] = sample
	apu.sampleCount++
}

// generateSample mixes the channels' current output and enqueues it.
func (apu *APU) generateSample() {
	pulse1Out := apu.getPulseOutput(&apu.pulse1)
	pulse2Out := apu.getPulseOutput(&apu.pulse2)
	triangleOut := apu.getTriangleOutput(&apu.triangle)
	noiseOut := apu.getNoiseOutput(&apu.noise)
	dmcOut := apu.getDMCOutput(&apu.dmc)

	sample := apu.mixChannels(pulse1Out, pulse2Out, triangleOut, noiseOut, dmcOut)
	apu.pushSample(sample)
}

// WriteRegister writes to an APU register
func (apu *APU) WriteRegister(address uint16, value uint8) {
	switch address {
	// Pulse Channel 1
	case 0x4000:
		apu.writePulseControl(&apu.pulse1, value)
	case 0x4001:
		apu.writePulseSweep(&apu.pulse1, value)
	case 0x4002:
		apu.writePulseTimerLow(&apu.pulse1, value)
	case 0x4003:
		apu.writePulseTimerHigh(&apu.pulse1, value)

	// Pulse Channel 2
	case 0x4004:
		apu.writePulseControl(&apu.pulse2, value)
	case 0x4005:
		apu.writePulseSweep(&apu.pulse2, value)
	case 0x4006:
		apu.writePulseTimerLow(&apu.pulse2, value)
	case 0x4007:
		apu.writePulseTimerHigh(&apu.pulse2, value)

	// Triangle Channel
	case 0x4008:
		apu.writeTriangleControl(value)
	case 0x400A:
		apu.writeTriangleTimerLow(value)
	case 0x400B:
		apu.writeTriangleTimerHigh(value)

	// Noise Channel
	case 0x400C:
		apu.writeNoiseControl(value)
	case 0x400E:
		apu.writeNoisePeriod(value)
	case 0x400F:
		apu.writeNoiseLength(value)

	// DMC Channel
	case 0x4010:
		apu.writeDMCControl(value)
	case 0x4011:
		apu.writeDMCDirectLoad(value)
	case 0x4012:
		apu.writeDMCSampleAddress(value)
	case 0x4013:
		apu.writeDMCSampleLength(value)

	// Control registers
	case 0x4015:
		apu.writeChannelEnable(value)
	case 0x4017:
		apu.writeFrameCounter(value)
	}
}

// GetSamples drains and returns every sample currently queued.
func (apu *APU) GetSamples() []float32 {
	samples := make([]float32, apu.sampleCount)
	for i := 0; i < apu.sampleCount; i++ {
		samples[i] = apu.sampleQueue[(apu.sampleHead+i)%sampleQueueCapacity]
	}
	apu.sampleHead = 0
	apu.sampleCount = 0
	return samples
}

// ReadStatus reads the APU status register ($4015)
func (apu *APU) ReadStatus() uint8 {
	status := uint8(0)

	// Channel length counter status
	if apu.pulse1.lengthCounter > 0 {
		status |= 0x01
	}
	if apu.pulse2.lengthCounter > 0 {
		status |= 0x02
	}
	if apu.triangle.lengthCounter > 0 {
		status |= 0x04
	}
	if apu.noise.lengthCounter > 0 {
		status |= 0x08
	}
	if apu.dmc.bytesRemaining > 0 {
		status |= 0x10
	}

	// Frame IRQ flag
	if apu.frameIRQFlag {
		status |= 0x40
	}

	// DMC IRQ flag
	if apu.dmc.irqFlag {
		status |= 0x80
	}

	// Reading $4015 clears the frame IRQ flag
	apu.frameIRQFlag = false

	return status
}

// Length counter lookup table
var lengthTable = [32]uint8{
	10, 254, 20, 2, 40, 4, 80, 6,
	160, 8, 60, 10, 14, 12, 26, 14,
	12, 16, 24, 8, 48, 6, 96, 4,
	192, 2, 72, 16, 28, 32, 52, 2,
}

// Duty cycle lookup table (8 steps each)
var dutyTable = [4][8]uint8{
	{0, 1, 0, 0, 0, 0, 0, 0}, // 12.5%
	{0, 1, 1, 0, 0, 0, 0, 0}, // 25%
	{0, 1, 1, 1, 1, 0, 0, 0}, // 50%
	{1, 0, 0, 1, 1, 1, 1, 1}, // 75%
}

// Triangle wave sequence (32 steps)
var triangleTable = [32]uint8{
	15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0,
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
}

// Noise period table (NTSC)
var noisePeriodTable = [16]uint16{
	4, 8, 16, 32, 64, 96, 128, 160,
	202, 254, 380, 508, 762, 1016, 2034, 4068,
}

// DMC rate table (NTSC)
var dmcRateTable = [16]uint16{
	428, 380, 340, 320, 286, 254, 226, 214,
	190, 160, 142, 128, 106, 84, 72, 54,
}

// Pulse channel register write methods

// writePulseControl writes to pulse control register ($4000/$4004)
func (apu *APU) writePulseControl(pulse *PulseChannel, value uint8) {
	pulse.dutyCycle = (value >> 6) & 0x03
	pulse.envelopeLoop = (value & 0x20) != 0
	pulse.lengthHalt = pulse.envelopeLoop
	pulse.envelopeDisable = (value & 0x10) != 0
	pulse.volume = value & 0x0F
	pulse.envelopeStart = true
}

// writePulseSweep writes to pulse sweep register ($4001/$4005)
func (apu *APU) writePulseSweep(pulse *PulseChannel, value uint8) {
	pulse.sweepEnable = (value & 0x80) != 0
	pulse.sweepPeriod = (value >> 4) & 0x07
	pulse.sweepNegate = (value & 0x08) != 0
	pulse.sweepShift = value & 0x07
	pulse.sweepReload = true
}

// writePulseTimerLow writes to pulse timer low register ($4002/$4006)
func (apu *APU) writePulseTimerLow(pulse *PulseChannel, value uint8) {
	pulse.timer = (pulse.timer & 0xFF00) | uint16(value)
}

// writePulseTimerHigh writes to pulse timer high register ($4003/$4007)
func (apu *APU) writePulseTimerHigh(pulse *PulseChannel, value uint8) {
	pulse.timer = (pulse.timer & 0x00FF) | (uint16(value&0x07) << 8)
	pulse.lengthCounter = lengthTable[(value>>3)&0x1F]
	pulse.envelopeStart = true
	pulse.dutyIndex = 0 // Reset duty cycle position
}

// stepPulseTimer steps the pulse channel timer
func (apu *APU) stepPulseTimer(pulse *PulseChannel) {
	if pulse.timerCounter == 0 {
		pulse.timerCounter = pulse.timer
		pulse.sequencerPos = (pulse.sequencerPos + 1) & 0x07
	} else {
		pulse.timerCounter--
	}
}

// clockPulseEnvelope clocks the pulse envelope unit
func (apu *APU) clockPulseEnvelope(pulse *PulseChannel) {
	if pulse.envelopeStart {
		pulse.envelopeStart = false
		pulse.envelopeCounter = 15
		pulse.envelopeDivider = pulse.volume
	} else if pulse.envelopeDivider == 0 {
		pulse.envelopeDivider = pulse.volume
		if pulse.envelopeCounter > 0 {
			pulse.envelopeCounter--
		} else if pulse.envelopeLoop {
			pulse.envelopeCounter = 15
		}
	} else {
		pulse.envelopeDivider--
	}
}

// clockPulseLength clocks the pulse length counter
func (apu *APU) clockPulseLength(pulse *PulseChannel) {
	if !pulse.lengthHalt && pulse.lengthCounter > 0 {
		pulse.lengthCounter--
	}
}

// clockPulseSweep clocks the pulse sweep unit
func (apu *APU) clockPulseSweep(pulse *PulseChannel, isPulse1 bool) {
	if pulse.sweepCounter == 0 && pulse.sweepEnable && pulse.sweepShift > 0 {
		changeAmount := pulse.timer >> pulse.sweepShift
		if pulse.sweepNegate {
			if isPulse1 {
				// Pulse 1 uses one's complement
				pulse.timer = pulse.timer - changeAmount - 1
			} else {
				// Pulse 2 uses two's complement
				pulse.timer = pulse.timer - changeAmount
			}
		} else {
			pulse.timer = pulse.timer + changeAmount
		}
	}

	if pulse.sweepCounter == 0 || pulse.sweepReload {
		pulse.sweepCounter = pulse.sweepPeriod
		pulse.sweepReload = false
	} else {
		pulse.sweepCounter--
	}
}

// getPulseOutput gets the current pulse channel output
func (apu *APU) getPulseOutput(pulse *PulseChannel) uint8 {
	if pulse.lengthCounter == 0 || pulse.timer < 8 || pulse.timer > 0x7FF {
		return 0
	}

	if dutyTable[pulse.dutyCycle][pulse.sequencerPos] == 0 {
		return 0
	}

	if pulse.envelopeDisable {
		return pulse.volume
	}
	return pulse.envelopeCounter
}

// Triangle channel register write methods

// writeTriangleControl writes to triangle control register ($4008)
func (apu *APU) writeTriangleControl(value uint8) {
	apu.triangle.lengthCounterHalt = (value & 0x80) != 0
	apu.triangle.linearCounterLoad = value & 0x7F
	apu.triangle.linearCounterReload = true
}

// writeTriangleTimerLow writes to triangle timer low register ($400A)
func (apu *APU) writeTriangleTimerLow(value uint8) {
	apu.triangle.timer = (apu.triangle.timer & 0xFF00) | uint16(value)
}

// writeTriangleTimerHigh writes to triangle timer high register ($400B)
func (apu *APU) writeTriangleTimerHigh(value uint8) {
	apu.triangle.timer = (apu.triangle.timer & 0x00FF) | (uint16(value&0x07) << 8)
	apu.triangle.lengthCounter = lengthTable[(value>>3)&0x1F]
	apu.triangle.linearCounterReload = true
}

// stepTriangleTimer steps the triangle channel timer
func (apu *APU) stepTriangleTimer(triangle *TriangleChannel) {
	if triangle.timerCounter == 0 {
		triangle.timerCounter = triangle.timer
		if triangle.lengthCounter > 0 && triangle.linearCounter > 0 {
			triangle.sequencerPos = (triangle.sequencerPos + 1) & 0x1F
		}
	} else {
		triangle.timerCounter--
	}
}

// clockTriangleLinear clocks the triangle linear counter
func (apu *APU) clockTriangleLinear(triangle *TriangleChannel) {
	if triangle.linearCounterReload {
		triangle.linearCounter = triangle.linearCounterLoad
	} else if triangle.linearCounter > 0 {
		triangle.linearCounter--
	}

	if !triangle.lengthCounterHalt {
		triangle.linearCounterReload = false
	}
}

// clockTriangleLength clocks the triangle length counter
func (apu *APU) clockTriangleLength(triangle *TriangleChannel) {
	if !triangle.lengthCounterHalt && triangle.lengthCounter > 0 {
		triangle.lengthCounter--
	}
}

// getTriangleOutput gets the current triangle channel output
func (apu *APU) getTriangleOutput(triangle *TriangleChannel) uint8 {
	if triangle.lengthCounter == 0 || triangle.linearCounter == 0 || triangle.timer < 2 {
		return 0
	}
	return triangleTable[triangle.sequencerPos]
}

// Noise channel register write methods

// writeNoiseControl writes to noise control register ($400C)
func (apu *APU) writeNoiseControl(value uint8) {
	apu.noise.envelopeLoop = (value & 0x20) != 0
	apu.noise.lengthHalt = apu.noise.envelopeLoop
	apu.noise.envelopeDisable = (value & 0x10) != 0
	apu.noise.volume = value & 0x0F
	apu.noise.envelopeStart = true
}

// writeNoisePeriod writes to noise period register ($400E)
func (apu *APU) writeNoisePeriod(value uint8) {
	apu.noise.mode = (value & 0x80) != 0
	apu.noise.periodIndex = value & 0x0F
}

// writeNoiseLength writes to noise length register ($400F)
func (apu *APU) writeNoiseLength(value uint8) {
	apu.noise.lengthCounter = lengthTable[(value>>3)&0x1F]
	apu.noise.envelopeStart = true
}

// stepNoiseTimer steps the noise channel timer
func (apu *APU) stepNoiseTimer(noise *NoiseChannel) {
	if noise.timerCounter == 0 {
		noise.timerCounter = noisePeriodTable[noise.periodIndex]

		// Clock shift register
		feedback := noise.shiftRegister & 0x01
		if noise.mode {
			// Mode 1: feedback from bits 0 and 6
			feedback ^= (noise.shiftRegister >> 6) & 0x01
		} else {
			// Mode 0: feedback from bits 0 and 1
			feedback ^= (noise.shiftRegister >> 1) & 0x01
		}

		noise.shiftRegister = (noise.shiftRegister >> 1) | (feedback << 14)
	} else {
		noise.timerCounter--
	}
}

// clockNoiseEnvelope clocks the noise envelope unit
func (apu *APU) clockNoiseEnvelope(noise *NoiseChannel) {
	if noise.envelopeStart {
		noise.envelopeStart = false
		noise.envelopeCounter = 15
		noise.envelopeDivider = noise.volume
	} else if noise.envelopeDivider == 0 {
		noise.envelopeDivider = noise.volume
		if noise.envelopeCounter > 0 {
			noise.envelopeCounter--
		} else if noise.envelopeLoop {
			noise.envelopeCounter = 15
		}
	} else {
		noise.envelopeDivider--
	}
}

// clockNoiseLength clocks the noise length counter
func (apu *APU) clockNoiseLength(noise *NoiseChannel) {
	if !noise.lengthHalt && noise.lengthCounter > 0 {
		noise.lengthCounter--
	}
}

// getNoiseOutput gets the current noise channel output
func (apu *APU) getNoiseOutput(noise *NoiseChannel) uint8 {
	if noise.lengthCounter == 0 || (noise.shiftRegister&0x01) != 0 {
		return 0
	}

	if noise.envelopeDisable {
		return noise.volume
	}
	return noise.envelopeCounter
}

// DMC channel register write methods

// writeDMCControl writes to DMC control register ($4010)
func (apu *APU) writeDMCControl(value uint8) {
	apu.dmc.irqEnable = (value & 0x80) != 0
	apu.dmc.loop = (value & 0x40) != 0
	apu.dmc.rateIndex = value & 0x0F

	if !apu.dmc.irqEnable {
		apu.dmc.irqFlag = false
	}
}

// writeDMCDirectLoad writes to DMC direct load register ($4011)
func (apu *APU) writeDMCDirectLoad(value uint8) {
	apu.dmc.outputLevel = value & 0x7F
}

// writeDMCSampleAddress writes to DMC sample address register ($4012)
func (apu *APU) writeDMCSampleAddress(value uint8) {
	apu.dmc.sampleAddress = 0xC000 + (uint16(value) << 6)
}

// writeDMCSampleLength writes to DMC sample length register ($4013)
func (apu *APU) writeDMCSampleLength(value uint8) {
	apu.dmc.sampleLength = (uint16(value) << 4) + 1
}

// loadDMCSample fetches the next sample byte through the bus and
// advances (wrapping $FFFF back to $8000, the hardware's own wrap
// point) and decrements the playback position. If the sample just
// ran out, it either restarts (loop) or requests an IRQ.
func (apu *APU) loadDMCSample() {
	dmc := &apu.dmc
	if dmc.bytesRemaining == 0 {
		return
	}
	if apu.dmcRead != nil {
		dmc.sampleBuffer = apu.dmcRead(dmc.currentAddress)
	}
	dmc.sampleBufferBits = 8
	dmc.currentAddress++
	if dmc.currentAddress == 0 {
		dmc.currentAddress = 0x8000
	}
	dmc.bytesRemaining--
	if dmc.bytesRemaining == 0 {
		if dmc.loop {
			dmc.currentAddress = dmc.sampleAddress
			dmc.bytesRemaining = dmc.sampleLength
		} else if dmc.irqEnable {
			dmc.irqFlag = true
		}
	}
}

// stepDMCTimer steps the DMC channel's rate divider and output unit.
// Cycle stealing from the CPU during a sample fetch is a known hardware
// quirk this implementation does not reproduce (see DESIGN.md).
func (apu *APU) stepDMCTimer(dmc *DMCChannel) {
	if dmc.timerCounter > 0 {
		dmc.timerCounter--
		return
	}
	dmc.timerCounter = dmcRateTable[dmc.rateIndex]

	if dmc.sampleBufferBits == 0 {
		if dmc.bytesRemaining > 0 {
			apu.loadDMCSample()
		} else {
			dmc.silent = true
		}
	}

	if dmc.sampleBufferBits > 0 {
		if dmc.sampleBuffer&0x01 != 0 {
			if dmc.outputLevel <= 125 {
				dmc.outputLevel += 2
			}
		} else {
			if dmc.outputLevel >= 2 {
				dmc.outputLevel -= 2
			}
		}
		dmc.sampleBuffer >>= 1
		dmc.sampleBufferBits--
		dmc.silent = false
	}
}

// getDMCOutput gets the current DMC channel output
func (apu *APU) getDMCOutput(dmc *DMCChannel) uint8 {
	return dmc.outputLevel
}

// Control register methods

// writeChannelEnable writes to channel enable register ($4015)
func (apu *APU) writeChannelEnable(value uint8) {
	apu.channelEnable[0] = (value & 0x01) != 0 // Pulse 1
	apu.channelEnable[1] = (value & 0x02) != 0 // Pulse 2
	apu.channelEnable[2] = (value & 0x04) != 0 // Triangle
	apu.channelEnable[3] = (value & 0x08) != 0 // Noise
	apu.channelEnable[4] = (value & 0x10) != 0 // DMC

	// Clear length counters for disabled channels
	if !apu.channelEnable[0] {
		apu.pulse1.lengthCounter = 0
	}
	if !apu.channelEnable[1] {
		apu.pulse2.lengthCounter = 0
	}
	if !apu.channelEnable[2] {
		apu.triangle.lengthCounter = 0
	}
	if !apu.channelEnable[3] {
		apu.noise.lengthCounter = 0
	}
	if !apu.channelEnable[4] {
		apu.dmc.bytesRemaining = 0
	} else if apu.dmc.bytesRemaining == 0 {
		// (Re)start DMC playback from the top of the sample.
		apu.dmc.currentAddress = apu.dmc.sampleAddress
		apu.dmc.bytesRemaining = apu.dmc.sampleLength
	}

	// Clear DMC IRQ flag
	apu.dmc.irqFlag = false
}

// writeFrameCounter writes to frame counter register ($4017)
func (apu *APU) writeFrameCounter(value uint8) {
	apu.frameMode = (value & 0x80) != 0
	apu.frameIRQEnable = (value & 0x40) == 0

	if !apu.frameIRQEnable {
		apu.frameIRQFlag = false
	}

	// Reset frame counter
	apu.frameCounter = 0
	apu.frameCounterStep = 0

	// If 5-step mode, immediately clock all units
	if apu.frameMode {
		apu.clockEnvelopeAndLinear()
		apu.clockLengthAndSweep()
	}
}

// mixChannels applies the NES audio mixer formula
func (apu *APU) mixChannels(pulse1, pulse2, triangle, noise, dmc uint8) float32 {
	// Pulse mixing
	pulseSum := float64(pulse1 + pulse2)
	var pulseOut float64
	if pulseSum != 0 {
		pulseOut = 95.88 / ((8128.0 / pulseSum) + 100.0)
	}

	// TND mixing
	tndSum := (float64(triangle) / 8227.0) + (float64(noise) / 12241.0) + (float64(dmc) / 22638.0)
	var tndOut float64
	if tndSum != 0 {
		tndOut = 159.79 / ((1.0 / tndSum) + 100.0)
	}

	// Final output
	output := pulseOut + tndOut

	// Scale to -1.0 to 1.0 range
	return float32(output/30.0 - 1.0)
}

// GetFrameIRQ returns the current frame counter IRQ flag
func (apu *APU) GetFrameIRQ() bool {
	return apu.frameIRQFlag
}

// GetDMCIRQ returns the current DMC IRQ flag
func (apu *APU) GetDMCIRQ() bool {
	return apu.dmc.irqFlag
}

// GetChannelOutput returns the output level for a specific channel (for debugging)
func (apu *APU) GetChannelOutput(channel int) uint8 {
	if !apu.channelEnable[channel] {
		return 0
	}

	switch channel {
	case 0:
		return apu.getPulseOutput(&apu.pulse1)
	case 1:
		return apu.getPulseOutput(&apu.pulse2)
	case 2:
		return apu.getTriangleOutput(&apu.triangle)
	case 3:
		return apu.getNoiseOutput(&apu.noise)
	case 4:
		return apu.getDMCOutput(&apu.dmc)
	default:
		return 0
	}
}

// IsChannelEnabled returns whether a channel is enabled
func (apu *APU) IsChannelEnabled(channel int) bool {
	if channel < 0 || channel >= len(apu.channelEnable) {
		return false
	}
	return apu.channelEnable[channel]
}
