package light

import (
	"math/rand/v2"
	"time"
)

// animation writes its next frame into the buffer and returns how long to
// hold it.
type animation interface {
	next(frame []Color) time.Duration
}

type policeStep struct {
	color Color
	hold  time.Duration
}

// police flashes the first 12 pixels blue three times, then red three times.
type police struct {
	steps  []policeStep
	pixels int
	i      int
}

func newPolice(n int) *police {
	var steps []policeStep
	for _, c := range []Color{Blue, Red} {
		for k := 0; k < 3; k++ {
			steps = append(steps,
				policeStep{c, 50 * time.Millisecond},
				policeStep{Black, 50 * time.Millisecond},
			)
		}
		steps[len(steps)-1].hold += 100 * time.Millisecond
	}
	return &police{steps: steps, pixels: min(n, 12)}
}

func (p *police) next(frame []Color) time.Duration {
	s := p.steps[p.i]
	p.i = (p.i + 1) % len(p.steps)
	fill(frame[:p.pixels], s.color)
	return s.hold
}

const breathSteps = 10

// breath ramps a color up in ten steps and back down in ten.
type breath struct {
	color Color
	i     int
}

func newBreath(c Color) *breath {
	return &breath{color: c}
}

func (b *breath) next(frame []Color) time.Duration {
	var c Color
	if b.i < breathSteps {
		c = b.color.Scale(b.i, breathSteps)
	} else {
		k := b.i - breathSteps
		c = Color{
			R: b.color.R - b.color.Scale(k, breathSteps).R,
			G: b.color.G - b.color.Scale(k, breathSteps).G,
			B: b.color.B - b.color.Scale(k, breathSteps).B,
		}
	}
	b.i = (b.i + 1) % (2 * breathSteps)
	fill(frame, c)
	return 30 * time.Millisecond
}

// rainbow spreads the color wheel over the strip and rotates it.
type rainbow struct {
	j int
}

func (r *rainbow) next(frame []Color) time.Duration {
	n := len(frame)
	for i := range frame {
		frame[i] = Wheel((i*256/n + r.j) & 255)
	}
	r.j = (r.j + 1) % 256
	return 20 * time.Millisecond
}

// Wheel maps 0..255 onto a red-green-blue color wheel.
func Wheel(pos int) Color {
	pos &= 255
	switch {
	case pos < 85:
		return Color{uint8(pos * 3), uint8(255 - pos*3), 0}
	case pos < 170:
		pos -= 85
		return Color{uint8(255 - pos*3), 0, uint8(pos * 3)}
	default:
		pos -= 170
		return Color{0, uint8(pos * 3), uint8(255 - pos*3)}
	}
}

// Firefly tuning.
const (
	fireflyMax      = 128
	fireflyMin      = 10
	fireflyFade     = 5
	fireflyTick     = 20 * time.Millisecond
	fireflyFadeStep = 50 * time.Millisecond
	fireflyBlinkP   = 0.1
)

type fireflyPixel struct {
	rising     bool
	brightness int
	nextChange time.Duration
	onDuration time.Duration
	blink      int
	blinkUntil time.Duration
}

// firefly runs an independent fade cycle per pixel with random holds and
// short random over-brightness blinks. Time is counted in ticks so the
// sequence depends only on the random source.
type firefly struct {
	pixels []fireflyPixel
	rng    *rand.Rand
	now    time.Duration
}

func newFirefly(n int, rng *rand.Rand) *firefly {
	f := &firefly{pixels: make([]fireflyPixel, n), rng: rng}
	for i := range f.pixels {
		f.pixels[i] = fireflyPixel{
			rising:     true,
			brightness: fireflyMin,
			nextChange: f.uniform(0, 2*time.Second),
			onDuration: f.uniform(500*time.Millisecond, 2*time.Second),
		}
	}
	return f
}

func (f *firefly) uniform(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(f.rng.Float64()*float64(hi-lo))
}

func (f *firefly) next(frame []Color) time.Duration {
	for i := range f.pixels {
		p := &f.pixels[i]
		if f.now >= p.nextChange {
			f.fade(p)
		}
		if p.blinkUntil <= f.now && f.rng.Float64() < fireflyBlinkP {
			boost := float64(p.brightness) * (0.1 + 0.2*f.rng.Float64())
			p.blink = min(p.brightness+int(boost), fireflyMax)
			p.blinkUntil = f.now + f.uniform(100*time.Millisecond, 600*time.Millisecond)
		}

		v := p.brightness
		if f.now < p.blinkUntil {
			v = p.blink
		}
		if i < len(frame) {
			frame[i] = Gray(v)
		}
	}
	f.now += fireflyTick
	return fireflyTick
}

func (f *firefly) fade(p *fireflyPixel) {
	if p.rising {
		p.brightness += fireflyFade
		if p.brightness >= fireflyMax {
			p.brightness = fireflyMax
			p.rising = false
			p.nextChange = f.now + p.onDuration
			return
		}
		p.nextChange = f.now + fireflyFadeStep
		return
	}

	p.brightness -= fireflyFade
	if p.brightness <= fireflyMin {
		p.brightness = fireflyMin
		p.rising = true
		p.nextChange = f.now + f.uniform(500*time.Millisecond, 2*time.Second)
		p.onDuration = f.uniform(500*time.Millisecond, 2*time.Second)
		return
	}
	p.nextChange = f.now + fireflyFadeStep
}
