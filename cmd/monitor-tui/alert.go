package main

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(44100)

// alerter plays short tones. A disabled alerter is a no-op.
type alerter struct {
	on bool
}

func newAlerter(enabled bool) (*alerter, error) {
	if !enabled {
		return &alerter{}, nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return &alerter{}, err
	}
	return &alerter{on: true}, nil
}

func (a *alerter) tone(freq float64, d time.Duration) {
	if !a.on {
		return
	}
	sine, err := generators.SineTone(sampleRate, freq)
	if err != nil {
		return
	}
	speaker.Play(beep.Take(sampleRate.N(d), sine))
}

func (a *alerter) warning() { a.tone(660, 60*time.Millisecond) }
func (a *alerter) failure() { a.tone(330, 150*time.Millisecond) }
func (a *alerter) close() {
	if a.on {
		speaker.Close()
	}
}
