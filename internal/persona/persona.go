// Package persona holds the catalogue of conversational characters: their
// prompts, daily appointment times and scripted lines.
package persona

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/celerix-dev/celerix-companion/internal/appointment"
)

// houseRules are prepended to every persona prompt.
const houseRules = `Sen kurgusal bir flort karakterisin.
Dogal, insan gibi, sicak ve akici konusursun.
Kisa cevaplar verirsin (1-3 cumle).
Ima + merak + yavaslik var.
Asla acik sacik konusma.
Asla kullaniciyi reddetme veya kilitleme.
Her mesaji sanki gercek bir sohbetteyimis gibi cevapla.`

// ErrUnknown is returned when a persona id is not in the catalogue.
var ErrUnknown = errors.New("unknown persona")

// Phase is a stage of the relationship, entered once the identity has
// exchanged at least From messages with the persona.
type Phase struct {
	Name      string `yaml:"name" json:"name"`
	From      int    `yaml:"from" json:"from"`
	Directive string `yaml:"directive" json:"directive"`
}

// Persona is one character.
type Persona struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Hour            int      `yaml:"hour"`
	Minute          int      `yaml:"minute"`
	HookProbability float64  `yaml:"hook_probability"`
	Prompt          string   `yaml:"prompt"`
	EscapeLines     []string `yaml:"escape_lines"`
	TeaseLines      []string `yaml:"tease_lines"`
	Phases          []Phase  `yaml:"phases"`
}

// Schedule returns the persona's daily appointment time.
func (p *Persona) Schedule() appointment.Schedule {
	return appointment.Schedule{Hour: p.Hour, Minute: p.Minute}
}

// Validate checks ranges and required scripted lines.
func (p *Persona) Validate() error {
	if p.ID == "" {
		return errors.New("persona id is empty")
	}
	if err := p.Schedule().Validate(); err != nil {
		return fmt.Errorf("persona %s: %w", p.ID, err)
	}
	if p.HookProbability < 0 || p.HookProbability > 1 {
		return fmt.Errorf("persona %s: hook_probability %v out of range 0-1", p.ID, p.HookProbability)
	}
	if len(p.EscapeLines) == 0 {
		return fmt.Errorf("persona %s: no escape_lines", p.ID)
	}
	if len(p.TeaseLines) == 0 {
		return fmt.Errorf("persona %s: no tease_lines", p.ID)
	}
	if len(p.Phases) == 0 || p.Phases[0].From != 0 {
		return fmt.Errorf("persona %s: first phase must start at 0", p.ID)
	}
	for i := 1; i < len(p.Phases); i++ {
		if p.Phases[i].From <= p.Phases[i-1].From {
			return fmt.Errorf("persona %s: phase %q must start after %q", p.ID, p.Phases[i].Name, p.Phases[i-1].Name)
		}
	}
	return nil
}

// PhaseFor returns the phase reached after the given number of exchanges.
func (p *Persona) PhaseFor(exchanges int) Phase {
	cur := p.Phases[0]
	for _, ph := range p.Phases[1:] {
		if exchanges < ph.From {
			break
		}
		cur = ph
	}
	return cur
}

// SystemPrompt assembles the instruction string for one generation call.
func (p *Persona) SystemPrompt(ph Phase) string {
	var b strings.Builder
	b.WriteString(houseRules)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(p.Prompt))
	if ph.Directive != "" {
		b.WriteString("\n\nSu anki asama (")
		b.WriteString(ph.Name)
		b.WriteString("): ")
		b.WriteString(ph.Directive)
	}
	return b.String()
}

// Rand is the random source used to pick scripted lines and roll for hooks.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// EscapeLine picks one of the persona's escape lines.
func (p *Persona) EscapeLine(r Rand) string {
	return pick(p.EscapeLines, r)
}

// TeaseLine picks one of the persona's tease lines.
func (p *Persona) TeaseLine(r Rand) string {
	return pick(p.TeaseLines, r)
}

func pick(lines []string, r Rand) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[r.IntN(len(lines))]
}

// NewRand returns a seeded source suitable for production use.
func NewRand(seed1, seed2 uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed1, seed2))
}
