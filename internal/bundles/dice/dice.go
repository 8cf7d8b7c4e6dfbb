// Package dice is the "bundles.dice" plugin: roll dice formulas such as
// 2d20+1d6-2 and sample their spread.
package dice

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/keshon/commandbot/internal/plugin"
	"github.com/keshon/commandbot/pkg/cmd"
)

// Locator is the catalog name of the dice bundle.
const Locator = "bundles.dice"

const statSamples = 1000

// Dice is the dice bundle.
type Dice struct {
	plugin.Base
	intn Intn
}

// New builds the dice bundle. An Intn in args replaces the random source.
func New(h plugin.Host, args ...any) (plugin.Bundle, error) {
	d := &Dice{Base: plugin.NewBase("Dice", h), intn: rand.IntN}
	for _, a := range args {
		switch fn := a.(type) {
		case Intn:
			d.intn = fn
		case func(int) int:
			d.intn = fn
		}
	}
	return d, nil
}

// Source lists the bundle types of bundles.dice.
func Source() []*plugin.Type {
	return []*plugin.Type{{Name: "Dice", New: New}}
}

// Register adds bundles.dice to cat.
func Register(cat *plugin.Catalog) error {
	return cat.Register(Locator, Source)
}

// Commands implements plugin.Bundle.
func (d *Dice) Commands() []*cmd.Command {
	roll := &cmd.Command{
		Name:        "roll",
		Aliases:     []string{"r", "dice"},
		Description: "Roll dices like `2d20+1d6-2`",
		Usage:       "roll <formula>",
		Params:      []cmd.Param{{Name: "formula", Rest: true, Optional: true}},
		Run:         d.roll,
	}
	stats := &cmd.Command{
		Name:        "stats",
		Description: fmt.Sprintf("Roll a formula %d times and show the spread", statSamples),
		Usage:       "roll stats <formula>",
		Params:      []cmd.Param{{Name: "formula", Rest: true, Optional: true}},
		Run:         d.stats,
	}
	_ = roll.AddSubcommand(stats)
	return []*cmd.Command{roll}
}

func (d *Dice) roll(ctx context.Context, inv *cmd.Invocation) error {
	res, err := Roll(inv.Arg("formula"), d.intn)
	if err != nil {
		return replyFailure(ctx, inv, err)
	}
	return inv.Reply(ctx, fmt.Sprintf("🎲 **Dice Roll**\n**User Input**: `%s`\n**Calculation**: %s\n**Result**: **%d**",
		res.Formula, res.Calculation, res.Total))
}

func (d *Dice) stats(ctx context.Context, inv *cmd.Invocation) error {
	st, err := Sample(inv.Arg("formula"), statSamples, d.intn)
	if err != nil {
		return replyFailure(ctx, inv, err)
	}
	return inv.Reply(ctx, fmt.Sprintf("🎲 **%d rolls**\n**Min**: %d\n**Max**: %d\n**Mean**: %.2f",
		st.Samples, st.Min, st.Max, st.Mean))
}

// replyFailure tells the user what was wrong with their formula. Bad input
// is not a command failure, so only a send error is returned.
func replyFailure(ctx context.Context, inv *cmd.Invocation, err error) error {
	msg := err.Error()
	if errors.Is(err, ErrEmptyFormula) {
		msg = "Can't parse your formula. Try something like `2d6+1d4*2-3`"
	}
	return inv.Reply(ctx, msg)
}
