package chat

import (
	"context"
	"strings"

	"github.com/julianstephens/habitcoach/internal/cli"
)

type CoachCmd struct {
	Message []string `arg:"" help:"Question or message for the coach."`
}

func (c *CoachCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	if err := ctx.Session(bg); err != nil {
		return err
	}
	reply, err := ctx.Coach.SendMessage(bg, ctx.Store.ChatContext(), strings.Join(c.Message, " "))
	if err != nil {
		return err
	}
	ctx.Println(reply)
	return nil
}
