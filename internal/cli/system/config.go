package system

import (
	"fmt"

	"github.com/julianstephens/habitcoach/internal/cli"
	"github.com/julianstephens/habitcoach/internal/config"
)

type ConfigCmd struct {
	List ConfigListCmd `cmd:"" default:"1" help:"List current settings."`
	Get  ConfigGetCmd  `cmd:"" help:"Print one setting."`
	Set  ConfigSetCmd  `cmd:"" help:"Change one setting and save the config file."`
}

type ConfigListCmd struct{}

func (c *ConfigListCmd) Run(ctx *cli.Context) error {
	ctx.Printf("Config file: %s\n\n", ctx.ConfigPath)
	for _, key := range config.Keys {
		v, err := ctx.Config.Get(key)
		if err != nil {
			return err
		}
		if key == "postgres_dsn" {
			v = maskPassword(v)
		}
		ctx.Printf("  %-22s %s\n", key, v)
	}
	return nil
}

type ConfigGetCmd struct {
	Key string `arg:"" help:"Setting name."`
}

func (c *ConfigGetCmd) Run(ctx *cli.Context) error {
	v, err := ctx.Config.Get(c.Key)
	if err != nil {
		return err
	}
	ctx.Println(v)
	return nil
}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Setting name."`
	Value string `arg:"" help:"New value."`
}

func (c *ConfigSetCmd) Run(ctx *cli.Context) error {
	if err := ctx.Config.Set(c.Key, c.Value); err != nil {
		return err
	}
	if ctx.ConfigPath == "" {
		return fmt.Errorf("no config file path set")
	}
	if err := ctx.Config.Save(ctx.ConfigPath); err != nil {
		return err
	}
	ctx.Printf("Set %s = %s\n", c.Key, c.Value)
	return nil
}
