package operations

import (
	"strings"

	"github.com/urfave/cli"
)

const (
	confFlagName   = "conf"
	entityFlagName = "entity"
)

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

func serviceConfigFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(confFlagName, "config", "c"),
		Usage: "path to the rowan configuration file",
		Value: DefaultConfigFile,
	})
}

func entityFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(entityFlagName, "e"),
		Usage: "restrict the operation to a single entity type",
	})
}
