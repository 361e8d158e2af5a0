package operations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/evergreen-ci/rowan"
	"github.com/evergreen-ci/rowan/db"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 5 * time.Second

// Upgrades returns the command tree for inspecting schema upgrade
// progress against a live database.
func Upgrades() cli.Command {
	return cli.Command{
		Name:    "upgrades",
		Aliases: []string{"upgrade"},
		Usage:   "inspect schema upgrade progress",
		Flags:   serviceConfigFlags(),
		Subcommands: []cli.Command{
			upgradesStatus(),
			upgradesVerify(),
		},
	}
}

func upgradesStatus() cli.Command {
	return cli.Command{
		Name:  "status",
		Usage: "show per-upgrade convergence for the configured entities",
		Flags: entityFlag(),
		Action: func(c *cli.Context) error {
			confPath := c.Parent().String(confFlagName)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			samples, err := sampleDeployment(ctx, confPath, c.String(entityFlagName))
			if err != nil {
				return err
			}

			t := tabby.New()
			t.AddHeader("ENTITY", "UPGRADE", "CONVERGED", "APPLIED")
			for _, sample := range samples {
				t.AddLine(sample.Entity, sample.Upgrade, sample.Converged, sample.Applied)
			}
			t.Print()

			return nil
		},
	}
}

func upgradesVerify() cli.Command {
	return cli.Command{
		Name:  "verify",
		Usage: "exit nonzero unless every upgrade has converged",
		Flags: entityFlag(),
		Action: func(c *cli.Context) error {
			confPath := c.Parent().String(confFlagName)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			samples, err := sampleDeployment(ctx, confPath, c.String(entityFlagName))
			if err != nil {
				return err
			}

			pending := []string{}
			for _, sample := range samples {
				if !sample.Converged {
					pending = append(pending, fmt.Sprintf("%s/%s", sample.Entity, sample.Upgrade))
				}
			}
			if len(pending) > 0 {
				return errors.Errorf("%d upgrades have not converged: %s", len(pending), strings.Join(pending, ", "))
			}

			grip.Infof("all %d upgrades have converged", len(samples))
			return nil
		},
	}
}

func sampleDeployment(ctx context.Context, confPath string, onlyEntity string) ([]rowan.ProgressSample, error) {
	conf, err := NewSettings(confPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading configuration")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.MongoURI).SetConnectTimeout(connectTimeout))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to the database")
	}
	defer func() {
		grip.Error(errors.Wrap(client.Disconnect(ctx), "disconnecting from the database"))
	}()

	database := client.Database(conf.Database)

	matched := false
	samples := []rowan.ProgressSample{}
	for _, entity := range conf.Entities {
		if onlyEntity != "" && entity.Name != onlyEntity {
			continue
		}
		matched = true

		store := db.NewStore(database, entity.collection())
		entitySamples, err := rowan.SampleProgress(ctx, store, entity.Name, entity.Upgrades)
		if err != nil {
			return nil, errors.Wrapf(err, "sampling entity '%s'", entity.Name)
		}
		samples = append(samples, entitySamples...)
	}

	if !matched && onlyEntity != "" {
		return nil, errors.Errorf("no configured entity named '%s'", onlyEntity)
	}

	return samples, nil
}
