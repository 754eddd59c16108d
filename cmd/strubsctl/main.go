// Command strubsctl is the operator CLI for a STRUBS object store: lists
// configured volumes, runs or watches a verification pass, and prints an
// object's metadata record. Grounded on the teacher's cmd/cli (urfave/cli
// command-per-concern layout), adapted from urfave/cli v1 to the v2 API
// this module's go.mod carries.
//
// Unlike the teacher's CLI, which talks to a running cluster over HTTP,
// strubsctl opens the metadata store and volume registry directly -- this
// module has no daemon front-end (spec §1 Non-goals: HTTP/FUSE are out of
// scope), so the CLI invocation *is* the process.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"strubs/cmn"
	"strubs/ioshutdown"
	"strubs/object"
	"strubs/store"
	"strubs/volume"
)

var (
	flagConfig = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the runtime config JSON file",
		Value:   "/etc/strubs/config.json",
		EnvVars: []string{"STRUBS_CONFIG"},
	}
	flagStoreDir = &cli.StringFlag{
		Name:    "store-dir",
		Usage:   "metadata store root directory",
		Value:   "/var/lib/strubs/meta",
		EnvVars: []string{"STRUBS_STORE_DIR"},
	}
)

// openService loads config, opens the metadata store, and builds the
// volume registry a command needs -- the CLI-process equivalent of the
// teacher's targetrunner startup sequence (ais/tgtobj.go's collaborators),
// narrowed to one-shot command invocations instead of a long-running
// daemon.
func openService(c *cli.Context) (*object.Service, error) {
	conf, err := cmn.LoadFromFile(c.String(flagConfig.Name))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cmn.GCO.Put(conf)

	vols, err := volume.FromRoots(conf.Volumes.Roots)
	if err != nil {
		return nil, fmt.Errorf("enumerating volumes: %w", err)
	}
	reg := volume.NewRegistry(vols)
	for _, v := range reg.All() {
		reg.Online(v.ID)
	}
	if res := reg.Sweep(); res.OrphansRemoved > 0 || len(res.Errors) > 0 {
		for _, sweepErr := range res.Errors {
			cmn.Warningf("volume sweep: %v", sweepErr)
		}
	}

	st, err := store.Open(c.String(flagStoreDir.Name))
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	return object.NewService(reg, st, &ioshutdown.Token{}), nil
}

func main() {
	app := &cli.App{
		Name:  "strubsctl",
		Usage: "administer a STRUBS object store",
		Flags: []cli.Flag{flagConfig, flagStoreDir},
		Commands: []*cli.Command{
			volumesCommand,
			verifyCommand,
			objectCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		cmn.Errorf("strubsctl: %v", err)
		cmn.Flush()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cmn.Flush()
}
