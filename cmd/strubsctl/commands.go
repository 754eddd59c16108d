package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"strubs/ioshutdown"
	"strubs/verify"
)

// render executes tmpl against data through a tabwriter, the same
// text/template + text/tabwriter combination the teacher's
// templates.DisplayOutput uses for every `ais show` table. Grounded on
// cmd/cli/templates/templates.go's DisplayOutput.
func render(tmplText string, data interface{}) error {
	tmpl, err := template.New("strubsctl").Parse(tmplText)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if err := tmpl.Execute(w, data); err != nil {
		return err
	}
	return w.Flush()
}

// installSignalAbort wires SIGINT/SIGTERM to the service's shutdown token,
// so a long-running `verify start` can be cancelled cleanly (spec.md §4.8)
// instead of being killed mid-batch.
func installSignalAbort(token *ioshutdown.Token) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		token.Abort(fmt.Sprintf("signal %v", sig))
	}()
}

var volumesTmpl = `ID	UUID	PATH	PRIORITY	STATE	QUEUE	VERIFY-CKSUM	VERIFY-TOTAL
{{range .}}{{.ID}}	{{.UUID}}	{{.MountPath}}	{{.Priority}}	{{.State}}	{{.Queue}}	{{.VerifyChecksum}}	{{.VerifyTotal}}
{{end}}`

type volumeRow struct {
	ID                         int
	UUID, MountPath, State     string
	Priority                   int
	Queue                      int64
	VerifyChecksum, VerifyTotal int64
}

var volumesCommand = &cli.Command{
	Name:  "volumes",
	Usage: "list configured volumes and their verify-error counters",
	Action: func(c *cli.Context) error {
		svc, err := openService(c)
		if err != nil {
			return err
		}
		var rows []volumeRow
		for _, v := range svc.Volumes.All() {
			rec, err := svc.Store.GetVolumeRecord(v.ID)
			if err != nil {
				return err
			}
			rows = append(rows, volumeRow{
				ID: v.ID, UUID: v.UUID, MountPath: v.MountPath,
				Priority: v.Priority, State: v.State().String(), Queue: v.QueueDepth(),
				VerifyChecksum: rec.VerifyChecksum, VerifyTotal: rec.VerifyTotal,
			})
		}
		return render(volumesTmpl, rows)
	},
}

var verifyCommand = &cli.Command{
	Name:  "verify",
	Usage: "run or inspect the background integrity scrub",
	Subcommands: []*cli.Command{
		verifyStartCommand,
		verifyStatusCommand,
	},
}

var verifyStartCommand = &cli.Command{
	Name:  "start",
	Usage: "run one verification pass to completion or cancellation",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "watch", Usage: "show a live progress bar while the pass runs"},
	},
	Action: func(c *cli.Context) error {
		svc, err := openService(c)
		if err != nil {
			return err
		}
		installSignalAbort(svc.Token)

		job := verify.NewJob(svc)
		if c.Bool("watch") {
			attachProgressBar(job)
		}

		if err := job.Run(); err != nil {
			return fmt.Errorf("verify run: %w", err)
		}
		fmt.Println("verify run complete")
		return nil
	},
}

// attachProgressBar wires a live mpb bar to the job's progress callback.
// The object count isn't known ahead of a run, so the bar's total grows in
// fixed increments as the count approaches it -- the same "total estimated"
// idiom the teacher's downloader progress bar uses for in-flight transfers
// of unknown final size (cli/commands/downloader.go's
// unknownTotalIncrement/SetTotal dance).
func attachProgressBar(job *verify.Job) {
	const unknownTotalIncrement = 64
	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(unknownTotalIncrement,
		mpb.PrependDecorators(
			decor.Name("objects verified", decor.WC{W: len("objects verified") + 1, C: decor.DSyncWidthR}),
			decor.CountersNoUnit("%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
	)
	var last int64
	total := int64(unknownTotalIncrement)
	job.OnProgress = func(objectsChecked, checksumErrors, totalErrors int64) {
		if objectsChecked >= total {
			total = objectsChecked + unknownTotalIncrement
			bar.SetTotal(total, false)
		}
		bar.IncrBy(int(objectsChecked - last))
		last = objectsChecked
		if totalErrors > 0 {
			bar.SetTotal(bar.Current(), false)
		}
	}
	go p.Wait()
}

var verifyStatusCommand = &cli.Command{
	Name:  "status",
	Usage: "print the current or most recent verify run's outcome",
	Action: func(c *cli.Context) error {
		svc, err := openService(c)
		if err != nil {
			return err
		}
		startedAt, running, err := svc.Store.GetVerifyStartedAt()
		if err != nil {
			return err
		}
		if running {
			fmt.Printf("verify run in progress since %s\n", startedAt.Format(time.RFC3339))
			return nil
		}
		summary, err := svc.Store.GetLastVerify()
		if err != nil {
			return err
		}
		if summary == nil {
			fmt.Println("no verify run has completed yet")
			return nil
		}
		fmt.Printf("last run: %s -> %s, checksumErrors=%d totalErrors=%d\n",
			summary.StartedAt.Format(time.RFC3339), summary.FinishedAt.Format(time.RFC3339),
			summary.ChecksumErrors, summary.TotalErrors)
		return nil
	},
}

var objectStatTmpl = `ID         {{.ID}}
NAME       {{.Name}}
SIZE       {{.Size}}
MIME       {{.Mime}}
CHUNKSIZE  {{.ChunkSize}}
DATA       {{.DataVolumes}}
PARITY     {{.ParityVolumes}}
SLICEERRS  {{len .SliceErrors}}
`

var objectCommand = &cli.Command{
	Name:  "object",
	Usage: "inspect a single object's metadata record",
	Subcommands: []*cli.Command{
		{
			Name:      "stat",
			Usage:     "print an object's metadata record",
			ArgsUsage: "<object-id>",
			Action: func(c *cli.Context) error {
				id := c.Args().First()
				if id == "" {
					return fmt.Errorf("usage: strubsctl object stat <object-id>")
				}
				svc, err := openService(c)
				if err != nil {
					return err
				}
				rec, err := svc.Store.GetObjectByID(id)
				if err != nil {
					return err
				}
				return render(objectStatTmpl, rec)
			},
		},
	},
}
