package cli

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/logger"
	"github.com/koustreak/dbconnector/internal/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// checkConcurrency bounds connection tests running at once.
const checkConcurrency = 4

type checkResult struct {
	profile connection.Profile
	ok      bool
	message string
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [connections-file]",
		Short: "Test every connection in a connections file",
		Long: `Open each profile in a connections file, run a trivial statement and print
a summary table. Exits non-zero if any connection fails. Without an argument
the configured connections_file is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			path := cfg.ConnectionsFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errs.New(errs.ErrKindInvalidInput, "no connections file: pass a path or set connections_file")
			}

			profiles, err := store.LoadProfilesFile(path)
			if err != nil {
				return err
			}

			conns := connection.NewManager(store.NewMemoryStore(), connection.ManagerConfig{
				ConnectTimeout: cfg.ConnectTimeout,
				Logger:         logger.FromContext(cmd.Context()),
			})
			defer conns.Close()

			results := make([]checkResult, len(profiles))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(checkConcurrency)
			for i, p := range profiles {
				i, p := i, p // per-iteration copies (go 1.21 loop semantics)
				g.Go(func() error {
					res := checkResult{profile: p}
					if err := p.Validate(); err != nil {
						res.message = err.Error()
					} else {
						res.ok, res.message = conns.Test(ctx, p)
					}
					results[i] = res
					return nil
				})
			}
			_ = g.Wait()

			failed := renderCheck(cmd.OutOrStdout(), results)
			if failed > 0 {
				return fmt.Errorf("%d of %d connections failed", failed, len(results))
			}
			return nil
		},
	}
}

// renderCheck prints one row per profile and returns how many failed.
func renderCheck(w io.Writer, results []checkResult) int {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Name", "Type", "Address", "Status", "Message"})

	failed := 0
	for _, r := range results {
		status := "OK"
		if !r.ok {
			status = "FAILED"
			failed++
		}
		table.Append([]string{
			r.profile.Name,
			string(r.profile.DBType),
			net.JoinHostPort(r.profile.Host, strconv.Itoa(r.profile.Port)),
			status,
			r.message,
		})
	}
	table.Render()
	return failed
}
