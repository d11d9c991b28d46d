package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// syncAttendance runs a sync job for the event and waits for it to finish.
func (cli *commandLine) syncAttendance(eventID, chunkSize int) error {
	if _, err := cli.jobs.Start(eventID, chunkSize); err != nil {
		return errors.Wrap(err, "starting sync job")
	}

	st, err := cli.jobs.Wait(context.Background(), eventID)
	if err != nil {
		return errors.Wrap(err, "waiting for sync job")
	}

	m := st.Metrics
	fmt.Fprintf(cli.out, "sync %s: %d/%d chunks, %d teams processed\n", st.State, st.CurrentChunk, st.TotalChunks, m.ProcessedTeams)
	fmt.Fprintf(cli.out, "  contingents: %d new, %d updated\n", m.NewContingents, m.UpdatedContingents)
	fmt.Fprintf(cli.out, "  teams: %d new, %d updated\n", m.NewTeams, m.UpdatedTeams)
	fmt.Fprintf(cli.out, "  contestants: %d new, %d updated\n", m.NewContestants, m.UpdatedContestants)
	fmt.Fprintf(cli.out, "  managers: %d new, %d updated\n", m.NewManagers, m.UpdatedManagers)
	for _, msg := range m.Errors {
		fmt.Fprintf(cli.out, "  error: %s\n", msg)
	}

	if st.Error != "" {
		return errors.New(st.Error)
	}
	return nil
}
